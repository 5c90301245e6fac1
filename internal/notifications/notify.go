// Package notifications fans a user's low-stock medications out to in-app
// notifications and family-contact emails.
//
// Pipeline: select low stock → notify owner → notify opted-in contacts →
// one aggregated email per contact. Nothing is retried; email failures are
// logged per contact and never fail the run.
package notifications

import (
	"context"

	"github.com/albapepper/medminder/internal/model"
)

// Result counts what one run produced.
type Result struct {
	NotificationsSent int `json:"notificationsSent"`
	EmailsSent        int `json:"emailsSent"`
	LowStockCount     int `json:"lowStockCount"`
}

// Store is the persistence the checker needs.
type Store interface {
	ListMedications(ctx context.Context, userID int64) ([]model.Medication, error)
	ListContacts(ctx context.Context, userID int64) ([]model.FamilyContact, error)
	CreateNotification(ctx context.Context, n *model.Notification) (int64, error)
	GetEmailSettings(ctx context.Context, userID int64) (*model.EmailSettings, error)
}
