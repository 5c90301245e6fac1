// Package store defines the persistence contract for users, medications,
// dose logs, family contacts, notifications, and SMTP settings.
//
// Two backends implement it: store/postgres (pgxpool, the production
// default) and store/sqlite (embedded, for single-user deployments and
// tests). Every user-owned query is scoped by user id; a row owned by
// someone else is reported as ErrNotFound.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/albapepper/medminder/internal/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("already exists")
	ErrContactLimit      = errors.New("family contact limit reached")
	ErrInsufficientStock = errors.New("insufficient remaining quantity")
)

// DefaultNotificationLimit is the inbox page size.
const DefaultNotificationLimit = 50

// Store is implemented by every storage backend.
type Store interface {
	Users
	Medications
	Logs
	Contacts
	Notifications
	EmailSettings

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close()
}

type Users interface {
	CreateUser(ctx context.Context, u *model.User) (int64, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	TouchSignIn(ctx context.Context, id int64, at time.Time) error
}

type Medications interface {
	CreateMedication(ctx context.Context, m *model.Medication) (int64, error)
	// ListMedications returns the user's active medications, newest first.
	ListMedications(ctx context.Context, userID int64) ([]model.Medication, error)
	// ListActiveMedications returns active medications across all users.
	ListActiveMedications(ctx context.Context) ([]model.Medication, error)
	GetMedication(ctx context.Context, userID, id int64) (*model.Medication, error)
	UpdateMedication(ctx context.Context, userID, id int64, patch model.MedicationPatch) error
	DeactivateMedication(ctx context.Context, userID, id int64) error
	// RefillMedication adds to both remaining and total quantity.
	RefillMedication(ctx context.Context, userID, id int64, add int) (*model.Medication, error)
}

type Logs interface {
	// CreateLog records a dose and, for statuses that consume stock,
	// decrements the medication's remaining quantity in the same
	// transaction. Returns ErrInsufficientStock when the supply is short.
	CreateLog(ctx context.Context, l *model.MedicationLog) (int64, error)
	ListLogs(ctx context.Context, userID int64, f model.LogFilter) ([]model.MedicationLog, error)
	// ListLogsBetween returns logs across all users with takenAt in [start, end].
	ListLogsBetween(ctx context.Context, start, end time.Time) ([]model.MedicationLog, error)
}

type Contacts interface {
	// CreateContact returns ErrContactLimit when the user already has
	// model.MaxFamilyContacts active contacts.
	CreateContact(ctx context.Context, c *model.FamilyContact) (int64, error)
	ListContacts(ctx context.Context, userID int64) ([]model.FamilyContact, error)
	UpdateContact(ctx context.Context, userID, id int64, patch model.ContactPatch) error
	DeactivateContact(ctx context.Context, userID, id int64) error
}

type Notifications interface {
	CreateNotification(ctx context.Context, n *model.Notification) (int64, error)
	ListNotifications(ctx context.Context, userID int64, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id int64) error
	// PurgeNotifications deletes read notifications sent before cutoff.
	PurgeNotifications(ctx context.Context, before time.Time) (int64, error)
}

type EmailSettings interface {
	GetEmailSettings(ctx context.Context, userID int64) (*model.EmailSettings, error)
	UpsertEmailSettings(ctx context.Context, s *model.EmailSettings) error
	DeleteEmailSettings(ctx context.Context, userID int64) error
}
