package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/albapepper/medminder/internal/email"
	"github.com/albapepper/medminder/internal/model"
	"github.com/albapepper/medminder/internal/stock"
	"github.com/albapepper/medminder/internal/store"
)

// Checker runs the low-stock fan-out for one user at a time.
type Checker struct {
	store     Store
	sender    email.Sender
	threshold int
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

// NewChecker creates a checker using threshold days as the low-stock
// horizon. Dates in message copy are rendered in loc.
func NewChecker(st Store, sender email.Sender, threshold int, loc *time.Location, logger *slog.Logger) *Checker {
	if loc == nil {
		loc = time.UTC
	}
	return &Checker{
		store:     st,
		sender:    sender,
		threshold: threshold,
		loc:       loc,
		now:       time.Now,
		logger:    logger,
	}
}

// CheckAndNotify runs the fan-out at the configured threshold.
func (c *Checker) CheckAndNotify(ctx context.Context, user *model.User) (Result, error) {
	return c.CheckWithin(ctx, user, c.threshold)
}

// CheckWithin runs the fan-out at an explicit threshold.
func (c *Checker) CheckWithin(ctx context.Context, user *model.User, threshold int) (Result, error) {
	meds, err := c.store.ListMedications(ctx, user.ID)
	if err != nil {
		return Result{}, fmt.Errorf("list medications: %w", err)
	}
	now := c.now()
	low := stock.LowStock(meds, threshold, now)

	res := Result{LowStockCount: len(low)}
	if len(low) == 0 {
		return res, nil
	}

	contacts, err := c.store.ListContacts(ctx, user.ID)
	if err != nil {
		return res, fmt.Errorf("list contacts: %w", err)
	}
	var optedIn []model.FamilyContact
	for _, contact := range contacts {
		if contact.IsActive && contact.NotifyOnLowStock {
			optedIn = append(optedIn, contact)
		}
	}

	userName := user.DisplayName()
	for _, f := range low {
		medID := f.ID
		owner := ownerNotice(f, c.loc)
		owner.UserID, owner.MedicationID, owner.SentAt = user.ID, &medID, now
		if _, err := c.store.CreateNotification(ctx, &owner); err != nil {
			return res, fmt.Errorf("notify owner of medication %d: %w", f.ID, err)
		}
		res.NotificationsSent++

		for _, contact := range optedIn {
			contactID := contact.ID
			n := contactNotice(userName, f, c.loc)
			n.UserID, n.ContactID, n.MedicationID, n.SentAt = user.ID, &contactID, &medID, now
			if _, err := c.store.CreateNotification(ctx, &n); err != nil {
				return res, fmt.Errorf("notify contact %d of medication %d: %w", contact.ID, f.ID, err)
			}
			res.NotificationsSent++
		}
	}

	if len(optedIn) > 0 {
		res.EmailsSent = c.emailContacts(ctx, user, userName, optedIn, low)
	}

	c.logger.Info("Low-stock check complete",
		"user_id", user.ID,
		"low_stock", res.LowStockCount,
		"notifications", res.NotificationsSent,
		"emails", res.EmailsSent)
	return res, nil
}

// emailContacts sends one aggregated email per contact and returns how many
// were delivered. Every failure is logged and swallowed.
func (c *Checker) emailContacts(ctx context.Context, user *model.User, userName string, contacts []model.FamilyContact, low []stock.Forecast) int {
	settings, err := c.store.GetEmailSettings(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !settings.IsEnabled) {
		c.logger.Warn("Email not configured or disabled, skipping contact emails", "user_id", user.ID)
		return 0
	}
	if err != nil {
		c.logger.Error("Failed to load email settings", "user_id", user.ID, "error", err)
		return 0
	}

	sent := 0
	for _, contact := range contacts {
		msg, err := email.LowStockMessage(contact.ContactEmail, contact.ContactName, userName, low, c.loc)
		if err != nil {
			c.logger.Error("Failed to render low-stock email", "contact_id", contact.ID, "error", err)
			continue
		}
		if err := c.sender.Send(ctx, settings, msg); err != nil {
			c.logger.Warn("Low-stock email failed",
				"user_id", user.ID, "contact_id", contact.ID, "to", contact.ContactEmail, "error", err)
			continue
		}
		c.logger.Info("Low-stock email sent", "user_id", user.ID, "to", contact.ContactEmail)
		sent++
	}
	return sent
}
