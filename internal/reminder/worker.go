package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/albapepper/medminder/internal/model"
)

// DefaultInterval is the worker's polling period.
const DefaultInterval = 30 * time.Second

// Store is the persistence the worker needs.
type Store interface {
	ListActiveMedications(ctx context.Context) ([]model.Medication, error)
	ListLogsBetween(ctx context.Context, start, end time.Time) ([]model.MedicationLog, error)
	CreateNotification(ctx context.Context, n *model.Notification) (int64, error)
}

// Worker turns due reminders into in-app notifications, one per user per
// pass. It keeps its own Matcher, separate from the polling endpoint's.
type Worker struct {
	store   Store
	matcher *Matcher
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger
}

// NewWorker creates a worker evaluating reminder times in loc.
func NewWorker(st Store, window time.Duration, loc *time.Location, logger *slog.Logger) *Worker {
	if loc == nil {
		loc = time.Local
	}
	return &Worker{
		store:   st,
		matcher: NewMatcher(window),
		loc:     loc,
		now:     time.Now,
		logger:  logger,
	}
}

// Start runs a pass every interval until ctx is cancelled.
// Blocks until ctx is cancelled. Intended to be called with `go`.
func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	w.logger.Info("Reminder worker started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sent, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.Error("reminder pass failed", "error", err)
			} else if sent > 0 {
				w.logger.Info("reminder pass", "notifications", sent)
			}
		case <-ctx.Done():
			w.logger.Info("Reminder worker stopped")
			return
		}
	}
}

// RunOnce performs a single pass and returns the notifications created.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	now := w.now().In(w.loc)
	meds, err := w.store.ListActiveMedications(ctx)
	if err != nil {
		return 0, fmt.Errorf("list medications: %w", err)
	}
	if len(meds) == 0 {
		return 0, nil
	}
	start, end := DayBounds(now)
	logs, err := w.store.ListLogsBetween(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("list today's logs: %w", err)
	}

	due := w.matcher.Due(now, meds, logs)
	if len(due) == 0 {
		return 0, nil
	}

	byUser := map[int64][]Reminder{}
	var order []int64
	for _, r := range due {
		if _, ok := byUser[r.UserID]; !ok {
			order = append(order, r.UserID)
		}
		byUser[r.UserID] = append(byUser[r.UserID], r)
	}

	sent := 0
	for _, userID := range order {
		reminders := byUser[userID]
		summary := Summarize(reminders)
		n := &model.Notification{
			UserID:  userID,
			Type:    model.NotifyReminder,
			Title:   summary.Title,
			Content: summary.Body,
			SentAt:  now,
		}
		if len(reminders) == 1 {
			medID := reminders[0].MedicationID
			n.MedicationID = &medID
		}
		if _, err := w.store.CreateNotification(ctx, n); err != nil {
			w.logger.Warn("reminder notification failed", "user_id", userID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}
