// Package maintenance runs periodic background tasks as Go tickers.
package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	CleanupInterval       time.Duration // Purge old read notifications
	NotificationRetention time.Duration // Read notifications older than this are purged
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		CleanupInterval:       1 * time.Hour,
		NotificationRetention: 90 * 24 * time.Hour,
	}
}

// Purger deletes read notifications sent before a cutoff.
type Purger interface {
	PurgeNotifications(ctx context.Context, before time.Time) (int64, error)
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled and every task loop has exited. Intended to be called with `go`.
func Start(ctx context.Context, st Purger, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"cleanup", cfg.CleanupInterval,
		"retention", cfg.NotificationRetention)

	var wg sync.WaitGroup
	tickers := make([]*time.Ticker, 0, 1)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	// Cleanup: remove read notifications past retention
	if cfg.CleanupInterval > 0 && cfg.NotificationRetention > 0 {
		t := time.NewTicker(cfg.CleanupInterval)
		tickers = append(tickers, t)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runLoop(ctx, t.C, func() { Cleanup(ctx, st, cfg.NotificationRetention, time.Now(), logger) })
		}()
	}

	<-ctx.Done()
	wg.Wait()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// Cleanup removes read notifications sent more than retention before now.
// Unread notifications are kept regardless of age.
func Cleanup(ctx context.Context, st Purger, retention time.Duration, now time.Time, logger *slog.Logger) int64 {
	n, err := st.PurgeNotifications(ctx, now.Add(-retention))
	if err != nil {
		logger.Warn("Cleanup: failed to purge old notifications", "error", err)
		return 0
	}
	if n > 0 {
		logger.Info("Cleanup: purged old notifications", "count", n)
	}
	return n
}
