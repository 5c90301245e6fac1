// Package listener provides a Postgres LISTEN/NOTIFY consumer that keeps the
// in-memory response cache coherent across API instances. It holds a
// dedicated pgx connection (not from the pool) listening on the
// `medications_changed` channel.
//
// A trigger on the medications table fires pg_notify with the owner's user
// id whenever a row is inserted or updated; this consumer drops that user's
// cached medication views.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/medminder/internal/cache"
)

const (
	Channel          = "medications_changed"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// Start opens a dedicated connection and listens on Channel. It reconnects
// automatically on connection loss. Blocks until ctx is cancelled. Intended
// to be called with `go`.
func Start(ctx context.Context, dbURL string, c *cache.Cache, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, c, logger)
		if ctx.Err() != nil {
			logger.Info("Cache listener stopped (context cancelled)")
			return
		}

		logger.Error("Cache listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, c *cache.Cache, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("LISTEN %s: %w", Channel, err)
	}
	logger.Info("Cache listener connected", "channel", Channel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		if err := Handle(c, n.Payload); err != nil {
			logger.Warn("Ignoring malformed notification", "payload", n.Payload, "error", err)
		}
	}
}

// Handle applies one notification payload (a user id) to the cache.
func Handle(c *cache.Cache, payload string) error {
	userID, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil || userID <= 0 {
		return fmt.Errorf("invalid user id %q", payload)
	}
	c.DeletePrefix(cache.MedicationsPrefix(userID))
	return nil
}
