// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/medminder/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// EnsureSchema applies schema over a single short-lived connection. It must
// run before New, because prepared statements are registered against the
// tables on every new pool connection.
func EnsureSchema(ctx context.Context, databaseURL, schema string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect for migration: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

const (
	userColumns = `id, username, password_hash, name, email, created_at, updated_at, last_signed_in`

	medicationColumns = `id, user_id, name, dosage, frequency, times_per_day, reminder_times,
		total_quantity, remaining_quantity, dosage_per_time, start_date, notes, is_active,
		created_at, updated_at`

	logColumns = `id, user_id, medication_id, taken_at, scheduled_time, status, quantity, notes, created_at`

	contactColumns = `id, user_id, contact_name, contact_email, contact_phone, relationship,
		notify_on_low_stock, notify_on_missed_dose, is_active, created_at, updated_at`

	notificationColumns = `id, user_id, contact_id, medication_id, type, title, content, is_read, sent_at, created_at`

	emailSettingsColumns = `user_id, smtp_host, smtp_port, smtp_user, smtp_pass, smtp_from, smtp_secure,
		is_enabled, created_at, updated_at`
)

// Statements maps every prepared statement name to its SQL. The store
// executes queries by name.
var Statements = map[string]string{
	// Health
	"health_check": "SELECT 1",

	// Users
	"user_insert": `INSERT INTO users (username, password_hash, name, email)
		VALUES ($1, $2, $3, $4) RETURNING id`,
	"user_by_id":       "SELECT " + userColumns + " FROM users WHERE id = $1",
	"user_by_username": "SELECT " + userColumns + " FROM users WHERE username = $1",
	"user_touch":       "UPDATE users SET last_signed_in = $2 WHERE id = $1",
	"user_lock":        "SELECT id FROM users WHERE id = $1 FOR UPDATE",

	// Medications
	"medication_insert": `INSERT INTO medications (user_id, name, dosage, frequency, times_per_day,
			reminder_times, total_quantity, remaining_quantity, dosage_per_time, start_date, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
	"medications_by_user": "SELECT " + medicationColumns + ` FROM medications
		WHERE user_id = $1 AND is_active ORDER BY created_at DESC, id DESC`,
	"medications_active": "SELECT " + medicationColumns + ` FROM medications
		WHERE is_active ORDER BY user_id, id`,
	"medication_by_id": "SELECT " + medicationColumns + ` FROM medications
		WHERE id = $1 AND user_id = $2`,
	"medication_by_id_for_update": "SELECT " + medicationColumns + ` FROM medications
		WHERE id = $1 AND user_id = $2 FOR UPDATE`,
	"medication_update": `UPDATE medications SET name = $3, dosage = $4, frequency = $5,
			times_per_day = $6, reminder_times = $7, total_quantity = $8, remaining_quantity = $9,
			dosage_per_time = $10, notes = $11, updated_at = now()
		WHERE id = $1 AND user_id = $2`,
	"medication_deactivate": `UPDATE medications SET is_active = false, updated_at = now()
		WHERE id = $1 AND user_id = $2`,
	"medication_refill": `UPDATE medications
		SET remaining_quantity = remaining_quantity + $3, total_quantity = total_quantity + $3, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + medicationColumns,
	"medication_remaining_for_update": `SELECT remaining_quantity FROM medications
		WHERE id = $1 AND user_id = $2 FOR UPDATE`,
	"medication_decrement": `UPDATE medications
		SET remaining_quantity = remaining_quantity - $2, updated_at = now()
		WHERE id = $1`,

	// Logs
	"log_insert": `INSERT INTO medication_logs (user_id, medication_id, taken_at, scheduled_time, status, quantity, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
	"logs_by_user": "SELECT " + logColumns + ` FROM medication_logs
		WHERE user_id = $1
		  AND ($2::bigint = 0 OR medication_id = $2)
		  AND ($3::timestamptz IS NULL OR taken_at >= $3)
		  AND ($4::timestamptz IS NULL OR taken_at <= $4)
		ORDER BY taken_at DESC, id DESC`,
	"logs_between": "SELECT " + logColumns + ` FROM medication_logs
		WHERE taken_at >= $1 AND taken_at <= $2
		ORDER BY taken_at DESC, id DESC`,

	// Family contacts
	"contacts_active_count": "SELECT count(*) FROM family_contacts WHERE user_id = $1 AND is_active",
	"contact_insert": `INSERT INTO family_contacts (user_id, contact_name, contact_email, contact_phone,
			relationship, notify_on_low_stock, notify_on_missed_dose)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
	"contacts_by_user": "SELECT " + contactColumns + ` FROM family_contacts
		WHERE user_id = $1 AND is_active ORDER BY created_at DESC, id DESC`,
	"contact_by_id_for_update": "SELECT " + contactColumns + ` FROM family_contacts
		WHERE id = $1 AND user_id = $2 FOR UPDATE`,
	"contact_update": `UPDATE family_contacts SET contact_name = $3, contact_email = $4, contact_phone = $5,
			relationship = $6, notify_on_low_stock = $7, notify_on_missed_dose = $8, updated_at = now()
		WHERE id = $1 AND user_id = $2`,
	"contact_deactivate": `UPDATE family_contacts SET is_active = false, updated_at = now()
		WHERE id = $1 AND user_id = $2`,

	// Notifications
	"notification_insert": `INSERT INTO notifications (user_id, contact_id, medication_id, type, title, content, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
	"notifications_by_user": "SELECT " + notificationColumns + ` FROM notifications
		WHERE user_id = $1 ORDER BY sent_at DESC, id DESC LIMIT $2`,
	"notification_mark_read": "UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2",
	"notifications_purge":    "DELETE FROM notifications WHERE is_read AND sent_at < $1",

	// Email settings
	"email_settings_by_user": "SELECT " + emailSettingsColumns + " FROM email_settings WHERE user_id = $1",
	"email_settings_upsert": `INSERT INTO email_settings (user_id, smtp_host, smtp_port, smtp_user, smtp_pass,
			smtp_from, smtp_secure, is_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			smtp_host = EXCLUDED.smtp_host,
			smtp_port = EXCLUDED.smtp_port,
			smtp_user = EXCLUDED.smtp_user,
			smtp_pass = EXCLUDED.smtp_pass,
			smtp_from = EXCLUDED.smtp_from,
			smtp_secure = EXCLUDED.smtp_secure,
			is_enabled = EXCLUDED.is_enabled,
			updated_at = now()`,
	"email_settings_delete": "DELETE FROM email_settings WHERE user_id = $1",
}

// registerPreparedStatements registers all statements the store uses.
// Prepared statements eliminate parse overhead on every request.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, sql := range Statements {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
