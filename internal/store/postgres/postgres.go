// Package postgres implements store.Store on PostgreSQL through the shared
// pgx pool. Every query runs by prepared statement name; the SQL lives in
// package db.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/albapepper/medminder/internal/config"
	"github.com/albapepper/medminder/internal/db"
	"github.com/albapepper/medminder/internal/model"
	"github.com/albapepper/medminder/internal/store"
)

//go:embed schema.sql
var Schema string

// Store implements store.Store on a pgx pool.
type Store struct {
	pool *db.Pool
}

var _ store.Store = (*Store)(nil)

// Open applies the schema, then creates the pool. The schema has to exist
// before the pool connects because statements are prepared per connection.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	if err := db.EnsureSchema(ctx, cfg.DatabaseURL, Schema); err != nil {
		return nil, err
	}
	pool, err := db.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.HealthCheck(ctx) }

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func isUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func affectedOrNotFound(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func optTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// --------------------------------------------------------------------------
// Users
// --------------------------------------------------------------------------

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.Email,
		&u.CreatedAt, &u.UpdatedAt, &u.LastSignedIn)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, "user_insert", u.Username, u.PasswordHash, u.Name, u.Email).Scan(&id)
	if err != nil {
		if isUnique(err) {
			return 0, store.ErrDuplicate
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx, "user_by_id", id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx, "user_by_username", username))
}

func (s *Store) TouchSignIn(ctx context.Context, id int64, at time.Time) error {
	_, err := s.pool.Exec(ctx, "user_touch", id, at)
	return err
}

// --------------------------------------------------------------------------
// Medications
// --------------------------------------------------------------------------

func scanMedication(row pgx.Row) (*model.Medication, error) {
	var m model.Medication
	err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.Dosage, &m.Frequency, &m.TimesPerDay,
		&m.ReminderTimes, &m.TotalQuantity, &m.RemainingQuantity, &m.DosagePerTime,
		&m.StartDate, &m.Notes, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *Store) queryMedications(ctx context.Context, name string, args ...any) ([]model.Medication, error) {
	rows, err := s.pool.Query(ctx, name, args...)
	if err != nil {
		return nil, fmt.Errorf("query medications: %w", err)
	}
	defer rows.Close()

	var meds []model.Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		meds = append(meds, *m)
	}
	return meds, rows.Err()
}

func reminderTimes(times []string) []string {
	if times == nil {
		return []string{}
	}
	return times
}

func (s *Store) CreateMedication(ctx context.Context, m *model.Medication) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, "medication_insert",
		m.UserID, m.Name, m.Dosage, m.Frequency, m.TimesPerDay, reminderTimes(m.ReminderTimes),
		m.TotalQuantity, m.RemainingQuantity, m.DosagePerTime, m.StartDate, m.Notes).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert medication: %w", err)
	}
	return id, nil
}

func (s *Store) ListMedications(ctx context.Context, userID int64) ([]model.Medication, error) {
	return s.queryMedications(ctx, "medications_by_user", userID)
}

func (s *Store) ListActiveMedications(ctx context.Context) ([]model.Medication, error) {
	return s.queryMedications(ctx, "medications_active")
}

func (s *Store) GetMedication(ctx context.Context, userID, id int64) (*model.Medication, error) {
	return scanMedication(s.pool.QueryRow(ctx, "medication_by_id", id, userID))
}

func (s *Store) UpdateMedication(ctx context.Context, userID, id int64, patch model.MedicationPatch) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		m, err := scanMedication(tx.QueryRow(ctx, "medication_by_id_for_update", id, userID))
		if err != nil {
			return err
		}
		patch.Apply(m)
		_, err = tx.Exec(ctx, "medication_update", id, userID,
			m.Name, m.Dosage, m.Frequency, m.TimesPerDay, reminderTimes(m.ReminderTimes),
			m.TotalQuantity, m.RemainingQuantity, m.DosagePerTime, m.Notes)
		if err != nil {
			return fmt.Errorf("update medication: %w", err)
		}
		return nil
	})
}

func (s *Store) DeactivateMedication(ctx context.Context, userID, id int64) error {
	return affectedOrNotFound(s.pool.Exec(ctx, "medication_deactivate", id, userID))
}

func (s *Store) RefillMedication(ctx context.Context, userID, id int64, add int) (*model.Medication, error) {
	return scanMedication(s.pool.QueryRow(ctx, "medication_refill", id, userID, add))
}

// --------------------------------------------------------------------------
// Logs
// --------------------------------------------------------------------------

func (s *Store) queryLogs(ctx context.Context, name string, args ...any) ([]model.MedicationLog, error) {
	rows, err := s.pool.Query(ctx, name, args...)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var logs []model.MedicationLog
	for rows.Next() {
		var l model.MedicationLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.MedicationID, &l.TakenAt, &l.ScheduledTime,
			&l.Status, &l.Quantity, &l.Notes, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *Store) CreateLog(ctx context.Context, l *model.MedicationLog) (int64, error) {
	var id int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var remaining int
		if err := tx.QueryRow(ctx, "medication_remaining_for_update", l.MedicationID, l.UserID).Scan(&remaining); err != nil {
			return notFound(err)
		}
		consumes := l.Status.ConsumesStock()
		if consumes && remaining < l.Quantity {
			return store.ErrInsufficientStock
		}
		if err := tx.QueryRow(ctx, "log_insert", l.UserID, l.MedicationID, l.TakenAt,
			l.ScheduledTime, l.Status, l.Quantity, l.Notes).Scan(&id); err != nil {
			return fmt.Errorf("insert log: %w", err)
		}
		if consumes {
			if _, err := tx.Exec(ctx, "medication_decrement", l.MedicationID, l.Quantity); err != nil {
				return fmt.Errorf("decrement remaining: %w", err)
			}
		}
		return nil
	})
	return id, err
}

func (s *Store) ListLogs(ctx context.Context, userID int64, f model.LogFilter) ([]model.MedicationLog, error) {
	return s.queryLogs(ctx, "logs_by_user", userID, f.MedicationID, optTime(f.Start), optTime(f.End))
}

func (s *Store) ListLogsBetween(ctx context.Context, start, end time.Time) ([]model.MedicationLog, error) {
	return s.queryLogs(ctx, "logs_between", start, end)
}

// --------------------------------------------------------------------------
// Family contacts
// --------------------------------------------------------------------------

func scanContact(row pgx.Row) (*model.FamilyContact, error) {
	var c model.FamilyContact
	err := row.Scan(&c.ID, &c.UserID, &c.ContactName, &c.ContactEmail, &c.ContactPhone,
		&c.Relationship, &c.NotifyOnLowStock, &c.NotifyOnMissedDose, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// CreateContact locks the owning user row so concurrent inserts cannot both
// pass the limit check.
func (s *Store) CreateContact(ctx context.Context, c *model.FamilyContact) (int64, error) {
	var id int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var owner int64
		if err := tx.QueryRow(ctx, "user_lock", c.UserID).Scan(&owner); err != nil {
			return notFound(err)
		}
		var active int
		if err := tx.QueryRow(ctx, "contacts_active_count", c.UserID).Scan(&active); err != nil {
			return fmt.Errorf("count contacts: %w", err)
		}
		if active >= model.MaxFamilyContacts {
			return store.ErrContactLimit
		}
		err := tx.QueryRow(ctx, "contact_insert", c.UserID, c.ContactName, c.ContactEmail,
			c.ContactPhone, c.Relationship, c.NotifyOnLowStock, c.NotifyOnMissedDose).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert contact: %w", err)
		}
		return nil
	})
	return id, err
}

func (s *Store) ListContacts(ctx context.Context, userID int64) ([]model.FamilyContact, error) {
	rows, err := s.pool.Query(ctx, "contacts_by_user", userID)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []model.FamilyContact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

func (s *Store) UpdateContact(ctx context.Context, userID, id int64, patch model.ContactPatch) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		c, err := scanContact(tx.QueryRow(ctx, "contact_by_id_for_update", id, userID))
		if err != nil {
			return err
		}
		patch.Apply(c)
		_, err = tx.Exec(ctx, "contact_update", id, userID, c.ContactName, c.ContactEmail,
			c.ContactPhone, c.Relationship, c.NotifyOnLowStock, c.NotifyOnMissedDose)
		if err != nil {
			return fmt.Errorf("update contact: %w", err)
		}
		return nil
	})
}

func (s *Store) DeactivateContact(ctx context.Context, userID, id int64) error {
	return affectedOrNotFound(s.pool.Exec(ctx, "contact_deactivate", id, userID))
}

// --------------------------------------------------------------------------
// Notifications
// --------------------------------------------------------------------------

func (s *Store) CreateNotification(ctx context.Context, n *model.Notification) (int64, error) {
	sent := n.SentAt
	if sent.IsZero() {
		sent = time.Now()
	}
	var id int64
	err := s.pool.QueryRow(ctx, "notification_insert", n.UserID, n.ContactID, n.MedicationID,
		n.Type, n.Title, n.Content, sent).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	return id, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = store.DefaultNotificationLimit
	}
	rows, err := s.pool.Query(ctx, "notifications_by_user", userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.ContactID, &n.MedicationID, &n.Type, &n.Title,
			&n.Content, &n.IsRead, &n.SentAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, id int64) error {
	return affectedOrNotFound(s.pool.Exec(ctx, "notification_mark_read", id, userID))
}

func (s *Store) PurgeNotifications(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "notifications_purge", before)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --------------------------------------------------------------------------
// Email settings
// --------------------------------------------------------------------------

func (s *Store) GetEmailSettings(ctx context.Context, userID int64) (*model.EmailSettings, error) {
	var e model.EmailSettings
	err := s.pool.QueryRow(ctx, "email_settings_by_user", userID).Scan(&e.UserID, &e.SMTPHost,
		&e.SMTPPort, &e.SMTPUser, &e.SMTPPass, &e.SMTPFrom, &e.SMTPSecure, &e.IsEnabled,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (s *Store) UpsertEmailSettings(ctx context.Context, e *model.EmailSettings) error {
	_, err := s.pool.Exec(ctx, "email_settings_upsert", e.UserID, e.SMTPHost, e.SMTPPort,
		e.SMTPUser, e.SMTPPass, e.SMTPFrom, e.SMTPSecure, e.IsEnabled)
	if err != nil {
		return fmt.Errorf("upsert email settings: %w", err)
	}
	return nil
}

func (s *Store) DeleteEmailSettings(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx, "email_settings_delete", userID)
	return err
}
