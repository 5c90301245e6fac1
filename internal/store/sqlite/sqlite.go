/*
Package sqlite provides a SQLite-backed implementation of store.Store.

PURPOSE:
  Embedded storage for single-user deployments (STORE_DRIVER=sqlite) and
  for tests, which open it on ":memory:". The production backend is
  store/postgres; both share the same schema shape, only the dialect and
  time encoding differ.

TIME ENCODING:
  All timestamps are INTEGER unix milliseconds in UTC. Reminder times are
  a JSON array of "HH:mm" strings.

CONCURRENCY:
  The pool is limited to one connection. SQLite serializes writers anyway,
  and an in-memory database exists only on the connection that created it.

USAGE:
  st, err := sqlite.New("./medminder.db")
  if err != nil {
      return err
  }
  defer st.Close()
  if err := st.Migrate(ctx); err != nil {
      return err
  }
*/
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/albapepper/medminder/internal/model"
	"github.com/albapepper/medminder/internal/store"
)

//go:embed schema.sql
var schema string

// Store implements store.Store on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New opens the database at dbPath. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() {
	_ = s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Encoding helpers
// --------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func ms(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMS(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func idPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func isUnique(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --------------------------------------------------------------------------
// Users
// --------------------------------------------------------------------------

const userColumns = `id, username, password_hash, name, email, created_at, updated_at, last_signed_in`

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	var created, updated, signed int64
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.Email, &created, &updated, &signed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt, u.UpdatedAt, u.LastSignedIn = fromMS(created), fromMS(updated), fromMS(signed)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	now := ms(s.now())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, name, email, created_at, updated_at, last_signed_in)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.PasswordHash, u.Name, u.Email, now, now, now)
	if err != nil {
		if isUnique(err) {
			return 0, store.ErrDuplicate
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

func (s *Store) TouchSignIn(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_signed_in = ? WHERE id = ?`, ms(at), id)
	return err
}

// --------------------------------------------------------------------------
// Medications
// --------------------------------------------------------------------------

const medicationColumns = `id, user_id, name, dosage, frequency, times_per_day, reminder_times,
	total_quantity, remaining_quantity, dosage_per_time, start_date, notes, is_active,
	created_at, updated_at`

func scanMedication(row rowScanner) (*model.Medication, error) {
	var m model.Medication
	var times string
	var start, created, updated int64
	err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.Dosage, &m.Frequency, &m.TimesPerDay, &times,
		&m.TotalQuantity, &m.RemainingQuantity, &m.DosagePerTime, &start, &m.Notes, &m.IsActive,
		&created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan medication: %w", err)
	}
	if err := json.Unmarshal([]byte(times), &m.ReminderTimes); err != nil {
		return nil, fmt.Errorf("decode reminder times for medication %d: %w", m.ID, err)
	}
	m.StartDate, m.CreatedAt, m.UpdatedAt = fromMS(start), fromMS(created), fromMS(updated)
	return &m, nil
}

func (s *Store) queryMedications(ctx context.Context, q string, args ...any) ([]model.Medication, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query medications: %w", err)
	}
	defer rows.Close()

	var meds []model.Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		meds = append(meds, *m)
	}
	return meds, rows.Err()
}

func encodeTimes(times []string) (string, error) {
	if times == nil {
		times = []string{}
	}
	b, err := json.Marshal(times)
	return string(b), err
}

func (s *Store) CreateMedication(ctx context.Context, m *model.Medication) (int64, error) {
	times, err := encodeTimes(m.ReminderTimes)
	if err != nil {
		return 0, err
	}
	now := ms(s.now())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO medications (user_id, name, dosage, frequency, times_per_day, reminder_times,
			total_quantity, remaining_quantity, dosage_per_time, start_date, notes, is_active,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		m.UserID, m.Name, m.Dosage, m.Frequency, m.TimesPerDay, times,
		m.TotalQuantity, m.RemainingQuantity, m.DosagePerTime, ms(m.StartDate), m.Notes,
		now, now)
	if err != nil {
		return 0, fmt.Errorf("insert medication: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) ListMedications(ctx context.Context, userID int64) ([]model.Medication, error) {
	return s.queryMedications(ctx, `SELECT `+medicationColumns+` FROM medications
		WHERE user_id = ? AND is_active = 1
		ORDER BY created_at DESC, id DESC`, userID)
}

func (s *Store) ListActiveMedications(ctx context.Context) ([]model.Medication, error) {
	return s.queryMedications(ctx, `SELECT `+medicationColumns+` FROM medications
		WHERE is_active = 1
		ORDER BY user_id, id`)
}

func (s *Store) GetMedication(ctx context.Context, userID, id int64) (*model.Medication, error) {
	return scanMedication(s.db.QueryRowContext(ctx, `SELECT `+medicationColumns+` FROM medications
		WHERE id = ? AND user_id = ?`, id, userID))
}

func (s *Store) UpdateMedication(ctx context.Context, userID, id int64, patch model.MedicationPatch) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := scanMedication(tx.QueryRowContext(ctx, `SELECT `+medicationColumns+` FROM medications
			WHERE id = ? AND user_id = ?`, id, userID))
		if err != nil {
			return err
		}
		patch.Apply(m)
		times, err := encodeTimes(m.ReminderTimes)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE medications SET name = ?, dosage = ?, frequency = ?, times_per_day = ?,
				reminder_times = ?, total_quantity = ?, remaining_quantity = ?, dosage_per_time = ?,
				notes = ?, updated_at = ?
			WHERE id = ? AND user_id = ?`,
			m.Name, m.Dosage, m.Frequency, m.TimesPerDay, times, m.TotalQuantity,
			m.RemainingQuantity, m.DosagePerTime, m.Notes, ms(s.now()), id, userID)
		if err != nil {
			return fmt.Errorf("update medication: %w", err)
		}
		return nil
	})
}

func (s *Store) DeactivateMedication(ctx context.Context, userID, id int64) error {
	return affectedOrNotFound(s.db.ExecContext(ctx, `
		UPDATE medications SET is_active = 0, updated_at = ?
		WHERE id = ? AND user_id = ?`, ms(s.now()), id, userID))
}

func (s *Store) RefillMedication(ctx context.Context, userID, id int64, add int) (*model.Medication, error) {
	var out *model.Medication
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := affectedOrNotFound(tx.ExecContext(ctx, `
			UPDATE medications
			SET remaining_quantity = remaining_quantity + ?, total_quantity = total_quantity + ?, updated_at = ?
			WHERE id = ? AND user_id = ?`, add, add, ms(s.now()), id, userID))
		if err != nil {
			return err
		}
		out, err = scanMedication(tx.QueryRowContext(ctx, `SELECT `+medicationColumns+` FROM medications
			WHERE id = ? AND user_id = ?`, id, userID))
		return err
	})
	return out, err
}

// --------------------------------------------------------------------------
// Logs
// --------------------------------------------------------------------------

const logColumns = `id, user_id, medication_id, taken_at, scheduled_time, status, quantity, notes, created_at`

func scanLog(row rowScanner) (*model.MedicationLog, error) {
	var l model.MedicationLog
	var taken, created int64
	if err := row.Scan(&l.ID, &l.UserID, &l.MedicationID, &taken, &l.ScheduledTime, &l.Status,
		&l.Quantity, &l.Notes, &created); err != nil {
		return nil, fmt.Errorf("scan log: %w", err)
	}
	l.TakenAt, l.CreatedAt = fromMS(taken), fromMS(created)
	return &l, nil
}

func (s *Store) queryLogs(ctx context.Context, q string, args ...any) ([]model.MedicationLog, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var logs []model.MedicationLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

func (s *Store) CreateLog(ctx context.Context, l *model.MedicationLog) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var remaining int
		err := tx.QueryRowContext(ctx, `SELECT remaining_quantity FROM medications
			WHERE id = ? AND user_id = ?`, l.MedicationID, l.UserID).Scan(&remaining)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load medication: %w", err)
		}
		consumes := l.Status.ConsumesStock()
		if consumes && remaining < l.Quantity {
			return store.ErrInsufficientStock
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO medication_logs (user_id, medication_id, taken_at, scheduled_time, status, quantity, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			l.UserID, l.MedicationID, ms(l.TakenAt), l.ScheduledTime, l.Status, l.Quantity, l.Notes, ms(s.now()))
		if err != nil {
			return fmt.Errorf("insert log: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}

		if consumes {
			_, err = tx.ExecContext(ctx, `
				UPDATE medications SET remaining_quantity = remaining_quantity - ?, updated_at = ?
				WHERE id = ?`, l.Quantity, ms(s.now()), l.MedicationID)
			if err != nil {
				return fmt.Errorf("decrement remaining: %w", err)
			}
		}
		return nil
	})
	return id, err
}

func (s *Store) ListLogs(ctx context.Context, userID int64, f model.LogFilter) ([]model.MedicationLog, error) {
	q := `SELECT ` + logColumns + ` FROM medication_logs WHERE user_id = ?`
	args := []any{userID}
	if f.MedicationID > 0 {
		q += ` AND medication_id = ?`
		args = append(args, f.MedicationID)
	}
	if !f.Start.IsZero() {
		q += ` AND taken_at >= ?`
		args = append(args, ms(f.Start))
	}
	if !f.End.IsZero() {
		q += ` AND taken_at <= ?`
		args = append(args, ms(f.End))
	}
	q += ` ORDER BY taken_at DESC, id DESC`
	return s.queryLogs(ctx, q, args...)
}

func (s *Store) ListLogsBetween(ctx context.Context, start, end time.Time) ([]model.MedicationLog, error) {
	return s.queryLogs(ctx, `SELECT `+logColumns+` FROM medication_logs
		WHERE taken_at >= ? AND taken_at <= ?
		ORDER BY taken_at DESC, id DESC`, ms(start), ms(end))
}

// --------------------------------------------------------------------------
// Family contacts
// --------------------------------------------------------------------------

const contactColumns = `id, user_id, contact_name, contact_email, contact_phone, relationship,
	notify_on_low_stock, notify_on_missed_dose, is_active, created_at, updated_at`

func scanContact(row rowScanner) (*model.FamilyContact, error) {
	var c model.FamilyContact
	var created, updated int64
	err := row.Scan(&c.ID, &c.UserID, &c.ContactName, &c.ContactEmail, &c.ContactPhone, &c.Relationship,
		&c.NotifyOnLowStock, &c.NotifyOnMissedDose, &c.IsActive, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan contact: %w", err)
	}
	c.CreatedAt, c.UpdatedAt = fromMS(created), fromMS(updated)
	return &c, nil
}

func (s *Store) CreateContact(ctx context.Context, c *model.FamilyContact) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var active int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM family_contacts
			WHERE user_id = ? AND is_active = 1`, c.UserID).Scan(&active); err != nil {
			return fmt.Errorf("count contacts: %w", err)
		}
		if active >= model.MaxFamilyContacts {
			return store.ErrContactLimit
		}
		now := ms(s.now())
		res, err := tx.ExecContext(ctx, `
			INSERT INTO family_contacts (user_id, contact_name, contact_email, contact_phone, relationship,
				notify_on_low_stock, notify_on_missed_dose, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			c.UserID, c.ContactName, c.ContactEmail, c.ContactPhone, c.Relationship,
			c.NotifyOnLowStock, c.NotifyOnMissedDose, now, now)
		if err != nil {
			return fmt.Errorf("insert contact: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *Store) ListContacts(ctx context.Context, userID int64) ([]model.FamilyContact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+contactColumns+` FROM family_contacts
		WHERE user_id = ? AND is_active = 1
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []model.FamilyContact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

func (s *Store) UpdateContact(ctx context.Context, userID, id int64, patch model.ContactPatch) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := scanContact(tx.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM family_contacts
			WHERE id = ? AND user_id = ?`, id, userID))
		if err != nil {
			return err
		}
		patch.Apply(c)
		_, err = tx.ExecContext(ctx, `
			UPDATE family_contacts SET contact_name = ?, contact_email = ?, contact_phone = ?,
				relationship = ?, notify_on_low_stock = ?, notify_on_missed_dose = ?, updated_at = ?
			WHERE id = ? AND user_id = ?`,
			c.ContactName, c.ContactEmail, c.ContactPhone, c.Relationship,
			c.NotifyOnLowStock, c.NotifyOnMissedDose, ms(s.now()), id, userID)
		if err != nil {
			return fmt.Errorf("update contact: %w", err)
		}
		return nil
	})
}

func (s *Store) DeactivateContact(ctx context.Context, userID, id int64) error {
	return affectedOrNotFound(s.db.ExecContext(ctx, `
		UPDATE family_contacts SET is_active = 0, updated_at = ?
		WHERE id = ? AND user_id = ?`, ms(s.now()), id, userID))
}

// --------------------------------------------------------------------------
// Notifications
// --------------------------------------------------------------------------

func (s *Store) CreateNotification(ctx context.Context, n *model.Notification) (int64, error) {
	sent := n.SentAt
	if sent.IsZero() {
		sent = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, contact_id, medication_id, type, title, content, is_read, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		n.UserID, nullID(n.ContactID), nullID(n.MedicationID), n.Type, n.Title, n.Content,
		ms(sent), ms(s.now()))
	if err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) ListNotifications(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = store.DefaultNotificationLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, contact_id, medication_id, type, title, content, is_read, sent_at, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY sent_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var contactID, medID sql.NullInt64
		var sent, created int64
		if err := rows.Scan(&n.ID, &n.UserID, &contactID, &medID, &n.Type, &n.Title, &n.Content,
			&n.IsRead, &sent, &created); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.ContactID, n.MedicationID = idPtr(contactID), idPtr(medID)
		n.SentAt, n.CreatedAt = fromMS(sent), fromMS(created)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, id int64) error {
	return affectedOrNotFound(s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID))
}

func (s *Store) PurgeNotifications(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE is_read = 1 AND sent_at < ?`, ms(before))
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return res.RowsAffected()
}

// --------------------------------------------------------------------------
// Email settings
// --------------------------------------------------------------------------

func (s *Store) GetEmailSettings(ctx context.Context, userID int64) (*model.EmailSettings, error) {
	var e model.EmailSettings
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, smtp_host, smtp_port, smtp_user, smtp_pass, smtp_from, smtp_secure, is_enabled,
			created_at, updated_at
		FROM email_settings WHERE user_id = ?`, userID).
		Scan(&e.UserID, &e.SMTPHost, &e.SMTPPort, &e.SMTPUser, &e.SMTPPass, &e.SMTPFrom,
			&e.SMTPSecure, &e.IsEnabled, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get email settings: %w", err)
	}
	e.CreatedAt, e.UpdatedAt = fromMS(created), fromMS(updated)
	return &e, nil
}

func (s *Store) UpsertEmailSettings(ctx context.Context, e *model.EmailSettings) error {
	now := ms(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_settings (user_id, smtp_host, smtp_port, smtp_user, smtp_pass, smtp_from,
			smtp_secure, is_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			smtp_host = excluded.smtp_host,
			smtp_port = excluded.smtp_port,
			smtp_user = excluded.smtp_user,
			smtp_pass = excluded.smtp_pass,
			smtp_from = excluded.smtp_from,
			smtp_secure = excluded.smtp_secure,
			is_enabled = excluded.is_enabled,
			updated_at = excluded.updated_at`,
		e.UserID, e.SMTPHost, e.SMTPPort, e.SMTPUser, e.SMTPPass, e.SMTPFrom,
		e.SMTPSecure, e.IsEnabled, now, now)
	if err != nil {
		return fmt.Errorf("upsert email settings: %w", err)
	}
	return nil
}

func (s *Store) DeleteEmailSettings(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM email_settings WHERE user_id = ?`, userID)
	return err
}
