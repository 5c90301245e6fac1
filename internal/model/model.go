// Package model defines the entities persisted by the store and exchanged
// over the API, plus the input shapes and their validation rules.
package model

import "time"

// MaxFamilyContacts caps the active family contacts a user may bind.
const MaxFamilyContacts = 5

// User is an account owning medications, logs, contacts, and notifications.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	LastSignedIn time.Time `json:"lastSignedIn"`
}

// DisplayName is the name used in notification copy.
func (u *User) DisplayName() string {
	if u == nil {
		return "User"
	}
	if u.Name != "" {
		return u.Name
	}
	if u.Username != "" {
		return u.Username
	}
	return "User"
}

// Medication is a drug a user takes on a schedule.
type Medication struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"userId"`
	Name              string    `json:"name"`
	Dosage            string    `json:"dosage"`    // "1 tablet", "5ml"
	Frequency         string    `json:"frequency"` // "3 times daily"
	TimesPerDay       int       `json:"timesPerDay"`
	ReminderTimes     []string  `json:"reminderTimes"` // "HH:mm"
	TotalQuantity     int       `json:"totalQuantity"`
	RemainingQuantity int       `json:"remainingQuantity"`
	DosagePerTime     int       `json:"dosagePerTime"`
	StartDate         time.Time `json:"startDate"`
	Notes             string    `json:"notes"`
	IsActive          bool      `json:"isActive"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// LogStatus records what happened to a scheduled dose.
type LogStatus string

const (
	StatusTaken   LogStatus = "taken"
	StatusSkipped LogStatus = "skipped"
	StatusLate    LogStatus = "late"
)

// Valid reports whether s is a known status.
func (s LogStatus) Valid() bool {
	switch s {
	case StatusTaken, StatusSkipped, StatusLate:
		return true
	}
	return false
}

// ConsumesStock reports whether logging this status draws down supply.
func (s LogStatus) ConsumesStock() bool {
	return s == StatusTaken || s == StatusLate
}

// MedicationLog is one recorded dose.
type MedicationLog struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"userId"`
	MedicationID  int64     `json:"medicationId"`
	TakenAt       time.Time `json:"takenAt"`
	ScheduledTime string    `json:"scheduledTime"`
	Status        LogStatus `json:"status"`
	Quantity      int       `json:"quantity"`
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"createdAt"`
}

// LogFilter narrows a log history query. Zero values mean unbounded.
type LogFilter struct {
	MedicationID int64
	Start        time.Time
	End          time.Time
}

// FamilyContact is a secondary recipient of low-stock alerts.
type FamilyContact struct {
	ID                 int64     `json:"id"`
	UserID             int64     `json:"userId"`
	ContactName        string    `json:"contactName"`
	ContactEmail       string    `json:"contactEmail"`
	ContactPhone       string    `json:"contactPhone"`
	Relationship       string    `json:"relationship"`
	NotifyOnLowStock   bool      `json:"notifyOnLowStock"`
	NotifyOnMissedDose bool      `json:"notifyOnMissedDose"`
	IsActive           bool      `json:"isActive"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// NotificationType classifies an in-app notification.
type NotificationType string

const (
	NotifyLowStock   NotificationType = "low_stock"
	NotifyOutOfStock NotificationType = "out_of_stock"
	NotifyMissedDose NotificationType = "missed_dose"
	NotifyReminder   NotificationType = "reminder"
)

// Notification is an in-app message. ContactID is set when the message is
// addressed to one of the user's family contacts rather than the user.
type Notification struct {
	ID           int64            `json:"id"`
	UserID       int64            `json:"userId"`
	ContactID    *int64           `json:"contactId"`
	MedicationID *int64           `json:"medicationId"`
	Type         NotificationType `json:"type"`
	Title        string           `json:"title"`
	Content      string           `json:"content"`
	IsRead       bool             `json:"isRead"`
	SentAt       time.Time        `json:"sentAt"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// EmailSettings is a user's own SMTP account used to mail their contacts.
type EmailSettings struct {
	UserID     int64     `json:"userId"`
	SMTPHost   string    `json:"smtpHost"`
	SMTPPort   int       `json:"smtpPort"`
	SMTPUser   string    `json:"smtpUser"`
	SMTPPass   string    `json:"-"`
	SMTPFrom   string    `json:"smtpFrom"`
	SMTPSecure bool      `json:"smtpSecure"`
	IsEnabled  bool      `json:"isEnabled"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// From is the envelope sender: the explicit from address or the login.
func (s *EmailSettings) From() string {
	if s.SMTPFrom != "" {
		return s.SMTPFrom
	}
	return s.SMTPUser
}
