package model

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"
)

// ValidationError describes the first invalid field of an input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ParseClock parses a "HH:mm" wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok || len(h) != 2 || len(m) != 2 {
		return 0, 0, fmt.Errorf("time %q is not HH:mm", s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time %q has an invalid hour", s)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q has an invalid minute", s)
	}
	return hour, minute, nil
}

func validateReminderTimes(times []string) error {
	if len(times) == 0 {
		return invalid("reminderTimes", "at least one reminder time is required")
	}
	for _, t := range times {
		if _, _, err := ParseClock(t); err != nil {
			return invalid("reminderTimes", "%v", err)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Medications
// --------------------------------------------------------------------------

// NewMedication is the create payload for a medication.
type NewMedication struct {
	Name              string    `json:"name"`
	Dosage            string    `json:"dosage"`
	Frequency         string    `json:"frequency"`
	TimesPerDay       int       `json:"timesPerDay"`
	ReminderTimes     []string  `json:"reminderTimes"`
	TotalQuantity     int       `json:"totalQuantity"`
	RemainingQuantity int       `json:"remainingQuantity"`
	DosagePerTime     int       `json:"dosagePerTime"`
	StartDate         time.Time `json:"startDate"`
	Notes             string    `json:"notes"`
}

// Validate applies defaults (dosagePerTime=1) and checks field bounds.
func (n *NewMedication) Validate() error {
	n.Name = strings.TrimSpace(n.Name)
	if n.Name == "" {
		return invalid("name", "medication name is required")
	}
	if strings.TrimSpace(n.Dosage) == "" {
		return invalid("dosage", "dosage is required")
	}
	if strings.TrimSpace(n.Frequency) == "" {
		return invalid("frequency", "frequency is required")
	}
	if n.TimesPerDay < 1 || n.TimesPerDay > 10 {
		return invalid("timesPerDay", "must be between 1 and 10")
	}
	if err := validateReminderTimes(n.ReminderTimes); err != nil {
		return err
	}
	if n.TotalQuantity < 1 {
		return invalid("totalQuantity", "must be at least 1")
	}
	if n.RemainingQuantity < 0 {
		return invalid("remainingQuantity", "must not be negative")
	}
	if n.DosagePerTime == 0 {
		n.DosagePerTime = 1
	}
	if n.DosagePerTime < 1 {
		return invalid("dosagePerTime", "must be at least 1")
	}
	if n.StartDate.IsZero() {
		return invalid("startDate", "start date is required")
	}
	return nil
}

// Medication builds the entity owned by userID.
func (n *NewMedication) Medication(userID int64) *Medication {
	return &Medication{
		UserID:            userID,
		Name:              n.Name,
		Dosage:            n.Dosage,
		Frequency:         n.Frequency,
		TimesPerDay:       n.TimesPerDay,
		ReminderTimes:     n.ReminderTimes,
		TotalQuantity:     n.TotalQuantity,
		RemainingQuantity: n.RemainingQuantity,
		DosagePerTime:     n.DosagePerTime,
		StartDate:         n.StartDate,
		Notes:             n.Notes,
		IsActive:          true,
	}
}

// MedicationPatch is a partial update. Nil fields are left unchanged.
type MedicationPatch struct {
	Name              *string   `json:"name"`
	Dosage            *string   `json:"dosage"`
	Frequency         *string   `json:"frequency"`
	TimesPerDay       *int      `json:"timesPerDay"`
	ReminderTimes     *[]string `json:"reminderTimes"`
	TotalQuantity     *int      `json:"totalQuantity"`
	RemainingQuantity *int      `json:"remainingQuantity"`
	DosagePerTime     *int      `json:"dosagePerTime"`
	Notes             *string   `json:"notes"`
}

func (p *MedicationPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return invalid("name", "medication name must not be empty")
	}
	if p.Dosage != nil && strings.TrimSpace(*p.Dosage) == "" {
		return invalid("dosage", "dosage must not be empty")
	}
	if p.Frequency != nil && strings.TrimSpace(*p.Frequency) == "" {
		return invalid("frequency", "frequency must not be empty")
	}
	if p.TimesPerDay != nil && (*p.TimesPerDay < 1 || *p.TimesPerDay > 10) {
		return invalid("timesPerDay", "must be between 1 and 10")
	}
	if p.ReminderTimes != nil {
		if err := validateReminderTimes(*p.ReminderTimes); err != nil {
			return err
		}
	}
	if p.TotalQuantity != nil && *p.TotalQuantity < 1 {
		return invalid("totalQuantity", "must be at least 1")
	}
	if p.RemainingQuantity != nil && *p.RemainingQuantity < 0 {
		return invalid("remainingQuantity", "must not be negative")
	}
	if p.DosagePerTime != nil && *p.DosagePerTime < 1 {
		return invalid("dosagePerTime", "must be at least 1")
	}
	return nil
}

// Apply copies the set fields of p onto m.
func (p *MedicationPatch) Apply(m *Medication) {
	if p.Name != nil {
		m.Name = strings.TrimSpace(*p.Name)
	}
	if p.Dosage != nil {
		m.Dosage = *p.Dosage
	}
	if p.Frequency != nil {
		m.Frequency = *p.Frequency
	}
	if p.TimesPerDay != nil {
		m.TimesPerDay = *p.TimesPerDay
	}
	if p.ReminderTimes != nil {
		m.ReminderTimes = *p.ReminderTimes
	}
	if p.TotalQuantity != nil {
		m.TotalQuantity = *p.TotalQuantity
	}
	if p.RemainingQuantity != nil {
		m.RemainingQuantity = *p.RemainingQuantity
	}
	if p.DosagePerTime != nil {
		m.DosagePerTime = *p.DosagePerTime
	}
	if p.Notes != nil {
		m.Notes = *p.Notes
	}
}

// --------------------------------------------------------------------------
// Logs
// --------------------------------------------------------------------------

// NewLog is the create payload for a medication log.
type NewLog struct {
	MedicationID  int64     `json:"medicationId"`
	TakenAt       time.Time `json:"takenAt"`
	ScheduledTime string    `json:"scheduledTime"`
	Status        LogStatus `json:"status"`
	Quantity      int       `json:"quantity"`
	Notes         string    `json:"notes"`
}

// Validate applies defaults (status=taken, quantity=1) and checks fields.
func (n *NewLog) Validate() error {
	if n.MedicationID <= 0 {
		return invalid("medicationId", "medication id is required")
	}
	if n.TakenAt.IsZero() {
		return invalid("takenAt", "taken-at time is required")
	}
	if _, _, err := ParseClock(n.ScheduledTime); err != nil {
		return invalid("scheduledTime", "%v", err)
	}
	if n.Status == "" {
		n.Status = StatusTaken
	}
	if !n.Status.Valid() {
		return invalid("status", "must be one of taken, skipped, late")
	}
	if n.Quantity == 0 {
		n.Quantity = 1
	}
	if n.Quantity < 1 {
		return invalid("quantity", "must be at least 1")
	}
	return nil
}

// Log builds the entity owned by userID.
func (n *NewLog) Log(userID int64) *MedicationLog {
	return &MedicationLog{
		UserID:        userID,
		MedicationID:  n.MedicationID,
		TakenAt:       n.TakenAt,
		ScheduledTime: n.ScheduledTime,
		Status:        n.Status,
		Quantity:      n.Quantity,
		Notes:         n.Notes,
	}
}

// --------------------------------------------------------------------------
// Family contacts
// --------------------------------------------------------------------------

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// ValidateEmail checks that s is a bare email address.
func ValidateEmail(field, s string) error {
	if !validEmail(strings.TrimSpace(s)) {
		return invalid(field, "a valid email address is required")
	}
	return nil
}

// NewContact is the create payload for a family contact.
type NewContact struct {
	ContactName        string `json:"contactName"`
	ContactEmail       string `json:"contactEmail"`
	ContactPhone       string `json:"contactPhone"`
	Relationship       string `json:"relationship"`
	NotifyOnLowStock   *bool  `json:"notifyOnLowStock"`
	NotifyOnMissedDose *bool  `json:"notifyOnMissedDose"`
}

func (n *NewContact) Validate() error {
	n.ContactName = strings.TrimSpace(n.ContactName)
	n.ContactEmail = strings.TrimSpace(n.ContactEmail)
	if n.ContactName == "" {
		return invalid("contactName", "contact name is required")
	}
	if !validEmail(n.ContactEmail) {
		return invalid("contactEmail", "a valid email address is required")
	}
	return nil
}

// Contact builds the entity owned by userID. Low-stock alerts default on,
// missed-dose alerts default off.
func (n *NewContact) Contact(userID int64) *FamilyContact {
	c := &FamilyContact{
		UserID:           userID,
		ContactName:      n.ContactName,
		ContactEmail:     n.ContactEmail,
		ContactPhone:     n.ContactPhone,
		Relationship:     n.Relationship,
		NotifyOnLowStock: true,
		IsActive:         true,
	}
	if n.NotifyOnLowStock != nil {
		c.NotifyOnLowStock = *n.NotifyOnLowStock
	}
	if n.NotifyOnMissedDose != nil {
		c.NotifyOnMissedDose = *n.NotifyOnMissedDose
	}
	return c
}

// ContactPatch is a partial update. Nil fields are left unchanged.
type ContactPatch struct {
	ContactName        *string `json:"contactName"`
	ContactEmail       *string `json:"contactEmail"`
	ContactPhone       *string `json:"contactPhone"`
	Relationship       *string `json:"relationship"`
	NotifyOnLowStock   *bool   `json:"notifyOnLowStock"`
	NotifyOnMissedDose *bool   `json:"notifyOnMissedDose"`
}

func (p *ContactPatch) Validate() error {
	if p.ContactName != nil && strings.TrimSpace(*p.ContactName) == "" {
		return invalid("contactName", "contact name must not be empty")
	}
	if p.ContactEmail != nil && !validEmail(strings.TrimSpace(*p.ContactEmail)) {
		return invalid("contactEmail", "a valid email address is required")
	}
	return nil
}

// Apply copies the set fields of p onto c.
func (p *ContactPatch) Apply(c *FamilyContact) {
	if p.ContactName != nil {
		c.ContactName = strings.TrimSpace(*p.ContactName)
	}
	if p.ContactEmail != nil {
		c.ContactEmail = strings.TrimSpace(*p.ContactEmail)
	}
	if p.ContactPhone != nil {
		c.ContactPhone = *p.ContactPhone
	}
	if p.Relationship != nil {
		c.Relationship = *p.Relationship
	}
	if p.NotifyOnLowStock != nil {
		c.NotifyOnLowStock = *p.NotifyOnLowStock
	}
	if p.NotifyOnMissedDose != nil {
		c.NotifyOnMissedDose = *p.NotifyOnMissedDose
	}
}

// --------------------------------------------------------------------------
// Email settings
// --------------------------------------------------------------------------

// SMTPInput is the SMTP account payload, used both to save settings and to
// test them before saving.
type SMTPInput struct {
	SMTPHost   string `json:"smtpHost"`
	SMTPPort   int    `json:"smtpPort"`
	SMTPUser   string `json:"smtpUser"`
	SMTPPass   string `json:"smtpPass"`
	SMTPFrom   string `json:"smtpFrom"`
	SMTPSecure *bool  `json:"smtpSecure"`
	IsEnabled  *bool  `json:"isEnabled"`
}

// Validate applies defaults (port 465, secure, enabled) and checks fields.
func (in *SMTPInput) Validate() error {
	in.SMTPHost = strings.TrimSpace(in.SMTPHost)
	if in.SMTPHost == "" {
		return invalid("smtpHost", "SMTP host is required")
	}
	if in.SMTPPort == 0 {
		in.SMTPPort = 465
	}
	if in.SMTPPort < 1 || in.SMTPPort > 65535 {
		return invalid("smtpPort", "must be between 1 and 65535")
	}
	if strings.TrimSpace(in.SMTPUser) == "" {
		return invalid("smtpUser", "SMTP user is required")
	}
	if in.SMTPPass == "" {
		return invalid("smtpPass", "SMTP password is required")
	}
	if in.SMTPFrom != "" && !validEmail(strings.TrimSpace(in.SMTPFrom)) {
		return invalid("smtpFrom", "must be an email address")
	}
	return nil
}

// Settings builds the settings entity owned by userID.
func (in *SMTPInput) Settings(userID int64) *EmailSettings {
	s := &EmailSettings{
		UserID:     userID,
		SMTPHost:   in.SMTPHost,
		SMTPPort:   in.SMTPPort,
		SMTPUser:   strings.TrimSpace(in.SMTPUser),
		SMTPPass:   in.SMTPPass,
		SMTPFrom:   strings.TrimSpace(in.SMTPFrom),
		SMTPSecure: true,
		IsEnabled:  true,
	}
	if in.SMTPSecure != nil {
		s.SMTPSecure = *in.SMTPSecure
	}
	if in.IsEnabled != nil {
		s.IsEnabled = *in.IsEnabled
	}
	return s
}
