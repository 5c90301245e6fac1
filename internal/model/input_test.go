package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMedication() NewMedication {
	return NewMedication{
		Name:              "Aspirin",
		Dosage:            "1 tablet",
		Frequency:         "3 times daily",
		TimesPerDay:       3,
		ReminderTimes:     []string{"08:00", "12:00", "18:00"},
		TotalQuantity:     30,
		RemainingQuantity: 30,
		StartDate:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	return ve.Field
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("08:05")
	require.NoError(t, err)
	assert.Equal(t, 8, h)
	assert.Equal(t, 5, m)

	for _, bad := range []string{"8:05", "24:00", "12:60", "noon", "12-30", ""} {
		_, _, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewMedication_Validate(t *testing.T) {
	n := validMedication()
	require.NoError(t, n.Validate())
	assert.Equal(t, 1, n.DosagePerTime, "dosagePerTime defaults to 1")

	cases := map[string]func(*NewMedication){
		"name":              func(n *NewMedication) { n.Name = "  " },
		"dosage":            func(n *NewMedication) { n.Dosage = "" },
		"frequency":         func(n *NewMedication) { n.Frequency = "" },
		"timesPerDay":       func(n *NewMedication) { n.TimesPerDay = 11 },
		"reminderTimes":     func(n *NewMedication) { n.ReminderTimes = nil },
		"totalQuantity":     func(n *NewMedication) { n.TotalQuantity = 0 },
		"remainingQuantity": func(n *NewMedication) { n.RemainingQuantity = -1 },
		"dosagePerTime":     func(n *NewMedication) { n.DosagePerTime = -2 },
		"startDate":         func(n *NewMedication) { n.StartDate = time.Time{} },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			n := validMedication()
			mutate(&n)
			assert.Equal(t, field, fieldOf(t, n.Validate()))
		})
	}

	t.Run("bad reminder time", func(t *testing.T) {
		n := validMedication()
		n.ReminderTimes = []string{"08:00", "25:00"}
		assert.Equal(t, "reminderTimes", fieldOf(t, n.Validate()))
	})
}

func TestMedicationPatch_Apply(t *testing.T) {
	m := &Medication{Name: "Aspirin", TimesPerDay: 3, RemainingQuantity: 10}
	times := 2
	remaining := 0
	p := MedicationPatch{TimesPerDay: &times, RemainingQuantity: &remaining}
	require.NoError(t, p.Validate())
	p.Apply(m)

	assert.Equal(t, "Aspirin", m.Name)
	assert.Equal(t, 2, m.TimesPerDay)
	assert.Equal(t, 0, m.RemainingQuantity)

	empty := " "
	assert.Equal(t, "name", fieldOf(t, (&MedicationPatch{Name: &empty}).Validate()))
}

func TestNewLog_Validate(t *testing.T) {
	n := NewLog{MedicationID: 1, TakenAt: time.Now(), ScheduledTime: "08:00"}
	require.NoError(t, n.Validate())
	assert.Equal(t, StatusTaken, n.Status)
	assert.Equal(t, 1, n.Quantity)

	n = NewLog{MedicationID: 1, TakenAt: time.Now(), ScheduledTime: "08:00", Status: "forgot"}
	assert.Equal(t, "status", fieldOf(t, n.Validate()))

	n = NewLog{MedicationID: 1, TakenAt: time.Now(), ScheduledTime: "8am"}
	assert.Equal(t, "scheduledTime", fieldOf(t, n.Validate()))
}

func TestLogStatus_ConsumesStock(t *testing.T) {
	assert.True(t, StatusTaken.ConsumesStock())
	assert.True(t, StatusLate.ConsumesStock())
	assert.False(t, StatusSkipped.ConsumesStock())
}

func TestNewContact_Defaults(t *testing.T) {
	n := NewContact{ContactName: "Mei", ContactEmail: "mei@example.com"}
	require.NoError(t, n.Validate())

	c := n.Contact(7)
	assert.Equal(t, int64(7), c.UserID)
	assert.True(t, c.NotifyOnLowStock)
	assert.False(t, c.NotifyOnMissedDose)
	assert.True(t, c.IsActive)

	bad := NewContact{ContactName: "Mei", ContactEmail: "not-an-email"}
	assert.Equal(t, "contactEmail", fieldOf(t, bad.Validate()))
}

func TestSMTPInput_Defaults(t *testing.T) {
	in := SMTPInput{SMTPHost: "smtp.example.com", SMTPUser: "me@example.com", SMTPPass: "pw"}
	require.NoError(t, in.Validate())
	s := in.Settings(3)

	assert.Equal(t, 465, s.SMTPPort)
	assert.True(t, s.SMTPSecure)
	assert.True(t, s.IsEnabled)
	assert.Equal(t, "me@example.com", s.From())

	s.SMTPFrom = "alerts@example.com"
	assert.Equal(t, "alerts@example.com", s.From())
}
