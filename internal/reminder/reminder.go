// Package reminder matches medications' wall-clock reminder times against
// the current time and remembers which reminders already fired today.
//
// Matching is best-effort and process-local: the fired set lives in memory,
// is scoped to the current calendar day, and does not survive a restart.
package reminder

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/albapepper/medminder/internal/model"
)

// DefaultWindow is how long after a scheduled time a reminder may still fire.
const DefaultWindow = 2 * time.Minute

// Reminder is one dose that is due now.
type Reminder struct {
	UserID       int64  `json:"userId"`
	MedicationID int64  `json:"medicationId"`
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Time         string `json:"time"`
}

// Matcher decides which reminders are due. It is safe for concurrent use.
type Matcher struct {
	window time.Duration

	mu    sync.Mutex
	day   string
	fired map[string]struct{}
}

// NewMatcher creates a matcher firing within window after each scheduled
// time. A non-positive window uses DefaultWindow.
func NewMatcher(window time.Duration) *Matcher {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Matcher{window: window, fired: map[string]struct{}{}}
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func logKey(medID int64, clock string) string {
	return fmt.Sprintf("%d|%s", medID, clock)
}

// Due returns the reminders that fire at now and marks them fired. now must
// be in the users' wall-clock location. todayLogs are the logs recorded on
// now's calendar day; any log for a medication and scheduled time suppresses
// that reminder.
func (m *Matcher) Due(now time.Time, meds []model.Medication, todayLogs []model.MedicationLog) []Reminder {
	logged := make(map[string]struct{}, len(todayLogs))
	for _, l := range todayLogs {
		logged[logKey(l.MedicationID, l.ScheduledTime)] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	day := dayKey(now)
	if day != m.day {
		m.day = day
		m.fired = map[string]struct{}{}
	}

	minutesNow := now.Hour()*60 + now.Minute()
	window := int(m.window / time.Minute)

	var due []Reminder
	for _, med := range meds {
		if !med.IsActive {
			continue
		}
		for _, clock := range med.ReminderTimes {
			key := logKey(med.ID, clock)
			if _, ok := logged[key]; ok {
				continue
			}
			hour, minute, err := model.ParseClock(clock)
			if err != nil {
				continue
			}
			diff := minutesNow - (hour*60 + minute)
			if diff < 0 || diff > window {
				continue
			}
			firedKey := day + "|" + key
			if _, ok := m.fired[firedKey]; ok {
				continue
			}
			m.fired[firedKey] = struct{}{}
			due = append(due, Reminder{
				UserID:       med.UserID,
				MedicationID: med.ID,
				Name:         med.Name,
				Dosage:       med.Dosage,
				Time:         clock,
			})
		}
	}
	return due
}

// Summary is the title and body shown for a batch of due reminders.
type Summary struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Summarize combines reminders into one message. A single reminder names
// the medication, its dosage, and the time; several are listed one per line.
func Summarize(reminders []Reminder) Summary {
	switch len(reminders) {
	case 0:
		return Summary{}
	case 1:
		r := reminders[0]
		return Summary{
			Title: "Time to take your medication!",
			Body:  fmt.Sprintf("%s (%s)\nScheduled for %s", r.Name, r.Dosage, r.Time),
		}
	}
	lines := make([]string, 0, len(reminders))
	for _, r := range reminders {
		lines = append(lines, fmt.Sprintf("• %s (%s)", r.Name, r.Dosage))
	}
	return Summary{
		Title: fmt.Sprintf("Time to take your medication! (%d medications)", len(reminders)),
		Body:  strings.Join(lines, "\n"),
	}
}

// DayBounds returns the start and end of now's calendar day in now's location.
func DayBounds(now time.Time) (start, end time.Time) {
	start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end = start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start, end
}
