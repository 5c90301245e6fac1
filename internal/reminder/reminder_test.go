package reminder

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/albapepper/medminder/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func at(day, hour, minute, sec int) time.Time {
	return time.Date(2026, 3, day, hour, minute, sec, 0, time.UTC)
}

func med(id, userID int64, name string, times ...string) model.Medication {
	return model.Medication{
		ID: id, UserID: userID, Name: name, Dosage: "1 tablet", ReminderTimes: times, IsActive: true,
	}
}

func TestDue_Window(t *testing.T) {
	meds := []model.Medication{med(1, 1, "Aspirin", "08:00")}
	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"one minute early", at(10, 7, 59, 59), 0},
		{"on time", at(10, 8, 0, 0), 1},
		{"two minutes late", at(10, 8, 2, 59), 1},
		{"three minutes late", at(10, 8, 3, 0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, NewMatcher(DefaultWindow).Due(tt.now, meds, nil), tt.want)
		})
	}
}

func TestDue_FiresOncePerDay(t *testing.T) {
	m := NewMatcher(DefaultWindow)
	meds := []model.Medication{med(1, 1, "Aspirin", "08:00", "20:00")}

	require.Len(t, m.Due(at(10, 8, 0, 0), meds, nil), 1)
	assert.Empty(t, m.Due(at(10, 8, 0, 30), meds, nil))
	assert.Empty(t, m.Due(at(10, 8, 1, 0), meds, nil))
	assert.Len(t, m.Due(at(10, 20, 1, 0), meds, nil), 1, "other slot fires independently")

	assert.Len(t, m.Due(at(11, 8, 0, 0), meds, nil), 1, "fired set resets on a new day")
}

func TestDue_SkipsLoggedAndInactive(t *testing.T) {
	m := NewMatcher(DefaultWindow)
	inactive := med(2, 1, "Old", "08:00")
	inactive.IsActive = false
	meds := []model.Medication{med(1, 1, "Aspirin", "08:00"), inactive, med(3, 1, "Bad", "8am")}
	logs := []model.MedicationLog{{MedicationID: 1, ScheduledTime: "08:00", Status: model.StatusSkipped}}

	assert.Empty(t, m.Due(at(10, 8, 1, 0), meds, logs))
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))

	one := Summarize([]Reminder{{Name: "Aspirin", Dosage: "1 tablet", Time: "08:00"}})
	assert.Equal(t, "Time to take your medication!", one.Title)
	assert.Equal(t, "Aspirin (1 tablet)\nScheduled for 08:00", one.Body)

	many := Summarize([]Reminder{
		{Name: "Aspirin", Dosage: "1 tablet"},
		{Name: "Metformin", Dosage: "500mg"},
	})
	assert.Equal(t, "Time to take your medication! (2 medications)", many.Title)
	assert.Equal(t, "• Aspirin (1 tablet)\n• Metformin (500mg)", many.Body)
}

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	start, end := DayBounds(time.Date(2026, 3, 10, 1, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2026, 3, 10, 23, 59, 59, int(999*time.Millisecond), loc), end)
}

type memStore struct {
	mu            sync.Mutex
	meds          []model.Medication
	logs          []model.MedicationLog
	notifications []model.Notification
}

func (s *memStore) ListActiveMedications(context.Context) ([]model.Medication, error) {
	return s.meds, nil
}

func (s *memStore) ListLogsBetween(_ context.Context, start, end time.Time) ([]model.MedicationLog, error) {
	var out []model.MedicationLog
	for _, l := range s.logs {
		if !l.TakenAt.Before(start) && !l.TakenAt.After(end) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memStore) CreateNotification(_ context.Context, n *model.Notification) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, *n)
	return int64(len(s.notifications)), nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestWorker_RunOnce_OnePerUser(t *testing.T) {
	st := &memStore{
		meds: []model.Medication{
			med(1, 1, "Aspirin", "08:00"),
			med(2, 1, "Metformin", "08:00"),
			med(3, 2, "Insulin", "08:01"),
			med(4, 2, "Statin", "08:01"),
		},
		logs: []model.MedicationLog{
			{MedicationID: 4, ScheduledTime: "08:01", TakenAt: at(10, 7, 55, 0)},
			{MedicationID: 3, ScheduledTime: "08:01", TakenAt: at(9, 8, 1, 0)}, // yesterday
		},
	}
	w := NewWorker(st, DefaultWindow, time.UTC, discard())
	w.now = func() time.Time { return at(10, 8, 1, 0) }

	sent, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.Len(t, st.notifications, 2)

	first := st.notifications[0]
	assert.Equal(t, int64(1), first.UserID)
	assert.Equal(t, model.NotifyReminder, first.Type)
	assert.Nil(t, first.MedicationID, "combined reminder has no single medication")
	assert.Contains(t, first.Content, "Metformin")

	second := st.notifications[1]
	assert.Equal(t, int64(2), second.UserID)
	require.NotNil(t, second.MedicationID)
	assert.Equal(t, int64(3), *second.MedicationID)

	sent, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent, "same pass does not fire twice")
}

func TestWorker_StopsOnCancel(t *testing.T) {
	w := NewWorker(&memStore{}, DefaultWindow, time.UTC, discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
