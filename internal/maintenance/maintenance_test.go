package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/albapepper/medminder/internal/model"
	"github.com/albapepper/medminder/internal/store/sqlite"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCleanup_PurgesOnlyOldRead(t *testing.T) {
	ctx := context.Background()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Migrate(ctx))

	uid, err := st.CreateUser(ctx, &model.User{Username: "u", PasswordHash: "x"})
	require.NoError(t, err)

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -100)
	oldRead, err := st.CreateNotification(ctx, &model.Notification{UserID: uid, Type: model.NotifyReminder, Title: "a", Content: "a", SentAt: old})
	require.NoError(t, err)
	_, err = st.CreateNotification(ctx, &model.Notification{UserID: uid, Type: model.NotifyReminder, Title: "b", Content: "b", SentAt: old})
	require.NoError(t, err)
	recentRead, err := st.CreateNotification(ctx, &model.Notification{UserID: uid, Type: model.NotifyReminder, Title: "c", Content: "c", SentAt: now.AddDate(0, 0, -1)})
	require.NoError(t, err)
	require.NoError(t, st.MarkNotificationRead(ctx, uid, oldRead))
	require.NoError(t, st.MarkNotificationRead(ctx, uid, recentRead))

	assert.EqualValues(t, 1, Cleanup(ctx, st, 90*24*time.Hour, now, discard()))

	left, err := st.ListNotifications(ctx, uid, 0)
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeNotifications(context.Context, time.Time) (int64, error) {
	p.calls.Add(1)
	return 0, p.err
}

func TestCleanup_ErrorIsLogged(t *testing.T) {
	p := &countingPurger{err: errors.New("db down")}
	assert.Zero(t, Cleanup(context.Background(), p, time.Hour, time.Now(), discard()))
}

func TestStart_TicksAndStops(t *testing.T) {
	p := &countingPurger{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Start(ctx, p, Config{CleanupInterval: 5 * time.Millisecond, NotificationRetention: time.Hour}, discard())
		close(done)
	}()

	assert.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("maintenance did not stop")
	}
}
