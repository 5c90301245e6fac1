package listener

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/albapepper/medminder/internal/cache"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHandle_DropsOnlyThatUser(t *testing.T) {
	c := cache.New(true)
	defer c.Close()
	c.Set(cache.MedicationsKey(1), []byte(`[]`), time.Minute)
	c.Set(cache.LowStockKey(1, 7), []byte(`[]`), time.Minute)
	c.Set(cache.MedicationsKey(12), []byte(`[]`), time.Minute)

	require.NoError(t, Handle(c, " 1\n"))

	_, _, ok := c.Get(cache.MedicationsKey(1))
	assert.False(t, ok)
	_, _, ok = c.Get(cache.LowStockKey(1, 7))
	assert.False(t, ok)
	_, _, ok = c.Get(cache.MedicationsKey(12))
	assert.True(t, ok)
}

func TestHandle_RejectsGarbage(t *testing.T) {
	c := cache.New(false)
	defer c.Close()
	for _, p := range []string{"", "abc", "-3", "0"} {
		assert.Error(t, Handle(c, p), p)
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := cache.New(false)
	defer c.Close()

	done := make(chan struct{})
	go func() {
		// Nothing listens on this port; the loop keeps backing off until cancelled.
		Start(ctx, "postgres://127.0.0.1:1/none?connect_timeout=1", c, slog.New(slog.NewTextHandler(io.Discard, nil)))
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}
