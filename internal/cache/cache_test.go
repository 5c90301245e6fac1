package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSetGet(t *testing.T) {
	c := New(true)
	defer c.Close()

	etag := c.Set("k", []byte(`{"a":1}`), time.Minute)
	data, got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, etag, got)
	assert.JSONEq(t, `{"a":1}`, string(data))
}

func TestGet_Expired(t *testing.T) {
	c := New(true)
	defer c.Close()

	c.Set("k", []byte("x"), -time.Second)
	_, _, ok := c.Get("k")
	assert.False(t, ok)

	c.evict()
	assert.Equal(t, 0, c.Stats()["total_keys"])
}

func TestDisabled(t *testing.T) {
	c := New(false)
	defer c.Close()

	etag := c.Set("k", []byte("x"), time.Minute)
	assert.Equal(t, ComputeETag([]byte("x")), etag)
	_, _, ok := c.Get("k")
	assert.False(t, ok)
}

func TestDeletePrefix_ScopedToUser(t *testing.T) {
	c := New(true)
	defer c.Close()

	c.Set(MedicationsKey(1), []byte("a"), time.Minute)
	c.Set(LowStockKey(1, 7), []byte("b"), time.Minute)
	c.Set(MedicationsKey(12), []byte("c"), time.Minute)

	c.DeletePrefix(MedicationsPrefix(1))

	_, _, ok := c.Get(MedicationsKey(1))
	assert.False(t, ok)
	_, _, ok = c.Get(LowStockKey(1, 7))
	assert.False(t, ok)
	_, _, ok = c.Get(MedicationsKey(12))
	assert.True(t, ok, "user 12 shares a numeric prefix with user 1")
}

func TestCheckETagMatch(t *testing.T) {
	etag := ComputeETag([]byte("x"))
	assert.False(t, CheckETagMatch("", etag))
	assert.True(t, CheckETagMatch("*", etag))
	assert.True(t, CheckETagMatch(etag, etag))
	assert.True(t, CheckETagMatch(`W/"0000", `+etag, etag))
	assert.False(t, CheckETagMatch(`W/"0000"`, etag))
}

func TestClose_Idempotent(t *testing.T) {
	c := New(true)
	c.Close()
	c.Close()
}
