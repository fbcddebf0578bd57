package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Sleep(_ context.Context, d time.Duration) error {
	c.Advance(d)
	return nil
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestNewBucketValidates(t *testing.T) {
	clock := newManualClock()
	for name, cfg := range map[string]Config{
		"zero limit":      {MaxLimit: 0, Window: time.Hour, Multiplier: 1},
		"zero window":     {MaxLimit: 10, Window: 0, Multiplier: 1},
		"zero multiplier": {MaxLimit: 10, Window: time.Hour, Multiplier: 0},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewBucket(cfg, clock)
			assert.Error(t, err)
		})
	}
}

func TestBucketStartsFullAndDrains(t *testing.T) {
	bucket, err := NewBucket(Config{MaxLimit: 3, Window: time.Hour, Multiplier: 1}, newManualClock())
	require.NoError(t, err)

	assert.Equal(t, 3, bucket.Remaining())
	for want := 2; want >= 0; want-- {
		d := bucket.Take()
		assert.True(t, d.Allowed)
		assert.Equal(t, want, d.Remaining)
	}

	d := bucket.Take()
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 1.0, d.Multiplier)
}

func TestBucketRefillsFromInjectedClock(t *testing.T) {
	clock := newManualClock()
	// 3600 per hour is one token per second.
	bucket, err := NewBucket(Config{MaxLimit: 3600, Window: time.Hour, Multiplier: 1}, clock)
	require.NoError(t, err)

	for i := 0; i < 3600; i++ {
		require.True(t, bucket.Take().Allowed)
	}
	assert.False(t, bucket.Take().Allowed)

	clock.Advance(time.Second)
	assert.True(t, bucket.Take().Allowed)
	assert.False(t, bucket.Take().Allowed)

	clock.Advance(10 * time.Second)
	assert.Equal(t, 10, bucket.Remaining())
}

func TestBucketMultiplierScalesRefill(t *testing.T) {
	clock := newManualClock()
	bucket, err := NewBucket(Config{MaxLimit: 3600, Window: time.Hour, Multiplier: 1}, clock)
	require.NoError(t, err)

	for bucket.Take().Allowed {
	}

	require.NoError(t, bucket.SetMultiplier(2))
	clock.Advance(5 * time.Second)

	d := bucket.Take()
	assert.True(t, d.Allowed)
	assert.Equal(t, 9, d.Remaining)
	assert.Equal(t, 2.0, d.Multiplier)

	assert.Error(t, bucket.SetMultiplier(-1))
	assert.Equal(t, 2.0, bucket.Config().Multiplier)
}

func TestBucketConcurrentTakesNeverOverAdmit(t *testing.T) {
	bucket, err := NewBucket(Config{MaxLimit: 50, Window: time.Hour, Multiplier: 1}, newManualClock())
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if bucket.Take().Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 4500, cfg.MaxLimit)
	assert.Equal(t, time.Hour, cfg.Window)
	assert.Equal(t, 1.0, cfg.Multiplier)
}
