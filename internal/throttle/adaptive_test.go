package throttle

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func status(code, remaining int) *Response {
	return &Response{StatusCode: code, Remaining: remaining}
}

// sequence returns a Perform that replays responses and counts invocations.
func sequence(responses ...*Response) (Perform, *int) {
	calls := 0
	return func(context.Context) (*Response, error) {
		i := calls
		if i >= len(responses) {
			i = len(responses) - 1
		}
		calls++
		return responses[i], nil
	}, &calls
}

func newTestAdaptive(t *testing.T, clock Clock, mutate ...func(*Config)) *Adaptive {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Clock = clock
	cfg.Jitter = NoJitter
	for _, fn := range mutate {
		fn(&cfg)
	}
	th, err := NewAdaptive(cfg)
	require.NoError(t, err)
	return th
}

func TestAdaptiveDefaults(t *testing.T) {
	th := newTestAdaptive(t, newFakeClock())

	info := th.Snapshot()
	require.Equal(t, 1600*time.Millisecond, info.SleepFor)
	require.Equal(t, 800*time.Millisecond, th.Config().MinSleep())
	require.InDelta(t, float64(80*time.Millisecond), float64(info.MinSleepBound), 1)
	require.Zero(t, info.RateLimitCount)
	require.False(t, info.Escalated())
	require.Empty(t, info.Leader)
}

func TestAdaptiveRateLimitedThenSuccess(t *testing.T) {
	th := newTestAdaptive(t, wallClock{})
	start := th.Snapshot()
	perform, calls := sequence(status(429, 0), status(429, 0), status(200, 4000))

	before := time.Now()
	resp, err := th.Call(context.Background(), NewWorkerID(), perform)
	after := time.Now()

	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 3, *calls)

	info := th.Snapshot()
	assert.Greater(t, info.SleepFor, start.SleepFor)
	assert.Less(t, info.SleepFor, time.Duration(float64(start.SleepFor)*2.1))
	assert.Equal(t, 1, info.RateLimitCount)
	require.True(t, info.Escalated())
	assert.False(t, info.LastEscalationAt.Before(before))
	assert.False(t, info.LastEscalationAt.After(after))
	assert.Empty(t, info.Leader)
}

func TestAdaptiveFirst429IsAbsorbed(t *testing.T) {
	clock := newFakeClock()
	th := newTestAdaptive(t, clock)
	perform, calls := sequence(status(429, 0), status(200, 0))

	_, err := th.Call(context.Background(), NewWorkerID(), perform)
	require.NoError(t, err)
	require.Equal(t, 2, *calls)

	info := th.Snapshot()
	require.Equal(t, 1600*time.Millisecond, info.SleepFor)
	require.Zero(t, info.RateLimitCount)
	require.Equal(t, []time.Duration{1600 * time.Millisecond, 1600 * time.Millisecond}, clock.Sleeps())
}

func TestAdaptiveSustainedLeaderCompounds(t *testing.T) {
	clock := newFakeClock()
	th := newTestAdaptive(t, clock)
	perform, _ := sequence(status(429, 0), status(429, 0), status(429, 0), status(429, 0), status(200, 0))

	_, err := th.Call(context.Background(), NewWorkerID(), perform)
	require.NoError(t, err)

	info := th.Snapshot()
	require.Equal(t, 3, info.RateLimitCount)
	require.Equal(t, 1600*time.Millisecond*8, info.SleepFor)
	require.Equal(t, []time.Duration{
		1600 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		6400 * time.Millisecond,
		12800 * time.Millisecond,
	}, clock.Sleeps())
}

func TestAdaptiveSingleEscalationPerEpisode(t *testing.T) {
	const workers = 16
	clock := newFakeClock()
	th := newTestAdaptive(t, clock)
	start := th.Snapshot().SleepFor

	// every worker sees 429, 429, 200 and no worker starts round k+1 before
	// all workers finished round k
	rounds := []int{http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusOK}
	barriers := make([]*sync.WaitGroup, len(rounds))
	for i := range barriers {
		barriers[i] = &sync.WaitGroup{}
		barriers[i].Add(workers)
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			round := 0
			_, err := th.Call(context.Background(), NewWorkerID(), func(context.Context) (*Response, error) {
				barriers[round].Done()
				barriers[round].Wait()
				code := rounds[round]
				round++
				return status(code, 100), nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	info := th.Snapshot()
	require.Equal(t, 1, info.RateLimitCount)
	require.Equal(t, start*2, info.SleepFor)
	require.Empty(t, info.Leader)
}

func TestAdaptiveDecayRatioFollowsTimeFactor(t *testing.T) {
	clock := newFakeClock()
	th := newTestAdaptive(t, clock)
	ctx := context.Background()
	worker := NewWorkerID()

	escalate, _ := sequence(status(429, 0), status(429, 0), status(200, 0))
	_, err := th.Call(ctx, worker, escalate)
	require.NoError(t, err)
	s0 := th.Snapshot().SleepFor

	clock.Advance(60 * time.Second)
	ok, _ := sequence(status(200, 100))
	_, err = th.Call(ctx, worker, ok)
	require.NoError(t, err)
	s1 := th.Snapshot().SleepFor

	clock.Advance(120 * time.Second)
	ok, _ = sequence(status(200, 100))
	_, err = th.Call(ctx, worker, ok)
	require.NoError(t, err)
	s2 := th.Snapshot().SleepFor

	d1 := float64(s0 - s1)
	d2 := float64(s1 - s2)
	require.Positive(t, d1)
	require.Positive(t, d2)

	tf1 := TimeFactor(60*time.Second, DefaultDecayConstant)
	tf2 := TimeFactor(180*time.Second, DefaultDecayConstant)
	expected := (float64(s1) / float64(s0)) * (tf1 / tf2)
	require.InEpsilon(t, expected, d2/d1, 1e-4)
}

func TestAdaptiveNeverBelowBound(t *testing.T) {
	clock := newFakeClock()
	th := newTestAdaptive(t, clock)
	clock.Advance(100 * time.Hour)

	perform, _ := sequence(status(200, DefaultMaxLimit*10))
	for i := 0; i < 5; i++ {
		_, err := th.Call(context.Background(), NewWorkerID(), perform)
		require.NoError(t, err)
		info := th.Snapshot()
		require.GreaterOrEqual(t, info.SleepFor, info.MinSleepBound)
	}
	require.Equal(t, th.Config().MinSleepBound(1), th.Snapshot().SleepFor)
}

func TestAdaptiveRateMultiplierMovesBound(t *testing.T) {
	th := newTestAdaptive(t, newFakeClock())
	perform, _ := sequence(&Response{StatusCode: 429, RateMultiplier: 2}, status(200, 0))

	_, err := th.Call(context.Background(), NewWorkerID(), perform)
	require.NoError(t, err)

	info := th.Snapshot()
	require.Equal(t, float64(2), info.RateMultiplier)
	require.InDelta(t, float64(40*time.Millisecond), float64(info.MinSleepBound), 1)

	// absent header keeps the previous multiplier
	perform, _ = sequence(status(429, 0), status(200, 0))
	_, err = th.Call(context.Background(), NewWorkerID(), perform)
	require.NoError(t, err)
	require.Equal(t, float64(2), th.Snapshot().RateMultiplier)
}

func TestAdaptiveReleasesLeaderOnError(t *testing.T) {
	th := newTestAdaptive(t, newFakeClock())
	boom := errors.New("connection reset")

	attempts := 0
	_, err := th.Call(context.Background(), "leader", func(context.Context) (*Response, error) {
		attempts++
		if attempts == 1 {
			return status(429, 0), nil
		}
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, th.Snapshot().Leader)
}

func TestAdaptiveReleasesLeaderOnCancel(t *testing.T) {
	var seen WorkerID
	th := newTestAdaptive(t, newFakeClock(), func(cfg *Config) {
		cfg.Observer = func(_ *Response, info Info) { seen = info.Leader }
	})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := th.Call(ctx, "leader", func(context.Context) (*Response, error) {
		cancel()
		return status(429, 0), nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, WorkerID("leader"), seen)
	require.Empty(t, th.Snapshot().Leader)
}

func TestAdaptiveFollowerDoesNotEscalate(t *testing.T) {
	th := newTestAdaptive(t, newFakeClock())
	s := th.state

	s.mu.Lock()
	leader, _ := s.coordinator.Enter("leader", time.Now())
	s.mu.Unlock()
	require.True(t, leader)

	perform, _ := sequence(status(429, 0), status(429, 0), status(429, 0), status(200, 0))
	_, err := th.Call(context.Background(), "follower", perform)
	require.NoError(t, err)

	info := th.Snapshot()
	require.Zero(t, info.RateLimitCount)
	require.Equal(t, WorkerID("leader"), info.Leader)
}

func TestAdaptiveMaxRetries(t *testing.T) {
	th := newTestAdaptive(t, newFakeClock(), func(cfg *Config) { cfg.MaxRetries = 3 })
	perform, calls := sequence(status(429, 0))

	resp, err := th.Call(context.Background(), NewWorkerID(), perform)
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.Equal(t, 429, resp.StatusCode)
	require.Equal(t, 3, *calls)
	require.Empty(t, th.Snapshot().Leader)
}

func TestAdaptiveObserver(t *testing.T) {
	var infos []Info
	th := newTestAdaptive(t, newFakeClock(), func(cfg *Config) {
		cfg.Observer = func(resp *Response, info Info) {
			infos = append(infos, info)
			panic("observer failure")
		}
	})
	perform, _ := sequence(status(429, 0), status(429, 0), status(200, 0))

	_, err := th.Call(context.Background(), NewWorkerID(), perform)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	require.Equal(t, 0, infos[0].RateLimitCount)
	require.Equal(t, 1, infos[1].RateLimitCount)
	require.Empty(t, infos[2].Leader)
}

func TestAdaptiveRejectsNil(t *testing.T) {
	th := newTestAdaptive(t, newFakeClock())

	_, err := th.Call(context.Background(), NewWorkerID(), nil)
	require.ErrorIs(t, err, ErrNilPerform)

	_, err = th.Call(context.Background(), NewWorkerID(), func(context.Context) (*Response, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, ErrNilResponse)
}
