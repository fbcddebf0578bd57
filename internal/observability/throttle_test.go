package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namelens/ratethrottle/internal/throttle"
)

func TestAttemptFieldsNameTheSource(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fields := attemptFields(42, "pid-42", &throttle.Response{StatusCode: 429}, throttle.Info{
		SleepFor:         2 * time.Second,
		RateLimitCount:   1,
		LastEscalationAt: now.Add(-1500 * time.Millisecond),
		Leader:           "w-1",
	}, now)

	byKey := make(map[string]any, len(fields))
	for _, f := range fields {
		switch {
		case f.String != "":
			byKey[f.Key] = f.String
		default:
			byKey[f.Key] = f.Integer
		}
	}

	require.Contains(t, byKey, "source")
	assert.Equal(t, "pid-42", byKey["source"])
	assert.NotContains(t, byKey, "worker")
	assert.Equal(t, "w-1", byKey["leader"])
	assert.Contains(t, byKey, "seconds_since_escalation")
}

func TestAttemptFieldsOmitEscalationWhenNeverEscalated(t *testing.T) {
	fields := attemptFields(1, "pid-1", &throttle.Response{StatusCode: 200}, throttle.Info{}, time.Now())
	for _, f := range fields {
		assert.NotEqual(t, "seconds_since_escalation", f.Key)
		assert.NotEqual(t, "leader", f.Key)
	}
}
