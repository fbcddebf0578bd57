package throttle

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHTTP(t *testing.T) {
	cases := []struct {
		name       string
		remaining  string
		multiplier string
		wantRem    int
		wantMult   float64
	}{
		{"both", "4321", "1.5", 4321, 1.5},
		{"absent", "", "", 0, 0},
		{"non numeric", "lots", "fast", 0, 0},
		{"negative", "-3", "-1", 0, 0},
		{"whitespace", " 12 ", " 2 ", 12, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := http.Header{}
			if tc.remaining != "" {
				header.Set(HeaderRemaining, tc.remaining)
			}
			if tc.multiplier != "" {
				header.Set(HeaderMultiplier, tc.multiplier)
			}
			httpResp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: header}

			resp := FromHTTP(httpResp)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
			assert.Equal(t, tc.wantRem, resp.Remaining)
			assert.Equal(t, tc.wantMult, resp.RateMultiplier)
			assert.Equal(t, tc.wantMult > 0, resp.HasRateMultiplier())
			assert.Same(t, httpResp, resp.HTTP)
			assert.True(t, IsRateLimited(resp))
		})
	}

	require.Nil(t, FromHTTP(nil))
	require.False(t, IsRateLimited(nil))
}
