package throttle

import (
	"net/http"
	"strconv"
	"strings"
)

// Header names read from the rate-limited API.
const (
	HeaderRemaining  = "RateLimit-Remaining"
	HeaderMultiplier = "RateLimit-Multiplier"
)

// Response is the outcome of one attempt as seen by the throttle.
type Response struct {
	StatusCode int
	// Remaining is the quota left in the current server window.
	Remaining int
	// RateMultiplier is the server scaling hint. Zero or negative means the
	// server did not send one.
	RateMultiplier float64
	// HTTP is the underlying response when the executor made one.
	HTTP *http.Response
}

// HasRateMultiplier reports whether the server sent a scaling hint.
func (r *Response) HasRateMultiplier() bool {
	return r != nil && r.RateMultiplier > 0
}

// FromHTTP extracts the throttle-relevant fields from an HTTP response.
// Missing or malformed quota headers count as zero.
func FromHTTP(resp *http.Response) *Response {
	if resp == nil {
		return nil
	}
	return &Response{
		StatusCode:     resp.StatusCode,
		Remaining:      ParseRemaining(resp.Header.Get(HeaderRemaining)),
		RateMultiplier: ParseMultiplier(resp.Header.Get(HeaderMultiplier)),
		HTTP:           resp,
	}
}

// ParseRemaining parses a RateLimit-Remaining value.
func ParseRemaining(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ParseMultiplier parses a RateLimit-Multiplier value. Absent or invalid
// values return 0.
func ParseMultiplier(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f <= 0 {
		return 0
	}
	return f
}
