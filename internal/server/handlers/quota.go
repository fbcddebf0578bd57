package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/namelens/ratethrottle/internal/errors"
	"github.com/namelens/ratethrottle/internal/metrics"
	"github.com/namelens/ratethrottle/internal/server/quota"
	"github.com/namelens/ratethrottle/internal/throttle"
)

// QuotaResponse is the body of an admitted request.
type QuotaResponse struct {
	Status     string  `json:"status"`
	Remaining  int     `json:"remaining"`
	Multiplier float64 `json:"multiplier"`
}

// QuotaHandler serves the rate limited resource.
type QuotaHandler struct {
	bucket *quota.Bucket
}

// NewQuotaHandler binds a handler to bucket.
func NewQuotaHandler(bucket *quota.Bucket) *QuotaHandler {
	return &QuotaHandler{bucket: bucket}
}

// ServeHTTP takes one token. Both outcomes advertise the remaining budget
// and the rate multiplier; a denied request gets a RATE_LIMITED envelope.
func (h *QuotaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	decision := h.bucket.Take()
	metrics.RecordQuotaDecision(decision.Allowed, decision.Remaining)

	w.Header().Set(throttle.HeaderRemaining, strconv.Itoa(decision.Remaining))
	w.Header().Set(throttle.HeaderMultiplier, strconv.FormatFloat(decision.Multiplier, 'f', -1, 64))

	if !decision.Allowed {
		respondWithError(w, r, apperrors.NewRateLimitedError(
			"request budget exhausted", decision.Remaining, decision.Multiplier))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(QuotaResponse{
		Status:     "ok",
		Remaining:  decision.Remaining,
		Multiplier: decision.Multiplier,
	})
}

// MultiplierRequest is the body accepted by MultiplierHandler.
type MultiplierRequest struct {
	Multiplier float64 `json:"multiplier"`
}

// MultiplierHandler lets an operator change the advertised rate multiplier
// of a running server. Requests must carry "Authorization: Bearer <token>".
func (h *QuotaHandler) MultiplierHandler(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !bearerMatches(r, token) {
			respondWithError(w, r, apperrors.NewUnauthorizedError("missing or invalid bearer token"))
			return
		}

		var req MultiplierRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
			respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid multiplier request"))
			return
		}
		if err := h.bucket.SetMultiplier(req.Multiplier); err != nil {
			respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid multiplier"))
			return
		}

		cfg := h.bucket.Config()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(QuotaResponse{
			Status:     "updated",
			Remaining:  h.bucket.Remaining(),
			Multiplier: cfg.Multiplier,
		})
	}
}

func bearerMatches(r *http.Request, token string) bool {
	header := r.Header.Get("Authorization")
	presented, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
}
