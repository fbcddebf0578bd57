package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/namelens/ratethrottle/internal/metrics"
)

// Health states reported per check and in aggregate.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusTimeout   = "timeout"
)

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker defines interface for health checkable components
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

func (f HealthCheckerFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}

// HealthManager runs registered checks for the aggregate endpoint and the
// liveness, readiness and startup probes.
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	version  string
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
		version:  version,
	}
}

// RegisterChecker registers a health checker
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

func (hm *HealthManager) runHealthChecks(ctx context.Context) map[string]string {
	hm.mu.RLock()
	names := make([]string, 0, len(hm.checkers))
	for name := range hm.checkers {
		names = append(names, name)
	}
	checkers := make(map[string]HealthChecker, len(hm.checkers))
	for name, checker := range hm.checkers {
		checkers[name] = checker
	}
	hm.mu.RUnlock()
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			checks[name] = StatusTimeout
			continue
		}
		start := time.Now()
		err := checkers[name].CheckHealth(ctx)
		metrics.RecordHealthCheck(name, err == nil, time.Since(start))
		if err != nil {
			checks[name] = StatusUnhealthy
			continue
		}
		checks[name] = StatusHealthy
	}
	return checks
}

func (hm *HealthManager) determineOverallStatus(checks map[string]string) string {
	degraded := false
	for _, status := range checks {
		switch status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded, StatusTimeout:
			degraded = true
		}
	}
	if degraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// probe runs the checks under timeout and writes either the success body
// built by ok or a SERVICE_UNAVAILABLE envelope.
func (hm *HealthManager) probe(w http.ResponseWriter, r *http.Request, name string, timeout time.Duration, ok func(status string, checks map[string]string) any) {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	checks := hm.runHealthChecks(ctx)
	status := hm.determineOverallStatus(checks)

	if status == StatusUnhealthy {
		message := name + " probe failed"
		if name == "" {
			message = "aggregate health check failed"
		}
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", message)
		respondWithError(w, r, enrichHealthEnvelope(envelope, name, status, checks))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ok(status, checks))
}

func probeBody(status string, _ map[string]string) any {
	return ProbeResponse{Status: status, Timestamp: time.Now().UTC()}
}

// HealthHandler handles aggregate health check requests
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "", 5*time.Second, func(status string, checks map[string]string) any {
		return HealthResponse{
			Status:    status,
			Version:   hm.version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checks,
		}
	})
}

// LivenessHandler reports whether the process is running.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "live", 2*time.Second, probeBody)
}

// ReadinessHandler reports whether the server can accept traffic.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "ready", 5*time.Second, probeBody)
}

// StartupHandler reports whether initialization finished.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "startup", 3*time.Second, probeBody)
}

func enrichHealthEnvelope(envelope *errors.ErrorEnvelope, probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	details := map[string]interface{}{
		"status": status,
	}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	if probe != "" {
		details["probe"] = probe
	}
	envelope = envelope.WithDetails(details)

	var failing []string
	for name, result := range checks {
		if result != StatusHealthy {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		envelope, _ = envelope.WithContext(map[string]interface{}{
			"unhealthy_checks": failing,
		})
	}
	return envelope
}

var globalHealthManager *HealthManager

// InitHealthManager initializes the global health manager
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the global health manager
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

func withGlobal(probe string, serve func(*HealthManager, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if globalHealthManager != nil {
			serve(globalHealthManager, w, r)
			return
		}
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "health manager not initialized")
		respondWithError(w, r, enrichHealthEnvelope(envelope, probe, "unknown", nil))
	}
}

// Package level handlers delegate to the global manager.
var (
	HealthHandler    = withGlobal("aggregate", (*HealthManager).HealthHandler)
	LivenessHandler  = withGlobal("live", (*HealthManager).LivenessHandler)
	ReadinessHandler = withGlobal("ready", (*HealthManager).ReadinessHandler)
	StartupHandler   = withGlobal("startup", (*HealthManager).StartupHandler)
)
