package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"go.uber.org/zap"

	"github.com/namelens/ratethrottle/internal/observability"
	"github.com/namelens/ratethrottle/internal/server/handlers"
)

func (s *Server) registerRoutes() {
	quotaHandler := handlers.NewQuotaHandler(s.bucket)
	s.router.Get("/", quotaHandler.ServeHTTP)

	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	s.registerAdminEndpoints(quotaHandler)
}

// registerAdminEndpoints exposes signal delivery and multiplier changes
// behind a bearer token. Nothing is registered without a token.
func (s *Server) registerAdminEndpoints(quotaHandler *handlers.QuotaHandler) {
	logger := observability.Logger()
	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin endpoints disabled (no admin token configured)")
		}
		return
	}

	signalHandler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
	})
	s.router.Post("/admin/signal", signalHandler.ServeHTTP)
	s.router.Put("/admin/multiplier", quotaHandler.MultiplierHandler(s.opts.AdminToken))

	if logger != nil {
		logger.Info("Admin endpoints enabled",
			zap.Strings("paths", []string{"/admin/signal", "/admin/multiplier"}),
			zap.String("auth", "bearer token"))
		logger.Warn("Admin endpoints enabled - ensure this server is not exposed to public internet")
	}
}
