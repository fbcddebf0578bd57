package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/namelens/ratethrottle/internal/errors"
	"github.com/namelens/ratethrottle/internal/observability"
	"github.com/namelens/ratethrottle/internal/server/handlers"
	servermw "github.com/namelens/ratethrottle/internal/server/middleware"
	"github.com/namelens/ratethrottle/internal/server/quota"
)

// Options configures the toy rate limited API server.
type Options struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Bucket backs GET /. A nil bucket gets the default quota on the wall
	// clock.
	Bucket *quota.Bucket
	// AdminToken enables the /admin endpoints when set.
	AdminToken string
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	opts   Options
	bucket *quota.Bucket
}

// New builds the router. It does not start listening.
func New(opts Options) (*Server, error) {
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 120 * time.Second
	}

	bucket := opts.Bucket
	if bucket == nil {
		var err error
		bucket, err = quota.NewBucket(quota.DefaultConfig(), nil)
		if err != nil {
			return nil, err
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		opts:   opts,
		bucket: bucket,
	}

	handlers.SetHTTPErrorResponder(HandleError)
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Handler:      r,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}

	return s, nil
}

// Start listens on the configured address and blocks until the server stops.
func (s *Server) Start() error {
	if logger := observability.Logger(); logger != nil {
		logger.Info("Starting HTTP server",
			zap.String("addr", s.server.Addr),
			zap.Int("max_limit", s.bucket.Config().MaxLimit),
			zap.Duration("window", s.bucket.Config().Window))
	}

	return s.server.ListenAndServe()
}

// Serve accepts connections on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.server.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if logger := observability.Logger(); logger != nil {
		logger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Bucket returns the quota backing GET /.
func (s *Server) Bucket() *quota.Bucket {
	return s.bucket
}

// Port returns the configured server port
func (s *Server) Port() int {
	return s.opts.Port
}
