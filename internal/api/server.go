// Package api provides the HTTP API server for contractlens.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wesm/contractlens/internal/config"
	"github.com/wesm/contractlens/internal/export"
	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/query"
	"github.com/wesm/contractlens/internal/scheduler"
)

// requestTimeout bounds every route except the CSV export stream.
const requestTimeout = 60 * time.Second

// JobScheduler defines the scheduler operations the API needs.
type JobScheduler interface {
	Trigger(name string) error
	Status() []JobStatus
	IsRunning() bool
}

// JobStatus is an alias for scheduler.JobStatus.
type JobStatus = scheduler.JobStatus

// Server represents the HTTP API server.
type Server struct {
	cfg         *config.Config
	engine      query.Engine
	scheduler   JobScheduler
	jobs        *export.Jobs
	streamer    *export.Streamer
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter
}

// NewServer creates a new API server. sched may be nil when snapshot
// refresh is disabled.
func NewServer(cfg *config.Config, engine query.Engine, sched JobScheduler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		engine:    engine,
		scheduler: sched,
		jobs:      export.NewJobs(),
		logger:    logger,
	}
	if engine != nil {
		s.streamer = export.NewStreamer(engine, cfg.Export.BatchSize, logger)
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)

	// CORS middleware (config-driven; disabled when no origins configured)
	corsConfig := DefaultCORSConfig()
	corsConfig.AllowedOrigins = s.cfg.Server.CORSOrigins
	corsConfig.AllowCredentials = s.cfg.Server.CORSCredentials
	corsConfig.MaxAge = s.cfg.Server.CORSMaxAge
	if corsConfig.MaxAge == 0 && len(corsConfig.AllowedOrigins) > 0 {
		corsConfig.MaxAge = 86400
	}
	r.Use(CORSMiddleware(corsConfig))

	rps, burst := s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	s.rateLimiter = NewRateLimiter(rps, burst)
	r.Use(RateLimitMiddleware(s.rateLimiter))

	// Health check (no auth required)
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Exports stream for as long as the client reads.
		r.Post("/export", s.handleExport)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(requestTimeout))

			r.Post("/search", s.handleSearch)
			r.Post("/aggregate", s.handleAggregate)
			r.Post("/export/estimate", s.handleEstimate)

			r.Get("/exports", s.handleListExports)
			r.Get("/exports/{id}", s.handleExportStatus)
			r.Delete("/exports/{id}", s.handleCancelExport)

			r.Get("/filter-options", s.handleFilterOptions)
			r.Get("/related", s.handleRelated)
			r.Get("/time-ranges", s.handleTimeRanges)
			r.Get("/totals", s.handleTotals)

			r.Get("/scheduler/status", s.handleSchedulerStatus)
			r.Post("/snapshot/reload", s.handleReload)
		})
	})

	return r
}

// Start begins listening for HTTP requests.
// Returns an error if the security posture is invalid.
func (s *Server) Start() error {
	if err := s.cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	bindAddr := s.cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	addr := net.JoinHostPort(bindAddr, strconv.Itoa(s.cfg.Server.APIPort))

	if s.cfg.Server.APIKey == "" {
		s.logger.Warn("API server running without authentication; set [server] api_key in config.toml")
	}

	// No WriteTimeout: handleExport clears its own deadline and every other
	// route is bounded by requestTimeout.
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server. Running exports are
// cancelled so their streams end at the next batch boundary.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	for _, st := range s.jobs.List() {
		s.jobs.Cancel(st.ID)
	}
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) limits() filter.Limits {
	return filter.Limits{Default: s.cfg.Query.DefaultPageSize, Max: s.cfg.Query.MaxPageSize}
}

func (s *Server) widths() export.Widths {
	return export.Widths{Raw: s.cfg.Export.RawRowWidth, Aggregate: s.cfg.Export.AggregateRowWidth}
}

// loggerMiddleware logs HTTP requests.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware validates the API key.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key configured
		if s.cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			authHeader = r.Header.Get("X-API-Key")
		}

		// Strip "Bearer " prefix if present
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			authHeader = authHeader[7:]
		}

		if subtle.ConstantTimeCompare([]byte(authHeader), []byte(s.cfg.Server.APIKey)) != 1 {
			s.logger.Warn("unauthorized API request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
