package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/config"
	"github.com/aristath/custodian/internal/di"
	dashboardhandlers "github.com/aristath/custodian/internal/modules/dashboard/handlers"
	portfoliohandlers "github.com/aristath/custodian/internal/modules/portfolio/handlers"
	preprocesshandlers "github.com/aristath/custodian/internal/modules/preprocess/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container // DI container with all services
	Version   string
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	cfg       *config.Config
	container *di.Container
	version   string
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
		version:   version,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Router exposes the routes for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures the middleware shared by every route. Timeout
// and compression apply per route group because streams must outlive them.
func (s *Server) setupMiddleware() {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	c := s.container

	s.router.Get("/health", s.handleHealth)

	var backups Backups
	if c.BackupService != nil {
		backups = c.BackupService
	}

	tasks := NewTaskHandlers(c.TaskManager, s.log)
	system := NewSystemHandlers(s.log, s.cfg.DataDir, c.Databases(), c.TaskManager, backups)
	preprocess := preprocesshandlers.NewHandler(c.Preprocessor, c.PipelineRunner, c.TaskManager, s.log)
	portfolio := portfoliohandlers.NewHandler(c.PortfolioService, c.DashboardService, s.log)
	dashboard := dashboardhandlers.NewHandler(c.DashboardService, s.log)

	s.router.Route("/api", func(r chi.Router) {
		// Long-lived streams
		r.Get("/events/stream", NewEventsStreamHandler(c.EventManager, s.log).ServeHTTP)
		tasks.RegisterStreamRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			if !s.cfg.DevMode {
				r.Use(middleware.Compress(5))
			}

			preprocess.RegisterRoutes(r)
			portfolio.RegisterRoutes(r)
			dashboard.RegisterRoutes(r)
			tasks.RegisterRoutes(r)
			system.RegisterRoutes(r)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
