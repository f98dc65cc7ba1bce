// Package api is the thin HTTP surface over the orchestrator core, plus the
// websocket endpoint subscribers connect through.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/foreman/internal/config"
	"github.com/mattjoyce/foreman/internal/events"
	"github.com/mattjoyce/foreman/internal/store"
	"github.com/mattjoyce/foreman/internal/supervisor"
)

// Orchestrator is the service-lifecycle surface the HTTP layer consumes.
type Orchestrator interface {
	Install(ctx context.Context, spec supervisor.InstallSpec) (string, error)
	Start(ctx context.Context, serviceID string) error
	Stop(ctx context.Context, serviceID string) error
	Remove(ctx context.Context, serviceID string) error
	WorkerStatus(serviceID string) *supervisor.WorkerStatus
}

// TaskRunner is the task surface the HTTP layer consumes.
type TaskRunner interface {
	Execute(ctx context.Context, serviceID, instruction string, taskCtx map[string]any) (string, error)
	Cancel(ctx context.Context, taskID string) error
	Retry(ctx context.Context, taskID string) (string, error)
}

// Server represents the HTTP API server.
type Server struct {
	config    config.APIConfig
	orch      Orchestrator
	tasks     TaskRunner
	store     store.Store
	events    *events.Broadcaster
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance.
func New(cfg config.APIConfig, orch Orchestrator, tasks TaskRunner, st store.Store, hub *events.Broadcaster, logger *slog.Logger) *Server {
	return &Server{
		config:    cfg,
		orch:      orch,
		tasks:     tasks,
		store:     st,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking until ctx is cancelled).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/services", func(r chi.Router) {
			r.Post("/", s.handleInstallService)
			r.Get("/", s.handleListServices)
			r.Get("/{serviceID}/status", s.handleServiceStatus)
			r.Get("/{serviceID}/tasks", s.handleServiceTasks)
			r.Post("/{serviceID}/start", s.handleStartService)
			r.Post("/{serviceID}/stop", s.handleStopService)
			r.Delete("/{serviceID}", s.handleRemoveService)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/execute", s.handleExecuteTask)
			r.Get("/{taskID}", s.handleGetTask)
			r.Get("/{taskID}/logs", s.handleGetTaskLogs)
			r.Post("/{taskID}/cancel", s.handleCancelTask)
			r.Post("/{taskID}/retry", s.handleRetryTask)
		})
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authMiddleware enforces the configured bearer token. No token configured
// means auth is disabled.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token != s.config.APIKey {
			s.writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"uptime_s":    int(time.Since(s.startedAt).Seconds()),
		"subscribers": s.events.SubscriberCount(),
	})
}
