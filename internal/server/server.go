// Package server provides the HTTP API for starting and watching credit runs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/credit-applier/internal/config"
	"github.com/jonathan/credit-applier/internal/runner"
	"github.com/jonathan/credit-applier/internal/server/middleware"
	"github.com/jonathan/credit-applier/internal/server/ratelimit"
	"github.com/jonathan/credit-applier/internal/status"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     chi.Router
	ctrl       *runner.Controller
	base       config.Config
	logger     *zap.Logger
	limiter    *ratelimit.Limiter
	validator  *validator.Validate

	// runs outlive the request that started them
	runCtx    context.Context
	cancelRun context.CancelFunc

	mu        sync.Mutex
	events    *status.Broadcaster
	eventsRun uuid.UUID
}

// Config holds server configuration
type Config struct {
	Addr       string
	Base       config.Config // merged file, environment and defaults; requests override it
	Controller *runner.Controller
	HTTP       *config.ServerConfig
	Logger     *zap.Logger
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.Controller == nil {
		return nil, fmt.Errorf("run controller is required")
	}
	if cfg.HTTP == nil {
		httpCfg, err := config.NewServerConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create server config: %w", err)
		}
		cfg.HTTP = httpCfg
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = config.DefaultListenAddr
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ctrl:      cfg.Controller,
		base:      cfg.Base,
		logger:    cfg.Logger,
		validator: validator.New(),
		runCtx:    runCtx,
		cancelRun: cancel,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			Limit:  cfg.HTTP.StartLimit,
			Window: cfg.HTTP.StartWindow,
		}),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireToken(cfg.HTTP.APIToken))

		r.Route("/runs", func(r chi.Router) {
			r.With(s.withRateLimit).Post("/", s.handleStartRun)
			r.Get("/", s.handleListRuns)
			r.Get("/current", s.handleCurrentRun)
			r.Get("/current/events", s.handleRunEvents)
			r.Post("/current/cancel", s.handleCancelRun)
			r.Get("/{id}/outcomes", s.handleListOutcomes)
		})
	})
	s.router = r

	s.httpServer = &http.Server{
		Addr:        cfg.Addr,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No write timeout: event streams stay open for the whole run
	}

	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until ctx is done and then shuts down gracefully.
// A live run is cancelled and waited for before Start returns.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.Close()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Event streams end when their run ends
	s.cancelRun()
	if run := s.ctrl.Current(); run != nil {
		select {
		case <-run.Done():
		case <-shutdownCtx.Done():
		}
	}

	err := s.httpServer.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Close stops background work without waiting for requests.
func (s *Server) Close() {
	s.cancelRun()
	s.limiter.Stop()
}

// withRateLimit limits run starts per client address
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.limiter.Allow(clientID(r))
		if info.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
		}
		if !allowed {
			retry := int(info.RetryAfter.Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			s.logger.Warn("run start rate limited", zap.String("client", clientID(r)))
			s.jsonResponse(w, http.StatusTooManyRequests, map[string]interface{}{
				"error":       "rate_limit_exceeded",
				"message":     "Too many runs started. Please try again later.",
				"retry_after": retry,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientID extracts the client address from RemoteAddr ("IP:port").
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("error encoding JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
