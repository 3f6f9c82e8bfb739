package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/counterbalance/internal/store"
)

// Balancer is the subset of *balancer.Balancer the handlers call.
type Balancer interface {
	Assign(ctx context.Context, participant, session string) (int, error)
	Confirm(ctx context.Context, participant, session string) (int, error)
}

// Reporter serves read-only session snapshots.
type Reporter interface {
	Summary(ctx context.Context, session string) (store.SessionSummary, error)
}

// Server holds the handler dependencies.
type Server struct {
	balancer      Balancer
	reporter      Reporter
	allowedOrigin string
	logger        *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigin sets the Access-Control-Allow-Origin value. Default: "*".
func WithAllowedOrigin(origin string) Option {
	return func(s *Server) {
		s.allowedOrigin = origin
	}
}

// WithLogger sets the request logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New creates a Server. reporter may be nil, in which case the counters
// route is not mounted.
func New(b Balancer, reporter Reporter, opts ...Option) *Server {
	s := &Server{
		balancer:      b,
		reporter:      reporter,
		allowedOrigin: "*",
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router with all routes and middleware mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.cors)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/assign-condition", s.handleAssign)
	r.Post("/confirm-condition", s.handleConfirm)
	if s.reporter != nil {
		r.Get("/sessions/{session}/counters", s.handleCounters)
	}
	return r
}

// cors answers preflight requests and stamps the allowed origin on every
// response.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.allowedOrigin)
		if s.allowedOrigin != "*" {
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
