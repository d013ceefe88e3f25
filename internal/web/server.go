package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/a-h/templ"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ai-planner/internal/common/config"
	apperrors "ai-planner/internal/common/errors"
	"ai-planner/internal/common/logger"
	"ai-planner/internal/common/metrics"
	"ai-planner/internal/models"
	generateplan "ai-planner/internal/workers/planning/generate-plan"
	"ai-planner/pkg/registry"
)

// Generator produces a plan from a brief.
type Generator interface {
	Execute(ctx context.Context, input *generateplan.Input) (*generateplan.Output, error)
}

type Server struct {
	config     *config.Config
	generator  Generator
	sessions   models.SessionRepository
	examples   *registry.ExampleRegistry
	limiter    *RateLimiter
	proxies    []netip.Prefix
	errors     *apperrors.ErrorHandler
	logger     logger.Logger
	gatherer   prometheus.Gatherer
	cookieName string
	mux        *http.ServeMux
}

type Option func(*Server)

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func WithRateLimiter(l *RateLimiter) Option {
	return func(s *Server) { s.limiter = l }
}

func NewServer(cfg *config.Config, gen Generator, sessions models.SessionRepository, examples *registry.ExampleRegistry, log logger.Logger, opts ...Option) *Server {
	s := &Server{
		config:     cfg,
		generator:  gen,
		sessions:   sessions,
		examples:   examples,
		limiter:    NewRateLimiter(cfg.RateLimit),
		logger:     log.With(map[string]interface{}{"component": "web"}),
		gatherer:   prometheus.DefaultGatherer,
		cookieName: cfg.Session.CookieName,
		mux:        http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cookieName == "" {
		s.cookieName = "planner_session"
	}
	if s.examples == nil {
		s.examples = &registry.ExampleRegistry{}
	}
	s.errors = apperrors.NewErrorHandler(s.logger, metrics.ErrorRecorder{})

	proxies, err := cfg.Server.ProxyPrefixes()
	if err != nil {
		s.logger.Warn("ignoring trusted proxies", map[string]interface{}{"error": err.Error()})
	}
	s.proxies = proxies
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("GET /{$}", s.component(s.handleIndex))
	s.mux.Handle("POST /generate", s.component(s.handleGenerate))
	s.mux.HandleFunc("GET /examples/{id}", s.handleExample)
	s.mux.HandleFunc("GET /plan.md", s.handleDownloadMarkdown)
	s.mux.HandleFunc("GET /plan.json", s.handleDownloadJSON)

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// Handler returns the routed handler wrapped in recovery and request metrics.
func (s *Server) Handler() http.Handler {
	return s.instrument(s.recoverPanics(s.mux))
}

// HTTPServer builds the listener-facing server from config.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.config.Server.Addr(),
		Handler:           s.Handler(),
		ReadTimeout:       config.GetDuration(s.config.Server.ReadTimeout),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      config.GetDuration(s.config.Server.WriteTimeout),
		IdleTimeout:       120 * time.Second,
	}
}

// ComponentResponse is what a page handler returns; the status defaults to 200.
type ComponentResponse struct {
	Code      int
	Component templ.Component
}

type ComponentHandler func(http.ResponseWriter, *http.Request) *ComponentResponse

func (s *Server) component(ch ComponentHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := ch(w, r)
		if resp == nil {
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if resp.Code != 0 {
			w.WriteHeader(resp.Code)
		}
		if err := resp.Component.Render(r.Context(), w); err != nil {
			s.logger.Error("render failed", map[string]interface{}{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
		}
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			se := s.errors.Handle(fmt.Errorf("panic: %v", rec), map[string]interface{}{
				"path":   r.URL.Path,
				"method": r.Method,
			})
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(se.HTTPStatus())
			_ = Page(s.basePage(nil, se)).Render(r.Context(), w)
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, fmt.Sprintf("%d", status)).Inc()

		s.logger.Debug("request served", map[string]interface{}{
			"method":   r.Method,
			"route":    route,
			"status":   status,
			"duration": time.Since(start).String(),
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.sessions.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
