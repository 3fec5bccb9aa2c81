// Package stub serves a local stand-in for the ReqRes users API so the
// acceptance scenario can run without network access.
package stub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/config"
	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/users"
	pkglog "github.com/marutisridharjob/cucumber-rest-api-testing/pkg/log"
	"github.com/marutisridharjob/cucumber-rest-api-testing/pkg/metrics"
	"github.com/marutisridharjob/cucumber-rest-api-testing/pkg/problem"
)

const metricsNamespace = "reqres_stub"

// Server serves the users endpoints.
type Server struct {
	cfg        config.StubConfig
	dataset    Dataset
	handler    http.Handler
	limiter    *rateLimiter
	logger     *zap.SugaredLogger
	metrics    *metrics.Registry
	served     *prometheus.CounterVec
	now        func() time.Time
	httpServer *http.Server
}

// Option customises a Server.
type Option func(*Server)

// WithDataset replaces the served users.
func WithDataset(d Dataset) Option {
	return func(s *Server) {
		s.dataset = d
	}
}

// WithLogger sets the request logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics exposes request counters through registry instead of a private one.
func WithMetrics(registry *metrics.Registry) Option {
	return func(s *Server) {
		s.metrics = registry
	}
}

// WithClock overrides the clock used by the rate limiter.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a stub server from cfg.
func New(cfg config.StubConfig, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		dataset: ReqResDataset(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = pkglog.Or(s.logger)
	if s.metrics == nil {
		s.metrics = metrics.NewRegistry(metrics.WithNamespace(metricsNamespace))
	}
	s.served = s.metrics.CounterVec("requests_total", "Requests served by the stub labelled by route and status code.", "route", "code")
	s.limiter = newRateLimiter(cfg.RateLimit.Window.AsDuration(), cfg.RateLimit.Max)

	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.countRequests)
	r.Use(s.rateLimit)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/api/users", s.handleListUsers)
	r.Get("/api/users/{id}", s.handleGetUser)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, struct{}{})
	})
	s.handler = buildCORS(cfg.AllowedOrigins).Handler(r)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("stub server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.AsDuration())
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorw("stub server shutdown failed", "error", err)
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			s.logger.Errorw("stub server stopped with error", "error", err)
		}
		return err
	}
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-Id", id)
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.served.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter.allow(clientKey(r), s.now()) {
			next.ServeHTTP(w, r)
			return
		}
		s.logger.Warnw("rate limit exceeded", "client", clientKey(r), "path", r.URL.Path)
		problem.Write(w, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded", r.Header.Get("X-Request-Id"), r.URL.Path)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := positiveQueryInt(r, "page", 1)
	if err != nil {
		problem.Write(w, http.StatusBadRequest, "Bad Request", err.Error(), r.Header.Get("X-Request-Id"), r.URL.Path)
		return
	}
	perPage, err := positiveQueryInt(r, "per_page", s.dataset.PerPage)
	if err != nil {
		problem.Write(w, http.StatusBadRequest, "Bad Request", err.Error(), r.Header.Get("X-Request-Id"), r.URL.Path)
		return
	}

	resp := s.dataset.Page(page, perPage)
	s.logger.Debugw("serving users page", "page", page, "perPage", perPage, "count", len(resp.Data))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, struct{}{})
		return
	}
	record, ok := s.dataset.User(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, users.Single{Data: record, Support: s.dataset.Support})
}

func positiveQueryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return val, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func buildCORS(origins []string) *cors.Cors {
	allowed := make(map[string]struct{})
	for _, origin := range origins {
		o := strings.TrimSpace(origin)
		if o == "" {
			continue
		}
		if o == "*" {
			allowed = nil
			break
		}
		allowed[o] = struct{}{}
	}
	allowAll := allowed == nil || len(allowed) == 0

	return cors.New(cors.Options{
		AllowedMethods:       []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders:       []string{"*"},
		ExposedHeaders:       []string{"X-Request-Id"},
		OptionsSuccessStatus: http.StatusNoContent,
		AllowOriginRequestFunc: func(_ *http.Request, origin string) bool {
			if origin == "" || allowAll {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	})
}
