package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"exteroid/internal/config"
	"exteroid/internal/logger"
	"exteroid/internal/metrics"
	"exteroid/internal/pipeline"
	"exteroid/internal/storage"
)

const (
	requestTimeout  = 2 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// Server exposes the consolidation, cleaning and OCR reconstruction tools
// over HTTP.
type Server struct {
	cfg      config.Config
	log      *logger.Logger
	metrics  *metrics.Metrics
	db       *storage.DB
	runner   *pipeline.Runner
	validate *validator.Validate
	router   chi.Router
}

// New builds the router. db may be nil, in which case runs are not logged.
func New(cfg config.Config, log *logger.Logger, m *metrics.Metrics, db *storage.DB) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		db:       db,
		runner:   pipeline.NewRunner(log, m),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.traceMiddleware)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/consolidate", s.handleConsolidate)
		r.Post("/clean", s.handleClean)
		r.Post("/ocr/reconstruct", s.handleReconstruct)
		r.Post("/ocr/reanalyze", s.handleReanalyze)
		r.Get("/runs", s.handleListRuns)
	})
	s.router = r
}

// traceMiddleware gives every request a trace id, echoed in X-Trace-Id.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := pipeline.NewTraceID()
		w.Header().Set("X-Trace-Id", traceID)

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := logger.ContextWithTraceID(r.Context(), traceID)
		next.ServeHTTP(ww, r.WithContext(ctx))

		s.log.InfowCtx(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Infow("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
