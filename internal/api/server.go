// Package api serves the population explorer over JSON/HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/popmap/internal/census"
	"github.com/sells-group/popmap/internal/estimate"
	"github.com/sells-group/popmap/internal/ingest"
	"github.com/sells-group/popmap/internal/query"
	"github.com/sells-group/popmap/internal/store"
)

const defaultMaxUploadBytes = 32 << 20

// Publisher reloads configured sources or publishes an uploaded table.
type Publisher interface {
	Reload(ctx context.Context) (*ingest.Result, error)
	Replace(ctx context.Context, t *census.Table) error
}

// SnapshotLister lists persisted snapshots, newest first.
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, limit int) ([]store.SnapshotInfo, error)
}

// Options tunes the HTTP surface.
type Options struct {
	CORSOrigins    []string
	RateLimit      float64 // requests per second across all clients; 0 disables
	RateBurst      int
	MaxUploadBytes int64
	CurrentYear    int // current year for uploaded tables; latest year when zero
}

// Server wires the query and estimate engines to HTTP routes.
type Server struct {
	engine    *query.Engine
	estimator *estimate.Estimator
	publisher Publisher
	snapshots SnapshotLister
	opts      Options

	registry *prometheus.Registry
	metrics  *metrics
	limiter  *rate.Limiter
	log      *zap.Logger
}

// New creates a server. publisher and snapshots may be nil; the routes that
// need them then answer 503.
func New(engine *query.Engine, estimator *estimate.Estimator, publisher Publisher, snapshots SnapshotLister, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	reg := prometheus.NewRegistry()
	s := &Server{
		engine:    engine,
		estimator: estimator,
		publisher: publisher,
		snapshots: snapshots,
		opts:      opts,
		registry:  reg,
		metrics:   newMetrics(reg, engine),
		log:       zap.L().With(zap.String("component", "api")),
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = int(opts.RateLimit)
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit)

		r.Get("/population-data", s.handlePopulationData)
		r.Get("/search-locations", s.handleSearch)
		r.Get("/location-data/{location}", s.handleLocation)
		r.Get("/states", s.handleStates)
		r.Get("/counties/{state}", s.handleCounties)
		r.Get("/cities/{state}/{county}", s.handleCities)
		r.Post("/census-calculate", s.handleCalculate)
		r.Post("/upload", s.handleUpload)
		r.Post("/reload", s.handleReload)
		r.Get("/snapshots", s.handleSnapshots)
	})

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- eris.Wrap(err, "api: listen")
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "api: shutdown")
	}
	return <-errCh
}
