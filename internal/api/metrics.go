package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/popmap/internal/query"
)

// metrics holds the Prometheus collectors for one server.
type metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	throttled prometheus.Counter
	uploads   *prometheus.CounterVec
	estimates prometheus.Counter
}

func newMetrics(reg *prometheus.Registry, engine *query.Engine) *metrics {
	f := promauto.With(reg)
	m := &metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "popmap_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "code"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "popmap_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		throttled: f.NewCounter(prometheus.CounterOpts{
			Name: "popmap_http_throttled_total",
			Help: "Requests rejected by the rate limiter",
		}),
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "popmap_uploads_total",
			Help: "Dataset uploads by outcome",
		}, []string{"outcome"}),
		estimates: f.NewCounter(prometheus.CounterOpts{
			Name: "popmap_estimates_total",
			Help: "Completed population estimates",
		}),
	}

	reg.MustRegister(collectors.NewGoCollector())
	if engine == nil {
		return m
	}

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "popmap_table_rows",
		Help: "Rows in the served census table",
	}, func() float64 {
		t, err := engine.Table()
		if err != nil {
			return 0
		}
		return float64(t.Len())
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "popmap_table_current_year",
		Help: "Current year of the served census table",
	}, func() float64 {
		t, err := engine.Table()
		if err != nil {
			return 0
		}
		return float64(t.CurrentYear())
	})
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "popmap_search_cache_hits_total",
		Help: "Search result cache hits",
	}, func() float64 { return float64(engine.CacheStats().Hits) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "popmap_search_cache_misses_total",
		Help: "Search result cache misses",
	}, func() float64 { return float64(engine.CacheStats().Misses) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "popmap_search_cache_entries",
		Help: "Entries held by the search result cache",
	}, func() float64 { return float64(engine.CacheStats().Entries) })

	return m
}
