package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWithPrefix("clickguard_", registry)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

var (
	// delay buckets in milliseconds
	delayBuckets = []float64{0, 250, 500, 1000, 1500, 3000, 5000}

	Detections = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "detections_total",
			Help: "Score contributions by signal",
		},
		[]string{"signal"},
	)

	Verdicts = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "verdicts_total",
			Help: "Gate decisions by verdict",
		},
		[]string{"verdict"},
	)

	NavigationDelay = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "navigation_delay_ms",
			Help:    "Delay applied to scheduled navigations in milliseconds",
			Buckets: delayBuckets,
		},
		[]string{"verdict"},
	)

	FlagWrites = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flag_writes_total",
			Help: "Persisted flag writes by flag name",
		},
		[]string{"flag"},
	)

	StoreErrors = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_errors_total",
			Help: "Flag store failures that were degraded to empty reads or dropped writes",
		},
		[]string{"op"},
	)

	SuppressedAdClicks = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "suppressed_ad_clicks_total",
			Help: "Ad clicks whose default action was suppressed",
		},
	)

	ActivePages = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "active_pages",
			Help: "Page loads currently tracked",
		},
	)

	FinalScores = promauto.With(registerer).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "final_score",
			Help:    "Suspicion score at unload",
			Buckets: []float64{0, 10, 20, 30, 50, 75, 100, 150, 200},
		},
	)
)

// Handler serves the metrics registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
