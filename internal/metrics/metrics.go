package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Lookup metrics
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_lookups_total",
			Help: "Total number of price lookups by site and outcome",
		},
		[]string{"site", "outcome"},
	)

	LookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_lookup_duration_seconds",
			Help:    "Price lookup duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"site"},
	)

	// Batch metrics
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "refresh_batch_duration_seconds",
			Help:    "Refresh batch duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	ProductsDue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "refresh_products_due",
			Help: "Number of products due for refresh in the latest check",
		},
	)

	// Publisher metrics
	ResultsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_results_published_total",
			Help: "Total number of scrape results published",
		},
		[]string{"status"},
	)
)

// ObserveLookup records the outcome and latency of one lookup
func ObserveLookup(site, outcome string, d time.Duration) {
	LookupsTotal.WithLabelValues(site, outcome).Inc()
	LookupDuration.WithLabelValues(site).Observe(d.Seconds())
}
