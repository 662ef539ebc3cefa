package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the citation exploration
// service, organized by subsystem: searches, citation fetches, expansion
// passes, enrichment, and the negative-result cache. All collectors are
// registered via promauto against the default registry.
type Metrics struct {
	// SearchesStarted counts paper searches initiated.
	SearchesStarted prometheus.Counter

	// SearchesFailed counts paper searches that failed permanently.
	SearchesFailed prometheus.Counter

	// SearchDuration observes end-to-end search duration in seconds.
	SearchDuration prometheus.Histogram

	// CitationPagesFetched counts citation pages fetched from the graph API.
	CitationPagesFetched prometheus.Counter

	// CitationsFetched counts individual citations returned by the graph API.
	CitationsFetched prometheus.Counter

	// ExpansionItems counts second-degree expansion items by outcome
	// ("ok", "failed").
	ExpansionItems *prometheus.CounterVec

	// ExpansionDuration observes the duration of whole expansion passes.
	ExpansionDuration prometheus.Histogram

	// EnrichmentResults counts enrichment items by status
	// ("success", "not_found", "failed").
	EnrichmentResults *prometheus.CounterVec

	// NegativeCacheHits counts enrichment candidates skipped because the
	// negative-result cache suppressed them.
	NegativeCacheHits prometheus.Counter

	// NegativeCacheEntries gauges the current number of cached negative markers.
	NegativeCacheEntries prometheus.Gauge

	// RateLimitRejections counts 429 rejections seen by either limiter,
	// labeled by endpoint family ("graph", "enrichment").
	RateLimitRejections *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with all collectors initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		SearchesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of paper searches started",
		}),
		SearchesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of paper searches that failed permanently",
		}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of paper searches in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		CitationPagesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "citation_pages_fetched_total",
			Help:      "Total number of citation pages fetched from the graph API",
		}),
		CitationsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "citations_fetched_total",
			Help:      "Total number of citations returned by the graph API",
		}),
		ExpansionItems: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expansion_items_total",
			Help:      "Second-degree expansion items processed by outcome",
		}, []string{"outcome"}),
		ExpansionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "expansion_duration_seconds",
			Help:      "Duration of second-degree expansion passes in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		EnrichmentResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_results_total",
			Help:      "Abstract enrichment items processed by status",
		}, []string{"status"}),
		NegativeCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negative_cache_hits_total",
			Help:      "Enrichment candidates suppressed by the negative-result cache",
		}),
		NegativeCacheEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "negative_cache_entries",
			Help:      "Current number of negative-result cache entries",
		}),
		RateLimitRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Rate-limit rejections observed by endpoint family",
		}, []string{"endpoint"}),
	}
}
