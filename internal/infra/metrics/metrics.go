package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors the classification pipeline emits. The
// chosen-rank counter is the primary signal for tuning retrieval fusion
// weights: rank "1" means the adjudicator confirmed the retriever's top
// candidate, rank "0" means it matched nothing that was sent.
type Metrics struct {
	BatchSize            prometheus.Histogram
	RetrievalDuration    prometheus.Histogram
	AdjudicationDuration prometheus.Histogram
	CacheHits            prometheus.Counter
	CacheMisses          prometheus.Counter
	ChosenRank           *prometheus.CounterVec
	TaxonomyLeaves       prometheus.Gauge
}

// New registers all collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "classify",
			Name:      "batch_size",
			Help:      "Number of items per classification batch.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		RetrievalDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "classify",
			Name:      "retrieval_duration_seconds",
			Help:      "Candidate resolution duration per batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		AdjudicationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "classify",
			Name:      "adjudication_duration_seconds",
			Help:      "LLM adjudication duration per batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "classify",
			Name:      "retrieval_cache_hits_total",
			Help:      "Retrieval cache hits.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "classify",
			Name:      "retrieval_cache_misses_total",
			Help:      "Retrieval cache misses.",
		}),
		ChosenRank: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classify",
			Name:      "chosen_rank_total",
			Help:      "Rank of the candidate the adjudicator picked (0 = none matched).",
		}, []string{"rank"}),
		TaxonomyLeaves: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "classify",
			Name:      "taxonomy_leaves",
			Help:      "Leaves in the active taxonomy index.",
		}),
	}
}
