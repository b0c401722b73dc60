package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the memory engine.
type Metrics struct {
	AccessesTotal       *prometheus.CounterVec
	SynapsesWiredTotal  prometheus.Counter
	RecallsTotal        prometheus.Counter
	RecallResults       prometheus.Histogram
	RecallDuration      prometheus.Histogram
	TokensSavedTotal    prometheus.Counter
	PrunedSynapsesTotal prometheus.Counter
	PrunedNeuronsTotal  prometheus.Counter
	ShortcutsTotal      *prometheus.CounterVec
}

// NewMetrics creates and registers the engine metrics with the default
// registry. Registration happens once per process; later calls return the
// same instance.
//
// Metrics:
//   - hebbian_accesses_total{type} - access events recorded
//   - hebbian_synapses_wired_total - synapse reinforcements from co-activation
//   - hebbian_recalls_total - recall queries answered
//   - hebbian_recall_results - results per recall
//   - hebbian_recall_duration_seconds - recall latency
//   - hebbian_tokens_saved_total - estimated tokens saved by recall results
//   - hebbian_pruned_synapses_total / hebbian_pruned_neurons_total - decay pruning
//   - hebbian_shortcuts_total{kind} - consolidation shortcuts (created, reinforced)
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			AccessesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "hebbian_accesses_total",
					Help: "Total number of access events recorded",
				},
				[]string{"type"},
			),
			SynapsesWiredTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "hebbian_synapses_wired_total",
				Help: "Total number of synapse reinforcements from co-activation",
			}),
			RecallsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "hebbian_recalls_total",
				Help: "Total number of recall queries answered",
			}),
			RecallResults: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "hebbian_recall_results",
				Help:    "Number of results returned per recall",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			}),
			RecallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "hebbian_recall_duration_seconds",
				Help:    "Duration of recall queries in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
			}),
			TokensSavedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "hebbian_tokens_saved_total",
				Help: "Estimated total tokens saved by recall results",
			}),
			PrunedSynapsesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "hebbian_pruned_synapses_total",
				Help: "Total number of synapses pruned by decay",
			}),
			PrunedNeuronsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "hebbian_pruned_neurons_total",
				Help: "Total number of orphaned neurons pruned by decay",
			}),
			ShortcutsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "hebbian_shortcuts_total",
					Help: "Total number of consolidation shortcuts",
				},
				[]string{"kind"}, // "created" or "reinforced"
			),
		}
	})

	return globalMetrics
}

// RecordAccess records one access event and the synapses it wired.
func (m *Metrics) RecordAccess(neuronType string, wired int) {
	m.AccessesTotal.WithLabelValues(neuronType).Inc()
	m.SynapsesWiredTotal.Add(float64(wired))
}

// RecordRecall records a recall, its result count, token savings and latency.
func (m *Metrics) RecordRecall(results, tokensSaved int, durationSeconds float64) {
	m.RecallsTotal.Inc()
	m.RecallResults.Observe(float64(results))
	m.RecallDuration.Observe(durationSeconds)
	m.TokensSavedTotal.Add(float64(tokensSaved))
}

// RecordDecay records pruning from one decay run.
func (m *Metrics) RecordDecay(prunedSynapses, prunedNeurons int) {
	m.PrunedSynapsesTotal.Add(float64(prunedSynapses))
	m.PrunedNeuronsTotal.Add(float64(prunedNeurons))
}

// RecordConsolidation records shortcuts from one consolidation pass.
func (m *Metrics) RecordConsolidation(created, reinforced int) {
	m.ShortcutsTotal.WithLabelValues("created").Add(float64(created))
	m.ShortcutsTotal.WithLabelValues("reinforced").Add(float64(reinforced))
}
