package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"congreso/internal"
)

// Metrics holds the counters of one run. Each run gets its own registry so
// the textfile export reflects that run only.
type Metrics struct {
	Registry *prometheus.Registry

	// Resolutions counts resolved distinct values by entity and cascade stage.
	Resolutions *prometheus.CounterVec

	// DistinctValues is the number of distinct raw values per standardized entity.
	DistinctValues *prometheus.GaugeVec

	// RowsProcessed counts table rows read per command.
	RowsProcessed *prometheus.CounterVec

	// StageDuration observes pipeline step durations in seconds.
	StageDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "congreso",
			Name:      "resolutions_total",
			Help:      "Distinct values resolved, by entity and cascade stage.",
		}, []string{"entity", "stage"}),
		DistinctValues: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "congreso",
			Name:      "standardize_distinct_values",
			Help:      "Distinct raw values seen in the last standardized column.",
		}, []string{"entity"}),
		RowsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "congreso",
			Name:      "rows_processed_total",
			Help:      "Table rows processed, by command.",
		}, []string{"command"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "congreso",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline steps.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"stage"}),
	}
}

func (m *Metrics) ObserveResolution(entity internal.EntityType, res internal.MatchResult) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(string(entity), string(res.Stage)).Inc()
}

func (m *Metrics) SetDistinct(entity internal.EntityType, n int) {
	if m == nil {
		return
	}
	m.DistinctValues.WithLabelValues(string(entity)).Set(float64(n))
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
