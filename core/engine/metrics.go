package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FocuswithJustin/versemap/core/corpus"
	"github.com/FocuswithJustin/versemap/core/normalize"
	"github.com/FocuswithJustin/versemap/core/resolve"
)

// Metrics holds Prometheus metrics for the engine. A nil *Metrics records
// nothing.
type Metrics struct {
	// Corpus counters
	rows *prometheus.CounterVec // By status (parsed/rejected)

	// Normalization counters
	consistencyErrors *prometheus.CounterVec // By pair
	synthesized       *prometheus.CounterVec // By pair

	// Rebuild metrics
	rebuilds        *prometheus.CounterVec // By result (published/partial/canceled)
	rebuildDuration prometheus.Histogram
	tables          prometheus.Gauge

	// Query counters
	resolutions *prometheus.CounterVec // By outcome (Unique/Ambiguous/Unmapped/error)
}

// NewMetrics creates and registers engine metrics with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil // Metrics disabled
	}

	m := &Metrics{
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "versemap",
			Subsystem: "corpus",
			Name:      "rows_total",
			Help:      "Total number of corpus rows read",
		}, []string{"status"}),

		consistencyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "versemap",
			Subsystem: "normalize",
			Name:      "consistency_errors_total",
			Help:      "Total number of rules rejected by the normalizer",
		}, []string{"pair"}),

		synthesized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "versemap",
			Subsystem: "normalize",
			Name:      "synthesized_rules_total",
			Help:      "Total number of rules generated for uncovered chapters",
		}, []string{"pair"}),

		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "versemap",
			Subsystem: "engine",
			Name:      "rebuilds_total",
			Help:      "Total number of rebuilds by result",
		}, []string{"result"}),

		rebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "versemap",
			Subsystem: "engine",
			Name:      "rebuild_duration_seconds",
			Help:      "Rebuild duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),

		tables: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "versemap",
			Subsystem: "engine",
			Name:      "published_tables",
			Help:      "Number of tables in the published snapshot",
		}),

		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "versemap",
			Subsystem: "resolve",
			Name:      "resolutions_total",
			Help:      "Total number of resolutions by outcome",
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{
		m.rows, m.consistencyErrors, m.synthesized,
		m.rebuilds, m.rebuildDuration, m.tables, m.resolutions,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveCorpus records the rows of a parsed corpus.
func (m *Metrics) ObserveCorpus(res *corpus.Result) {
	if m == nil || res == nil {
		return
	}
	m.rows.WithLabelValues("parsed").Add(float64(len(res.Rules)))
	m.rows.WithLabelValues("rejected").Add(float64(len(res.Errors)))
}

func (m *Metrics) recordNormalize(rep *normalize.Report) {
	if m == nil || rep == nil {
		return
	}
	pair := rep.Pair.String()
	m.consistencyErrors.WithLabelValues(pair).Add(float64(len(rep.Errors)))
	m.synthesized.WithLabelValues(pair).Add(float64(rep.Synthesized()))
}

func (m *Metrics) recordRebuild(result string, duration time.Duration, tables int) {
	if m == nil {
		return
	}
	m.rebuilds.WithLabelValues(result).Inc()
	m.rebuildDuration.Observe(duration.Seconds())
	if result != resultCanceled {
		m.tables.Set(float64(tables))
	}
}

func (m *Metrics) setTables(n int) {
	if m == nil {
		return
	}
	m.tables.Set(float64(n))
}

func (m *Metrics) recordResolution(res resolve.Result, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.resolutions.WithLabelValues("error").Inc()
		return
	}
	m.resolutions.WithLabelValues(res.Outcome.String()).Inc()
}
