// Package metrics exposes Prometheus instrumentation for the agenda jobs.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// JobMetrics exposes counters for the batch jobs and calendar sync flows.
type JobMetrics struct {
	notificationsTotal  *prometheus.CounterVec
	syncOperationsTotal *prometheus.CounterVec
	importedBlocksTotal prometheus.Counter
}

func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	m := &JobMetrics{
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total reminder/follow-up dispatch outcomes",
		}, []string{"kind", "status"}),
		syncOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "gcal",
			Name:      "sync_operations_total",
			Help:      "Total outbound calendar operations",
		}, []string{"operation", "outcome"}),
		importedBlocksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "gcal",
			Name:      "imported_blocks_total",
			Help:      "Total schedule blocks created by the calendar importer",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.notificationsTotal, m.syncOperationsTotal, m.importedBlocksTotal)
	return m
}

// ObserveNotification records a reminder/follow-up dispatch outcome.
func (m *JobMetrics) ObserveNotification(kind, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveSync records one outbound calendar operation.
func (m *JobMetrics) ObserveSync(operation, outcome string) {
	if m == nil {
		return
	}
	m.syncOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveImportedBlocks records blocks created by an import run.
func (m *JobMetrics) ObserveImportedBlocks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.importedBlocksTotal.Add(float64(n))
}
