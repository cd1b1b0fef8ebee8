// Package metrics exports nvstore wear counters to Prometheus.
package metrics

import (
	"code.byted.org/khicago/nvstore"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nvstore"

const (
	namespaceLabelKey = "namespace"
	kindLabelKey      = "kind"
	partitionLabelKey = "partition"
	resultLabelKey    = "result"
)

// WearMetrics implements nvstore.Metrics with Prometheus counters.
type WearMetrics struct {
	physicalWrites *prometheus.CounterVec
	skippedWrites  *prometheus.CounterVec
	commits        *prometheus.CounterVec
	reinits        *prometheus.CounterVec
}

var _ nvstore.Metrics = (*WearMetrics)(nil)

// NewWearMetrics creates the counters and registers them in reg.
func NewWearMetrics(reg prometheus.Registerer) (*WearMetrics, error) {
	m := &WearMetrics{
		physicalWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "physical_writes_total",
			Help:      "Set primitives issued to the flash driver",
		}, []string{namespaceLabelKey, kindLabelKey}),

		skippedWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "skipped_writes_total",
			Help:      "Writes dropped because the stored value was unchanged",
		}, []string{namespaceLabelKey, kindLabelKey}),

		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "commits_total",
			Help:      "Namespace commits by result",
		}, []string{namespaceLabelKey, resultLabelKey}),

		reinits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "reinits_total",
			Help:      "Partition re-initializations by result",
		}, []string{partitionLabelKey, resultLabelKey}),
	}

	for _, c := range []prometheus.Collector{m.physicalWrites, m.skippedWrites, m.commits, m.reinits} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *WearMetrics) PhysicalWrite(ns string, kind nvstore.Kind) {
	m.physicalWrites.WithLabelValues(ns, kind.String()).Inc()
}

func (m *WearMetrics) SkippedWrite(ns string, kind nvstore.Kind) {
	m.skippedWrites.WithLabelValues(ns, kind.String()).Inc()
}

func (m *WearMetrics) Commit(ns string, err error) {
	m.commits.WithLabelValues(ns, result(err)).Inc()
}

func (m *WearMetrics) Reinit(label string, err error) {
	if label == nvstore.DefaultPartition {
		label = "default"
	}
	m.reinits.WithLabelValues(label, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
