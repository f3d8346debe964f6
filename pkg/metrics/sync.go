package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics counts remote cart mirror operations by outcome.
type SyncMetrics struct {
	ops *prometheus.CounterVec
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mirror_operations_total",
		Help: "Remote cart mirror operations by kind and result.",
	}, []string{"op", "result"})
	reg.MustRegister(ops)
	return &SyncMetrics{ops: ops}
}

func (s *SyncMetrics) Success(op string) {
	s.inc(op, "success")
}

func (s *SyncMetrics) Failure(op string) {
	s.inc(op, "failure")
}

func (s *SyncMetrics) inc(op, result string) {
	if s == nil || s.ops == nil {
		return
	}
	s.ops.WithLabelValues(op, result).Inc()
}
