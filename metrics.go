package tokengate

import "sync/atomic"

// MetricID indexes a counter in [Metrics].
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterConflict
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginRateLimited
	MetricRefreshSuccess
	MetricRefreshNotFound
	MetricRefreshInvalid
	MetricLogout
	MetricValidateSuccess
	MetricValidateFailure
	MetricPersistAnomaly
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters. A disabled Metrics is a
// valid zero-cost no-op.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics creates the counter set.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments a counter. Safe for concurrent use.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value returns the current value of a single counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}

	s := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricIDCount))}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}

// MetricName returns the stable exposition name for a counter, or "" for
// unknown IDs. Exporters key off this instead of the numeric ID.
func MetricName(id MetricID) string {
	switch id {
	case MetricRegisterSuccess:
		return "tokengate_register_success_total"
	case MetricRegisterConflict:
		return "tokengate_register_conflict_total"
	case MetricLoginSuccess:
		return "tokengate_login_success_total"
	case MetricLoginFailure:
		return "tokengate_login_failure_total"
	case MetricLoginRateLimited:
		return "tokengate_login_rate_limited_total"
	case MetricRefreshSuccess:
		return "tokengate_refresh_success_total"
	case MetricRefreshNotFound:
		return "tokengate_refresh_not_found_total"
	case MetricRefreshInvalid:
		return "tokengate_refresh_invalid_total"
	case MetricLogout:
		return "tokengate_logout_total"
	case MetricValidateSuccess:
		return "tokengate_validate_success_total"
	case MetricValidateFailure:
		return "tokengate_validate_failure_total"
	case MetricPersistAnomaly:
		return "tokengate_persist_anomaly_total"
	default:
		return ""
	}
}

// MetricIDs returns all defined counter IDs in exposition order.
func MetricIDs() []MetricID {
	ids := make([]MetricID, 0, int(metricIDCount))
	for id := MetricID(0); id < metricIDCount; id++ {
		ids = append(ids, id)
	}
	return ids
}
