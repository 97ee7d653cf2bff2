package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID indexes a counter or histogram slot.
type MetricID uint16

const (
	CredentialCreated MetricID = iota
	CredentialVerified
	CredentialRejected
	SessionIssued
	SessionIssueFailed
	RotateSuccess
	RotateFailure
	RotateAccessMalformed
	RotateAccessForged
	RotateRefreshNotFound
	RotateRefreshExpired
	RotateRefreshReplayed
	RotateSubjectMismatch
	RotateSessionMismatch
	RotateRateLimited
	AccessVerified
	AccessRejected
	AccessExpired
	LedgerUnavailable
	LedgerSwept
	RotateLatency

	// Count is the number of defined metric ids.
	Count
)

const (
	HistBucketCount = 8
	cacheLineSize   = 64
)

type histogram struct {
	buckets [HistBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the counters and histograms. The zero value is disabled.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [Count]paddedCounter
	histograms    [Count]histogram
}

// Snapshot is a point-in-time copy of all metric values.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func New(enabled, latency bool) *Metrics {
	return &Metrics{
		enabled:       enabled,
		enableLatency: enabled && latency,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= Count || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the latency histogram for id. Only RotateLatency
// carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != RotateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[BucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= Count {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[MetricID]uint64, int(Count)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < Count; id++ {
		if id == RotateLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, HistBucketCount)
		for i := 0; i < HistBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[RotateLatency].buckets[i])
		}
		s.Histograms[RotateLatency] = buckets
	}

	return s
}

// BucketIndex maps d onto the fixed bounds 5, 10, 25, 50, 100, 250 and
// 500ms, with the last bucket catching everything slower.
func BucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
