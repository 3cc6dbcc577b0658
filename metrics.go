package lio

import (
	"sync/atomic"
	"time"

	"github.com/behrlich/lio/internal/ioop"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds,
// covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8
const numKinds = int(ioop.KindTee) + 1

// Metrics tracks per-operation-kind counters for an Engine.
type Metrics struct {
	SubmitCount [numKinds]atomic.Uint64
	OpCount     [numKinds]atomic.Uint64
	ErrorCount  [numKinds]atomic.Uint64
	ByteCount   [numKinds]atomic.Uint64

	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	TotalLatencyNs atomic.Uint64
	LatencyCount   atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with its start time set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) recordSubmit(kind ioop.Kind) {
	m.SubmitCount[kind].Add(1)
}

func (m *Metrics) recordComplete(kind ioop.Kind, bytes uint64, latencyNs uint64, success bool) {
	m.OpCount[kind].Add(1)
	if success {
		m.ByteCount[kind].Add(bytes)
	} else {
		m.ErrorCount[kind].Add(1)
	}
	m.TotalLatencyNs.Add(latencyNs)
	m.LatencyCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

func (m *Metrics) recordQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)
	for {
		current := m.MaxQueueDepth.Load()
		if depth <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, depth) {
			break
		}
	}
}

// Stop marks the engine as stopped, fixing the uptime Snapshot reports.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics, safe to read without
// racing further updates.
type MetricsSnapshot struct {
	SubmitCount [numKinds]uint64
	OpCount     [numKinds]uint64
	ErrorCount  [numKinds]uint64
	ByteCount   [numKinds]uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgLatencyNs  uint64
	UptimeNs      uint64
	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalOps   uint64
	TotalBytes uint64
	ErrorRate  float64
}

// Snapshot creates a point-in-time snapshot of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var snap MetricsSnapshot
	for k := 0; k < numKinds; k++ {
		snap.SubmitCount[k] = m.SubmitCount[k].Load()
		snap.OpCount[k] = m.OpCount[k].Load()
		snap.ErrorCount[k] = m.ErrorCount[k].Load()
		snap.ByteCount[k] = m.ByteCount[k].Load()
		snap.TotalOps += snap.OpCount[k]
		snap.TotalBytes += snap.ByteCount[k]
	}

	snap.MaxQueueDepth = m.MaxQueueDepth.Load()
	if count := m.QueueDepthCount.Load(); count > 0 {
		snap.AvgQueueDepth = float64(m.QueueDepthTotal.Load()) / float64(count)
	}

	latencyCount := m.LatencyCount.Load()
	if latencyCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / latencyCount
	}

	start := m.StartTime.Load()
	if stop := m.StopTime.Load(); stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}

	var totalErrors uint64
	for k := 0; k < numKinds; k++ {
		totalErrors += snap.ErrorCount[k]
	}
	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	if latencyCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0-1)
// via linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	total := m.LatencyCount.Load()
	if total == 0 {
		return 0
	}
	targetCount := uint64(float64(total) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters, restarting the uptime clock. Useful in tests.
func (m *Metrics) Reset() {
	for k := 0; k < numKinds; k++ {
		m.SubmitCount[k].Store(0)
		m.OpCount[k].Store(0)
		m.ErrorCount[k].Store(0)
		m.ByteCount[k].Store(0)
	}
	m.QueueDepthTotal.Store(0)
	m.QueueDepthCount.Store(0)
	m.MaxQueueDepth.Store(0)
	m.TotalLatencyNs.Store(0)
	m.LatencyCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer is the public, domain-level metrics hook handed to Engine via
// EngineConfig.Observer; it is satisfied by MetricsObserver and
// NoOpObserver, and is a structural match for ioop.Observer. The Engine
// calls it itself on submit and completion; backends never see it.
type Observer interface {
	ObserveSubmit(kind ioop.Kind)
	ObserveComplete(kind ioop.Kind, bytes uint64, latencyNs uint64, success bool)
	ObserveQueueDepth(depth uint32)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveSubmit(ioop.Kind)                        {}
func (NoOpObserver) ObserveComplete(ioop.Kind, uint64, uint64, bool) {}
func (NoOpObserver) ObserveQueueDepth(uint32)                       {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveSubmit(kind ioop.Kind) {
	o.metrics.recordSubmit(kind)
}

func (o *MetricsObserver) ObserveComplete(kind ioop.Kind, bytes uint64, latencyNs uint64, success bool) {
	o.metrics.recordComplete(kind, bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveQueueDepth(depth uint32) {
	o.metrics.recordQueueDepth(depth)
}

var _ ioop.Observer = (*MetricsObserver)(nil)
var _ ioop.Observer = (*NoOpObserver)(nil)
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
