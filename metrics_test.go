package lio

import (
	"testing"

	"github.com/behrlich/lio/internal/ioop"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.TotalOps != 0 {
		t.Errorf("Expected 0 initial ops, got %d", snap.TotalOps)
	}

	m.recordSubmit(ioop.KindRead)
	m.recordComplete(ioop.KindRead, 1024, 1_000_000, true) // 1KB read, 1ms latency, success
	m.recordSubmit(ioop.KindWrite)
	m.recordComplete(ioop.KindWrite, 2048, 2_000_000, true) // 2KB write, 2ms latency, success
	m.recordSubmit(ioop.KindRead)
	m.recordComplete(ioop.KindRead, 512, 500_000, false) // read error, no bytes counted

	snap = m.Snapshot()

	if snap.OpCount[ioop.KindRead] != 2 {
		t.Errorf("Expected 2 read ops, got %d", snap.OpCount[ioop.KindRead])
	}
	if snap.OpCount[ioop.KindWrite] != 1 {
		t.Errorf("Expected 1 write op, got %d", snap.OpCount[ioop.KindWrite])
	}

	if snap.ByteCount[ioop.KindRead] != 1024 {
		t.Errorf("Expected 1024 read bytes, got %d", snap.ByteCount[ioop.KindRead])
	}
	if snap.ByteCount[ioop.KindWrite] != 2048 {
		t.Errorf("Expected 2048 write bytes, got %d", snap.ByteCount[ioop.KindWrite])
	}

	if snap.ErrorCount[ioop.KindRead] != 1 {
		t.Errorf("Expected 1 read error, got %d", snap.ErrorCount[ioop.KindRead])
	}
	if snap.ErrorCount[ioop.KindWrite] != 0 {
		t.Errorf("Expected 0 write errors, got %d", snap.ErrorCount[ioop.KindWrite])
	}

	expectedErrorRate := float64(1) / float64(3) * 100.0 // 1 error out of 3 completed ops
	if snap.ErrorRate < expectedErrorRate-0.1 || snap.ErrorRate > expectedErrorRate+0.1 {
		t.Errorf("Expected error rate ~%.1f%%, got %.1f%%", expectedErrorRate, snap.ErrorRate)
	}
}

func TestMetricsQueueDepth(t *testing.T) {
	m := NewMetrics()

	m.recordQueueDepth(10)
	m.recordQueueDepth(20)
	m.recordQueueDepth(5)

	snap := m.Snapshot()
	if snap.MaxQueueDepth != 20 {
		t.Errorf("Expected max queue depth 20, got %d", snap.MaxQueueDepth)
	}

	expectedAvg := float64(10+20+5) / 3.0
	if snap.AvgQueueDepth != expectedAvg {
		t.Errorf("Expected avg queue depth %.2f, got %.2f", expectedAvg, snap.AvgQueueDepth)
	}
}

func TestMetricsLatencyPercentiles(t *testing.T) {
	m := NewMetrics()

	latencies := []uint64{1_000, 5_000, 50_000, 500_000, 5_000_000, 50_000_000}
	for _, ns := range latencies {
		m.recordComplete(ioop.KindWrite, 1, ns, true)
	}

	snap := m.Snapshot()
	if snap.LatencyP50Ns == 0 {
		t.Error("Expected non-zero p50 latency")
	}
	if snap.LatencyP99Ns < snap.LatencyP50Ns {
		t.Errorf("Expected p99 (%d) >= p50 (%d)", snap.LatencyP99Ns, snap.LatencyP50Ns)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.recordSubmit(ioop.KindRead)
	m.recordComplete(ioop.KindRead, 100, 1_000, true)
	m.recordQueueDepth(4)

	m.Reset()

	snap := m.Snapshot()
	if snap.TotalOps != 0 || snap.TotalBytes != 0 || snap.MaxQueueDepth != 0 {
		t.Errorf("Expected all counters zeroed after Reset, got %+v", snap)
	}
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetrics()
	var obs Observer = NewMetricsObserver(m)

	obs.ObserveSubmit(ioop.KindAccept)
	obs.ObserveComplete(ioop.KindAccept, 0, 1_000, true)
	obs.ObserveQueueDepth(3)

	snap := m.Snapshot()
	if snap.SubmitCount[ioop.KindAccept] != 1 {
		t.Errorf("Expected 1 submit recorded via Observer, got %d", snap.SubmitCount[ioop.KindAccept])
	}
	if snap.OpCount[ioop.KindAccept] != 1 {
		t.Errorf("Expected 1 completion recorded via Observer, got %d", snap.OpCount[ioop.KindAccept])
	}
}

func TestNoOpObserver(t *testing.T) {
	var obs Observer = NoOpObserver{}
	// Exercising these should simply not panic.
	obs.ObserveSubmit(ioop.KindNop)
	obs.ObserveComplete(ioop.KindNop, 0, 0, true)
	obs.ObserveQueueDepth(0)
}
