package lio

import (
	"context"
	"testing"
	"time"

	"github.com/behrlich/lio/internal/constants"
	"github.com/behrlich/lio/internal/ioop"
)

func newTestEngine() (*Engine, *MockBackend) {
	mb := NewMockBackend()
	cfg := EngineConfig{QueueDepth: constants.DefaultQueueDepth}
	metrics := NewMetrics()
	observer := NewMetricsObserver(metrics)
	return newEngineWithBackend(mb, cfg, observer, metrics), mb
}

func TestEngineSubmitAssignsID(t *testing.T) {
	e, mb := newTestEngine()
	defer e.Close()

	id, err := e.submitSink(ioop.Operation{Kind: ioop.KindNop}, func(ioop.Completion) {})
	if err != nil {
		t.Fatalf("submitSink: %v", err)
	}
	if _, ok := mb.Pending(id); !ok {
		t.Fatalf("expected backend to have recorded submission %d", id)
	}
}

func TestEngineDispatchDeliversCompletion(t *testing.T) {
	e, mb := newTestEngine()
	defer e.Close()

	delivered := make(chan ioop.Completion, 1)
	id, err := e.submitSink(ioop.Operation{Kind: ioop.KindRead}, func(c ioop.Completion) {
		delivered <- c
	})
	if err != nil {
		t.Fatalf("submitSink: %v", err)
	}

	mb.Complete(ioop.Completion{ID: id, N: 42})
	if err := e.TryTick(); err != nil {
		t.Fatalf("TryTick: %v", err)
	}

	select {
	case c := <-delivered:
		if c.N != 42 {
			t.Errorf("expected N=42, got %d", c.N)
		}
	default:
		t.Fatal("expected completion to be delivered synchronously by TryTick")
	}
}

func TestEngineDispatchUnknownIDIsIgnored(t *testing.T) {
	e, mb := newTestEngine()
	defer e.Close()

	mb.Complete(ioop.Completion{ID: 0xdeadbeef, N: 1})
	if err := e.TryTick(); err != nil {
		t.Fatalf("TryTick should tolerate unknown completion ids, got %v", err)
	}
}

func TestEngineSubmitAfterCloseFails(t *testing.T) {
	e, _ := newTestEngine()
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := e.submitSink(ioop.Operation{Kind: ioop.KindNop}, func(ioop.Completion) {})
	if !IsCode(err, ErrCodeEngineClosed) {
		t.Errorf("expected ErrCodeEngineClosed, got %v", err)
	}
}

func TestEngineCloseIsIdempotent(t *testing.T) {
	e, _ := newTestEngine()
	if err := e.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
}

func TestEngineCancelUnknownIDIsNoOp(t *testing.T) {
	e, _ := newTestEngine()
	defer e.Close()

	if err := e.Cancel(0x1234); err != nil {
		t.Errorf("Cancel of unknown id should be a no-op, got %v", err)
	}
}

func TestEngineRunStopsOnContextCancel(t *testing.T) {
	e, _ := newTestEngine()
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	select {
	case err := <-done:
		if err != context.DeadlineExceeded {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestAmbientEngineLifecycle(t *testing.T) {
	Exit() // ensure a clean slate regardless of test order
	defer Exit()

	already, err := TryInit()
	if err != nil {
		t.Fatalf("TryInit: %v", err)
	}
	if already {
		t.Fatal("expected first TryInit to report not-already-initialized")
	}
	if ambientEngine() == nil {
		t.Fatal("expected ambient engine to be installed after TryInit")
	}

	already, err = TryInit()
	if err != nil {
		t.Fatalf("second TryInit: %v", err)
	}
	if !already {
		t.Error("expected second TryInit to report already-initialized")
	}

	Exit()
	if ambientEngine() != nil {
		t.Error("expected ambient engine to be cleared after Exit")
	}
}
