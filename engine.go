package lio

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/behrlich/lio/internal/backend/iouring"
	"github.com/behrlich/lio/internal/backend/polling"
	"github.com/behrlich/lio/internal/constants"
	"github.com/behrlich/lio/internal/ioop"
	"github.com/behrlich/lio/internal/logging"
	"github.com/behrlich/lio/internal/store"
)

// EngineConfig configures a new Engine. Mirrors the teacher's
// DeviceParams/DefaultParams convention: a plain struct plus a
// DefaultEngineConfig constructor, no functional options.
type EngineConfig struct {
	// QueueDepth bounds how many operations may be concurrently in flight.
	QueueDepth uint32

	// UseIOURing selects the io_uring backend on Linux. Ignored (always
	// false) on other platforms, where the polling backend is the only
	// option.
	UseIOURing bool

	// IOUringEntries sizes the io_uring submission queue; zero uses the
	// backend's own default.
	IOUringEntries uint32

	Logger   ioop.Logger
	Observer Observer
}

// DefaultEngineConfig returns sensible defaults: the polling backend, a
// queue depth of DefaultQueueDepth, and the package's default logger.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		QueueDepth: constants.DefaultQueueDepth,
		UseIOURing: false,
		Logger:     logging.Default(),
	}
}

type sinkEntry struct {
	kind    ioop.Kind
	deliver func(ioop.Completion)
}

// Engine owns a generational operation store and the active backend
// (polling or io_uring). Intended for thread-per-core use: one Engine
// driven by one goroutine calling Tick/Run in a loop, with other
// goroutines submitting operations and waiting on their Progress handles.
type Engine struct {
	backend  ioop.Backend
	store    *store.Store[sinkEntry]
	logger   ioop.Logger
	observer Observer
	metrics  *Metrics
	closed   atomic.Bool
}

// NewEngine creates an Engine from cfg, selecting and initializing the
// configured backend.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = constants.DefaultQueueDepth
	}

	observer := cfg.Observer
	metrics := NewMetrics()
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	var backend ioop.Backend
	var err error
	if cfg.UseIOURing && runtime.GOOS == "linux" {
		backend, err = iouring.New(iouring.Config{
			Entries: cfg.IOUringEntries,
			Logger:  cfg.Logger,
		})
	} else {
		backend, err = polling.New(polling.Config{
			Logger: cfg.Logger,
		})
	}
	if err != nil {
		return nil, WrapError("NewEngine", 0, err)
	}

	return newEngineWithBackend(backend, cfg, observer, metrics), nil
}

// newEngineWithBackend builds an Engine around an already-constructed
// backend, bypassing NewEngine's polling/io_uring selection. Used directly
// by tests that want a deterministic backend (see MockBackend).
func newEngineWithBackend(backend ioop.Backend, cfg EngineConfig, observer Observer, metrics *Metrics) *Engine {
	return &Engine{
		backend:  backend,
		store:    store.New[sinkEntry](cfg.QueueDepth),
		logger:   cfg.Logger,
		observer: observer,
		metrics:  metrics,
	}
}

// Metrics returns the engine's metrics instance. It is never nil; when a
// custom Observer was supplied, the engine reports to that Observer and
// this instance is not updated.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// submitSink registers deliver against a freshly allocated ID and hands op
// to the backend, rolling the slot back if the backend rejects it.
func (e *Engine) submitSink(op ioop.Operation, deliver func(ioop.Completion)) (uint64, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	id, err := e.store.InsertWith(func(uint64) sinkEntry {
		return sinkEntry{kind: op.Kind, deliver: deliver}
	})
	if err != nil {
		return 0, WrapError("Submit", 0, err)
	}

	e.observer.ObserveSubmit(op.Kind)
	if err := e.backend.Submit(id, op); err != nil {
		e.store.Remove(id)
		return 0, WrapError("Submit", id, err)
	}
	return id, nil
}

// Cancel best-effort cancels a pending operation. See the io_uring and
// polling backends' own Cancel docs for what "best-effort" means for each.
func (e *Engine) Cancel(id uint64) error {
	if _, err := e.store.Remove(id); err != nil {
		return nil // already completed or unknown: cancel is a no-op
	}
	return e.backend.Cancel(id)
}

// Tick blocks up to timeout for at least one completion (timeout<0 blocks
// indefinitely, 0 polls without blocking), dispatching every completion it
// observes to its registered sink before returning.
func (e *Engine) Tick(timeout time.Duration) error {
	completions, err := e.backend.Tick(timeout)
	if err != nil {
		return WrapError("Tick", 0, err)
	}
	e.dispatch(completions)
	return nil
}

// TryTick is Tick with a zero timeout: drain whatever is already ready
// without blocking.
func (e *Engine) TryTick() error {
	return e.Tick(0)
}

func (e *Engine) dispatch(completions []ioop.Completion) {
	for _, c := range completions {
		entry, err := e.store.Remove(c.ID)
		if err != nil {
			if e.logger != nil {
				e.logger.Printf("lio: completion for unknown operation id %#x: %v", c.ID, err)
			}
			continue
		}
		success := c.Err == nil
		e.observer.ObserveComplete(entry.kind, uint64(c.N), 0, success)
		if entry.deliver != nil {
			entry.deliver(c)
		}
	}
}

// Run drives Tick in a loop until ctx is cancelled or the engine is
// closed, waking promptly on either via the backend's Wake.
func (e *Engine) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = e.backend.Wake()
		case <-done:
		}
	}()

	for {
		if e.closed.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := e.Tick(constants.DefaultTickTimeout); err != nil {
			return err
		}
	}
}

// Wake unblocks a goroutine parked in Tick/Run, from any goroutine.
func (e *Engine) Wake() error { return e.backend.Wake() }

// Close releases the backend's resources. Idempotent.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.metrics.Stop()
	_ = e.backend.Wake()
	return e.backend.Close()
}

// Ambient default engine: optional sugar over explicit Engine binding.
var (
	defaultEngine atomic.Pointer[Engine]
	defaultMu     sync.Mutex
)

// Init creates and installs the ambient default engine with
// DefaultEngineConfig, if one is not already installed.
func Init() error {
	_, err := TryInit()
	return err
}

// TryInit is Init but reports whether an ambient engine already existed.
func TryInit() (alreadyInitialized bool, err error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEngine.Load() != nil {
		return true, nil
	}
	e, err := NewEngine(DefaultEngineConfig())
	if err != nil {
		return false, err
	}
	defaultEngine.Store(e)
	return false, nil
}

// Exit closes and clears the ambient default engine, if any.
func Exit() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if e := defaultEngine.Swap(nil); e != nil {
		_ = e.Close()
	}
}

func ambientEngine() *Engine {
	return defaultEngine.Load()
}
