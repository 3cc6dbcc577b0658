package lio

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/behrlich/lio/internal/ioop"
	"github.com/behrlich/lio/internal/logging"
)

// Progress is a handle to a not-yet-submitted operation, parameterized
// over its typed result. It is consumed exactly once by one of Await,
// Wait, Send, SendWith, or WhenDone -- each submits the operation under
// whichever delivery mechanism it needs and installs its own sink, so the
// operation is only ever actually submitted to an Engine on the terminal
// call, not at construction.
//
// A Progress not bound to an Engine via WithEngine falls back to the
// ambient default engine installed by Init/TryInit; with neither, the
// terminal call panics with a "no engine bound" message.
type Progress[T any] struct {
	engine  *Engine
	op      ioop.Operation
	convert func(ioop.Completion) (T, error)
	used    atomic.Bool
}

func submit[T any](op ioop.Operation, convert func(ioop.Completion) (T, error)) *Progress[T] {
	return &Progress[T]{op: op, convert: convert}
}

// WithEngine binds p to an explicit Engine instead of the ambient default.
// Returns p for chaining: Read(res, buf).WithEngine(e).Wait().
func (p *Progress[T]) WithEngine(e *Engine) *Progress[T] {
	p.engine = e
	return p
}

func (p *Progress[T]) resolveEngine() (*Engine, error) {
	if p.engine != nil {
		return p.engine, nil
	}
	if e := ambientEngine(); e != nil {
		return e, nil
	}
	panic("lio: no engine bound: call WithEngine or lio.Init first")
}

// markUsed panics if this Progress's one terminal call has already run --
// Go cannot enforce single-use at compile time, so misuse is a runtime
// panic naming the offending method, per the engine's failure-behavior
// contract.
func (p *Progress[T]) markUsed(method string) {
	if !p.used.CompareAndSwap(false, true) {
		panic("lio: Progress already consumed (" + method + " called on an already-terminated handle)")
	}
}

// Await submits the operation and blocks until it completes or ctx is
// done. On context cancellation before completion, Await returns
// ctx.Err() and detaches: the registration is not torn down, and any
// eventual completion is delivered into an unread channel and discarded --
// this is the module's chosen (documented) behavior for the
// drop-after-first-poll open question.
func (p *Progress[T]) Await(ctx context.Context) (T, error) {
	p.markUsed("Await")
	var zero T

	engine, err := p.resolveEngine()
	if err != nil {
		return zero, err
	}

	ch := make(chan ioop.Completion, 1)
	if _, err := engine.submitSink(p.op, func(c ioop.Completion) { ch <- c }); err != nil {
		return zero, err
	}

	select {
	case c := <-ch:
		return p.convert(c)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Wait blocks uninterruptibly for the operation to complete. It is Await
// with context.Background() -- unlike the distilled spec's Wait() T, this
// module also returns the error: discarding an I/O error at the API
// boundary is worse than the signature mismatch with the source design
// (see design notes).
func (p *Progress[T]) Wait() (T, error) {
	return p.Await(context.Background())
}

// Receiver is returned by Progress.Send: a one-shot channel sink. Recv and
// its non-blocking/timeout variants may be called exactly once across the
// group; calling again after a successful receive panics.
type Receiver[T any] struct {
	ch       chan ioop.Completion
	convert  func(ioop.Completion) (T, error)
	received atomic.Bool
}

func (r *Receiver[T]) markReceived() {
	if !r.received.CompareAndSwap(false, true) {
		panic("lio: Receiver already received")
	}
}

// Recv blocks until the operation completes.
func (r *Receiver[T]) Recv() (T, error) {
	r.markReceived()
	c := <-r.ch
	return r.convert(c)
}

// RecvTimeout blocks up to d; ok is false if d elapsed first, in which case
// the Receiver is left usable for a later Recv/TryRecv.
func (r *Receiver[T]) RecvTimeout(d time.Duration) (result T, err error, ok bool) {
	if r.received.Load() {
		panic("lio: Receiver already received")
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case c := <-r.ch:
		r.markReceived()
		result, err = r.convert(c)
		return result, err, true
	case <-timer.C:
		return result, nil, false
	}
}

// TryRecv returns immediately; ok is false if the operation has not yet
// completed.
func (r *Receiver[T]) TryRecv() (result T, err error, ok bool) {
	if r.received.Load() {
		panic("lio: Receiver already received")
	}
	select {
	case c := <-r.ch:
		r.markReceived()
		result, err = r.convert(c)
		return result, err, true
	default:
		return result, nil, false
	}
}

// Send installs a channel sink and returns a Receiver to consume it,
// sharing the mechanism Wait/Await use internally.
func (p *Progress[T]) Send() *Receiver[T] {
	p.markUsed("Send")
	r := &Receiver[T]{ch: make(chan ioop.Completion, 1), convert: p.convert}

	engine, err := p.resolveEngine()
	if err != nil {
		r.ch <- ioop.Completion{Err: err}
		return r
	}
	if _, err := engine.submitSink(p.op, func(c ioop.Completion) { r.ch <- c }); err != nil {
		r.ch <- ioop.Completion{Err: err}
	}
	return r
}

// SendWith installs a channel sink over a caller-provided channel; several
// Progress handles may share one channel to fan results into a single
// consumer loop. Submission failures are logged rather than surfaced,
// matching the distilled spec's void-returning SendWith(ch chan T).
func (p *Progress[T]) SendWith(ch chan T) {
	p.markUsed("SendWith")

	engine, err := p.resolveEngine()
	if err != nil {
		logging.Default().Errorf("lio: SendWith: %v", err)
		return
	}
	_, err = engine.submitSink(p.op, func(c ioop.Completion) {
		v, _ := p.convert(c)
		ch <- v
	})
	if err != nil {
		logging.Default().Errorf("lio: SendWith submit: %v", err)
	}
}

// WhenDone installs a callback sink and submits immediately; fn runs
// inline on whichever goroutine is driving the engine's Tick/Run loop,
// after the operation's slot lock has already been released.
func (p *Progress[T]) WhenDone(fn func(T)) {
	p.markUsed("WhenDone")

	engine, err := p.resolveEngine()
	if err != nil {
		logging.Default().Errorf("lio: WhenDone: %v", err)
		return
	}
	_, err = engine.submitSink(p.op, func(c ioop.Completion) {
		v, _ := p.convert(c)
		fn(v)
	})
	if err != nil {
		logging.Default().Errorf("lio: WhenDone submit: %v", err)
	}
}
