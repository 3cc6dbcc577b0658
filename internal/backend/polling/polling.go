// Package polling implements the portable ioop.Backend: a single-threaded
// reactor built on internal/poller. Every Operation is attempted eagerly
// with a non-blocking syscall; an EAGAIN/EWOULDBLOCK/EINPROGRESS result
// parks it on the poller keyed by its own operation ID until the fd
// becomes ready, at which point the syscall is retried. This mirrors the
// completed/in-flight state machine go-ublk's queue runner uses for
// FETCH_REQ/COMMIT_AND_FETCH_REQ, adapted from a fixed-tag table to an
// open set of concurrently pending operations.
package polling

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/behrlich/lio/internal/ioop"
	"github.com/behrlich/lio/internal/poller"
)

type timerWait struct {
	id       uint64
	deadline time.Time
}

type waitingOp struct {
	fd int
	op ioop.Operation
}

// pollFor returns the fd to register with the poller and the interest
// direction to watch for op. Most kinds watch their own fd for read
// readiness; writes, in-progress connects, and sends block on write
// readiness instead. Tee moves bytes from op.Fd into op.TeeDst without
// consuming them, so the out side (TeeDst) filling up is the common reason
// it reports EAGAIN.
func pollFor(op ioop.Operation) (fd int, interest poller.Interest) {
	switch op.Kind {
	case ioop.KindSend, ioop.KindConnect, ioop.KindWrite, ioop.KindWriteAt:
		return op.Fd, poller.InterestWrite
	case ioop.KindTee:
		return op.TeeDst, poller.InterestWrite
	default:
		return op.Fd, poller.InterestRead
	}
}

// Backend is the poll-based ioop.Backend implementation.
type Backend struct {
	mu        sync.Mutex
	poller    poller.Poller
	waiting   map[uint64]waitingOp
	timers    []timerWait
	immediate []ioop.Completion

	logger ioop.Logger
}

// Config configures a new polling Backend.
type Config struct {
	Logger ioop.Logger
}

// New creates a polling backend bound to a fresh OS poller instance.
func New(cfg Config) (*Backend, error) {
	p, err := poller.New()
	if err != nil {
		return nil, fmt.Errorf("polling: create poller: %w", err)
	}
	return &Backend{
		poller:  p,
		waiting: make(map[uint64]waitingOp),
		logger:  cfg.Logger,
	}, nil
}

func (b *Backend) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger.Debugf(format, args...)
	}
}

// Submit attempts op eagerly; if it cannot complete synchronously it is
// parked on the poller (or the timer list, for KindTimeout) until ready.
// Submit is observed by the caller (lio.Engine tracks submit/complete
// metrics at the engine layer so both backends report through one place).
func (b *Backend) Submit(id uint64, op ioop.Operation) error {
	if op.Kind == ioop.KindTimeout {
		b.mu.Lock()
		b.timers = append(b.timers, timerWait{id: id, deadline: time.Now().Add(op.Timeout)})
		sort.Slice(b.timers, func(i, j int) bool { return b.timers[i].deadline.Before(b.timers[j].deadline) })
		b.mu.Unlock()
		return nil
	}

	n, err := attempt(op)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINPROGRESS {
		fd, interest := pollFor(op)
		b.mu.Lock()
		b.waiting[id] = waitingOp{fd: fd, op: op}
		b.mu.Unlock()
		if err := b.poller.Add(fd, id, interest); err != nil {
			b.mu.Lock()
			delete(b.waiting, id)
			b.mu.Unlock()
			return err
		}
		b.logf("polling: parked op id=%d fd=%d kind=%d", id, fd, op.Kind)
		return nil
	}

	b.completeNow(id, op, n, err)
	return nil
}

func (b *Backend) completeNow(id uint64, op ioop.Operation, n int, err error) {
	c := ioop.Completion{ID: id, N: n, Err: err}
	if err != nil {
		if errno, ok := err.(unix.Errno); ok {
			c.Result = -int32(errno)
		} else {
			c.Result = -1
		}
	} else {
		c.Result = int32(n)
	}
	b.mu.Lock()
	b.immediate = append(b.immediate, c)
	b.mu.Unlock()
	_ = b.poller.Notify()
}

// Cancel removes a pending operation, best-effort.
func (b *Backend) Cancel(id uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.waiting[id]; ok {
		delete(b.waiting, id)
		return b.poller.Delete(w.fd)
	}
	for i, t := range b.timers {
		if t.id == id {
			b.timers = append(b.timers[:i], b.timers[i+1:]...)
			return nil
		}
	}
	return nil
}

// Tick waits for and returns ready completions.
func (b *Backend) Tick(timeout time.Duration) ([]ioop.Completion, error) {
	b.mu.Lock()
	if len(b.immediate) > 0 {
		out := b.immediate
		b.immediate = nil
		b.mu.Unlock()
		return out, nil
	}
	b.mu.Unlock()

	waitFor := b.boundedTimeout(timeout)
	events, err := b.poller.Wait(waitFor)
	if err != nil {
		return nil, err
	}

	var out []ioop.Completion
	b.mu.Lock()
	now := time.Now()
	for len(b.timers) > 0 && !b.timers[0].deadline.After(now) {
		out = append(out, ioop.Completion{ID: b.timers[0].id, N: 0, Result: 0})
		b.timers = b.timers[1:]
	}
	b.mu.Unlock()

	for _, ev := range events {
		b.mu.Lock()
		w, ok := b.waiting[ev.Key]
		if ok {
			delete(b.waiting, ev.Key)
		}
		b.mu.Unlock()
		if !ok {
			continue
		}

		n, err := attempt(w.op)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			// Spurious readiness notification; re-arm and keep waiting.
			b.mu.Lock()
			b.waiting[ev.Key] = w
			b.mu.Unlock()
			_, interest := pollFor(w.op)
			_ = b.poller.Modify(w.fd, ev.Key, interest)
			continue
		}

		// The op is done with this fd: EPOLLONESHOT leaves it registered
		// until explicitly removed, and Add is not idempotent, so a later op
		// on the same fd would otherwise fail with EEXIST.
		_ = b.poller.Delete(w.fd)

		c := ioop.Completion{ID: ev.Key, N: n, Err: err}
		if err != nil {
			if errno, ok := err.(unix.Errno); ok {
				c.Result = -int32(errno)
			} else {
				c.Result = -1
			}
		} else {
			c.Result = int32(n)
		}
		out = append(out, c)
	}

	return out, nil
}

// boundedTimeout clamps timeout to the nearest pending Timeout deadline so
// expired timers are observed promptly even while Wait blocks on fd
// readiness.
func (b *Backend) boundedTimeout(timeout time.Duration) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.timers) == 0 {
		return timeout
	}
	until := time.Until(b.timers[0].deadline)
	if until < 0 {
		until = 0
	}
	if timeout < 0 || until < timeout {
		return until
	}
	return timeout
}

// Wake unblocks a goroutine parked in Tick.
func (b *Backend) Wake() error { return b.poller.Notify() }

// Close releases the underlying poller.
func (b *Backend) Close() error { return b.poller.Close() }
