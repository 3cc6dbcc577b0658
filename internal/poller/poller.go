// Package poller abstracts the OS readiness-notification primitive (epoll
// on Linux, kqueue on the BSDs/macOS) behind a single interface so the
// polling backend can register interest in a file descriptor, wait for
// readiness, and be woken out-of-band (Notify) without caring which OS
// mechanism is underneath.
package poller

import "time"

// Interest is a bitmask of the readiness conditions a caller wants to be
// told about for a given fd.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)

// NotifyKey is reserved for internal plumbing (the notifier fd and the
// timer fd/filter). Events carrying this key are dropped by each
// implementation's Wait before they reach its caller.
const NotifyKey = ^uint64(0)

// Event reports readiness for the fd registered under Key.
type Event struct {
	Key      uint64
	Readable bool
	Writable bool
	Err      bool
}

// Poller is the portable readiness-polling interface. All methods must be
// safe to call from the single thread driving Wait, except Notify and
// Close which may be called from any goroutine.
type Poller interface {
	// Add registers fd under key with the given interest. Registrations
	// are one-shot: once an event fires, the fd must be re-armed with
	// Modify before it will fire again.
	Add(fd int, key uint64, interest Interest) error
	// Modify re-arms fd (already registered via Add) with new interest.
	Modify(fd int, key uint64, interest Interest) error
	// Delete removes fd from the poll set.
	Delete(fd int) error
	// SetTimer arms (or disarms, with d<=0) the poller's single shared
	// timer to fire in d. The polling backend does not call it: it keeps
	// its own Timeout deadlines and bounds each Wait's timeout instead.
	SetTimer(d time.Duration) error
	// Wait blocks until at least one event is ready, the shared timer
	// fires, or timeout elapses (timeout<0 means wait forever), and
	// appends ready events to the returned slice.
	Wait(timeout time.Duration) ([]Event, error)
	// Notify wakes a blocked Wait call from another goroutine.
	Notify() error
	// Close releases the poller's OS resources.
	Close() error
}

// filterNotify drops internal bookkeeping events (timer/notifier fds) from
// a batch before it is handed back to a caller of Wait.
func filterNotify(events []Event) []Event {
	out := events[:0]
	for _, ev := range events {
		if ev.Key == NotifyKey {
			continue
		}
		out = append(out, ev)
	}
	return out
}
