//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package poller

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueuePoller implements Poller on BSD-family kernels (including macOS)
// using kqueue. The shared timer and cross-goroutine Notify are modeled
// as EVFILT_TIMER/EVFILT_USER filters rather than separate fds, since
// kqueue supports both natively.
type kqueuePoller struct {
	kq     int
	events []unix.Kevent_t
}

// New creates the platform Poller. On BSD/macOS this is kqueue-backed.
func New() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)

	p := &kqueuePoller{kq: kq, events: make([]unix.Kevent_t, 128)}

	notifyEvent := unix.Kevent_t{
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	notifyEvent.Ident = uint64(NotifyKey)
	if _, err := unix.Kevent(p.kq, []unix.Kevent_t{notifyEvent}, nil, nil); err != nil {
		unix.Close(kq)
		return nil, err
	}
	return p, nil
}

func (p *kqueuePoller) register(fd int, key uint64, interest Interest, add bool) error {
	var changes []unix.Kevent_t
	flags := uint16(unix.EV_ONESHOT)
	if add {
		flags |= unix.EV_ADD
	} else {
		flags |= unix.EV_DELETE
	}

	if interest&InterestRead != 0 || !add {
		ev := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags}
		ev.Udata = (*byte)(nil)
		changes = append(changes, ev)
	}
	if interest&InterestWrite != 0 {
		ev := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags}
		changes = append(changes, ev)
	}
	_ = key // kqueue carries the fd itself as Ident; key is derived back to it on Wait
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Add(fd int, key uint64, interest Interest) error {
	return p.register(fd, key, interest, true)
}

func (p *kqueuePoller) Modify(fd int, key uint64, interest Interest) error {
	// kqueue EV_ONESHOT entries are consumed on delivery; re-arming is the
	// same as a fresh add.
	return p.register(fd, key, interest, true)
}

func (p *kqueuePoller) Delete(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, _ = unix.Kevent(p.kq, changes, nil, nil)
	return nil
}

func (p *kqueuePoller) SetTimer(d time.Duration) error {
	flags := uint16(unix.EV_ADD | unix.EV_ONESHOT)
	if d <= 0 {
		flags = unix.EV_DELETE
	}
	ev := unix.Kevent_t{
		Ident:  uint64(NotifyKey),
		Filter: unix.EVFILT_TIMER,
		Flags:  flags,
		Data:   int64(d / time.Millisecond),
	}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (p *kqueuePoller) Wait(timeout time.Duration) ([]Event, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		spec := unix.NsecToTimespec(int64(timeout))
		ts = &spec
	}

	n, err := unix.Kevent(p.kq, nil, p.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		raw := p.events[i]
		if raw.Ident == uint64(NotifyKey) {
			continue
		}
		ev := Event{Key: raw.Ident, Err: raw.Flags&unix.EV_ERROR != 0}
		switch raw.Filter {
		case unix.EVFILT_READ:
			ev.Readable = true
		case unix.EVFILT_WRITE:
			ev.Writable = true
		}
		out = append(out, ev)
	}
	return out, nil
}

func (p *kqueuePoller) Notify() error {
	ev := unix.Kevent_t{
		Ident:  uint64(NotifyKey),
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}
