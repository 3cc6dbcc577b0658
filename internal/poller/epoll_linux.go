//go:build linux

package poller

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller implements Poller on Linux using epoll, a timerfd for the
// shared deadline, and an eventfd for cross-goroutine Notify.
type epollPoller struct {
	epfd     int
	timerFd  int
	notifyFd int
	events   []unix.EpollEvent
}

// New creates the platform Poller. On Linux this is epoll-backed.
func New() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	timerFd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	notifyFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		unix.Close(timerFd)
		return nil, err
	}

	p := &epollPoller{
		epfd:     epfd,
		timerFd:  timerFd,
		notifyFd: notifyFd,
		events:   make([]unix.EpollEvent, 128),
	}

	if err := p.Add(timerFd, NotifyKey, InterestRead); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.Add(notifyFd, NotifyKey, InterestRead); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func interestToEpollEvents(i Interest) uint32 {
	var events uint32
	if i&InterestRead != 0 {
		events |= unix.EPOLLIN
	}
	if i&InterestWrite != 0 {
		events |= unix.EPOLLOUT
	}
	// One-shot to mirror kqueue's EV_ONESHOT semantics: a fd must be
	// explicitly re-armed via Modify after each event it delivers.
	events |= unix.EPOLLONESHOT | unix.EPOLLPRI | unix.EPOLLHUP
	return events
}

func (p *epollPoller) Add(fd int, key uint64, interest Interest) error {
	ev := unix.EpollEvent{Events: interestToEpollEvents(interest), Fd: int32(fd)}
	ev.SetUint64(key)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Modify(fd int, key uint64, interest Interest) error {
	ev := unix.EpollEvent{Events: interestToEpollEvents(interest), Fd: int32(fd)}
	ev.SetUint64(key)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) Delete(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.EBADF {
		return nil
	}
	return err
}

func (p *epollPoller) SetTimer(d time.Duration) error {
	var spec unix.ItimerSpec
	if d > 0 {
		spec.Value.Sec = int64(d / time.Second)
		spec.Value.Nsec = int64(d % time.Second)
	}
	if err := unix.TimerfdSettime(p.timerFd, 0, &spec, nil); err != nil {
		return err
	}
	return p.Modify(p.timerFd, NotifyKey, InterestRead)
}

func (p *epollPoller) Wait(timeout time.Duration) ([]Event, error) {
	msec := -1
	if timeout >= 0 {
		// Round up so Wait never returns before timeout has elapsed.
		msec = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}

	n, err := unix.EpollWait(p.epfd, p.events, msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		raw := p.events[i]
		key := raw.Uint64()
		if key == NotifyKey {
			// Drain the eventfd and re-arm it: it is registered one-shot,
			// so without Modify a later Notify would never wake Wait.
			var buf [8]byte
			_, _ = unix.Read(p.notifyFd, buf[:])
			_ = p.Modify(p.notifyFd, NotifyKey, InterestRead)
			continue
		}
		out = append(out, Event{
			Key:      key,
			Readable: raw.Events&(unix.EPOLLIN|unix.EPOLLPRI) != 0,
			Writable: raw.Events&unix.EPOLLOUT != 0,
			Err:      raw.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		})
	}
	return out, nil
}

func (p *epollPoller) Notify() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(p.notifyFd, buf[:])
	return err
}

func (p *epollPoller) Close() error {
	_ = unix.Close(p.timerFd)
	_ = unix.Close(p.notifyFd)
	return unix.Close(p.epfd)
}
