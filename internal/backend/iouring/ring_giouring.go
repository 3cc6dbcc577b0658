//go:build linux && giouring

package iouring

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"

	"github.com/behrlich/lio/internal/ioop"
)

// giouringRing implements ring on top of github.com/pawelgaczynski/giouring,
// a pure-Go liburing port. It trades the hand-rolled mmap/barrier code in
// ring_minimal.go for a maintained binding, at the cost of the extra
// dependency -- opt in with `-tags giouring`.
type giouringRing struct {
	ring *giouring.Ring

	mu        sync.Mutex
	pending   map[uint64]any
	immediate []ioop.Completion
}

func newRing(entries uint32, logger ioop.Logger) (ring, error) {
	r, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("giouring.CreateRing: %w", err)
	}
	return &giouringRing{ring: r, pending: make(map[uint64]any)}, nil
}

func (r *giouringRing) completeNow(id uint64, n int, err error) {
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
	r.mu.Lock()
	r.immediate = append(r.immediate, c)
	r.mu.Unlock()
}

func (r *giouringRing) submit(id uint64, op ioop.Operation) error {
	switch op.Kind {
	case ioop.KindSocket:
		fd, err := unix.Socket(op.Domain, op.Type, op.Proto)
		r.completeNow(id, fd, err)
		return nil
	case ioop.KindBind:
		r.completeNow(id, 0, unix.Bind(op.Fd, op.Addr))
		return nil
	case ioop.KindListen:
		r.completeNow(id, 0, unix.Listen(op.Fd, op.Backlog))
		return nil
	case ioop.KindConnect:
		r.completeNow(id, 0, unix.Connect(op.Fd, op.Addr))
		return nil
	case ioop.KindTruncate:
		r.completeNow(id, 0, unix.Ftruncate(op.Fd, op.Offset))
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sqe := r.ring.GetSQE()
	if sqe == nil {
		return fmt.Errorf("iouring: submission queue full")
	}

	var pin any
	switch op.Kind {
	case ioop.KindNop:
		sqe.PrepareNop()
	case ioop.KindRead:
		sqe.PrepareRead(op.Fd, uintptr(bufPtr(op.Buf)), uint32(len(op.Buf)), 0)
		pin = op.Buf
	case ioop.KindReadAt:
		sqe.PrepareRead(op.Fd, uintptr(bufPtr(op.Buf)), uint32(len(op.Buf)), uint64(op.Offset))
		pin = op.Buf
	case ioop.KindWrite:
		sqe.PrepareWrite(op.Fd, uintptr(bufPtr(op.Buf)), uint32(len(op.Buf)), 0)
		pin = op.Buf
	case ioop.KindWriteAt:
		sqe.PrepareWrite(op.Fd, uintptr(bufPtr(op.Buf)), uint32(len(op.Buf)), uint64(op.Offset))
		pin = op.Buf
	case ioop.KindRecv:
		sqe.PrepareRecv(op.Fd, uintptr(bufPtr(op.Buf)), uint32(len(op.Buf)), 0)
		pin = op.Buf
	case ioop.KindSend:
		sqe.PrepareSend(op.Fd, uintptr(bufPtr(op.Buf)), uint32(len(op.Buf)), 0)
		pin = op.Buf
	case ioop.KindFsync:
		sqe.PrepareFsync(op.Fd, 0)
	case ioop.KindAccept:
		sqe.PrepareAccept(op.Fd, 0, 0, 0)
	case ioop.KindShutdown:
		sqe.PrepareShutdown(op.Fd, uint32(op.How))
	case ioop.KindOpenat:
		path := cString(op.Path)
		sqe.PrepareOpenat(op.Dirfd, uintptr(bufPtr(path)), uint32(op.Flags), 0o644)
		pin = path
	case ioop.KindSymlinkat:
		target, link := cString(op.Path), cString(op.NewPath)
		sqe.PrepareSymlinkat(uintptr(bufPtr(target)), op.NewDirfd, uintptr(bufPtr(link)))
		pin = [2][]byte{target, link}
	case ioop.KindLinkat:
		oldpath, newpath := cString(op.Path), cString(op.NewPath)
		sqe.PrepareLinkat(op.Dirfd, uintptr(bufPtr(oldpath)), op.NewDirfd, uintptr(bufPtr(newpath)), uint32(op.Flags))
		pin = [2][]byte{oldpath, newpath}
	case ioop.KindTimeout:
		ts := &unix.Timespec{Sec: int64(op.Timeout / time.Second), Nsec: int64(op.Timeout % time.Second)}
		sqe.PrepareTimeout(uintptr(unsafe.Pointer(ts)), 1, 0)
		pin = ts
	case ioop.KindTee:
		sqe.PrepareTee(op.Fd, op.TeeDst, uint32(op.TeeLen), 0)
	default:
		return fmt.Errorf("iouring: unsupported operation kind %d", op.Kind)
	}

	sqe.UserData = id
	if pin != nil {
		r.pending[id] = pin
	}

	if _, err := r.ring.Submit(); err != nil {
		return fmt.Errorf("giouring submit: %w", err)
	}
	return nil
}

func (r *giouringRing) reap(timeout time.Duration) ([]ioop.Completion, error) {
	r.mu.Lock()
	if len(r.immediate) > 0 {
		out := r.immediate
		r.immediate = nil
		r.mu.Unlock()
		return out, nil
	}
	r.mu.Unlock()

	var cqe *giouring.CompletionQueueEvent
	var err error
	if timeout < 0 {
		err = r.ring.WaitCQE(&cqe)
	} else {
		ts := unix.NsecToTimespec(timeout.Nanoseconds())
		err = r.ring.WaitCQETimeout(&cqe, &ts)
	}
	if err != nil {
		if err == unix.ETIME || err == unix.EAGAIN || err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("giouring wait: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []ioop.Completion
	for {
		c := ioop.Completion{ID: cqe.UserData, Result: cqe.Res}
		if cqe.Res < 0 {
			c.Err = unix.Errno(-cqe.Res)
		} else {
			c.N = int(cqe.Res)
		}
		delete(r.pending, cqe.UserData)
		out = append(out, c)
		r.ring.CQESeen(cqe)

		if r.ring.PeekCQE(&cqe) != nil {
			break
		}
	}
	return out, nil
}

func (r *giouringRing) wake() error {
	r.mu.Lock()
	sqe := r.ring.GetSQE()
	r.mu.Unlock()
	if sqe == nil {
		return nil
	}
	sqe.PrepareNop()
	sqe.UserData = wakeUserData
	_, err := r.ring.Submit()
	return err
}

func (r *giouringRing) close() error {
	r.ring.QueueExit()
	return nil
}

// wakeUserData is reserved so a self-wake Nop is distinguishable from a real
// operation by a caller inspecting raw completions (mirrors the poller's
// NotifyKey sentinel).
const wakeUserData = ^uint64(0)

func bufPtr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func cString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}
