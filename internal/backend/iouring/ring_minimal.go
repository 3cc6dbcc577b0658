//go:build linux && !giouring

package iouring

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/behrlich/lio/internal/ioop"
	"github.com/behrlich/lio/internal/uapi"
)

// minimalRing talks to the kernel directly: io_uring_setup(2) to create the
// ring, three mmap(2) regions for the SQ ring, the SQE array, and the CQ
// ring, and io_uring_enter(2) to submit and reap. No third-party io_uring
// library is involved; this is the dependency-free default.
type minimalRing struct {
	fd int

	sqEntries uint32
	cqEntries uint32
	sqMask    uint32
	cqMask    uint32

	sqMmap   []byte
	sqesMmap []byte
	cqMmap   []byte

	sqHead  *uint32
	sqTail  *uint32
	sqArray []uint32
	sqes    []uapi.SQE

	cqHead *uint32
	cqTail *uint32
	cqes   []uapi.CQE

	mu        sync.Mutex
	pending   map[uint64]any // buffers pinned against GC while an SQE referencing them is in flight
	immediate []ioop.Completion

	logger ioop.Logger
}

func newRing(entries uint32, logger ioop.Logger) (ring, error) {
	var params uapi.Params
	fd, _, errno := unix.Syscall(unix.SYS_IO_URING_SETUP, uintptr(entries), uintptr(unsafe.Pointer(&params)), 0)
	if errno != 0 {
		return nil, fmt.Errorf("io_uring_setup: %w", errno)
	}

	r := &minimalRing{
		fd:        int(fd),
		sqEntries: params.SqEntries,
		cqEntries: params.CqEntries,
		sqMask:    params.SqEntries - 1,
		cqMask:    params.CqEntries - 1,
		pending:   make(map[uint64]any),
		logger:    logger,
	}

	sqRingSize := int(params.SqOff.Array) + int(params.SqEntries)*4
	cqRingSize := int(params.CqOff.Cqes) + int(params.CqEntries)*int(unsafe.Sizeof(uapi.CQE{}))
	sqesSize := int(params.SqEntries) * int(unsafe.Sizeof(uapi.SQE{}))

	var err error
	r.sqMmap, err = unix.Mmap(r.fd, uapi.MmapSQOffset, sqRingSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Close(r.fd)
		return nil, fmt.Errorf("mmap SQ ring: %w", err)
	}
	r.cqMmap, err = unix.Mmap(r.fd, uapi.MmapCQOffset, cqRingSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(r.sqMmap)
		unix.Close(r.fd)
		return nil, fmt.Errorf("mmap CQ ring: %w", err)
	}
	r.sqesMmap, err = unix.Mmap(r.fd, uapi.MmapSQEsOffset, sqesSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(r.sqMmap)
		unix.Munmap(r.cqMmap)
		unix.Close(r.fd)
		return nil, fmt.Errorf("mmap SQEs: %w", err)
	}

	r.sqHead = (*uint32)(unsafe.Pointer(&r.sqMmap[params.SqOff.Head]))
	r.sqTail = (*uint32)(unsafe.Pointer(&r.sqMmap[params.SqOff.Tail]))
	r.sqArray = unsafe.Slice((*uint32)(unsafe.Pointer(&r.sqMmap[params.SqOff.Array])), params.SqEntries)
	r.sqes = unsafe.Slice((*uapi.SQE)(unsafe.Pointer(&r.sqesMmap[0])), params.SqEntries)

	r.cqHead = (*uint32)(unsafe.Pointer(&r.cqMmap[params.CqOff.Head]))
	r.cqTail = (*uint32)(unsafe.Pointer(&r.cqMmap[params.CqOff.Tail]))
	r.cqes = unsafe.Slice((*uapi.CQE)(unsafe.Pointer(&r.cqMmap[params.CqOff.Cqes])), params.CqEntries)

	return r, nil
}

func (r *minimalRing) completeNow(id uint64, n int, err error) {
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

func (r *minimalRing) submit(id uint64, op ioop.Operation) error {
	// Bind/Listen/Socket/Connect have no universally-available io_uring
	// opcode (IORING_OP_BIND/LISTEN/SOCKET landed in 6.11; CONNECT needs a
	// raw sockaddr pointer that unix.Sockaddr cannot yield without
	// exporting x/sys internals) -- run them synchronously and report the
	// result on the next reap, same as the polling backend's immediate
	// queue.
	switch op.Kind {
	case ioop.KindSocket:
		fd, err := unix.Socket(op.Domain, op.Type, op.Proto)
		r.completeNow(id, fd, err)
		return nil
	case ioop.KindBind:
		err := unix.Bind(op.Fd, op.Addr)
		r.completeNow(id, 0, err)
		return nil
	case ioop.KindListen:
		err := unix.Listen(op.Fd, op.Backlog)
		r.completeNow(id, 0, err)
		return nil
	case ioop.KindConnect:
		err := unix.Connect(op.Fd, op.Addr)
		r.completeNow(id, 0, err)
		return nil
	case ioop.KindTruncate:
		err := unix.Ftruncate(op.Fd, op.Offset)
		r.completeNow(id, 0, err)
		return nil
	}

	sqe, pin, err := buildSQE(id, op)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tail := *r.sqTail
	if tail-*r.sqHead >= r.sqEntries {
		return fmt.Errorf("iouring: submission queue full")
	}
	index := tail & r.sqMask
	r.sqes[index] = sqe
	r.sqArray[index] = index
	if pin != nil {
		r.pending[id] = pin
	}

	sfence()
	*r.sqTail = tail + 1

	_, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd), 1, 0, 0, 0, 0)
	if errno != 0 {
		return fmt.Errorf("io_uring_enter (submit): %w", errno)
	}
	return nil
}

// buildSQE translates an Operation into a 64-byte SQE, allocating and
// returning any buffer (timespec, output sockaddr, NUL-terminated path)
// that must stay alive until the kernel writes the completion.
func buildSQE(id uint64, op ioop.Operation) (uapi.SQE, any, error) {
	sqe := uapi.SQE{UserData: id}

	switch op.Kind {
	case ioop.KindNop:
		sqe.Opcode = uapi.IORING_OP_NOP
		return sqe, nil, nil

	case ioop.KindRead:
		sqe.Opcode = uapi.IORING_OP_READ
		sqe.Fd = int32(op.Fd)
		sqe.Addr = bufAddr(op.Buf)
		sqe.Len = uint32(len(op.Buf))
		return sqe, op.Buf, nil

	case ioop.KindReadAt:
		sqe.Opcode = uapi.IORING_OP_READ
		sqe.Fd = int32(op.Fd)
		sqe.Addr = bufAddr(op.Buf)
		sqe.Len = uint32(len(op.Buf))
		sqe.Off = uint64(op.Offset)
		return sqe, op.Buf, nil

	case ioop.KindWrite:
		sqe.Opcode = uapi.IORING_OP_WRITE
		sqe.Fd = int32(op.Fd)
		sqe.Addr = bufAddr(op.Buf)
		sqe.Len = uint32(len(op.Buf))
		return sqe, op.Buf, nil

	case ioop.KindWriteAt:
		sqe.Opcode = uapi.IORING_OP_WRITE
		sqe.Fd = int32(op.Fd)
		sqe.Addr = bufAddr(op.Buf)
		sqe.Len = uint32(len(op.Buf))
		sqe.Off = uint64(op.Offset)
		return sqe, op.Buf, nil

	case ioop.KindRecv:
		sqe.Opcode = uapi.IORING_OP_RECV
		sqe.Fd = int32(op.Fd)
		sqe.Addr = bufAddr(op.Buf)
		sqe.Len = uint32(len(op.Buf))
		return sqe, op.Buf, nil

	case ioop.KindSend:
		sqe.Opcode = uapi.IORING_OP_SEND
		sqe.Fd = int32(op.Fd)
		sqe.Addr = bufAddr(op.Buf)
		sqe.Len = uint32(len(op.Buf))
		return sqe, op.Buf, nil

	case ioop.KindFsync:
		sqe.Opcode = uapi.IORING_OP_FSYNC
		sqe.Fd = int32(op.Fd)
		return sqe, nil, nil

	case ioop.KindAccept:
		addr := &uapi.SockaddrStorage{}
		addrlen := new(uint32)
		*addrlen = uint32(unsafe.Sizeof(*addr))
		sqe.Opcode = uapi.IORING_OP_ACCEPT
		sqe.Fd = int32(op.Fd)
		sqe.Addr = uint64(uintptr(unsafe.Pointer(addr)))
		sqe.Off = uint64(uintptr(unsafe.Pointer(addrlen)))
		return sqe, [2]any{addr, addrlen}, nil

	case ioop.KindShutdown:
		sqe.Opcode = uapi.IORING_OP_SHUTDOWN
		sqe.Fd = int32(op.Fd)
		sqe.Len = uint32(op.How)
		return sqe, nil, nil

	case ioop.KindOpenat:
		path := cString(op.Path)
		sqe.Opcode = uapi.IORING_OP_OPENAT
		sqe.Fd = int32(op.Dirfd)
		sqe.Addr = bufAddr(path)
		sqe.OpcodeFlags = uint32(op.Flags)
		sqe.Len = 0o644
		return sqe, path, nil

	case ioop.KindSymlinkat:
		target := cString(op.Path)
		link := cString(op.NewPath)
		sqe.Opcode = uapi.IORING_OP_SYMLINKAT
		sqe.Fd = int32(op.NewDirfd)
		sqe.Addr = bufAddr(target)
		sqe.Addr = bufAddr(target)
		sqe.Off = uint64(bufAddr(link))
		return sqe, [2][]byte{target, link}, nil

	case ioop.KindLinkat:
		oldpath := cString(op.Path)
		newpath := cString(op.NewPath)
		sqe.Opcode = uapi.IORING_OP_LINKAT
		sqe.Fd = int32(op.Dirfd)
		sqe.Addr = bufAddr(oldpath)
		sqe.Off = uint64(bufAddr(newpath))
		sqe.BufIndex = uint16(op.NewDirfd)
		sqe.OpcodeFlags = uint32(op.Flags)
		return sqe, [2][]byte{oldpath, newpath}, nil

	case ioop.KindTimeout:
		ts := &uapi.TimeSpec{
			TvSec:  int64(op.Timeout / time.Second),
			TvNsec: int64(op.Timeout % time.Second),
		}
		sqe.Opcode = uapi.IORING_OP_TIMEOUT
		sqe.Addr = uint64(uintptr(unsafe.Pointer(ts)))
		sqe.Len = 1
		return sqe, ts, nil

	case ioop.KindTee:
		sqe.Opcode = uapi.IORING_OP_TEE
		sqe.Fd = int32(op.Fd)
		sqe.Off = uint64(op.TeeDst)
		sqe.Len = uint32(op.TeeLen)
		return sqe, nil, nil

	default:
		return sqe, nil, fmt.Errorf("iouring: unsupported operation kind %d", op.Kind)
	}
}

func bufAddr(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}

func cString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

func (r *minimalRing) reap(timeout time.Duration) ([]ioop.Completion, error) {
	r.mu.Lock()
	if len(r.immediate) > 0 {
		out := r.immediate
		r.immediate = nil
		r.mu.Unlock()
		return out, nil
	}
	r.mu.Unlock()

	minComplete := uintptr(1)
	if timeout == 0 {
		minComplete = 0
	}
	_, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd), 0, minComplete, uapi.IORING_ENTER_GETEVENTS, 0, 0)
	if errno != 0 && errno != unix.EINTR {
		return nil, fmt.Errorf("io_uring_enter (wait): %w", errno)
	}

	mfence()

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []ioop.Completion
	head := *r.cqHead
	tail := *r.cqTail
	for head != tail {
		cqe := r.cqes[head&r.cqMask]
		delete(r.pending, cqe.UserData)
		c := ioop.Completion{ID: cqe.UserData, Result: cqe.Res}
		if cqe.Res < 0 {
			c.Err = unix.Errno(-cqe.Res)
		} else {
			c.N = int(cqe.Res)
		}
		out = append(out, c)
		head++
	}
	*r.cqHead = head
	return out, nil
}

func (r *minimalRing) wake() error {
	// A zero-entry submit+getevents call nudges io_uring_enter out of a
	// blocking wait from another goroutine without touching ring state.
	_, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd), 0, 0, 0, 0, 0)
	if errno != 0 {
		return fmt.Errorf("io_uring_enter (wake): %w", errno)
	}
	return nil
}

func (r *minimalRing) close() error {
	unix.Munmap(r.sqMmap)
	unix.Munmap(r.sqesMmap)
	unix.Munmap(r.cqMmap)
	return unix.Close(r.fd)
}
