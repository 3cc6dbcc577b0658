// Package lio is a platform-independent asynchronous I/O runtime: submit
// kernel I/O operations (read, write, send, recv, accept, connect, timeout,
// fsync, ...) without blocking the submitting goroutine, and consume their
// results through whichever of four models fits the caller -- a callback,
// a channel, a blocking wait, or a single-future context-aware Await.
package lio

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/behrlich/lio/internal/bufpool"
	"github.com/behrlich/lio/internal/ioop"
)

// Buf is satisfied by both pool-borrowed and one-off buffers; it is the
// public name for internal/bufpool.Buffer so op constructors never need to
// import that package directly.
type Buf = bufpool.Buffer

// ShutdownHow selects the direction(s) a socket's Shutdown closes.
type ShutdownHow int

const (
	ShutRD   ShutdownHow = unix.SHUT_RD
	ShutWR   ShutdownHow = unix.SHUT_WR
	ShutRDWR ShutdownHow = unix.SHUT_RDWR
)

// ReadResult is the typed result of Read/ReadAt/Recv.
type ReadResult struct {
	N   int
	Buf Buf
}

// WriteResult is the typed result of Write/WriteAt/Send.
type WriteResult struct {
	N   int
	Buf Buf
}

// AcceptResult is the typed result of Accept: the new connection. Addr is
// always nil: no backend reports the peer address.
type AcceptResult struct {
	Conn Resource
	Addr unix.Sockaddr
}

// TeeResult is the typed result of Tee (Linux-only).
type TeeResult struct {
	N int
}

type lenSetter interface {
	SetLen(n int)
}

func setLen(b Buf, n int) {
	if ls, ok := b.(lenSetter); ok {
		ls.SetLen(n)
	}
}

func errnoOf(c ioop.Completion) error {
	if c.Err == nil {
		return nil
	}
	return WrapError("", c.ID, c.Err)
}

// Nop submits a no-op, useful for measuring round-trip latency or waking a
// driver loop without doing real I/O.
func Nop() *Progress[struct{}] {
	return submit(ioop.Operation{Kind: ioop.KindNop}, func(c ioop.Completion) (struct{}, error) {
		return struct{}{}, errnoOf(c)
	})
}

// Read reads into buf starting at the current file offset.
func Read(res Resource, buf Buf) *Progress[ReadResult] {
	op := ioop.Operation{Kind: ioop.KindRead, Fd: res.FD(), Buf: buf.Bytes()}
	return submit(op, func(c ioop.Completion) (ReadResult, error) {
		if err := errnoOf(c); err != nil {
			return ReadResult{Buf: buf}, err
		}
		setLen(buf, c.N)
		return ReadResult{N: c.N, Buf: buf}, nil
	})
}

// ReadAt reads into buf at the given file offset, leaving the fd's own
// offset untouched.
func ReadAt(res Resource, buf Buf, offset int64) *Progress[ReadResult] {
	op := ioop.Operation{Kind: ioop.KindReadAt, Fd: res.FD(), Buf: buf.Bytes(), Offset: offset}
	return submit(op, func(c ioop.Completion) (ReadResult, error) {
		if err := errnoOf(c); err != nil {
			return ReadResult{Buf: buf}, err
		}
		setLen(buf, c.N)
		return ReadResult{N: c.N, Buf: buf}, nil
	})
}

// Write writes all of buf.Bytes() at the current file offset; a pooled
// buffer's SetLen length is not applied.
func Write(res Resource, buf Buf) *Progress[WriteResult] {
	op := ioop.Operation{Kind: ioop.KindWrite, Fd: res.FD(), Buf: buf.Bytes()}
	return submit(op, func(c ioop.Completion) (WriteResult, error) {
		return WriteResult{N: c.N, Buf: buf}, errnoOf(c)
	})
}

// WriteAt writes all of buf.Bytes() at the given file offset; a pooled
// buffer's SetLen length is not applied.
func WriteAt(res Resource, buf Buf, offset int64) *Progress[WriteResult] {
	op := ioop.Operation{Kind: ioop.KindWriteAt, Fd: res.FD(), Buf: buf.Bytes(), Offset: offset}
	return submit(op, func(c ioop.Completion) (WriteResult, error) {
		return WriteResult{N: c.N, Buf: buf}, errnoOf(c)
	})
}

// Recv reads from a socket via recv(2)/IORING_OP_RECV. flags is stored on
// the operation but not passed to the kernel: the polling backend always
// uses MSG_DONTWAIT, and io_uring uses no flags.
func Recv(res Resource, buf Buf, flags int) *Progress[ReadResult] {
	op := ioop.Operation{Kind: ioop.KindRecv, Fd: res.FD(), Buf: buf.Bytes(), Flags: flags}
	return submit(op, func(c ioop.Completion) (ReadResult, error) {
		if err := errnoOf(c); err != nil {
			return ReadResult{Buf: buf}, err
		}
		setLen(buf, c.N)
		return ReadResult{N: c.N, Buf: buf}, nil
	})
}

// Send writes to a socket: write(2) in the polling backend, IORING_OP_SEND
// under io_uring. flags is stored on the operation but neither backend
// passes it to the kernel.
func Send(res Resource, buf Buf, flags int) *Progress[WriteResult] {
	op := ioop.Operation{Kind: ioop.KindSend, Fd: res.FD(), Buf: buf.Bytes(), Flags: flags}
	return submit(op, func(c ioop.Completion) (WriteResult, error) {
		return WriteResult{N: c.N, Buf: buf}, errnoOf(c)
	})
}

// Fsync flushes res's data (and metadata) to stable storage.
func Fsync(res Resource) *Progress[struct{}] {
	op := ioop.Operation{Kind: ioop.KindFsync, Fd: res.FD()}
	return submit(op, func(c ioop.Completion) (struct{}, error) {
		return struct{}{}, errnoOf(c)
	})
}

// Truncate resizes res to length bytes.
func Truncate(res Resource, length int64) *Progress[struct{}] {
	op := ioop.Operation{Kind: ioop.KindTruncate, Fd: res.FD(), Offset: length}
	return submit(op, func(c ioop.Completion) (struct{}, error) {
		return struct{}{}, errnoOf(c)
	})
}

// Socket creates a new socket, returning it as a Resource.
func Socket(domain, typ, proto int) *Progress[Resource] {
	op := ioop.Operation{Kind: ioop.KindSocket, Domain: domain, Type: typ, Proto: proto}
	return submit(op, func(c ioop.Completion) (Resource, error) {
		if err := errnoOf(c); err != nil {
			return Resource{}, err
		}
		return NewResource(c.N), nil
	})
}

// Bind binds res to addr.
func Bind(res Resource, addr unix.Sockaddr) *Progress[struct{}] {
	op := ioop.Operation{Kind: ioop.KindBind, Fd: res.FD(), Addr: addr}
	return submit(op, func(c ioop.Completion) (struct{}, error) {
		return struct{}{}, errnoOf(c)
	})
}

// Listen marks res as a passive socket with the given backlog.
func Listen(res Resource, backlog int) *Progress[struct{}] {
	op := ioop.Operation{Kind: ioop.KindListen, Fd: res.FD(), Backlog: backlog}
	return submit(op, func(c ioop.Completion) (struct{}, error) {
		return struct{}{}, errnoOf(c)
	})
}

// Accept accepts a new connection on the listening socket res.
func Accept(res Resource) *Progress[AcceptResult] {
	op := ioop.Operation{Kind: ioop.KindAccept, Fd: res.FD()}
	return submit(op, func(c ioop.Completion) (AcceptResult, error) {
		if err := errnoOf(c); err != nil {
			return AcceptResult{}, err
		}
		return AcceptResult{Conn: NewResource(c.N)}, nil
	})
}

// Connect connects res to addr.
func Connect(res Resource, addr unix.Sockaddr) *Progress[struct{}] {
	op := ioop.Operation{Kind: ioop.KindConnect, Fd: res.FD(), Addr: addr}
	return submit(op, func(c ioop.Completion) (struct{}, error) {
		return struct{}{}, errnoOf(c)
	})
}

// Shutdown shuts down res in the given direction(s).
func Shutdown(res Resource, how ShutdownHow) *Progress[struct{}] {
	op := ioop.Operation{Kind: ioop.KindShutdown, Fd: res.FD(), How: int(how)}
	return submit(op, func(c ioop.Completion) (struct{}, error) {
		return struct{}{}, errnoOf(c)
	})
}

// Openat opens path relative to dirRes (pass an invalid Resource, e.g.
// Resource{}, for AT_FDCWD-relative opens).
func Openat(dirRes Resource, path string, flags int) *Progress[Resource] {
	dirfd := unix.AT_FDCWD
	if dirRes.Valid() {
		dirfd = dirRes.FD()
	}
	op := ioop.Operation{Kind: ioop.KindOpenat, Dirfd: dirfd, Path: path, Flags: flags}
	return submit(op, func(c ioop.Completion) (Resource, error) {
		if err := errnoOf(c); err != nil {
			return Resource{}, err
		}
		return NewResource(c.N), nil
	})
}

// Symlinkat creates a symlink at linkpath (relative to dirRes) pointing at
// target.
func Symlinkat(dirRes Resource, target, linkpath string) *Progress[struct{}] {
	dirfd := unix.AT_FDCWD
	if dirRes.Valid() {
		dirfd = dirRes.FD()
	}
	op := ioop.Operation{Kind: ioop.KindSymlinkat, Path: target, NewPath: linkpath, NewDirfd: dirfd}
	return submit(op, func(c ioop.Completion) (struct{}, error) {
		return struct{}{}, errnoOf(c)
	})
}

// Linkat creates a hard link from oldDir/oldPath to newDir/newPath.
func Linkat(oldDir Resource, oldPath string, newDir Resource, newPath string) *Progress[struct{}] {
	oldfd, newfd := unix.AT_FDCWD, unix.AT_FDCWD
	if oldDir.Valid() {
		oldfd = oldDir.FD()
	}
	if newDir.Valid() {
		newfd = newDir.FD()
	}
	op := ioop.Operation{Kind: ioop.KindLinkat, Dirfd: oldfd, Path: oldPath, NewDirfd: newfd, NewPath: newPath}
	return submit(op, func(c ioop.Completion) (struct{}, error) {
		return struct{}{}, errnoOf(c)
	})
}

// Timeout completes after d elapses, without touching any fd.
func Timeout(d time.Duration) *Progress[struct{}] {
	op := ioop.Operation{Kind: ioop.KindTimeout, Timeout: d}
	return submit(op, func(c ioop.Completion) (struct{}, error) {
		return struct{}{}, errnoOf(c)
	})
}

// Tee splices up to size bytes from in to out without consuming them from
// in (Linux-only; other platforms report ErrCodeNotImplemented).
func Tee(in, out Resource, size int) *Progress[TeeResult] {
	op := ioop.Operation{Kind: ioop.KindTee, Fd: in.FD(), TeeDst: out.FD(), TeeLen: size}
	return submit(op, func(c ioop.Completion) (TeeResult, error) {
		return TeeResult{N: c.N}, errnoOf(c)
	})
}
