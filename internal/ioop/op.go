// Package ioop defines the operation descriptor and backend contract shared
// between the public lio package and its two interchangeable backends
// (poll-based reactor and io_uring). It exists separately from the root
// package purely to avoid an import cycle: both the root package and
// internal/backend/* need the same vocabulary without either importing
// the other.
package ioop

import (
	"time"

	"golang.org/x/sys/unix"
)

// Kind identifies which syscall family an Operation represents.
type Kind uint8

const (
	KindNop Kind = iota
	KindRead
	KindReadAt
	KindWrite
	KindWriteAt
	KindRecv
	KindSend
	KindFsync
	KindTruncate
	KindSocket
	KindBind
	KindListen
	KindAccept
	KindConnect
	KindShutdown
	KindOpenat
	KindSymlinkat
	KindLinkat
	KindTimeout
	KindTee
)

// Operation is the fully-described unit of work submitted to a backend. Only
// the fields relevant to Kind are populated; the rest are zero.
type Operation struct {
	Kind Kind

	Fd     int
	Offset int64 // ReadAt/WriteAt/Truncate
	Buf    []byte
	Flags  int

	Addr    unix.Sockaddr // Bind/Connect
	Backlog int           // Listen
	Domain  int           // Socket
	Type    int           // Socket
	Proto   int           // Socket

	Dirfd    int // Openat/Symlinkat/Linkat
	Path     string
	NewPath  string
	NewDirfd int

	How int // Shutdown direction: ShutRD/ShutWR/ShutRDWR

	Timeout time.Duration // Timeout

	TeeDst int // Tee
	TeeLen int
}

// Completion is what a backend reports back to the engine once an
// operation finishes, fails, or (for Timeout) its deadline elapses.
type Completion struct {
	ID     uint64
	N      int   // bytes transferred, or the new fd for Accept/Socket/Openat
	Result int32 // raw result code, mirrors io_uring CQE.Res (negative = -errno)
	Err    error
}

// Backend is the contract both the polling reactor and the io_uring ring
// implement. The engine owns operation identity (the generational ID) and
// sink bookkeeping; a Backend only turns submitted Operations into
// Completions.
type Backend interface {
	// Submit enqueues op under id. May complete synchronously (e.g. Nop);
	// callers must still look for id in the next Tick's results.
	Submit(id uint64, op Operation) error
	// Cancel best-effort cancels a pending operation. Returns nil if the
	// operation already completed or was never known (idempotent).
	Cancel(id uint64) error
	// Tick blocks up to timeout (timeout<0 waits forever, 0 polls without
	// blocking) for at least one completion, appending ready completions
	// to the returned slice.
	Tick(timeout time.Duration) ([]Completion, error)
	// Wake unblocks a goroutine parked in Tick, from any goroutine.
	Wake() error
	// Close releases all backend resources. Pending operations are
	// dropped without completions.
	Close() error
}
