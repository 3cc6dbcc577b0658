//go:build linux && !cgo

package iouring

import "sync/atomic"

// Without cgo there is no inline asm fence available. A dummy
// atomic add on a throwaway word carries the same acquire/release
// semantics the Go memory model guarantees atomic operations, which is
// sufficient here since amd64 and arm64 (lio's supported targets) already
// order regular stores/loads; this only needs to stop the compiler from
// reordering the ring index update around it.
var barrierWord uint32

func sfence() { atomic.AddUint32(&barrierWord, 1) }

func mfence() { atomic.AddUint32(&barrierWord, 1) }
