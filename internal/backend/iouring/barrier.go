//go:build linux && cgo

package iouring

/*
#include <stdint.h>

// x86-64 store fence: prior stores become globally visible before any
// subsequent store. Needed before publishing a new SQ tail so the kernel
// never observes the tail advance ahead of the SQE it points at.
static inline void sfence_impl(void) {
    __asm__ __volatile__("sfence" ::: "memory");
}

// x86-64 full memory fence: needed after io_uring_enter returns, before
// reading the CQ head/tail, so a CQE write by the kernel is visible before
// this goroutine reads it.
static inline void mfence_impl(void) {
    __asm__ __volatile__("mfence" ::: "memory");
}
*/
import "C"

func sfence() { C.sfence_impl() }

func mfence() { C.mfence_impl() }
