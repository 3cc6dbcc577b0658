//go:build linux

package polling

import (
	"golang.org/x/sys/unix"

	"github.com/behrlich/lio/internal/ioop"
)

// tee splices up to op.TeeLen bytes from op.Fd to op.TeeDst without
// consuming them from the source, via the Linux-only tee(2) syscall.
func tee(op ioop.Operation) (int, error) {
	return unix.Tee(op.Fd, op.TeeDst, op.TeeLen, unix.SPLICE_F_NONBLOCK)
}
