//go:build !linux

package polling

import (
	"golang.org/x/sys/unix"

	"github.com/behrlich/lio/internal/ioop"
)

// tee is Linux-only (tee(2) has no BSD/macOS equivalent); other platforms
// reject Tee operations outright.
func tee(op ioop.Operation) (int, error) {
	return 0, unix.ENOSYS
}
