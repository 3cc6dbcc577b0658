//go:build !linux

package iouring

import (
	"errors"
	"time"

	"github.com/behrlich/lio/internal/ioop"
)

// ErrUnsupported is returned by every stubRing method: io_uring is a
// Linux-only kernel interface, so non-Linux builds get a backend that
// exists only to keep the package importable, never a working one.
var ErrUnsupported = errors.New("iouring: not supported on this platform")

type stubRing struct{}

func newRing(entries uint32, logger ioop.Logger) (ring, error) {
	return nil, ErrUnsupported
}

func (stubRing) submit(id uint64, op ioop.Operation) error        { return ErrUnsupported }
func (stubRing) reap(timeout time.Duration) ([]ioop.Completion, error) { return nil, ErrUnsupported }
func (stubRing) wake() error                                      { return ErrUnsupported }
func (stubRing) close() error                                     { return ErrUnsupported }
