package lio

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Resource is a reference-counted file descriptor. Submitting an operation
// against a Resource does not itself take a reference; callers hold one
// for as long as the fd must stay open and Close it when done. The last
// Close releases the underlying fd via unix.Close.
type Resource struct {
	state *resourceState
}

type resourceState struct {
	fd   int
	refs atomic.Int32
}

// NewResource wraps an already-open fd in a Resource with one reference.
func NewResource(fd int) Resource {
	s := &resourceState{fd: fd}
	s.refs.Store(1)
	return Resource{state: s}
}

// FD returns the underlying file descriptor. Valid only while the Resource
// (or a Retain of it) is still open.
func (r Resource) FD() int {
	if r.state == nil {
		return -1
	}
	return r.state.fd
}

// Valid reports whether this Resource wraps an open fd.
func (r Resource) Valid() bool {
	return r.state != nil && r.state.fd >= 0
}

// Retain increments the reference count and returns the same Resource,
// for handing a second owner a copy that must also Close it.
func (r Resource) Retain() Resource {
	if r.state != nil {
		r.state.refs.Add(1)
	}
	return r
}

// Close decrements the reference count, closing the fd once it reaches
// zero. Safe to call on an invalid (zero-value) Resource.
func (r Resource) Close() error {
	if r.state == nil {
		return nil
	}
	if r.state.refs.Add(-1) > 0 {
		return nil
	}
	fd := r.state.fd
	r.state.fd = -1
	return unix.Close(fd)
}
