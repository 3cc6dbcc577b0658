package lio

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestResourceValidAndFD(t *testing.T) {
	var zero Resource
	if zero.Valid() {
		t.Error("zero-value Resource should not be Valid")
	}
	if zero.FD() != -1 {
		t.Errorf("zero-value Resource.FD() should be -1, got %d", zero.FD())
	}

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	r := NewResource(fds[0])
	defer unix.Close(fds[1])

	if !r.Valid() {
		t.Error("NewResource should be Valid")
	}
	if r.FD() != fds[0] {
		t.Errorf("FD() = %d, want %d", r.FD(), fds[0])
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestResourceRetainSharesRefcount(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	defer unix.Close(fds[1])

	r := NewResource(fds[0])
	r2 := r.Retain()

	if err := r.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	// fd should still be open: r2 holds a reference.
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Errorf("expected fd to still be open after one of two Close calls, got %v", err)
	}
	if err := r2.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	// fd should now actually be closed.
	if err := unix.SetNonblock(fds[0], true); err == nil {
		t.Error("expected fd to be closed after both references released")
	}
}

func TestResourceCloseOnZeroValueIsNoOp(t *testing.T) {
	var zero Resource
	if err := zero.Close(); err != nil {
		t.Errorf("Close on zero-value Resource should be a no-op, got %v", err)
	}
}
