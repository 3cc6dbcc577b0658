package uapi

import "unsafe"

// MarshalError reports a fixed-layout encode/decode failure.
type MarshalError string

func (e MarshalError) Error() string { return string(e) }

const ErrInsufficientData MarshalError = "insufficient data for unmarshaling"

// PutSQE writes sqe into the 64-byte ring slot at ptr. The slot is raw mmap'd
// kernel memory; callers must have already reserved it via the SQ tail/array
// bookkeeping in the io_uring backend.
func PutSQE(ptr unsafe.Pointer, sqe *SQE) {
	*(*SQE)(ptr) = *sqe
}

// GetCQE reads a CQE out of the 16-byte ring slot at ptr.
func GetCQE(ptr unsafe.Pointer) CQE {
	return *(*CQE)(ptr)
}

// Bytes returns a fixed-length view of the SQE's raw bytes, e.g. for
// hashing or logging during development.
func (s *SQE) Bytes() []byte {
	return (*[unsafe.Sizeof(SQE{})]byte)(unsafe.Pointer(s))[:]
}
