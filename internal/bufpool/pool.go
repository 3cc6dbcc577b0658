// Package bufpool provides a fixed-size, pre-allocated buffer pool for I/O
// operations that need a kernel-writable region without a per-operation
// heap allocation. Buffers are checked out from a bounded free list and
// must be explicitly released; releasing twice panics rather than
// silently corrupting pool bookkeeping.
package bufpool

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the size of each buffer handed out by a Pool created
// with NewDefault. 4096 matches a page, the common case for reads and
// writes issued through the engine.
const DefaultBufferSize = 4096

// Buffer is satisfied by both pooled and one-off (Owned) buffers so the
// rest of the engine can treat either uniformly.
type Buffer interface {
	// Bytes returns the buffer's full backing storage.
	Bytes() []byte
	// Release returns the buffer to its owner. Safe to call at most once.
	Release()
}

type cell struct {
	buf    []byte
	pos    uint32
	length uint32
	inUse  uint32
}

// Pool is a lock-free, fixed-size buffer pool. Every cell is the same
// size; larger transfers fall back to an Owned buffer instead of being
// served from the pool.
type Pool struct {
	cells []cell
	free  chan uint32
	size  int

	// Zeroize, if set, scrubs a cell's backing array on Release before it
	// is returned to the free list. Off by default: most callers overwrite
	// the full buffer on next use anyway, and zeroing a page on every
	// release is wasted work for them.
	Zeroize bool
}

// New creates a pool of count buffers, each size bytes.
func New(count, size int) *Pool {
	p := &Pool{
		cells: make([]cell, count),
		free:  make(chan uint32, count),
		size:  size,
	}
	for i := range p.cells {
		p.cells[i].buf = make([]byte, size)
		p.free <- uint32(i)
	}
	return p
}

// NewDefault creates a pool of count buffers of DefaultBufferSize bytes.
func NewDefault(count int) *Pool {
	return New(count, DefaultBufferSize)
}

// BufferSize returns the fixed size of buffers served by this pool.
func (p *Pool) BufferSize() int { return p.size }

// TryGet returns a buffer without blocking, or (nil, false) if the pool is
// exhausted.
func (p *Pool) TryGet() (*Pooled, bool) {
	select {
	case idx := <-p.free:
		return p.claim(idx), true
	default:
		return nil, false
	}
}

// Get blocks until a buffer is available or ctx is cancelled.
func (p *Pool) Get(ctx context.Context) (*Pooled, error) {
	select {
	case idx := <-p.free:
		return p.claim(idx), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetTimeout blocks up to d for a buffer to become available.
func (p *Pool) GetTimeout(d time.Duration) (*Pooled, bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case idx := <-p.free:
		return p.claim(idx), true
	case <-timer.C:
		return nil, false
	}
}

func (p *Pool) claim(idx uint32) *Pooled {
	c := &p.cells[idx]
	atomic.StoreUint32(&c.pos, 0)
	atomic.StoreUint32(&c.length, 0)
	atomic.StoreUint32(&c.inUse, 1)
	return &Pooled{pool: p, idx: idx}
}

func (p *Pool) release(idx uint32) {
	c := &p.cells[idx]
	if !atomic.CompareAndSwapUint32(&c.inUse, 1, 0) {
		panic("bufpool: double release of buffer cell")
	}
	if p.Zeroize {
		for i := range c.buf {
			c.buf[i] = 0
		}
	}
	p.free <- idx
}

// Pooled is a checked-out buffer owned by a Pool.
type Pooled struct {
	pool     *Pool
	idx      uint32
	released int32
}

// Bytes returns the full fixed-size backing array.
func (b *Pooled) Bytes() []byte {
	return b.pool.cells[b.idx].buf
}

// SetLen records how many bytes of the buffer are valid, e.g. after a
// short read.
func (b *Pooled) SetLen(n int) {
	atomic.StoreUint32(&b.pool.cells[b.idx].length, uint32(n))
}

// Len returns the number of valid bytes set via SetLen.
func (b *Pooled) Len() int {
	return int(atomic.LoadUint32(&b.pool.cells[b.idx].length))
}

// Chunk returns the unread remainder: Bytes()[pos:length], mirroring
// bytes.Buf-style incremental consumption for callers that stream out of
// the buffer across multiple partial writes.
func (b *Pooled) Chunk() []byte {
	c := &b.pool.cells[b.idx]
	pos := atomic.LoadUint32(&c.pos)
	length := atomic.LoadUint32(&c.length)
	if pos >= length {
		return nil
	}
	return c.buf[pos:length]
}

// Advance marks n bytes of the chunk as consumed.
func (b *Pooled) Advance(n int) {
	atomic.AddUint32(&b.pool.cells[b.idx].pos, uint32(n))
}

// Release returns the buffer to its pool, zeroing its backing array first
// if the pool's Zeroize is set. Panics if called twice.
func (b *Pooled) Release() {
	if !atomic.CompareAndSwapInt32(&b.released, 0, 1) {
		panic("bufpool: buffer released more than once")
	}
	b.pool.release(b.idx)
}

// Owned is a one-off, heap-allocated buffer used when a transfer exceeds
// the pool's fixed cell size. Release is a no-op; the slice is left for
// the garbage collector.
type Owned struct {
	data []byte
}

// NewOwned allocates an Owned buffer of the given size.
func NewOwned(size int) *Owned {
	return &Owned{data: make([]byte, size)}
}

func (o *Owned) Bytes() []byte { return o.data }
func (o *Owned) Release()      {}
