package lio

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/behrlich/lio/internal/bufpool"
	"github.com/behrlich/lio/internal/ioop"
)

func TestReadBuildsCorrectOperation(t *testing.T) {
	pool := bufpool.New(2, 64)
	buf, err := pool.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer buf.Release()

	res := NewResource(42)
	p := Read(res, buf)

	if p.op.Kind != ioop.KindRead {
		t.Errorf("expected KindRead, got %v", p.op.Kind)
	}
	if p.op.Fd != 42 {
		t.Errorf("expected Fd=42, got %d", p.op.Fd)
	}
	if len(p.op.Buf) != 64 {
		t.Errorf("expected buffer of 64 bytes, got %d", len(p.op.Buf))
	}
}

func TestReadAtSetsOffset(t *testing.T) {
	pool := bufpool.New(1, 32)
	buf, _ := pool.Get(context.Background())
	defer buf.Release()

	p := ReadAt(NewResource(3), buf, 128)
	if p.op.Kind != ioop.KindReadAt {
		t.Errorf("expected KindReadAt, got %v", p.op.Kind)
	}
	if p.op.Offset != 128 {
		t.Errorf("expected Offset=128, got %d", p.op.Offset)
	}
}

func TestTimeoutCarriesDuration(t *testing.T) {
	p := Timeout(250 * time.Millisecond)
	if p.op.Kind != ioop.KindTimeout {
		t.Errorf("expected KindTimeout, got %v", p.op.Kind)
	}
	if p.op.Timeout != 250*time.Millisecond {
		t.Errorf("expected Timeout=250ms, got %v", p.op.Timeout)
	}
}

func TestOpenatDefaultsToAtFDCWD(t *testing.T) {
	p := Openat(Resource{}, "foo.txt", unix.O_RDONLY)
	if p.op.Dirfd != unix.AT_FDCWD {
		t.Errorf("expected Dirfd=AT_FDCWD for an invalid dir Resource, got %d", p.op.Dirfd)
	}
	if p.op.Path != "foo.txt" {
		t.Errorf("expected Path=foo.txt, got %q", p.op.Path)
	}
}

func TestOpenatUsesGivenDirResource(t *testing.T) {
	dir := NewResource(7)
	p := Openat(dir, "bar.txt", unix.O_RDWR)
	if p.op.Dirfd != 7 {
		t.Errorf("expected Dirfd=7, got %d", p.op.Dirfd)
	}
}

func TestShutdownCarriesDirection(t *testing.T) {
	p := Shutdown(NewResource(9), ShutWR)
	if p.op.How != int(ShutWR) {
		t.Errorf("expected How=ShutWR, got %d", p.op.How)
	}
}

func TestSocketConvertsFDOnSuccess(t *testing.T) {
	e, mb := newTestEngine()
	defer e.Close()

	p := Socket(unix.AF_INET, unix.SOCK_STREAM, 0).WithEngine(e)
	r := p.Send()

	id := firstPendingID(mb)
	mb.Complete(ioop.Completion{ID: id, N: 17})
	if err := e.TryTick(); err != nil {
		t.Fatalf("TryTick: %v", err)
	}

	res, err := r.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if res.FD() != 17 {
		t.Errorf("expected FD=17, got %d", res.FD())
	}
}

func TestWriteSurfacesErrno(t *testing.T) {
	e, mb := newTestEngine()
	defer e.Close()

	pool := bufpool.New(1, 16)
	buf, _ := pool.Get(context.Background())
	defer buf.Release()

	p := Write(NewResource(1), buf).WithEngine(e)
	r := p.Send()

	id := firstPendingID(mb)
	mb.Complete(ioop.Completion{ID: id, Err: unix.EPIPE})
	if err := e.TryTick(); err != nil {
		t.Fatalf("TryTick: %v", err)
	}

	_, err := r.Recv()
	if !IsErrno(err, unix.EPIPE) {
		t.Errorf("expected EPIPE, got %v", err)
	}
}
