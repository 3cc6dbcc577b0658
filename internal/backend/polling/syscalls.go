package polling

import (
	"golang.org/x/sys/unix"

	"github.com/behrlich/lio/internal/ioop"
)

// attempt performs op's underlying syscall once, non-blocking where the
// kernel supports it. Returns (n, unix.EAGAIN) when the caller should wait
// for readiness and retry; any other error is terminal.
func attempt(op ioop.Operation) (int, error) {
	switch op.Kind {
	case ioop.KindNop:
		return 0, nil

	case ioop.KindRead:
		return unix.Read(op.Fd, op.Buf)

	case ioop.KindReadAt:
		return unix.Pread(op.Fd, op.Buf, op.Offset)

	case ioop.KindWrite:
		return unix.Write(op.Fd, op.Buf)

	case ioop.KindWriteAt:
		return unix.Pwrite(op.Fd, op.Buf, op.Offset)

	case ioop.KindRecv:
		n, _, err := unix.Recvfrom(op.Fd, op.Buf, unix.MSG_DONTWAIT)
		return n, err

	case ioop.KindSend:
		n, err := unix.Write(op.Fd, op.Buf)
		return n, err

	case ioop.KindFsync:
		return 0, unix.Fsync(op.Fd)

	case ioop.KindTruncate:
		return 0, unix.Ftruncate(op.Fd, op.Offset)

	case ioop.KindSocket:
		fd, err := unix.Socket(op.Domain, op.Type|unix.SOCK_NONBLOCK, op.Proto)
		return fd, err

	case ioop.KindBind:
		return 0, unix.Bind(op.Fd, op.Addr)

	case ioop.KindListen:
		return 0, unix.Listen(op.Fd, op.Backlog)

	case ioop.KindAccept:
		nfd, _, err := unix.Accept4(op.Fd, unix.SOCK_NONBLOCK)
		return nfd, err

	case ioop.KindConnect:
		err := unix.Connect(op.Fd, op.Addr)
		if err == unix.EINPROGRESS || err == unix.EALREADY {
			return 0, unix.EAGAIN
		}
		if err == unix.EISCONN {
			return 0, nil
		}
		return 0, err

	case ioop.KindShutdown:
		return 0, unix.Shutdown(op.Fd, op.How)

	case ioop.KindOpenat:
		fd, err := unix.Openat(op.Dirfd, op.Path, op.Flags|unix.O_NONBLOCK, 0o644)
		return fd, err

	case ioop.KindSymlinkat:
		return 0, unix.Symlinkat(op.Path, op.NewDirfd, op.NewPath)

	case ioop.KindLinkat:
		return 0, unix.Linkat(op.Dirfd, op.Path, op.NewDirfd, op.NewPath, op.Flags)

	case ioop.KindTee:
		return tee(op)

	default:
		return 0, unix.ENOSYS
	}
}
