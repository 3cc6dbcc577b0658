package uapi

// Opcodes recognized in SQE.Opcode. Numbering matches the kernel uapi header;
// lio only emits the subset its external operations need.
const (
	IORING_OP_NOP          = 0
	IORING_OP_READV        = 1
	IORING_OP_WRITEV       = 2
	IORING_OP_FSYNC        = 3
	IORING_OP_POLL_ADD     = 6
	IORING_OP_POLL_REMOVE  = 7
	IORING_OP_SENDMSG      = 9
	IORING_OP_RECVMSG      = 10
	IORING_OP_TIMEOUT      = 11
	IORING_OP_TIMEOUT_REMOVE = 12
	IORING_OP_ACCEPT       = 13
	IORING_OP_ASYNC_CANCEL = 14
	IORING_OP_LINK_TIMEOUT = 15
	IORING_OP_CONNECT      = 16
	IORING_OP_CLOSE        = 19
	IORING_OP_OPENAT       = 18
	IORING_OP_READ         = 22
	IORING_OP_WRITE        = 23
	IORING_OP_SEND         = 26
	IORING_OP_RECV         = 27
	IORING_OP_SYMLINKAT    = 38
	IORING_OP_LINKAT       = 39
	IORING_OP_SHUTDOWN     = 34
	IORING_OP_TEE          = 33
)

// Setup flags for io_uring_setup(2).
const (
	IORING_SETUP_IOPOLL = 1 << 0
	IORING_SETUP_SQPOLL = 1 << 1
	IORING_SETUP_SQ_AFF = 1 << 2
	IORING_SETUP_CQSIZE = 1 << 3
	IORING_SETUP_CLAMP  = 1 << 4
)

// Feature bits returned in Params.Features.
const (
	IORING_FEAT_SINGLE_MMAP = 1 << 0
	IORING_FEAT_NODROP      = 1 << 1
	IORING_FEAT_FAST_POLL   = 1 << 7
)

// Enter flags for io_uring_enter(2).
const (
	IORING_ENTER_GETEVENTS = 1 << 0
	IORING_ENTER_SQ_WAKEUP = 1 << 1
)

// SQE.Flags bits.
const (
	IOSQE_FIXED_FILE = 1 << 0
	IOSQE_IO_LINK    = 1 << 2
)

// Socket shutdown directions, matching unix.SHUT_{RD,WR,RDWR}.
const (
	ShutRD   = 0
	ShutWR   = 1
	ShutRDWR = 2
)

// MmapSQOffset and MmapCQOffset are the fixed mmap(2) offsets the kernel
// expects for the SQ and CQ ring regions on the io_uring fd.
const (
	MmapSQOffset = 0
	MmapCQOffset = 0x8000000
	MmapSQEsOffset = 0x10000000
)
