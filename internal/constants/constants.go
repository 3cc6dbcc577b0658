package constants

import "time"

// Default configuration constants for an Engine.
const (
	// DefaultQueueDepth is the default number of operations an Engine will
	// accept in flight at once: the capacity of its generational store.
	// The io_uring ring is sized separately (EngineConfig.IOUringEntries).
	DefaultQueueDepth = 256

	// DefaultBufferSize is the size of a single pooled buffer in bytes.
	DefaultBufferSize = 4096

	// DefaultPoolBuffers is a buffer count for bufpool.New/NewDefault; the
	// pool constructors take the count explicitly and do not apply it.
	DefaultPoolBuffers = 256

	// DefaultTickTimeout bounds how long a blocking Tick call waits for at
	// least one completion before returning empty-handed.
	DefaultTickTimeout = 1 * time.Second
)

// DefaultStoreCapacity is a store capacity constant that NewEngine does
// not read: an Engine's generational store is sized by
// EngineConfig.QueueDepth (DefaultQueueDepth unless set).
const DefaultStoreCapacity = 4096
