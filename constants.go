package lio

import "github.com/behrlich/lio/internal/constants"

// Re-exported engine defaults.
const (
	DefaultQueueDepth     = constants.DefaultQueueDepth
	DefaultBufferSize     = constants.DefaultBufferSize
	DefaultPoolBuffers    = constants.DefaultPoolBuffers
	DefaultTickTimeout    = constants.DefaultTickTimeout
	DefaultStoreCapacity  = constants.DefaultStoreCapacity
)
