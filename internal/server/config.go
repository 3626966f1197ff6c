package server

import "github.com/rs/zerolog"

// Defaults for Config fields left at their zero value.
const (
	DefaultMaxHeaderBytes = 4 * 1024
	DefaultReadBufferInit = 4*1024 + 64
	DefaultMaxChunkSize   = uint64(1) << 31
	DefaultChannelCap     = 1
)

// Config carries the per-connection knobs. The zero value is usable; every
// field falls back to its default.
type Config struct {
	// MaxHeaderBytes caps the accumulated head bytes before a parse
	// completes. Exceeding it fails the connection.
	MaxHeaderBytes int

	// ReadBufferInit is the initial capacity of the read buffer.
	ReadBufferInit int

	// MaxChunkSize caps a single announced chunk size in a chunked body.
	MaxChunkSize uint64

	// RequestChannelCapacity and ResponseChannelCapacity bound the
	// pipeline channels. Values above 1 let the reader run further ahead
	// of the handler; response ordering stays FIFO regardless.
	RequestChannelCapacity  int
	ResponseChannelCapacity int

	// Logger receives connection lifecycle and access events. Defaults to
	// a disabled logger.
	Logger zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if c.ReadBufferInit == 0 {
		c.ReadBufferInit = DefaultReadBufferInit
	}
	if c.MaxChunkSize == 0 {
		c.MaxChunkSize = DefaultMaxChunkSize
	}
	if c.RequestChannelCapacity == 0 {
		c.RequestChannelCapacity = DefaultChannelCap
	}
	if c.ResponseChannelCapacity == 0 {
		c.ResponseChannelCapacity = DefaultChannelCap
	}
	return c
}
