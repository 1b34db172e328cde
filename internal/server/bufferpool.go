package server

import "sync"

// Chunk buffers for streamed response bodies. Sizes other than the two
// pooled classes are allocated and left to the GC.
const (
	smallBufferSize = 4096
	largeBufferSize = 32768
)

var (
	smallBuffers = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, smallBufferSize)
			return &buf
		},
	}
	largeBuffers = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, largeBufferSize)
			return &buf
		},
	}
)

// GetBuffer returns a buffer of exactly size bytes.
func GetBuffer(size int) []byte {
	switch {
	case size <= 0:
		return nil
	case size <= smallBufferSize:
		buf := smallBuffers.Get().(*[]byte)
		return (*buf)[:size]
	case size <= largeBufferSize:
		buf := largeBuffers.Get().(*[]byte)
		return (*buf)[:size]
	default:
		return make([]byte, size)
	}
}

// PutBuffer returns a buffer obtained from GetBuffer to the pool.
func PutBuffer(buf []byte) {
	switch cap(buf) {
	case smallBufferSize:
		full := buf[:smallBufferSize]
		smallBuffers.Put(&full)
	case largeBufferSize:
		full := buf[:largeBufferSize]
		largeBuffers.Put(&full)
	}
}
