package hostfuncs

import (
	"bytes"
	"sync"
)

// DefaultMaxOutputSize is the default limit for captured script stdout/stderr (10MB).
const DefaultMaxOutputSize = 10 * 1024 * 1024

// DefaultMaxRequestSize limits the size of a single host call payload (1MB).
// Native modules cannot trigger OOM by claiming huge request sizes.
const DefaultMaxRequestSize = 1 * 1024 * 1024

// BoundedBuffer is a bytes.Buffer wrapper that limits the size of written data.
// It implements io.Writer and is safe for concurrent use.
type BoundedBuffer struct {
	buffer    bytes.Buffer
	limit     int
	truncated bool
	mu        sync.Mutex
}

// NewBoundedBuffer creates a new BoundedBuffer with the specified limit.
func NewBoundedBuffer(limit int) *BoundedBuffer {
	return &BoundedBuffer{
		limit: limit,
	}
}

// Write implements io.Writer.
// It writes data up to the limit and then silently discards any additional data.
func (b *BoundedBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buffer.Len() >= b.limit {
		b.truncated = true
		return len(p), nil // Pretend we wrote it all to satisfy io.Writer contract
	}

	remaining := b.limit - b.buffer.Len()
	if len(p) > remaining {
		b.truncated = true
		n, err = b.buffer.Write(p[:remaining])
		if err != nil {
			return n, err
		}
		return len(p), nil // Return len(p) to avoid short write error
	}

	return b.buffer.Write(p)
}

// Truncated reports whether any data was discarded.
func (b *BoundedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// String returns the buffer contents as a string.
func (b *BoundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.String()
}

// Bytes returns a copy of the buffer contents.
func (b *BoundedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buffer.Bytes())
}

// Len returns the current length of the buffer.
func (b *BoundedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Len()
}

// Reset resets the buffer and clears the truncation flag.
func (b *BoundedBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffer.Reset()
	b.truncated = false
}
