// Package audio implements per-session reassembly of streamed audio chunks.
// A buffer grows while chunks arrive and is atomically snapshotted and
// cleared when the device marks a chunk final, so no chunk of the next
// utterance can land in a clip that has already been handed off.
package audio

import (
	"errors"
	"sync"
)

// ErrBufferFull rejects a chunk that would grow the clip past the cap.
var ErrBufferFull = errors.New("audio: buffer at capacity")

// Buffer accumulates one in-progress audio clip.
type Buffer struct {
	mu       sync.Mutex
	data     []byte
	maxBytes int
}

// NewBuffer creates a buffer capped at maxBytes. maxBytes <= 0 means no cap.
func NewBuffer(maxBytes int) *Buffer {
	return &Buffer{maxBytes: maxBytes}
}

// Append extends the clip with one chunk. The chunk is rejected, and the
// existing clip left intact, when it would exceed the cap.
func (b *Buffer) Append(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxBytes > 0 && len(b.data)+len(chunk) > b.maxBytes {
		return ErrBufferFull
	}
	b.data = append(b.data, chunk...)
	return nil
}

// Finalize snapshots and clears the clip in one step, returning the snapshot
// for handoff. It returns nil when the buffer is empty; finalizing with no
// data is a no-op, not an error.
func (b *Buffer) Finalize() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.data) == 0 {
		return nil
	}
	clip := b.data
	b.data = nil
	return clip
}

// Len reports the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}
