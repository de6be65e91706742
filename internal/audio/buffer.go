// Package audio holds the PCM queue that sits between the decode loop and
// whatever pulls samples out for playback.
package audio

import (
	"context"
	"sync"
	"sync/atomic"
)

// Output format of every byte stored in a Buffer.
const (
	SampleRate     = 44100
	Channels       = 2
	BytesPerSample = 2
	FrameSize      = Channels * BytesPerSample
)

// Buffer is a FIFO of interleaved S16LE stereo bytes bounded by a hard
// limit. The soft limit is advisory: producers check OverSoftLimit before
// doing the work of producing a chunk.
type Buffer struct {
	soft int
	hard int

	mu   sync.Mutex
	data []byte
	head int

	appended atomic.Uint64
	read     atomic.Uint64
	dropped  atomic.Uint64

	waitCh chan struct{}
}

// Stats is a point-in-time view of a Buffer.
type Stats struct {
	Buffered      int    `json:"buffered"`
	SoftLimit     int    `json:"soft_limit"`
	HardLimit     int    `json:"hard_limit"`
	BytesAppended uint64 `json:"bytes_appended"`
	BytesRead     uint64 `json:"bytes_read"`
	ChunksDropped uint64 `json:"chunks_dropped"`
}

// NewBuffer creates a buffer. soft is clamped to hard.
func NewBuffer(soft, hard int) *Buffer {
	if soft > hard {
		soft = hard
	}
	return &Buffer{
		soft:   soft,
		hard:   hard,
		waitCh: make(chan struct{}, 1),
	}
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data) - b.head
}

// OverSoftLimit reports whether more than the soft limit is buffered.
func (b *Buffer) OverSoftLimit() bool {
	return b.Len() > b.soft
}

// Append queues p. It returns false, and stores nothing, when doing so would
// take the buffer past its hard limit.
func (b *Buffer) Append(p []byte) bool {
	if len(p) == 0 {
		return true
	}

	b.mu.Lock()
	size := len(b.data) - b.head
	if size+len(p) > b.hard {
		b.mu.Unlock()
		b.dropped.Add(1)
		return false
	}
	if b.head > 0 && len(b.data)+len(p) > cap(b.data) {
		n := copy(b.data, b.data[b.head:])
		b.data = b.data[:n]
		b.head = 0
	}
	b.data = append(b.data, p...)
	b.mu.Unlock()

	b.appended.Add(uint64(len(p)))
	b.notify()
	return true
}

// Drop records a chunk discarded by the producer before it reached Append.
func (b *Buffer) Drop() {
	b.dropped.Add(1)
}

// Read moves up to len(p) bytes into p and removes them from the buffer.
func (b *Buffer) Read(p []byte) int {
	b.mu.Lock()
	n := copy(p, b.data[b.head:])
	b.head += n
	if b.head == len(b.data) {
		b.data = b.data[:0]
		b.head = 0
	}
	b.mu.Unlock()

	b.read.Add(uint64(n))
	return n
}

// Reset discards all buffered bytes.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.data = b.data[:0]
	b.head = 0
	b.mu.Unlock()
}

// Stats returns counters and occupancy.
func (b *Buffer) Stats() Stats {
	return Stats{
		Buffered:      b.Len(),
		SoftLimit:     b.soft,
		HardLimit:     b.hard,
		BytesAppended: b.appended.Load(),
		BytesRead:     b.read.Load(),
		ChunksDropped: b.dropped.Load(),
	}
}

func (b *Buffer) notify() {
	select {
	case b.waitCh <- struct{}{}:
	default:
	}
}

// Wait blocks until data is appended or ctx is done. A single waiter is
// supported; concurrent waiters share one wake-up.
func (b *Buffer) Wait(ctx context.Context) error {
	select {
	case <-b.waitCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
