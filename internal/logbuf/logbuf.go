// Package logbuf provides a bounded ring of captured worker output lines.
package logbuf

import (
	"sync"
	"time"
)

// DefaultCapacity is the default number of lines to retain.
const DefaultCapacity = 200

// Entry is a single timestamped line captured from the worker's output.
type Entry struct {
	Time time.Time `json:"time"`
	Line string    `json:"line"`
}

// Buffer is a thread-safe circular buffer of output lines.
// It stores a fixed number of entries and overwrites the oldest when full.
// Write implements io.Writer, splitting input on newlines the way the worker's
// output streams deliver them.
type Buffer struct {
	mu sync.RWMutex
	// +checklocks:mu
	entries []Entry
	size    int // Maximum number of entries (immutable after creation)
	// +checklocks:mu
	head int // Next write position
	// +checklocks:mu
	count int // Current number of entries stored
	// +checklocks:mu
	partial []byte // Incomplete line being accumulated
}

// New creates a buffer with the specified capacity.
// If size <= 0, DefaultCapacity is used.
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultCapacity
	}
	return &Buffer{
		entries: make([]Entry, size),
		size:    size,
		partial: make([]byte, 0, 256),
	}
}

// Append stores a completed line with the current timestamp.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store(line)
}

// Write appends data to the buffer, splitting on newlines.
// Implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range p {
		if c == '\n' {
			b.store(string(b.partial))
			b.partial = b.partial[:0]
		} else {
			b.partial = append(b.partial, c)
		}
	}

	return len(p), nil
}

// store adds a completed line to the ring.
//
// +checklocks:b.mu
func (b *Buffer) store(line string) {
	b.entries[b.head] = Entry{Time: time.Now(), Line: line}
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
}

// Flush forces any partial line to be stored as a complete line.
// Useful when the stream ends without a trailing newline.
func (b *Buffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.partial) > 0 {
		b.store(string(b.partial))
		b.partial = b.partial[:0]
	}
}

// Tail returns the last n entries in chronological order (oldest first).
// If n <= 0 or n > count, returns all stored entries.
// The returned slice is a copy and safe for the caller to retain.
func (b *Buffer) Tail(n int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || n > b.count {
		n = b.count
	}
	if n == 0 {
		return nil
	}

	result := make([]Entry, n)

	// head points to the next write position, so in a full ring the oldest
	// entry lives at head.
	var start int
	if b.count == b.size {
		start = (b.head - n + b.size) % b.size
	} else {
		start = b.count - n
	}

	for i := 0; i < n; i++ {
		result[i] = b.entries[(start+i)%b.size]
	}

	return result
}

// Len returns the number of entries currently stored.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the maximum number of entries the buffer can hold.
func (b *Buffer) Cap() int {
	return b.size
}
