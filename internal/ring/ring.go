// Package ring implements the bounded per-mount FIFO described by the
// caster's fan-out design: a fixed-capacity deque of timestamped payloads
// that subscribers read from via an indexed "since T" query.
package ring

import (
	"sync"
	"time"
)

// Entry is a single buffered payload with the wall-clock time it was
// appended, used both to answer Since queries and to let a parser measure
// throughput.
type Entry struct {
	Timestamp time.Time
	Bytes     []byte
}

// Buffer is a bounded, thread-safe FIFO of Entry. Append is O(1) amortized;
// Since is O(k) in the number of entries returned. Overflow silently
// discards the oldest entry, same as a ring buffer with a moving head.
type Buffer struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
}

// New constructs a Buffer with the given capacity. Capacity <= 0 is
// replaced with the spec default of 2000.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 2000
	}
	return &Buffer{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
}

// Append adds data to the buffer, stamped with the current time. If the
// buffer is at capacity the oldest entry is discarded first.
func (b *Buffer) Append(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) >= b.capacity {
		// Discard oldest. Reslicing the backing array keeps this O(1)
		// amortized without reallocating on every append.
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, Entry{Timestamp: time.Now(), Bytes: cp})
}

// Since returns a snapshot of all entries strictly newer than t, along with
// the oldest timestamp currently held by the buffer (zero Time if empty).
// The snapshot is copied out under the lock so callers never hold the lock
// across I/O, per the caster's concurrency rules.
func (b *Buffer) Since(t time.Time) (entries []Entry, oldest time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) > 0 {
		oldest = b.entries[0].Timestamp
	}

	for _, e := range b.entries {
		if e.Timestamp.After(t) {
			entries = append(entries, e)
		}
	}
	return entries, oldest
}

// Len reports the current number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Oldest reports the timestamp of the oldest buffered entry, or the zero
// Time if the buffer is empty.
func (b *Buffer) Oldest() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return time.Time{}
	}
	return b.entries[0].Timestamp
}
