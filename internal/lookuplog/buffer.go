package lookuplog

import "sync"

// RingBuffer is a bounded, thread-safe queue of entries. When full, the
// oldest entry is dropped to make room.
type RingBuffer struct {
	mu       sync.Mutex
	entries  []Entry
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int

	dropped int64
}

// DefaultBufferSize bounds how many entries wait for the sink.
const DefaultBufferSize = 4096

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &RingBuffer{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Enqueue adds an entry, dropping the oldest if necessary.
func (b *RingBuffer) Enqueue(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count >= b.capacity {
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
	}

	b.entries[b.head] = e
	b.head = (b.head + 1) % b.capacity
	b.count++
}

// DequeueBatch removes up to n entries, oldest first.
func (b *RingBuffer) DequeueBatch(n int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	out := make([]Entry, n)
	for i := range n {
		out[i] = b.entries[b.tail]
		b.entries[b.tail] = Entry{}
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n
	return out
}

func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns how many entries were overwritten before being flushed.
func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
