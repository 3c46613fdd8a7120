// Package drain moves bytes between a child's parent-side endpoints and
// their configured sinks. One worker pumps each out-of-child endpoint until
// end-of-stream; an optional worker feeds an into-child endpoint from a
// file or reader. Workers fail independently and are joined as a group.
package drain

import "sync"

// DefaultRingCapacity is the diagnostic ring size when none is configured.
const DefaultRingCapacity = 64 * 1024

// Ring is a fixed-capacity byte buffer with drop-oldest overflow. Writes
// never block and never fail; when the ring is full the oldest bytes are
// evicted. It is the sink for the diagnostic channel, which is allowed to
// be lossy precisely so it can never block the child.
type Ring struct {
	mu   sync.Mutex
	buf  []byte
	head int // next write index
	size int
}

// NewRing returns a ring holding at most capacity bytes. Non-positive
// capacities use DefaultRingCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{buf: make([]byte, capacity)}
}

// Write appends p, evicting the oldest bytes on overflow. Always succeeds.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := len(r.buf)
	if len(p) >= c {
		// Only the newest capacity bytes survive.
		copy(r.buf, p[len(p)-c:])
		r.head = 0
		r.size = c
		return len(p), nil
	}
	first := c - r.head
	if first > len(p) {
		first = len(p)
	}
	copy(r.buf[r.head:], p[:first])
	copy(r.buf, p[first:])
	r.head = (r.head + len(p)) % c
	r.size += len(p)
	if r.size > c {
		r.size = c
	}
	return len(p), nil
}

// Snapshot returns a copy of the buffered bytes, oldest first.
func (r *Ring) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, r.size)
	start := (r.head - r.size + len(r.buf)) % len(r.buf)
	n := copy(out, r.buf[start:])
	copy(out[n:], r.buf[:r.head])
	return out
}

// Len returns the number of buffered bytes.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the fixed capacity in bytes.
func (r *Ring) Capacity() int { return len(r.buf) }
