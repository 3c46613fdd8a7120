package drain

import (
	"bytes"
	"sync"
)

// Accumulator is an unbounded lossless buffer, the default sink for the
// binary output channel. Writes never fail; if the accumulator's consumer
// is slow that is its own problem — backpressure on the binary channel is
// applied upstream, by the pump not reading, never by dropping here.
type Accumulator struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write appends p.
func (a *Accumulator) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.Write(p)
}

// Snapshot returns a copy of everything accumulated so far, in write order.
func (a *Accumulator) Snapshot() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]byte, a.buf.Len())
	copy(out, a.buf.Bytes())
	return out
}

// Len returns the number of accumulated bytes.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.Len()
}
