package drain

import (
	"bytes"
	"io"
	"sync"
)

// LineWriter is the display sink for interactive output: it forwards whole
// lines to the underlying writer and holds back a trailing partial line
// until it completes or Flush is called. Bytes within the channel keep their
// order; only the write granularity changes.
type LineWriter struct {
	mu      sync.Mutex
	w       io.Writer
	partial []byte
}

// NewLineWriter wraps w with line-granularity forwarding.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

// Write forwards complete lines in p (plus any held-back partial) and
// retains the remainder.
func (l *LineWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := bytes.LastIndexByte(p, '\n')
	if idx < 0 {
		l.partial = append(l.partial, p...)
		return len(p), nil
	}
	if len(l.partial) > 0 {
		line := append(l.partial, p[:idx+1]...)
		l.partial = nil
		if _, err := l.w.Write(line); err != nil {
			return 0, err
		}
	} else if _, err := l.w.Write(p[:idx+1]); err != nil {
		return 0, err
	}
	l.partial = append(l.partial, p[idx+1:]...)
	return len(p), nil
}

// Flush writes any held-back partial line.
func (l *LineWriter) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.partial) == 0 {
		return nil
	}
	_, err := l.w.Write(l.partial)
	l.partial = nil
	return err
}
