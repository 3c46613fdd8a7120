package bootstrap

import (
	"io"
	"os"
	"sync"

	"github.com/hexpipe/hexpipe/pkg/channel"
)

// ChildSet is the child-side view of the six channels, resolved once at
// startup. Channels the parent never wired resolve to inert endpoints:
// immediate end-of-stream on reads, discard on writes.
type ChildSet struct {
	mu    sync.Mutex
	files map[channel.Role]*os.File
}

// Child resolves the child's channels: ordinal slots where the platform
// supports them, otherwise the bootstrap environment block. Call once,
// before any channel is used.
func Child() (*ChildSet, error) {
	files, err := resolveChild()
	if err != nil {
		return nil, err
	}
	return &ChildSet{files: files}, nil
}

// Reader returns the role's read side. Into-child roles only; out-of-child
// roles and unwired roles return an immediate-EOF reader.
func (c *ChildSet) Reader(role channel.Role) io.ReadCloser {
	c.mu.Lock()
	defer c.mu.Unlock()
	if role.Info().Dir != channel.IntoChild {
		return io.NopCloser(eofReader{})
	}
	if f, ok := c.files[role]; ok && f != nil {
		return f
	}
	return io.NopCloser(eofReader{})
}

// Writer returns the role's write side. Out-of-child roles only; into-child
// roles and unwired roles return a discard writer.
func (c *ChildSet) Writer(role channel.Role) io.WriteCloser {
	c.mu.Lock()
	defer c.mu.Unlock()
	if role.Info().Dir != channel.OutOfChild {
		return nopWriteCloser{io.Discard}
	}
	if f, ok := c.files[role]; ok && f != nil {
		return f
	}
	return nopWriteCloser{io.Discard}
}

// Close closes every resolved endpoint. The standard triple (slots 0–2) is
// left alone; it belongs to the runtime.
func (c *ChildSet) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for role, f := range c.files {
		if role == channel.Stdin || role == channel.Stdout || role == channel.Stderr {
			continue
		}
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
		c.files[role] = nil
	}
	return first
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
