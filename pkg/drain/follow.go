package drain

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
)

// FollowReader tails a growing file: it reads to the current end, then waits
// for the file to be appended to and continues. Read returns io.EOF when the
// file is removed or renamed away, or when ctx is canceled, so a pump fed by
// a FollowReader shuts down cleanly.
type FollowReader struct {
	ctx     context.Context
	f       *os.File
	watcher *fsnotify.Watcher
}

// OpenFollow opens path for follow-mode reading.
func OpenFollow(ctx context.Context, path string) (*FollowReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		f.Close()
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}
	return &FollowReader{ctx: ctx, f: f, watcher: watcher}, nil
}

// Read returns available bytes, blocking at end-of-file until more are
// appended.
func (r *FollowReader) Read(p []byte) (int, error) {
	for {
		n, err := r.f.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		// At the current end; wait for growth.
		select {
		case <-r.ctx.Done():
			return 0, io.EOF
		case event, ok := <-r.watcher.Events:
			if !ok {
				return 0, io.EOF
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				return 0, io.EOF
			}
		case werr, ok := <-r.watcher.Errors:
			if !ok {
				return 0, io.EOF
			}
			return 0, werr
		}
	}
}

// Close releases the watcher and the file.
func (r *FollowReader) Close() error {
	r.watcher.Close()
	return r.f.Close()
}
