// Package transport realizes the abstract channel set as concrete inheritable
// endpoints and starts the child process with them attached. There is one
// implementation per platform family, selected at build time: descriptor-
// indexed platforms remap child endpoints onto the six contiguous low slots,
// handle-table platforms pass inheritable handles and declare their values
// through the bootstrap environment block.
package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"syscall"

	"github.com/hexpipe/hexpipe/pkg/channel"
)

// Spec describes the program to start.
type Spec struct {
	// Path is the executable path.
	Path string
	// Args are the arguments, not including the program name.
	Args []string
	// Env is the child environment in "key=value" form. Nil inherits the
	// parent's environment.
	Env []string
	// Dir is the working directory. Empty inherits the parent's.
	Dir string
}

// ErrTTYUnsupported is returned when a pty-backed channel set is used on a
// platform without pty support.
var ErrTTYUnsupported = errors.New("transport: pty channels not supported on this platform")

// SpawnKind classifies spawn failures.
type SpawnKind int

const (
	// SpawnFailed is the catch-all for start failures with no finer class.
	SpawnFailed SpawnKind = iota
	// ExecutableNotFound means the program does not exist.
	ExecutableNotFound
	// PermissionDenied means the program exists but may not be executed.
	PermissionDenied
	// ResourceExhausted means a process or descriptor limit was hit.
	ResourceExhausted
	// ChannelAllocation means the channel set itself could not be built.
	ChannelAllocation
)

// SpawnError is the single structured failure for spawn-time errors. When a
// SpawnError is returned, no child process is running and no endpoints have
// leaked.
type SpawnError struct {
	Kind SpawnKind
	Err  error
}

func (e *SpawnError) Error() string { return fmt.Sprintf("spawn: %v", e.Err) }
func (e *SpawnError) Unwrap() error { return e.Err }

// CreateAndStart wires the set's child-side endpoints into a new process
// running spec, closes the parent's duplicates of those endpoints, and
// returns the started command. On error the child-side endpoints are left
// for the caller's Set.Close rollback; no process is running.
func CreateAndStart(set *channel.Set, spec Spec) (*exec.Cmd, error) {
	cmd, err := startChild(set, spec)
	if err != nil {
		return nil, &SpawnError{Kind: classify(err), Err: err}
	}
	// The child owns its copies now. Dropping ours is what lets
	// end-of-stream reach the drain workers when the child exits.
	set.CloseChild()
	return cmd, nil
}

func classify(err error) SpawnKind {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return ExecutableNotFound
	case errors.Is(err, fs.ErrPermission):
		return PermissionDenied
	case errors.Is(err, syscall.EMFILE), errors.Is(err, syscall.ENFILE),
		errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.ENOMEM):
		return ResourceExhausted
	}
	return SpawnFailed
}
