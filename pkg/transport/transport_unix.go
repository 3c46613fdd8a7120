//go:build unix

package transport

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/hexpipe/hexpipe/pkg/channel"
)

// startChild uses ordinal channel identity. The interactive triple lands on
// slots 0–2 through the standard streams; the diagnostic and data endpoints
// are appended as extra files, which the runtime dups onto the next free
// slots in order, giving the contiguous 3, 4, 5. Every other descriptor is
// close-on-exec, so nothing else leaks across the program image.
func startChild(set *channel.Set, spec Spec) (*exec.Cmd, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir

	cmd.Stdin = set.ChildFile(channel.Stdin)
	cmd.Stdout = set.ChildFile(channel.Stdout)
	cmd.Stderr = set.ChildFile(channel.Stderr)
	cmd.ExtraFiles = []*os.File{
		set.ChildFile(channel.Diag),    // slot 3
		set.ChildFile(channel.DataIn),  // slot 4
		set.ChildFile(channel.DataOut), // slot 5
	}

	if set.TTY() {
		// The child gets the pty as its controlling terminal.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}
	} else {
		// Own process group, so signals can target the whole child tree.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}
