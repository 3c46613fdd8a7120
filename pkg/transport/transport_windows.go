//go:build windows

package transport

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"

	"github.com/hexpipe/hexpipe/pkg/bootstrap"
	"github.com/hexpipe/hexpipe/pkg/channel"
)

// startChild uses handle-table identity. The interactive triple still rides
// the standard streams; the diagnostic and data endpoints are marked
// inheritable, listed explicitly on the process-creation call, and their
// numeric values declared through the bootstrap environment block. Inherited
// handles keep their value in the child, so the declared numbers are valid
// as-is.
func startChild(set *channel.Set, spec Spec) (*exec.Cmd, error) {
	if set.TTY() {
		return nil, ErrTTYUnsupported
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir

	cmd.Stdin = set.ChildFile(channel.Stdin)
	cmd.Stdout = set.ChildFile(channel.Stdout)
	cmd.Stderr = set.ChildFile(channel.Stderr)

	declared := make(map[channel.Role]uintptr, 3)
	var inherited []syscall.Handle
	for _, role := range []channel.Role{channel.Diag, channel.DataIn, channel.DataOut} {
		f := set.ChildFile(role)
		h := windows.Handle(f.Fd())
		if err := windows.SetHandleInformation(h, windows.HANDLE_FLAG_INHERIT, windows.HANDLE_FLAG_INHERIT); err != nil {
			return nil, err
		}
		declared[role] = uintptr(h)
		inherited = append(inherited, syscall.Handle(h))
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{AdditionalInheritedHandles: inherited}

	env := spec.Env
	if env == nil {
		env = os.Environ()
	}
	cmd.Env = append(append([]string(nil), env...), bootstrap.Encode(declared)...)

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}
