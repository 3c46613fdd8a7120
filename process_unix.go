//go:build unix

package hexpipe

import (
	"os"
	"syscall"
)

// signalGroup delivers sig to the child's process group when one exists,
// falling back to the child alone.
func (p *Process) signalGroup(sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return p.cmd.Process.Signal(sig)
	}
	pid := p.cmd.Process.Pid
	if pgid, err := syscall.Getpgid(pid); err == nil && pgid == pid {
		return syscall.Kill(-pgid, s)
	}
	return p.cmd.Process.Signal(sig)
}

func (p *Process) terminate() {
	_ = p.signalGroup(syscall.SIGTERM)
}

func (p *Process) kill() {
	_ = p.signalGroup(syscall.SIGKILL)
}
