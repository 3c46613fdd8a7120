//go:build windows

package hexpipe

import "os"

// signalGroup delivers sig to the child. Windows has no process groups in
// the POSIX sense; Kill and Interrupt are the only deliverable signals.
func (p *Process) signalGroup(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

// terminate has no graceful form on Windows; it kills outright.
func (p *Process) terminate() {
	_ = p.cmd.Process.Kill()
}

func (p *Process) kill() {
	_ = p.cmd.Process.Kill()
}
