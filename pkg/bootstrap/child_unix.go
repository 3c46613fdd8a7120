//go:build unix

package bootstrap

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/hexpipe/hexpipe/pkg/channel"
)

// resolveChild uses ordinal identity: every role lives at its fixed
// descriptor slot. Slots 0–2 always exist; slots 3–5 exist only when the
// parent wired them, so each is probed before being adopted. A slot the
// parent left closed stays unwired and the role falls back to inert.
func resolveChild() (map[channel.Role]*os.File, error) {
	files := map[channel.Role]*os.File{
		channel.Stdin:  os.Stdin,
		channel.Stdout: os.Stdout,
		channel.Stderr: os.Stderr,
	}
	for _, role := range []channel.Role{channel.Diag, channel.DataIn, channel.DataOut} {
		slot := role.Info().Slot
		if _, err := unix.FcntlInt(uintptr(slot), unix.F_GETFD, 0); err != nil {
			continue
		}
		files[role] = os.NewFile(uintptr(slot), role.String())
	}
	return files, nil
}
