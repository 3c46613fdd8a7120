//go:build windows

package bootstrap

import (
	"os"

	"github.com/hexpipe/hexpipe/pkg/channel"
)

// resolveChild reads the bootstrap environment block: inherited handles keep
// their numeric value across process creation on Windows, so the declared
// value can be adopted directly. The standard triple comes from the runtime
// as usual. An absent block leaves the extra roles unwired (inert).
func resolveChild() (map[channel.Role]*os.File, error) {
	declared, err := FromEnv()
	if err != nil {
		return nil, err
	}
	files := map[channel.Role]*os.File{
		channel.Stdin:  os.Stdin,
		channel.Stdout: os.Stdout,
		channel.Stderr: os.Stderr,
	}
	for _, role := range []channel.Role{channel.Diag, channel.DataIn, channel.DataOut} {
		h, ok := declared[role]
		if !ok {
			continue
		}
		files[role] = os.NewFile(h, role.String())
	}
	return files, nil
}
