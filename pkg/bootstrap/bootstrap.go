// Package bootstrap implements the side-channel that tells a child process
// where its non-ordinal channels live. On platforms with ordinal channel
// identity the child finds its channels at fixed descriptor slots and no
// bootstrap block is needed; on handle-table platforms the parent encodes
// each role's inherited handle value into the child's environment, and the
// child decodes the block once at startup.
//
// A child that finds no bootstrap block and no ordinal channels must treat
// every undeclared channel as inert: reads yield immediate end-of-stream and
// writes are discarded. Executables that know nothing of the protocol keep
// working.
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hexpipe/hexpipe/pkg/channel"
)

// EnvPrefix is the shared prefix for bootstrap environment entries. One
// entry per declared role, e.g. HEXPIPE_CH_DIAG=7.
const EnvPrefix = "HEXPIPE_CH_"

// envKey returns the environment key for a role: upper-cased name with
// dashes flattened, e.g. "data-in" -> HEXPIPE_CH_DATA_IN.
func envKey(role channel.Role) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(role.String(), "-", "_"))
}

// Encode renders a role-to-handle mapping as environment entries suitable
// for appending to a child's environment block.
func Encode(handles map[channel.Role]uintptr) []string {
	entries := make([]string, 0, len(handles))
	for _, role := range channel.Roles() {
		h, ok := handles[role]
		if !ok {
			continue
		}
		entries = append(entries, fmt.Sprintf("%s=%d", envKey(role), h))
	}
	return entries
}

// Parse extracts the bootstrap mapping from an environment block. An absent
// block yields an empty mapping and no error; only present-but-unparsable
// entries are errors, since those indicate a corrupted handoff rather than a
// non-aware parent.
func Parse(environ []string) (map[channel.Role]uintptr, error) {
	m := make(map[channel.Role]uintptr)
	for _, entry := range environ {
		if !strings.HasPrefix(entry, EnvPrefix) {
			continue
		}
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		name := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(key, EnvPrefix), "_", "-"))
		role, err := channel.ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("bootstrap entry %q: %w", key, err)
		}
		h, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bootstrap entry %q: bad handle value %q", key, value)
		}
		m[role] = uintptr(h)
	}
	return m, nil
}

// FromEnv parses the current process's environment.
func FromEnv() (map[channel.Role]uintptr, error) {
	return Parse(os.Environ())
}
