package channel

import (
	"fmt"
	"os"

	"github.com/creack/pty"
)

// Pair is one channel's endpoint pair: the read end and the write end of a
// single directional pipe. Which end belongs to the child depends on the
// role's direction.
type Pair struct {
	R *os.File
	W *os.File
}

// Set holds the six endpoint pairs for one spawn. A Set is constructed
// all-or-nothing: a pipe allocation failure rolls back every pipe created so
// far, so a partial Set is never observable.
//
// Ownership: the Set owns both ends of every pair until the transport starts
// the child. After a successful start the transport calls CloseChild to drop
// the parent's duplicates of the child-side ends; without that, end-of-stream
// would never propagate when the child exits.
type Set struct {
	pairs [NumRoles]Pair

	// In TTY mode the three interactive roles share a single pty pair and
	// stderr is merged into stdout. ptySlave is the shared child-side file.
	ptyMaster *os.File
	ptySlave  *os.File
}

// NewSet allocates six pipes, one per role. On any allocation failure all
// previously created pipes are closed and the error is returned.
func NewSet() (*Set, error) {
	s := &Set{}
	for _, role := range Roles() {
		r, w, err := os.Pipe()
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("allocating %s channel: %w", role, err)
		}
		s.pairs[role] = Pair{R: r, W: w}
	}
	return s, nil
}

// NewTTYSet allocates a pty for the three interactive roles and pipes for the
// diagnostic and data roles. The child sees the pty slave on slots 0–2
// (stderr merged into stdout, as terminals do); the parent reads and writes
// the master. Rollback semantics match NewSet.
func NewTTYSet() (*Set, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("allocating pty: %w", err)
	}
	s := &Set{ptyMaster: master, ptySlave: slave}
	for _, role := range []Role{Diag, DataIn, DataOut} {
		r, w, err := os.Pipe()
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("allocating %s channel: %w", role, err)
		}
		s.pairs[role] = Pair{R: r, W: w}
	}
	return s, nil
}

// TTY reports whether the interactive roles are backed by a pty.
func (s *Set) TTY() bool { return s.ptyMaster != nil }

// PTYMaster returns the parent-side pty file, or nil outside TTY mode.
func (s *Set) PTYMaster() *os.File { return s.ptyMaster }

// ChildFile returns the end of the role's pipe that belongs in the child:
// the read end for into-child roles, the write end for out-of-child roles.
// In TTY mode all three interactive roles map to the shared pty slave.
func (s *Set) ChildFile(role Role) *os.File {
	if s.ptySlave != nil {
		switch role {
		case Stdin, Stdout, Stderr:
			return s.ptySlave
		}
	}
	p := s.pairs[role]
	if role.Info().Dir == IntoChild {
		return p.R
	}
	return p.W
}

// ParentFile returns the end retained by the parent: the write end for
// into-child roles, the read end for out-of-child roles. In TTY mode the
// interactive roles share the pty master, except Stderr which has no
// parent-side endpoint of its own (merged into Stdout); it returns nil.
func (s *Set) ParentFile(role Role) *os.File {
	if s.ptyMaster != nil {
		switch role {
		case Stdin, Stdout:
			return s.ptyMaster
		case Stderr:
			return nil
		}
	}
	p := s.pairs[role]
	if role.Info().Dir == IntoChild {
		return p.W
	}
	return p.R
}

// CloseChild closes the parent's copies of all child-side endpoints. Called
// by the transport after a successful start; the child holds its own
// duplicates by then.
func (s *Set) CloseChild() {
	if s.ptySlave != nil {
		s.ptySlave.Close()
		s.ptySlave = nil
	}
	for _, role := range Roles() {
		if s.ptyMaster != nil {
			switch role {
			case Stdin, Stdout, Stderr:
				continue
			}
		}
		if f := s.childPipeFile(role); f != nil {
			f.Close()
			s.clearChild(role)
		}
	}
}

// Close closes every endpoint still held by the Set. Safe to call more than
// once and safe on a partially constructed Set.
func (s *Set) Close() {
	if s.ptyMaster != nil {
		s.ptyMaster.Close()
		s.ptyMaster = nil
	}
	if s.ptySlave != nil {
		s.ptySlave.Close()
		s.ptySlave = nil
	}
	for i := range s.pairs {
		if s.pairs[i].R != nil {
			s.pairs[i].R.Close()
			s.pairs[i].R = nil
		}
		if s.pairs[i].W != nil {
			s.pairs[i].W.Close()
			s.pairs[i].W = nil
		}
	}
}

func (s *Set) childPipeFile(role Role) *os.File {
	p := s.pairs[role]
	if role.Info().Dir == IntoChild {
		return p.R
	}
	return p.W
}

func (s *Set) clearChild(role Role) {
	if role.Info().Dir == IntoChild {
		s.pairs[role].R = nil
	} else {
		s.pairs[role].W = nil
	}
}
