// Package channel defines the fixed six-channel topology connecting a parent
// process to a spawned child: three conventional text channels, one diagnostic
// channel, and two binary data channels.
package channel

import "fmt"

// Role identifies one of the six channels by its semantic class and direction.
// The ordinal value doubles as the channel's descriptor slot on platforms with
// ordinal channel identity.
type Role int

const (
	// Stdin is interactive text into the child (slot 0).
	Stdin Role = iota
	// Stdout is interactive text out of the child (slot 1).
	Stdout
	// Stderr is interactive error text out of the child (slot 2).
	Stderr
	// Diag is diagnostic text out of the child (slot 3). Lossy by policy.
	Diag
	// DataIn is binary data into the child (slot 4).
	DataIn
	// DataOut is binary data out of the child (slot 5). Lossless by policy.
	DataOut

	// NumRoles is the fixed channel count per spawned process.
	NumRoles = 6
)

// Direction says which way bytes flow on a channel.
type Direction int

const (
	// IntoChild channels are written by the parent and read by the child.
	IntoChild Direction = iota
	// OutOfChild channels are written by the child and read by the parent.
	OutOfChild
)

// Class is the semantic class of a channel's payload.
type Class int

const (
	// Interactive carries human-oriented text.
	Interactive Class = iota
	// Diagnostic carries machine progress/trace text. Never binary.
	Diagnostic
	// Binary carries raw data. Never diagnostic text.
	Binary
)

// Policy is the backpressure rule applied when the consumer is slower than
// the producer.
type Policy int

const (
	// Block stops reading from the endpoint, letting the pipe fill and the
	// child block on write. Used for interactive and binary output, where
	// loss is not acceptable.
	Block Policy = iota
	// DropOldest evicts the oldest buffered bytes to make room. Used for the
	// diagnostic channel, which must never block the child.
	DropOldest
	// CallerPaced channels have no drain worker; the caller writes (or an
	// optional file pump does) at its own pace.
	CallerPaced
)

// Info describes one role's fixed properties.
type Info struct {
	Name   string
	Slot   int
	Dir    Direction
	Class  Class
	Policy Policy
}

// The role table is fixed at compile time. Slot assignments are part of the
// child-facing contract and must never change.
var roles = [NumRoles]Info{
	Stdin:   {Name: "stdin", Slot: 0, Dir: IntoChild, Class: Interactive, Policy: CallerPaced},
	Stdout:  {Name: "stdout", Slot: 1, Dir: OutOfChild, Class: Interactive, Policy: Block},
	Stderr:  {Name: "stderr", Slot: 2, Dir: OutOfChild, Class: Interactive, Policy: Block},
	Diag:    {Name: "diag", Slot: 3, Dir: OutOfChild, Class: Diagnostic, Policy: DropOldest},
	DataIn:  {Name: "data-in", Slot: 4, Dir: IntoChild, Class: Binary, Policy: CallerPaced},
	DataOut: {Name: "data-out", Slot: 5, Dir: OutOfChild, Class: Binary, Policy: Block},
}

// Roles returns all six roles in slot order.
func Roles() [NumRoles]Role {
	return [NumRoles]Role{Stdin, Stdout, Stderr, Diag, DataIn, DataOut}
}

// Valid reports whether r is one of the six defined roles.
func (r Role) Valid() bool {
	return r >= 0 && r < NumRoles
}

// Info returns the role's fixed properties. Panics on an undefined role;
// roles are compile-time constants, so an undefined role is a programming
// error, not an input error.
func (r Role) Info() Info {
	if !r.Valid() {
		panic(fmt.Sprintf("channel: undefined role %d", int(r)))
	}
	return roles[r]
}

// String returns the role's stable name (also used by the bootstrap protocol
// and transcript records).
func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roles[r].Name
}

// ParseRole maps a stable name back to its Role.
func ParseRole(name string) (Role, error) {
	for i, info := range roles {
		if info.Name == name {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("channel: unknown role %q", name)
}
