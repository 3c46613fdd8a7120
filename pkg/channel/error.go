package channel

import "fmt"

// Error is a channel-level failure, always tagged with the role it occurred
// on. Channel errors are isolated per channel: one channel failing never
// aborts its siblings.
type Error struct {
	Role Role
	Op   string // "read", "write", or "close"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s channel: %s: %v", e.Role, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
