package hexpipe

import (
	"errors"

	"github.com/hexpipe/hexpipe/pkg/channel"
	"github.com/hexpipe/hexpipe/pkg/transport"
)

// Supervision errors. Operations on a handle that has already been reaped
// are programming errors and are reported, never silently ignored.
var (
	// ErrAlreadyReaped is returned by Wait after the exit status has been
	// reaped once.
	ErrAlreadyReaped = errors.New("hexpipe: process already reaped")
	// ErrNoSuchProcess is returned by Signal after the child has exited.
	ErrNoSuchProcess = errors.New("hexpipe: no such process")
	// ErrSignalDenied is returned when the platform refuses signal delivery.
	ErrSignalDenied = errors.New("hexpipe: signal denied")
)

// SpawnError is the structured spawn-time failure. When Spawn returns one,
// no child is running and no endpoints have leaked.
type SpawnError = transport.SpawnError

// ChannelError is a per-channel drain failure, tagged with its Role.
type ChannelError = channel.Error

// Spawn failure kinds, re-exported for callers that switch on them.
const (
	ExecutableNotFound = transport.ExecutableNotFound
	PermissionDenied   = transport.PermissionDenied
	ResourceExhausted  = transport.ResourceExhausted
	ChannelAllocation  = transport.ChannelAllocation
)
