package replication

import (
	"errors"
	"fmt"

	"github.com/zeusync/homestead/internal/core/world"
)

var (
	// ErrReplicationDesync means the mirror can no longer be repaired with
	// deltas and needs a full snapshot.
	ErrReplicationDesync = errors.New("replication desync")
	ErrUnknownMessage    = errors.New("unknown message type")
	ErrMalformedMessage  = errors.New("malformed message")
	ErrInvalidIntent     = errors.New("invalid intent")
)

type DesyncError struct {
	Entity world.NetID
	Reason string
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("replication desync on %s: %s", e.Entity, e.Reason)
}

func (e *DesyncError) Unwrap() error { return ErrReplicationDesync }

func desync(entity world.NetID, format string, args ...any) error {
	return &DesyncError{Entity: entity, Reason: fmt.Sprintf(format, args...)}
}
