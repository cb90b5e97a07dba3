package navigation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvariantViolation = errors.New("navmesh invariant violation")
	ErrNoPath             = errors.New("no path")
	ErrStalePath          = errors.New("path is stale")
	ErrOutOfBounds        = errors.New("point outside navmesh")
	ErrQueueFull          = errors.New("path request queue full")
)

// InvariantViolation means the derived spatial state no longer matches the
// world. It is not recoverable at runtime.
type InvariantViolation struct {
	Op     string
	Source uuid.UUID
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("navmesh %s %s: %s", e.Op, e.Source, e.Detail)
}

func (e *InvariantViolation) Unwrap() error { return ErrInvariantViolation }
