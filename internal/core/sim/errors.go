package sim

import "errors"

var (
	ErrUnknownActor  = errors.New("unknown actor")
	ErrUnknownFamily = errors.New("unknown family")
	ErrUnknownObject = errors.New("unknown object")
	ErrForbidden     = errors.New("actor belongs to another family")
	ErrNotUsable     = errors.New("object is private to another family")
	ErrTaskQueueFull = errors.New("task queue full")
	ErrSpawnBlocked  = errors.New("spawn position is not walkable")
	ErrInvalidFamily = errors.New("invalid family")
	ErrOutOfBounds   = errors.New("position outside the world")
	ErrNothingToUse  = errors.New("object offers no interaction")
)
