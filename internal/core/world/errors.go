package world

import "errors"

var (
	ErrUnknownEntity   = errors.New("unknown entity")
	ErrDuplicateEntity = errors.New("entity already exists")
	ErrNotMember       = errors.New("actor is not a member of the family")
)
