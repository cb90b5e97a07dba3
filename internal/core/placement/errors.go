package placement

import (
	"errors"
	"fmt"
)

var ErrRejected = errors.New("placement rejected")

type Reason string

const (
	ReasonCategoryMismatch  Reason = "category_mismatch"
	ReasonCollision         Reason = "collision"
	ReasonConnectivityBreak Reason = "connectivity_break"
	ReasonPermissionDenied  Reason = "permission_denied"
	ReasonOutOfBounds       Reason = "out_of_bounds"
	ReasonUnknownDescriptor Reason = "unknown_descriptor"
	ReasonUnknownEntity     Reason = "unknown_entity"
	ReasonInsufficientFunds Reason = "insufficient_funds"
	ReasonRequiresWall      Reason = "requires_wall"
	ReasonInvalidRequest    Reason = "invalid_request"
)

// RejectedError reports why an edit was refused. A rejected edit never
// changes the world.
type RejectedError struct {
	Reason Reason
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("placement rejected: %s", e.Reason)
	}
	return fmt.Sprintf("placement rejected: %s: %s", e.Reason, e.Detail)
}

func (e *RejectedError) Unwrap() error { return ErrRejected }

func reject(reason Reason, format string, args ...any) *RejectedError {
	return &RejectedError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the rejection reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Reason, true
	}
	return "", false
}
