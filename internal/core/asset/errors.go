package asset

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedAsset    = errors.New("malformed asset")
	ErrUnknownDescriptor = errors.New("unknown descriptor")
	ErrDuplicateID       = errors.New("duplicate descriptor id")
)

// MalformedAssetError describes why a descriptor failed to load.
type MalformedAssetError struct {
	Asset  string
	Reason string
	Cause  error
}

func (e *MalformedAssetError) Error() string {
	name := e.Asset
	if name == "" {
		name = "<unnamed>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("asset %s: %s: %v", name, e.Reason, e.Cause)
	}
	return fmt.Sprintf("asset %s: %s", name, e.Reason)
}

func (e *MalformedAssetError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrMalformedAsset, e.Cause}
	}
	return []error{ErrMalformedAsset}
}

func malformed(asset, reason string, cause error) *MalformedAssetError {
	return &MalformedAssetError{Asset: asset, Reason: reason, Cause: cause}
}
