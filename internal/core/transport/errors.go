package transport

import "github.com/pkg/errors"

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrListenerClosed   = errors.New("listener closed")
	ErrMessageTooLarge  = errors.New("message too large")
	ErrUnsupportedFrame = errors.New("unsupported frame type")
)
