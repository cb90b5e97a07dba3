package server

import "errors"

var (
	ErrServerClosed         = errors.New("server is closed")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrMaxClientsReached    = errors.New("maximum clients reached")
	ErrSessionClosed        = errors.New("session is closed")
	ErrSendQueueFull        = errors.New("session send queue full")
	ErrHandshake            = errors.New("handshake failed")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrUnknownFamily        = errors.New("claimed family does not exist")
	ErrInvalidMessage       = errors.New("invalid message")
	ErrInvalidConfig        = errors.New("invalid server configuration")
	ErrReloadQueueFull      = errors.New("descriptor reload queue full")
)
