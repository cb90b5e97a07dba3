package client

import "errors"

var (
	ErrClientClosed      = errors.New("client is closed")
	ErrNotConnected      = errors.New("client is not connected")
	ErrAlreadyConnected  = errors.New("client is already connected")
	ErrConnectFailed     = errors.New("connect failed")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrReconnectFailed   = errors.New("reconnection failed")
	ErrInvalidMessage    = errors.New("invalid message")
)
