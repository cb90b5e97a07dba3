// Package transport moves opaque payloads between the server and its
// clients. Reliable payloads arrive in order exactly once; unreliable
// payloads may be dropped or reordered.
package transport

import (
	"context"
	"time"
)

// Conn is one client connection. Send and Receive may be called from
// different goroutines, but each from at most one goroutine at a time.
type Conn interface {
	ID() string
	RemoteAddr() string
	Send(ctx context.Context, payload []byte, reliable bool) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Listener accepts client connections.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() string
	Close() error
}

type Config struct {
	MaxMessageSize int           `yaml:"max_message_size" env:"MAX_MESSAGE_SIZE"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// InboxSize bounds payloads read off the wire but not yet received.
	InboxSize int `yaml:"inbox_size" env:"INBOX_SIZE"`
	// DatagramSize is the largest unreliable payload sent as a QUIC
	// datagram. Larger ones go over the stream.
	DatagramSize int           `yaml:"datagram_size" env:"DATAGRAM_SIZE"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	KeepAlive    time.Duration `yaml:"keep_alive" env:"KEEP_ALIVE"`
}

func DefaultConfig() Config {
	return Config{
		MaxMessageSize: 4 << 20,
		WriteTimeout:   5 * time.Second,
		InboxSize:      256,
		DatagramSize:   1100,
		IdleTimeout:    30 * time.Second,
		KeepAlive:      10 * time.Second,
	}
}
