package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Pipe returns two connected in-memory connections. Unreliable payloads
// are dropped when the peer's inbox is full.
func Pipe(inbox int) (Conn, Conn) {
	a := newPipeEnd(inbox)
	b := newPipeEnd(inbox)
	a.peer, b.peer = b, a
	return a, b
}

type pipeEnd struct {
	id    string
	inbox chan []byte
	peer  *pipeEnd

	once   sync.Once
	closed chan struct{}
}

func newPipeEnd(inbox int) *pipeEnd {
	return &pipeEnd{
		id:     uuid.NewString(),
		inbox:  make(chan []byte, inbox),
		closed: make(chan struct{}),
	}
}

func (p *pipeEnd) ID() string         { return p.id }
func (p *pipeEnd) RemoteAddr() string { return "pipe:" + p.peer.id }

func (p *pipeEnd) Send(ctx context.Context, payload []byte, reliable bool) error {
	select {
	case <-p.closed:
		return ErrConnectionClosed
	case <-p.peer.closed:
		return ErrConnectionClosed
	default:
	}
	msg := append([]byte(nil), payload...)
	if !reliable {
		select {
		case p.peer.inbox <- msg:
		default:
		}
		return nil
	}
	select {
	case p.peer.inbox <- msg:
		return nil
	case <-p.closed:
		return ErrConnectionClosed
	case <-p.peer.closed:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) ([]byte, error) {
	// Drain what the peer sent before closing.
	select {
	case msg := <-p.inbox:
		return msg, nil
	default:
	}
	select {
	case msg := <-p.inbox:
		return msg, nil
	case <-p.closed:
		return nil, ErrConnectionClosed
	case <-p.peer.closed:
		select {
		case msg := <-p.inbox:
			return msg, nil
		default:
			return nil, ErrConnectionClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// PipeListener hands out the server ends of pipes created with Dial.
type PipeListener struct {
	inbox   int
	pending chan Conn

	once   sync.Once
	closed chan struct{}
}

func NewPipeListener(inbox int) *PipeListener {
	return &PipeListener{
		inbox:   inbox,
		pending: make(chan Conn),
		closed:  make(chan struct{}),
	}
}

// Dial connects a new client end to the listener.
func (l *PipeListener) Dial(ctx context.Context) (Conn, error) {
	client, server := Pipe(l.inbox)
	select {
	case l.pending <- server:
		return client, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *PipeListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.pending:
		return c, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *PipeListener) Addr() string { return "pipe" }

func (l *PipeListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}
