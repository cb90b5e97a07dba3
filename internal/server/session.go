package server

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/placement"
	"github.com/zeusync/homestead/internal/core/replication"
	"github.com/zeusync/homestead/internal/core/transport"
	"github.com/zeusync/homestead/internal/core/world"
)

type outbound struct {
	payload  []byte
	reliable bool
}

// Session is one connected client. The identity fields are owned by the
// tick goroutine; the outbound queue is written by anyone and drained by
// the session's writer.
type Session struct {
	id      string
	conn    transport.Conn
	name    string
	role    placement.Role
	claim   world.NetID
	limiter *rate.Limiter
	logger  log.Log

	out       chan outbound
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	// tick goroutine only
	family   world.NetID
	joined   bool
	snapshot bool
}

func newSession(conn transport.Conn, hello replication.Hello, role placement.Role, config Config, logger log.Log) *Session {
	return &Session{
		id:      conn.ID(),
		conn:    conn,
		name:    hello.Name,
		role:    role,
		claim:   hello.Family,
		limiter: rate.NewLimiter(rate.Limit(config.IntentRate), config.IntentBurst),
		logger: logger.With(
			log.String("session", conn.ID()),
			log.String("remote", conn.RemoteAddr()),
		),
		out:  make(chan outbound, config.SendQueue),
		done: make(chan struct{}),
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Name() string         { return s.name }
func (s *Session) Role() placement.Role { return s.role }
func (s *Session) Closed() bool         { return s.closed.Load() }

func (s *Session) requester() placement.Requester {
	return placement.Requester{Family: s.family, Role: s.role}
}

// enqueue never blocks. A full queue closes the session: the client has
// fallen too far behind and resyncs on reconnect.
func (s *Session) enqueue(payload []byte, reliable bool) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case s.out <- outbound{payload: payload, reliable: reliable}:
		return nil
	default:
		s.logger.Warn("Send queue full, dropping session", log.Int("queue", cap(s.out)))
		s.close()
		return ErrSendQueueFull
	}
}

func (s *Session) send(typ replication.MessageType, v any, reliable bool) error {
	payload, err := replication.Encode(typ, v)
	if err != nil {
		return err
	}
	return s.enqueue(payload, reliable)
}

func (s *Session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg := <-s.out:
			if err := s.conn.Send(ctx, msg.payload, msg.reliable); err != nil {
				s.logger.Debug("Send failed", log.Error(err))
				s.close()
				return
			}
		}
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("Close failed", log.Error(err))
		}
	})
}
