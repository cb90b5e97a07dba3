package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/homestead/internal/core/observability/log"
)

// WebSocketConn carries every payload reliably over one websocket.
type WebSocketConn struct {
	id     string
	conn   *websocket.Conn
	config Config
	logger log.Log

	writeMu sync.Mutex
	inbox   chan []byte
	readErr error

	once   sync.Once
	closed chan struct{}
}

func newWebSocketConn(conn *websocket.Conn, config Config, logger log.Log) *WebSocketConn {
	c := &WebSocketConn{
		id:     uuid.NewString(),
		conn:   conn,
		config: config,
		inbox:  make(chan []byte, config.InboxSize),
		closed: make(chan struct{}),
	}
	c.logger = logger.With(log.String("connection_id", c.id), log.String("transport", "websocket"))
	if config.MaxMessageSize > 0 {
		conn.SetReadLimit(int64(config.MaxMessageSize))
	}
	go c.readLoop()
	return c
}

func (c *WebSocketConn) ID() string         { return c.id }
func (c *WebSocketConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// Send writes payload as one binary message. The reliable flag is ignored.
func (c *WebSocketConn) Send(ctx context.Context, payload []byte, _ bool) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}
	if c.config.MaxMessageSize > 0 && len(payload) > c.config.MaxMessageSize {
		return errors.Wrapf(ErrMessageTooLarge, "%d bytes", len(payload))
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Time{}
	if c.config.WriteTimeout > 0 {
		deadline = time.Now().Add(c.config.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)

	if err := c.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

func (c *WebSocketConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-c.inbox:
		if !ok {
			return nil, c.readErr
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *WebSocketConn) readLoop() {
	defer close(c.inbox)
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.readErr = ErrConnectionClosed
			} else {
				c.readErr = errors.Wrap(ErrConnectionClosed, err.Error())
			}
			c.logger.Debug("Read loop stopped", log.Error(err))
			return
		}
		if typ != websocket.BinaryMessage && typ != websocket.TextMessage {
			c.readErr = ErrUnsupportedFrame
			_ = c.Close()
			return
		}
		select {
		case c.inbox <- data:
		case <-c.closed:
			c.readErr = ErrConnectionClosed
			return
		}
	}
}

func (c *WebSocketConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// WebSocketListener is an http.Handler that upgrades requests and queues
// the connections for Accept.
type WebSocketListener struct {
	config   Config
	logger   log.Log
	upgrader websocket.Upgrader
	addr     string
	pending  chan Conn

	once   sync.Once
	closed chan struct{}
}

func NewWebSocketListener(addr string, config Config, logger log.Log) *WebSocketListener {
	return &WebSocketListener{
		config: config,
		logger: logger.With(log.String("transport", "websocket")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		addr:    addr,
		pending: make(chan Conn),
		closed:  make(chan struct{}),
	}
}

func (l *WebSocketListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-l.closed:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn("Upgrade failed", log.String("remote_addr", r.RemoteAddr), log.Error(err))
		return
	}
	conn := newWebSocketConn(ws, l.config, l.logger)
	select {
	case l.pending <- conn:
	case <-l.closed:
		_ = conn.Close()
	case <-r.Context().Done():
		_ = conn.Close()
	}
}

func (l *WebSocketListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.pending:
		return c, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *WebSocketListener) Addr() string { return l.addr }

func (l *WebSocketListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

// DialWebSocket connects to a websocket endpoint such as ws://host/ws.
func DialWebSocket(ctx context.Context, url string, config Config, logger log.Log) (*WebSocketConn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return newWebSocketConn(ws, config, logger), nil
}
