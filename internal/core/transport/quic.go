package transport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/homestead/internal/core/observability/log"
)

// ALPN is the application protocol negotiated over QUIC.
const ALPN = "homestead/1"

const frameHeader = 4

// QUICConn sends reliable payloads as length-prefixed frames on one
// bidirectional stream and unreliable payloads as datagrams when they fit.
type QUICConn struct {
	id     string
	conn   *quic.Conn
	stream *quic.Stream
	config Config
	logger log.Log

	writeMu   sync.Mutex
	datagrams bool
	inbox     chan []byte

	errMu   sync.Mutex
	readErr error
	// ended is closed when the stream reader stops.
	ended chan struct{}

	once   sync.Once
	closed chan struct{}
}

func newQUICConn(conn *quic.Conn, stream *quic.Stream, config Config, logger log.Log) *QUICConn {
	c := &QUICConn{
		id:        uuid.NewString(),
		conn:      conn,
		stream:    stream,
		config:    config,
		datagrams: conn.ConnectionState().SupportsDatagrams,
		inbox:     make(chan []byte, config.InboxSize),
		ended:     make(chan struct{}),
		closed:    make(chan struct{}),
	}
	c.logger = logger.With(log.String("connection_id", c.id), log.String("transport", "quic"))
	go c.readStream()
	if c.datagrams {
		go c.readDatagrams()
	}
	return c
}

func (c *QUICConn) ID() string         { return c.id }
func (c *QUICConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *QUICConn) Send(ctx context.Context, payload []byte, reliable bool) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}
	if c.config.MaxMessageSize > 0 && len(payload) > c.config.MaxMessageSize {
		return errors.Wrapf(ErrMessageTooLarge, "%d bytes", len(payload))
	}
	if !reliable && c.datagrams && len(payload) <= c.config.DatagramSize {
		err := c.conn.SendDatagram(payload)
		if err == nil {
			return nil
		}
		var tooLarge *quic.DatagramTooLargeError
		if !errors.As(err, &tooLarge) {
			return errors.Wrap(err, "failed to send datagram")
		}
	}
	return c.writeFrame(ctx, payload)
}

func (c *QUICConn) writeFrame(ctx context.Context, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Time{}
	if c.config.WriteTimeout > 0 {
		deadline = time.Now().Add(c.config.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = c.stream.SetWriteDeadline(deadline)

	frame := make([]byte, frameHeader+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[frameHeader:], payload)
	if _, err := c.stream.Write(frame); err != nil {
		return errors.Wrap(err, "failed to write frame")
	}
	return nil
}

func (c *QUICConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.inbox:
		return msg, nil
	default:
	}
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-c.ended:
		select {
		case msg := <-c.inbox:
			return msg, nil
		default:
			return nil, c.err()
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *QUICConn) err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.readErr == nil {
		return ErrConnectionClosed
	}
	return c.readErr
}

func (c *QUICConn) fail(err error) {
	c.errMu.Lock()
	if c.readErr == nil {
		c.readErr = err
	}
	c.errMu.Unlock()
}

func (c *QUICConn) readStream() {
	defer close(c.ended)
	header := make([]byte, frameHeader)
	for {
		if _, err := io.ReadFull(c.stream, header); err != nil {
			c.fail(errors.Wrap(ErrConnectionClosed, err.Error()))
			return
		}
		size := binary.BigEndian.Uint32(header)
		if c.config.MaxMessageSize > 0 && int(size) > c.config.MaxMessageSize {
			c.fail(errors.Wrapf(ErrMessageTooLarge, "frame of %d bytes", size))
			_ = c.Close()
			return
		}
		if size == 0 {
			continue
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(c.stream, payload); err != nil {
			c.fail(errors.Wrap(ErrConnectionClosed, err.Error()))
			return
		}
		if !c.deliver(payload, true) {
			return
		}
	}
}

func (c *QUICConn) readDatagrams() {
	ctx := c.conn.Context()
	for {
		payload, err := c.conn.ReceiveDatagram(ctx)
		if err != nil {
			return
		}
		if !c.deliver(payload, false) {
			return
		}
	}
}

// deliver queues a payload. Unreliable payloads are dropped when the inbox
// is full.
func (c *QUICConn) deliver(payload []byte, reliable bool) bool {
	if !reliable {
		select {
		case <-c.closed:
			return false
		case c.inbox <- payload:
		default:
			c.logger.Debug("Inbox full, dropping datagram", log.Int("size", len(payload)))
		}
		return true
	}
	select {
	case c.inbox <- payload:
		return true
	case <-c.closed:
		return false
	}
}

func (c *QUICConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.conn.CloseWithError(0, "closed")
	})
	return err
}

type QUICListener struct {
	listener *quic.Listener
	config   Config
	logger   log.Log
}

func quicConfig(config Config) *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  config.IdleTimeout,
		KeepAlivePeriod: config.KeepAlive,
		EnableDatagrams: true,
	}
}

// ListenQUIC listens on a UDP address. tlsConfig must carry a certificate;
// see SelfSignedTLS.
func ListenQUIC(addr string, tlsConfig *tls.Config, config Config, logger log.Log) (*QUICListener, error) {
	tlsConfig = tlsConfig.Clone()
	tlsConfig.NextProtos = []string{ALPN}
	ln, err := quic.ListenAddr(addr, tlsConfig, quicConfig(config))
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}
	logger = logger.With(log.String("transport", "quic"))
	logger.Info("QUIC listener started", log.String("addr", ln.Addr().String()))
	return &QUICListener{listener: ln, config: config, logger: logger}, nil
}

// Accept waits for a connection and its stream.
func (l *QUICListener) Accept(ctx context.Context) (Conn, error) {
	conn, err := l.listener.Accept(ctx)
	if err != nil {
		if errors.Is(err, quic.ErrServerClosed) {
			return nil, ErrListenerClosed
		}
		return nil, errors.Wrap(err, "accept connection")
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(1, "no stream")
		return nil, errors.Wrap(err, "accept stream")
	}
	return newQUICConn(conn, stream, l.config, l.logger), nil
}

func (l *QUICListener) Addr() string { return l.listener.Addr().String() }

func (l *QUICListener) Close() error { return l.listener.Close() }

// DialQUIC connects to a QUIC listener and opens the reliable stream.
func DialQUIC(ctx context.Context, addr string, tlsConfig *tls.Config, config Config, logger log.Log) (*QUICConn, error) {
	tlsConfig = tlsConfig.Clone()
	tlsConfig.NextProtos = []string{ALPN}
	conn, err := quic.DialAddr(ctx, addr, tlsConfig, quicConfig(config))
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(1, "no stream")
		return nil, errors.Wrap(err, "open stream")
	}
	c := newQUICConn(conn, stream, config, logger)
	// The peer only sees the stream once something is written on it.
	if err := c.writeFrame(ctx, nil); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}
