// Package client is the Go SDK for homestead servers. A Client keeps a
// mirror of the world, overlays predictions for its own intents and
// reconnects when the connection drops.
package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/replication"
	"github.com/zeusync/homestead/internal/core/transport"
	"github.com/zeusync/homestead/internal/core/world"
)

// Dialer opens a connection to the server.
type Dialer func(ctx context.Context) (transport.Conn, error)

// WebSocket dials a websocket endpoint such as ws://localhost:8080/ws.
func WebSocket(url string, config transport.Config, logger log.Log) Dialer {
	return func(ctx context.Context) (transport.Conn, error) {
		return transport.DialWebSocket(ctx, url, config, logger)
	}
}

// QUIC dials a QUIC endpoint.
func QUIC(addr string, tlsConfig *tls.Config, config transport.Config, logger log.Log) Dialer {
	return func(ctx context.Context) (transport.Conn, error) {
		return transport.DialQUIC(ctx, addr, tlsConfig, config, logger)
	}
}

type Config struct {
	Name   string
	Family world.NetID
	Role   string
	Token  string

	ConnectTimeout       time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	// MaxPending bounds out-of-order reliable deltas buffered per entity.
	MaxPending int

	LogLevel log.Level
}

func DefaultClientConfig() Config {
	return Config{
		Name:                 "player",
		ConnectTimeout:       10 * time.Second,
		ReconnectInterval:    2 * time.Second,
		MaxReconnectAttempts: 5,
		MaxPending:           64,
		LogLevel:             log.LevelInfo,
	}
}

// Client is safe for concurrent use.
type Client struct {
	dial   Dialer
	config Config
	logger log.Log

	mirror    *replication.Mirror
	predictor *replication.Predictor
	entities  *EntityMap

	mu      sync.Mutex
	conn    transport.Conn
	welcome replication.Welcome
	ready   chan struct{}
	waiters map[uint64]chan replication.IntentResult

	nextIntent atomic.Uint64

	eventHandlers map[EventType][]EventHandler
	handlerMutex  sync.RWMutex

	connected atomic.Bool
	closed    atomic.Bool
	done      chan struct{}

	workerGroup sync.WaitGroup
}

func NewClient(config Config, dial Dialer) *Client {
	return NewClientWithLogger(config, dial, log.New(config.LogLevel))
}

func NewClientWithLogger(config Config, dial Dialer, logger log.Log) *Client {
	mirror := replication.NewMirror(config.MaxPending)
	return &Client{
		dial:          dial,
		config:        config,
		logger:        logger.With(log.String("component", "client"), log.String("name", config.Name)),
		mirror:        mirror,
		predictor:     replication.NewPredictor(mirror),
		entities:      NewEntityMap(),
		waiters:       make(map[uint64]chan replication.IntentResult),
		eventHandlers: make(map[EventType][]EventHandler),
		done:          make(chan struct{}),
	}
}

// Connect dials the server, introduces the client and waits for the first
// snapshot.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if c.connected.Load() {
		return ErrAlreadyConnected
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		return errors.Join(ErrConnectFailed, err)
	}
	ready := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.ready = ready
	family := c.config.Family
	if c.welcome.Family != world.City {
		// Keep the family claimed before a reconnect.
		family = c.welcome.Family
	}
	c.mu.Unlock()

	hello, err := replication.Encode(replication.TypeHello, replication.Hello{
		Name:   c.config.Name,
		Family: family,
		Role:   c.config.Role,
		Token:  c.config.Token,
	})
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err = conn.Send(ctx, hello, true); err != nil {
		_ = conn.Close()
		return errors.Join(ErrConnectFailed, err)
	}

	c.connected.Store(true)
	c.workerGroup.Add(1)
	go func() {
		defer c.workerGroup.Done()
		c.receive(conn)
	}()

	select {
	case <-ready:
	case <-ctx.Done():
		c.drop(conn)
		return ErrConnectionTimeout
	}

	c.logger.Info("Connected", log.String("remote", conn.RemoteAddr()), log.Stringer("family", c.Family()))
	c.emitEvent(Event{Type: EventTypeConnected, Timestamp: time.Now()})
	return nil
}

// Close disconnects and stops reconnecting.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}
	close(c.done)
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		c.drop(conn)
	}
	c.workerGroup.Wait()
	return nil
}

func (c *Client) drop(conn transport.Conn) {
	c.connected.Store(false)
	_ = conn.Close()
}

func (c *Client) Mirror() *replication.Mirror       { return c.mirror }
func (c *Client) Predictor() *replication.Predictor { return c.predictor }
func (c *Client) Entities() *EntityMap              { return c.entities }
func (c *Client) IsConnected() bool                 { return c.connected.Load() }

// Family is the family this client acts for, once the server agreed.
func (c *Client) Family() world.NetID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.welcome.Family
}

func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.welcome.Session
}

// Send sends an intent and returns its id. The id is assigned by the
// client; the intent's own ID is ignored.
func (c *Client) Send(ctx context.Context, intent replication.Intent) (uint64, error) {
	id, _, err := c.send(ctx, intent, false)
	return id, err
}

// Do sends an intent and waits for the server's answer.
func (c *Client) Do(ctx context.Context, intent replication.Intent) (replication.IntentResult, error) {
	id, wait, err := c.send(ctx, intent, true)
	if err != nil {
		return replication.IntentResult{}, err
	}
	select {
	case r, ok := <-wait:
		if !ok {
			return replication.IntentResult{}, ErrNotConnected
		}
		if r.Accepted && intent.Kind == replication.IntentCreateFamily && c.config.Role != "editor" {
			c.mu.Lock()
			c.welcome.Family = r.Entity
			c.mu.Unlock()
		}
		return r, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
		return replication.IntentResult{}, ctx.Err()
	case <-c.done:
		return replication.IntentResult{}, ErrClientClosed
	}
}

// Predict sends an intent together with the component values it is
// expected to produce. The values show through Predictor until the server
// answers.
func (c *Client) Predict(ctx context.Context, intent replication.Intent, entity world.NetID, values map[string]any) (uint64, error) {
	id := c.nextIntent.Add(1)
	for name, v := range values {
		if err := c.predictor.Predict(id, entity, name, v); err != nil {
			return 0, err
		}
	}
	intent.ID = id
	return id, c.write(ctx, replication.TypeIntent, intent)
}

func (c *Client) send(ctx context.Context, intent replication.Intent, wait bool) (uint64, chan replication.IntentResult, error) {
	intent.ID = c.nextIntent.Add(1)
	var ch chan replication.IntentResult
	if wait {
		ch = make(chan replication.IntentResult, 1)
		c.mu.Lock()
		c.waiters[intent.ID] = ch
		c.mu.Unlock()
	}
	if err := c.write(ctx, replication.TypeIntent, intent); err != nil {
		c.mu.Lock()
		delete(c.waiters, intent.ID)
		c.mu.Unlock()
		return 0, nil, err
	}
	return intent.ID, ch, nil
}

func (c *Client) write(ctx context.Context, typ replication.MessageType, v any) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	payload, err := replication.Encode(typ, v)
	if err != nil {
		return err
	}
	return conn.Send(ctx, payload, true)
}

// Resync asks the server for a fresh snapshot.
func (c *Client) Resync(ctx context.Context, reason string) error {
	c.mirror.Desynced()
	return c.write(ctx, replication.TypeResync, replication.Resync{Reason: reason})
}

func (c *Client) receive(conn transport.Conn) {
	c.logger.Debug("Receiver started")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		data, err := conn.Receive(ctx)
		if err != nil {
			c.logger.Debug("Receiver stopped", log.Error(err))
			c.lost(conn)
			return
		}
		env, err := replication.Decode(data)
		if err != nil {
			c.logger.Warn("Dropping malformed message", log.Error(err))
			continue
		}
		if err = c.handle(ctx, env); err != nil {
			c.logger.Warn("Message handling failed", log.String("type", string(env.Type)), log.Error(err))
		}
	}
}

func (c *Client) handle(ctx context.Context, env replication.Envelope) error {
	switch env.Type {
	case replication.TypeWelcome:
		var w replication.Welcome
		if err := env.Into(&w); err != nil {
			return err
		}
		c.mu.Lock()
		c.welcome = w
		c.mu.Unlock()

	case replication.TypeSnapshot:
		var s replication.Snapshot
		if err := env.Into(&s); err != nil {
			return err
		}
		c.mirror.ApplySnapshot(&s)
		c.predictor.Reconcile()
		spawned, despawned := c.entities.Sync(&s)
		c.emitEntities(spawned, despawned)
		c.mu.Lock()
		if c.ready != nil {
			close(c.ready)
			c.ready = nil
		}
		c.mu.Unlock()

	case replication.TypeDeltas:
		var b replication.Batch
		if err := env.Into(&b); err != nil {
			return err
		}
		// A snapshot is already on its way; batches before it are stale.
		if !c.mirror.Synced() {
			return nil
		}
		if err := c.mirror.ApplyBatch(b); err != nil {
			if !errors.Is(err, replication.ErrReplicationDesync) {
				return err
			}
			c.logger.Warn("Mirror desynced, requesting snapshot", log.Error(err))
			c.emitEvent(Event{Type: EventTypeDesync, Timestamp: time.Now(), Error: err})
			return c.Resync(ctx, err.Error())
		}
		if wrong := c.predictor.Reconcile(); wrong > 0 {
			c.logger.Debug("Predictions corrected", log.Int("count", wrong))
		}
		spawned, despawned := c.entities.Apply(b)
		c.emitEntities(spawned, despawned)

	case replication.TypeIntentResult:
		var r replication.IntentResult
		if err := env.Into(&r); err != nil {
			return err
		}
		c.predictor.Resolve(r)
		c.mu.Lock()
		wait, ok := c.waiters[r.ID]
		delete(c.waiters, r.ID)
		c.mu.Unlock()
		if ok {
			wait <- r
		}
		c.emitEvent(Event{Type: EventTypeIntentResult, Timestamp: time.Now(), Entity: r.Entity, Result: &r})

	case replication.TypeEvent:
		var e replication.EventMessage
		if err := env.Into(&e); err != nil {
			return err
		}
		c.emitEvent(Event{Type: EventTypeWorld, Timestamp: time.Now(), Name: e.Type, Payload: e.Entity})

	default:
		return errors.Join(ErrInvalidMessage, replication.ErrUnknownMessage)
	}
	return nil
}

func (c *Client) emitEntities(spawned []Entity, despawned []Entity) {
	for _, e := range spawned {
		c.emitEvent(Event{Type: EventTypeSpawned, Timestamp: time.Now(), Entity: e.ID, Kind: e.Kind, Local: e.Local})
	}
	for _, e := range despawned {
		c.emitEvent(Event{Type: EventTypeDespawned, Timestamp: time.Now(), Entity: e.ID, Kind: e.Kind, Local: e.Local})
	}
}

// lost handles a dropped connection: unanswered intents fail and the
// client reconnects unless it was closed.
func (c *Client) lost(conn transport.Conn) {
	c.drop(conn)
	c.mu.Lock()
	// A connection that never saw its snapshot belongs to a failed Connect.
	established := c.ready == nil
	for id, wait := range c.waiters {
		close(wait)
		delete(c.waiters, id)
	}
	c.mu.Unlock()
	c.predictor.Reset()
	c.mirror.Desynced()

	if c.closed.Load() || !established {
		return
	}
	c.emitEvent(Event{Type: EventTypeDisconnected, Timestamp: time.Now()})
	c.workerGroup.Add(1)
	go func() {
		defer c.workerGroup.Done()
		c.reconnect()
	}()
}

func (c *Client) reconnect() {
	for attempt := 1; attempt <= c.config.MaxReconnectAttempts; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(c.config.ReconnectInterval):
		}
		c.emitEvent(Event{Type: EventTypeReconnecting, Timestamp: time.Now()})
		c.logger.Info("Reconnection attempt", log.Int("attempt", attempt))

		err := c.Connect(context.Background())
		if err == nil {
			return
		}
		c.logger.Warn("Reconnection failed", log.Int("attempt", attempt), log.Error(err))
	}
	c.emitEvent(Event{Type: EventTypeError, Timestamp: time.Now(), Error: ErrReconnectFailed})
}

// OnEvent registers a handler. Handlers run on their own goroutine.
func (c *Client) OnEvent(eventType EventType, handler EventHandler) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()
	c.eventHandlers[eventType] = append(c.eventHandlers[eventType], handler)
}

func (c *Client) emitEvent(event Event) {
	c.handlerMutex.RLock()
	handlers := c.eventHandlers[event.Type]
	c.handlerMutex.RUnlock()

	for _, handler := range handlers {
		go func(h EventHandler) {
			if err := h(event); err != nil {
				c.logger.Error("Event handler error", log.Error(err))
			}
		}(handler)
	}
}

// Decode reads the payload of a world event.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}
