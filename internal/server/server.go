// Package server runs the authoritative world: it accepts client sessions,
// applies their intents once per tick in receipt order, advances the
// simulation and replicates the result.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/homestead/internal/core/asset"
	"github.com/zeusync/homestead/internal/core/events"
	"github.com/zeusync/homestead/internal/core/navigation"
	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/placement"
	"github.com/zeusync/homestead/internal/core/replication"
	"github.com/zeusync/homestead/internal/core/sim"
	"github.com/zeusync/homestead/internal/core/spatial"
	"github.com/zeusync/homestead/internal/core/transport"
	"github.com/zeusync/homestead/internal/core/world"
)

const eventSource = "server"

// Store persists world snapshots.
type Store interface {
	Save(ctx context.Context, s *world.Snapshot) (int64, error)
}

type inboundKind uint8

const (
	inboundJoin inboundKind = iota
	inboundMessage
	inboundLeave
)

// inbound is one item of the server queue. Seq is the receipt order.
type inbound struct {
	seq     uint64
	kind    inboundKind
	session *Session
	env     replication.Envelope
	limited bool
}

type answer struct {
	session *Session
	result  replication.IntentResult
}

// Server owns the world. Everything touching world state runs on the tick
// goroutine; connection goroutines only feed the inbound queue.
type Server struct {
	config  Config
	world   *world.World
	layer   *spatial.Layer
	library *asset.Library
	engine  *placement.Engine
	sim     *sim.Simulation
	paths   *navigation.Pathfinder
	tracker *replication.Tracker
	store   Store
	bus     events.Bus
	logger  log.Log

	sessions sync.Map // map[string]*Session
	count    atomic.Int64

	inboundMu sync.Mutex
	inbound   chan inbound
	receipt   uint64
	reloads   chan *asset.Descriptor

	running atomic.Bool
	closed  atomic.Bool
	tick    atomic.Uint64
	saves   atomic.Int64

	// tick goroutine only
	live     map[string]*Session
	answers  []answer
	pending  []events.Event
	lastSave time.Time
}

func New(
	config Config,
	w *world.World,
	layer *spatial.Layer,
	library *asset.Library,
	engine *placement.Engine,
	simulation *sim.Simulation,
	paths *navigation.Pathfinder,
	store Store,
	bus events.Bus,
	logger log.Log,
) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		config:   config,
		world:    w,
		layer:    layer,
		library:  library,
		engine:   engine,
		sim:      simulation,
		paths:    paths,
		tracker:  replication.NewTracker(layer, config.RefreshTicks),
		store:    store,
		bus:      bus,
		logger:   logger.With(log.String("component", "server")),
		inbound:  make(chan inbound, config.InboundQueue),
		reloads:  make(chan *asset.Descriptor, config.ReloadQueue),
		live:     make(map[string]*Session),
		lastSave: time.Now(),
	}
	s.tick.Store(w.Tick)
	if _, err := bus.Subscribe(events.Wildcard, s.collect); err != nil {
		return nil, err
	}
	return s, nil
}

// SessionCount returns the number of connected sessions.
func (s *Server) SessionCount() int { return int(s.count.Load()) }

// Tick returns the last completed tick. Safe to call from any goroutine.
func (s *Server) Tick() uint64 { return s.tick.Load() }

// Status is a point-in-time summary of the server.
type Status struct {
	Tick     uint64 `json:"tick"`
	Sessions int    `json:"sessions"`
	Running  bool   `json:"running"`
	LastSave int64  `json:"last_save,omitempty"`
}

func (s *Server) Status() Status {
	return Status{
		Tick:     s.Tick(),
		Sessions: s.SessionCount(),
		Running:  s.running.Load(),
		LastSave: s.saves.Load(),
	}
}

// Run serves listeners and ticks until ctx is done or a tick fails. A tick
// fails only on an invariant violation or an internal encoding error.
func (s *Server) Run(ctx context.Context, listeners ...transport.Listener) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}
	defer s.running.Store(false)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.paths.Run(ctx) })
	for _, ln := range listeners {
		group.Go(func() error { return s.Serve(ctx, ln) })
	}
	group.Go(func() error {
		defer func() {
			for _, ln := range listeners {
				_ = ln.Close()
			}
		}()
		return s.loop(ctx)
	})

	s.logger.Info("Server started",
		log.Duration("tick_rate", s.config.TickRate),
		log.Int("listeners", len(listeners)),
	)
	err := group.Wait()
	if s.store != nil {
		s.save(context.WithoutCancel(ctx))
	}
	s.logger.Info("Server stopped", log.Uint64("tick", s.world.Tick))
	return err
}

func (s *Server) loop(ctx context.Context) error {
	ticker := time.NewTicker(s.config.TickRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Step(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("Tick failed, halting", log.Uint64("tick", s.world.Tick), log.Error(err))
				return err
			}
		}
	}
}

// Step runs one tick: queued messages in receipt order, descriptor
// reloads, the simulation, then replication to every session.
func (s *Server) Step(ctx context.Context) error {
	if err := s.drain(); err != nil {
		return err
	}
	if err := s.reload(); err != nil {
		return err
	}
	if err := s.sim.Step(ctx, s.config.TickRate); err != nil {
		return err
	}
	s.layer.Publish()
	s.tick.Store(s.world.Tick)
	if s.config.VerifyEveryTick {
		if err := s.layer.Verify(s.world); err != nil {
			return &navigation.InvariantViolation{Op: "verify", Detail: err.Error()}
		}
	}

	rel, unrel, err := s.tracker.Diff(s.world)
	if err != nil {
		return err
	}
	if err = s.replicate(rel, unrel); err != nil {
		return err
	}
	s.respond()
	if err = s.forward(); err != nil {
		return err
	}
	s.autosave(ctx)
	return nil
}

// Serve accepts connections from ln until ctx is done or ln is closed.
func (s *Server) Serve(ctx context.Context, ln transport.Listener) error {
	s.logger.Info("Accepting connections", log.String("addr", ln.Addr()))
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrListenerClosed) {
				return nil
			}
			s.logger.Warn("Accept failed", log.String("addr", ln.Addr()), log.Error(err))
			continue
		}
		if s.count.Load() >= int64(s.config.MaxClients) {
			s.logger.Warn("Rejecting connection",
				log.String("remote", conn.RemoteAddr()),
				log.Error(ErrMaxClientsReached),
			)
			_ = conn.Close()
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn transport.Conn) {
	session, err := s.handshake(ctx, conn)
	if err != nil {
		s.logger.Info("Handshake failed", log.String("remote", conn.RemoteAddr()), log.Error(err))
		_ = conn.Close()
		return
	}

	s.sessions.Store(session.id, session)
	s.count.Add(1)
	defer func() {
		session.close()
		s.sessions.Delete(session.id)
		s.count.Add(-1)
		s.push(ctx, inbound{kind: inboundLeave, session: session})
	}()

	go session.writeLoop(ctx)
	if !s.push(ctx, inbound{kind: inboundJoin, session: session}) {
		return
	}

	for {
		data, err := conn.Receive(ctx)
		if err != nil {
			if !errors.Is(err, transport.ErrConnectionClosed) && ctx.Err() == nil {
				session.logger.Info("Receive failed", log.Error(err))
			}
			return
		}
		env, err := replication.Decode(data)
		if err != nil {
			session.logger.Warn("Dropping session", log.Error(err))
			return
		}
		in := inbound{kind: inboundMessage, session: session, env: env}
		if env.Type == replication.TypeIntent {
			in.limited = !session.limiter.Allow()
		}
		if !s.push(ctx, in) {
			return
		}
	}
}

func (s *Server) handshake(ctx context.Context, conn transport.Conn) (*Session, error) {
	hctx, cancel := context.WithTimeout(ctx, s.config.HandshakeTimeout)
	defer cancel()

	data, err := conn.Receive(hctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	env, err := replication.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if env.Type != replication.TypeHello {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrHandshake, replication.TypeHello, env.Type)
	}
	var hello replication.Hello
	if err = env.Into(&hello); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	role, err := s.authorize(hello)
	if err != nil {
		return nil, err
	}
	return newSession(conn, hello, role, s.config, s.logger), nil
}

// push stamps the receipt sequence and queues in. The stamp and the queue
// order agree because both happen under inboundMu.
func (s *Server) push(ctx context.Context, in inbound) bool {
	s.inboundMu.Lock()
	defer s.inboundMu.Unlock()
	s.receipt++
	in.seq = s.receipt
	select {
	case s.inbound <- in:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) drain() error {
	for range len(s.inbound) {
		in := <-s.inbound
		switch in.kind {
		case inboundJoin:
			s.join(in.session)
		case inboundLeave:
			delete(s.live, in.session.id)
			in.session.logger.Info("Session left")
		case inboundMessage:
			if err := s.handle(in); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Server) join(session *Session) {
	if session.Closed() {
		return
	}
	if session.claim != world.City {
		if _, ok := s.world.Family(session.claim); !ok {
			session.logger.Info("Join refused", log.Error(ErrUnknownFamily), log.Stringer("family", session.claim))
			session.close()
			return
		}
	}
	session.family = session.claim
	session.joined = true
	session.snapshot = true
	s.live[session.id] = session
	session.logger.Info("Session joined",
		log.String("name", session.name),
		log.String("role", string(session.role)),
		log.Stringer("family", session.family),
	)
}

func (s *Server) handle(in inbound) error {
	session := in.session
	if !session.joined || session.Closed() {
		return nil
	}
	switch in.env.Type {
	case replication.TypeIntent:
		var intent replication.Intent
		if err := in.env.Into(&intent); err != nil {
			session.logger.Warn("Malformed intent", log.Error(err))
			s.reply(session, replication.IntentResult{Reason: string(placement.ReasonInvalidRequest)})
			return nil
		}
		if in.limited {
			s.reply(session, replication.IntentResult{ID: intent.ID, Entity: intent.Target, Reason: ReasonRateLimited})
			return nil
		}
		result, err := s.apply(session, intent)
		if err != nil {
			return err
		}
		s.reply(session, result)
	case replication.TypeResync:
		var req replication.Resync
		_ = in.env.Into(&req)
		session.logger.Info("Resync requested", log.String("reason", req.Reason), log.Uint64("receipt", in.seq))
		session.snapshot = true
	default:
		session.logger.Warn("Unexpected message",
			log.String("type", string(in.env.Type)),
			log.Error(replication.ErrUnknownMessage),
		)
	}
	return nil
}

func (s *Server) reply(session *Session, r replication.IntentResult) {
	s.answers = append(s.answers, answer{session: session, result: r})
}

// Reload queues a new version of a descriptor. It is applied at the start
// of the next tick and every placed instance is validated again.
func (s *Server) Reload(desc *asset.Descriptor) error {
	select {
	case s.reloads <- desc:
		return nil
	default:
		return ErrReloadQueueFull
	}
}

func (s *Server) reload() error {
	for range len(s.reloads) {
		desc := <-s.reloads
		var err error
		if _, ok := s.library.Get(desc.ID); ok {
			_, err = s.library.Replace(desc)
		} else {
			err = s.library.Add(desc)
		}
		if err != nil {
			s.logger.Warn("Reload failed", log.String("descriptor", desc.ID), log.Error(err))
			continue
		}
		replaced, removed, err := s.engine.Revalidate(desc.ID)
		if err != nil {
			return err
		}
		s.logger.Info("Descriptor reloaded",
			log.String("descriptor", desc.ID),
			log.Int("replaced", len(replaced)),
			log.Int("removed", len(removed)),
		)
		_ = s.bus.Publish(events.NewEvent(events.TypeDescriptorReloaded, eventSource, events.Entity{
			Descriptor: desc.ID,
			Tick:       s.world.Tick,
		}))
	}
	return nil
}

// replicate sends this tick's deltas, reliable before unreliable. Sessions
// waiting for a snapshot get one instead: it already contains the deltas.
func (s *Server) replicate(rel, unrel []replication.Delta) error {
	var relMsg, unrelMsg, snapMsg []byte
	var err error
	tick := s.world.Tick
	if len(rel) > 0 {
		if relMsg, err = replication.Encode(replication.TypeDeltas, replication.Batch{Tick: tick, Deltas: rel}); err != nil {
			return err
		}
	}
	if len(unrel) > 0 {
		if unrelMsg, err = replication.Encode(replication.TypeDeltas, replication.Batch{Tick: tick, Deltas: unrel}); err != nil {
			return err
		}
	}

	for _, session := range s.live {
		if session.Closed() {
			continue
		}
		if session.snapshot {
			if snapMsg == nil {
				if snapMsg, err = replication.Encode(replication.TypeSnapshot, s.tracker.Snapshot()); err != nil {
					return err
				}
			}
			s.welcome(session, snapMsg)
			continue
		}
		if relMsg != nil {
			_ = session.enqueue(relMsg, true)
		}
		if unrelMsg != nil {
			_ = session.enqueue(unrelMsg, false)
		}
	}
	return nil
}

func (s *Server) welcome(session *Session, snapshot []byte) {
	session.snapshot = false
	err := session.send(replication.TypeWelcome, replication.Welcome{
		Session: session.id,
		Family:  session.family,
		Role:    string(session.role),
		Tick:    s.world.Tick,
	}, true)
	if err != nil {
		return
	}
	_ = session.enqueue(snapshot, true)
}

// respond sends the intent results of this tick. An accepted result
// carries the sequence of its entity after this tick's deltas.
func (s *Server) respond() {
	for _, a := range s.answers {
		r := a.result
		r.Tick = s.world.Tick
		if r.Accepted {
			r.Seq = s.tracker.Seq(r.Entity)
		}
		if err := a.session.send(replication.TypeIntentResult, r, true); err != nil {
			a.session.logger.Debug("Result not sent", log.Uint64("intent", r.ID), log.Error(err))
		}
	}
	clear(s.answers)
	s.answers = s.answers[:0]
}

func (s *Server) collect(e events.Event) error {
	s.pending = append(s.pending, e)
	return nil
}

// forward relays the domain events of this tick. Rejections are already
// answered by intent results.
func (s *Server) forward() error {
	defer func() {
		clear(s.pending)
		s.pending = s.pending[:0]
	}()
	for _, e := range s.pending {
		if e.Type() == events.TypePlacementRejected {
			continue
		}
		payload, err := replication.EncodeEvent(e.Type(), e.Data())
		if err != nil {
			return err
		}
		for _, session := range s.live {
			if !session.Closed() {
				_ = session.enqueue(payload, true)
			}
		}
	}
	return nil
}

func (s *Server) autosave(ctx context.Context) {
	if s.store == nil || s.config.AutosaveInterval <= 0 || time.Since(s.lastSave) < s.config.AutosaveInterval {
		return
	}
	s.save(ctx)
}

func (s *Server) save(ctx context.Context) {
	s.lastSave = time.Now()
	id, err := s.store.Save(ctx, s.world.Snapshot())
	if err != nil {
		s.logger.Error("Autosave failed", log.Error(err))
		return
	}
	s.saves.Store(id)
	s.logger.Info("World saved", log.Int64("save", id), log.Uint64("tick", s.world.Tick))
}

// Close disconnects every session. A closed server cannot run again.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrServerClosed
	}
	s.sessions.Range(func(_, v any) bool {
		v.(*Session).close()
		return true
	})
	return nil
}
