package server

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/homestead/internal/core/asset"
	"github.com/zeusync/homestead/internal/core/events"
	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/navigation"
	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/placement"
	"github.com/zeusync/homestead/internal/core/replication"
	"github.com/zeusync/homestead/internal/core/sim"
	"github.com/zeusync/homestead/internal/core/spatial"
	"github.com/zeusync/homestead/internal/core/transport"
	"github.com/zeusync/homestead/internal/core/world"
)

const editorToken = "let-me-build"

type memoryStore struct {
	mu    sync.Mutex
	saves []*world.Snapshot
}

func (m *memoryStore) Save(_ context.Context, s *world.Snapshot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, s)
	return int64(len(m.saves)), nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

type fixture struct {
	ctx     context.Context
	server  *Server
	world   *world.World
	library *asset.Library
	paths   *navigation.Pathfinder
	ln      *transport.PipeListener
	store   *memoryStore

	family *world.Family
	lot    *world.Lot
	actor  *world.Actor
}

func sequentialIDs() func() world.NetID {
	var n uint16
	return func() world.NetID {
		n++
		var id world.NetID
		id[14], id[15] = byte(n>>8), byte(n)
		return id
	}
}

// newFixture builds a 16x24 world. The Tanaka lot covers y 0..16 with Ada
// standing at (4,3); the rest is city ground.
func newFixture(t *testing.T, configure func(c *Config)) *fixture {
	t.Helper()
	w := world.New(geom.Rect{Min: geom.V(0, 0), Max: geom.V(16, 24)})
	w.SetIDSource(sequentialIDs())

	family := &world.Family{ID: w.NewID(), Name: "Tanaka", Budget: 1000}
	require.NoError(t, w.AddFamily(family))
	lot := &world.Lot{
		ID:      w.NewID(),
		Polygon: geom.Polygon{geom.V(0, 0), geom.V(16, 0), geom.V(16, 16), geom.V(0, 16)},
		Owner:   family.ID,
	}
	require.NoError(t, w.AddLot(lot))
	actor := &world.Actor{ID: w.NewID(), Name: "Ada", Family: family.ID, Position: geom.V(4, 3), Needs: world.FullNeeds()}
	require.NoError(t, w.AddActor(actor))
	family.Members = append(family.Members, actor.ID)

	library := asset.NewLibrary(log.NewNop())
	_, err := library.LoadDir(filepath.Join("..", "..", "testdata", "assets"))
	require.NoError(t, err)

	navConfig := navigation.DefaultConfig()
	navConfig.TileSize = 16
	layer, err := spatial.Build(navConfig, w, log.NewNop())
	require.NoError(t, err)

	bus := events.NewBus()
	engine := placement.NewEngine(placement.DefaultConfig(), w, layer, library, bus, log.NewNop())
	paths := navigation.NewPathfinder(layer, navigation.DefaultPathfinderConfig(), log.NewNop())
	simulation, err := sim.New(sim.DefaultConfig(), w, layer, paths, engine, bus, log.NewNop())
	require.NoError(t, err)

	config := DefaultConfig()
	config.AutosaveInterval = 0
	config.EditorToken = editorToken
	if configure != nil {
		configure(&config)
	}
	store := &memoryStore{}
	srv, err := New(config, w, layer, library, engine, simulation, paths, store, bus, log.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ln := transport.NewPipeListener(512)
	go func() { _ = paths.Run(ctx) }()
	go func() { _ = srv.Serve(ctx, ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	return &fixture{
		ctx:     ctx,
		server:  srv,
		world:   w,
		library: library,
		paths:   paths,
		ln:      ln,
		store:   store,
		family:  family,
		lot:     lot,
		actor:   actor,
	}
}

// client is a test peer keeping a mirror of the world.
type client struct {
	conn   transport.Conn
	inbox  chan replication.Envelope
	mirror *replication.Mirror
	nextID uint64

	closed    bool
	welcome   replication.Welcome
	snapshots int
	results   map[uint64]replication.IntentResult
	// caughtUp records whether the mirror had reached the result's
	// sequence when the result arrived.
	caughtUp map[uint64]bool
	events   []string
}

func (f *fixture) dial(t *testing.T, hello replication.Hello) *client {
	t.Helper()
	conn, err := f.ln.Dial(f.ctx)
	require.NoError(t, err)
	c := &client{
		conn:     conn,
		inbox:    make(chan replication.Envelope, 1024),
		mirror:   replication.NewMirror(64),
		results:  make(map[uint64]replication.IntentResult),
		caughtUp: make(map[uint64]bool),
	}
	c.send(t, replication.TypeHello, hello)
	go func() {
		defer close(c.inbox)
		for {
			data, err := conn.Receive(f.ctx)
			if err != nil {
				return
			}
			env, err := replication.Decode(data)
			if err != nil {
				return
			}
			c.inbox <- env
		}
	}()
	return c
}

func (c *client) send(t *testing.T, typ replication.MessageType, v any) {
	t.Helper()
	payload, err := replication.Encode(typ, v)
	require.NoError(t, err)
	require.NoError(t, c.conn.Send(context.Background(), payload, true))
}

func (c *client) intent(t *testing.T, in replication.Intent) uint64 {
	t.Helper()
	c.nextID++
	in.ID = c.nextID
	c.send(t, replication.TypeIntent, in)
	return in.ID
}

// pump handles everything received so far.
func (c *client) pump(t *testing.T) {
	t.Helper()
	for {
		select {
		case env, ok := <-c.inbox:
			if !ok {
				c.closed = true
				return
			}
			c.handle(t, env)
		default:
			return
		}
	}
}

func (c *client) handle(t *testing.T, env replication.Envelope) {
	t.Helper()
	switch env.Type {
	case replication.TypeWelcome:
		require.NoError(t, env.Into(&c.welcome))
	case replication.TypeSnapshot:
		var s replication.Snapshot
		require.NoError(t, env.Into(&s))
		c.mirror.ApplySnapshot(&s)
		c.snapshots++
	case replication.TypeDeltas:
		var b replication.Batch
		require.NoError(t, env.Into(&b))
		require.NoError(t, c.mirror.ApplyBatch(b))
	case replication.TypeIntentResult:
		var r replication.IntentResult
		require.NoError(t, env.Into(&r))
		c.results[r.ID] = r
		c.caughtUp[r.ID] = c.mirror.Seq(r.Entity) >= r.Seq
	case replication.TypeEvent:
		var e replication.EventMessage
		require.NoError(t, env.Into(&e))
		c.events = append(c.events, e.Type)
	}
}

func (c *client) result(id uint64) (replication.IntentResult, bool) {
	r, ok := c.results[id]
	return r, ok
}

// until steps the server until cond holds.
func (f *fixture) until(t *testing.T, cond func() bool, clients ...*client) {
	t.Helper()
	for range 300 {
		require.NoError(t, f.server.Step(f.ctx))
		f.paths.Wait()
		time.Sleep(time.Millisecond)
		for _, c := range clients {
			c.pump(t)
		}
		if cond() {
			return
		}
	}
	t.Fatal("condition not reached")
}

func (f *fixture) join(t *testing.T, hello replication.Hello) *client {
	t.Helper()
	c := f.dial(t, hello)
	f.until(t, func() bool { return c.mirror.Synced() }, c)
	return c
}

func (f *fixture) editor(t *testing.T) *client {
	t.Helper()
	return f.join(t, replication.Hello{Name: "builder", Role: string(placement.RoleEditor), Token: editorToken})
}

func TestJoinReceivesSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	c := f.join(t, replication.Hello{Name: "ada", Family: f.family.ID})

	assert.NotEmpty(t, c.welcome.Session)
	assert.Equal(t, f.family.ID, c.welcome.Family)
	assert.Equal(t, string(placement.RolePlayer), c.welcome.Role)
	assert.Equal(t, 1, c.snapshots)
	assert.True(t, c.mirror.Has(f.actor.ID))
	assert.True(t, c.mirror.Has(f.lot.ID))
	assert.Equal(t, []world.NetID{f.family.ID}, c.mirror.Entities(replication.KindFamily))
	assert.Equal(t, 1, f.server.SessionCount())
}

func TestJoinRefusesUnknownFamily(t *testing.T) {
	f := newFixture(t, nil)
	c := f.dial(t, replication.Hello{Name: "mallory", Family: uuid.New()})
	f.until(t, func() bool { return c.closed }, c)
	assert.False(t, c.mirror.Synced())
}

func TestEditorNeedsToken(t *testing.T) {
	f := newFixture(t, nil)
	bad := f.dial(t, replication.Hello{Name: "mallory", Role: string(placement.RoleEditor), Token: "guess"})
	f.until(t, func() bool { return bad.closed }, bad)

	good := f.editor(t)
	assert.Equal(t, string(placement.RoleEditor), good.welcome.Role)
}

func TestPlaceIntentReplicatesBeforeResult(t *testing.T) {
	f := newFixture(t, nil)
	c := f.join(t, replication.Hello{Name: "ada", Family: f.family.ID})
	other := f.join(t, replication.Hello{Name: "ben", Family: f.family.ID})

	id := c.intent(t, replication.Intent{
		Kind:       replication.IntentPlace,
		Family:     f.family.ID,
		Descriptor: "fridge",
		Position:   geom.V(10, 8),
	})
	f.until(t, func() bool { _, ok := c.result(id); return ok }, c, other)

	r, _ := c.result(id)
	require.True(t, r.Accepted, r.Reason)
	assert.NotEqual(t, world.City, r.Entity)
	assert.NotZero(t, r.Seq)
	assert.True(t, c.caughtUp[id], "deltas must arrive before the result")

	state, ok, err := replication.Get[replication.ObjectState](c.mirror, r.Entity, replication.ComponentObject)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fridge", state.Descriptor)
	assert.True(t, other.mirror.Has(r.Entity))

	want, _ := f.server.tracker.Hash(r.Entity)
	got, _ := other.mirror.Hash(r.Entity)
	assert.Equal(t, want, got)
}

func TestConcurrentIntentsApplyInReceiptOrder(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.server.engine.Apply(placement.Request{
		Op:         placement.OpPlace,
		Requester:  placement.Requester{Role: placement.RoleEditor},
		Descriptor: "boulder",
		Position:   geom.V(8, 20),
	})
	require.NoError(t, err)

	a := f.editor(t)
	b := f.editor(t)

	first := a.intent(t, replication.Intent{Kind: replication.IntentRemove, Target: res.Entity})
	require.Eventually(t, func() bool { return len(f.server.inbound) == 1 }, time.Second, time.Millisecond)
	second := b.intent(t, replication.Intent{Kind: replication.IntentRemove, Target: res.Entity})
	require.Eventually(t, func() bool { return len(f.server.inbound) == 2 }, time.Second, time.Millisecond)

	f.until(t, func() bool {
		_, okA := a.result(first)
		_, okB := b.result(second)
		return okA && okB
	}, a, b)

	ra, _ := a.result(first)
	rb, _ := b.result(second)
	assert.True(t, ra.Accepted)
	assert.False(t, rb.Accepted)
	assert.Equal(t, string(placement.ReasonUnknownEntity), rb.Reason)
	assert.False(t, b.mirror.Has(res.Entity))
}

func TestClaimsAreChecked(t *testing.T) {
	f := newFixture(t, nil)
	stranger := f.join(t, replication.Hello{Name: "eve"})
	player := f.join(t, replication.Hello{Name: "ada", Family: f.family.ID})

	forged := stranger.intent(t, replication.Intent{
		Kind:     replication.IntentMoveActor,
		Family:   f.family.ID,
		Actor:    f.actor.ID,
		Position: geom.V(6, 6),
	})
	noFamily := stranger.intent(t, replication.Intent{
		Kind:       replication.IntentPlace,
		Descriptor: "fridge",
		Position:   geom.V(10, 8),
	})
	own := player.intent(t, replication.Intent{
		Kind:     replication.IntentMoveActor,
		Family:   f.family.ID,
		Actor:    f.actor.ID,
		Position: geom.V(6, 6),
	})
	f.until(t, func() bool {
		_, a := stranger.result(forged)
		_, b := stranger.result(noFamily)
		_, c := player.result(own)
		return a && b && c
	}, stranger, player)

	r, _ := stranger.result(forged)
	assert.Equal(t, string(placement.ReasonPermissionDenied), r.Reason)
	r, _ = stranger.result(noFamily)
	assert.Equal(t, string(placement.ReasonPermissionDenied), r.Reason)
	r, _ = player.result(own)
	assert.True(t, r.Accepted, r.Reason)
	assert.Equal(t, f.actor.ID, r.Entity)
}

func TestCreateFamilyClaimsSession(t *testing.T) {
	f := newFixture(t, nil)
	c := f.join(t, replication.Hello{Name: "kai"})

	id := c.intent(t, replication.Intent{
		Kind:    replication.IntentCreateFamily,
		Name:    "Okafor",
		Budget:  1 << 40,
		Members: []replication.Member{{Name: "Kai", Position: geom.V(10, 20)}},
	})
	f.until(t, func() bool { _, ok := c.result(id); return ok }, c)
	r, _ := c.result(id)
	require.True(t, r.Accepted, r.Reason)

	family, ok := f.world.Family(r.Entity)
	require.True(t, ok)
	assert.Equal(t, f.server.config.StartingBudget, family.Budget)
	require.Len(t, family.Members, 1)

	walk := c.intent(t, replication.Intent{
		Kind:     replication.IntentMoveActor,
		Family:   family.ID,
		Actor:    family.Members[0],
		Position: geom.V(12, 20),
	})
	again := c.intent(t, replication.Intent{
		Kind:    replication.IntentCreateFamily,
		Name:    "Twice",
		Members: []replication.Member{{Name: "Zed", Position: geom.V(8, 20)}},
	})
	f.until(t, func() bool {
		_, a := c.result(walk)
		_, b := c.result(again)
		return a && b
	}, c)
	r, _ = c.result(walk)
	assert.True(t, r.Accepted, r.Reason)
	r, _ = c.result(again)
	assert.Equal(t, ReasonFamilyClaimed, r.Reason)

	gone := c.intent(t, replication.Intent{Kind: replication.IntentDeleteFamily, Family: family.ID})
	f.until(t, func() bool {
		_, ok := c.result(gone)
		return ok && slices.Contains(c.events, events.TypeFamilyDeleted)
	}, c)
	r, _ = c.result(gone)
	assert.True(t, r.Accepted, r.Reason)
	assert.False(t, c.mirror.Has(family.ID))
}

func TestIntentsAreRateLimited(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.IntentRate = 0.001
		c.IntentBurst = 1
	})
	c := f.join(t, replication.Hello{Name: "ada", Family: f.family.ID})

	var ids []uint64
	for range 3 {
		ids = append(ids, c.intent(t, replication.Intent{
			Kind:     replication.IntentMoveActor,
			Family:   f.family.ID,
			Actor:    f.actor.ID,
			Position: geom.V(6, 6),
		}))
	}
	f.until(t, func() bool { return len(c.results) == 3 }, c)

	r, _ := c.result(ids[0])
	assert.True(t, r.Accepted)
	for _, id := range ids[1:] {
		r, _ = c.result(id)
		assert.Equal(t, ReasonRateLimited, r.Reason)
	}
}

func TestResyncSendsSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	c := f.join(t, replication.Hello{Name: "ada", Family: f.family.ID})
	c.mirror.Desynced()

	c.send(t, replication.TypeResync, replication.Resync{Reason: "hash mismatch"})
	f.until(t, func() bool { return c.snapshots == 2 }, c)
	assert.True(t, c.mirror.Synced())
	assert.True(t, c.mirror.Has(f.actor.ID))
}

func TestReloadIsAnnounced(t *testing.T) {
	f := newFixture(t, nil)
	c := f.join(t, replication.Hello{Name: "ada", Family: f.family.ID})

	desc, ok := f.library.Get("boulder")
	require.True(t, ok)
	next := *desc
	next.Price = 20
	require.NoError(t, f.server.Reload(&next))

	f.until(t, func() bool { return slices.Contains(c.events, events.TypeDescriptorReloaded) }, c)
	got, _ := f.library.Get("boulder")
	assert.Equal(t, int64(20), got.Price)
}

func TestDisconnectDropsOnlyThatSession(t *testing.T) {
	f := newFixture(t, nil)
	a := f.join(t, replication.Hello{Name: "ada", Family: f.family.ID})
	b := f.join(t, replication.Hello{Name: "ben", Family: f.family.ID})
	require.Equal(t, 2, f.server.SessionCount())

	require.NoError(t, a.conn.Close())
	f.until(t, func() bool { return f.server.SessionCount() == 1 && len(f.server.live) == 1 }, b)

	id := b.intent(t, replication.Intent{
		Kind:       replication.IntentPlace,
		Family:     f.family.ID,
		Descriptor: "fridge",
		Position:   geom.V(10, 8),
	})
	f.until(t, func() bool { _, ok := b.result(id); return ok }, b)
	r, _ := b.result(id)
	assert.True(t, r.Accepted, r.Reason)
	assert.True(t, b.mirror.Has(r.Entity))
}

func TestFullSendQueueClosesSession(t *testing.T) {
	config := DefaultConfig()
	config.SendQueue = 1
	conn, _ := transport.Pipe(1)
	s := newSession(conn, replication.Hello{Name: "slow"}, placement.RolePlayer, config, log.NewNop())

	require.NoError(t, s.enqueue([]byte("a"), true))
	assert.ErrorIs(t, s.enqueue([]byte("b"), true), ErrSendQueueFull)
	assert.True(t, s.Closed())
	assert.ErrorIs(t, s.enqueue([]byte("c"), true), ErrSessionClosed)
}

func TestVerifyHaltsOnInvariantViolation(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.VerifyEveryTick = true })
	require.NoError(t, f.server.Step(f.ctx))

	desc, ok := f.library.Get("boulder")
	require.True(t, ok)
	// Added behind the spatial layer's back.
	rogue := f.world.Instantiate(desc, world.Transform{Position: geom.Lift(geom.V(8, 20), 0)}, world.City)
	require.NoError(t, f.world.AddObject(rogue))

	err := f.server.Step(f.ctx)
	assert.ErrorIs(t, err, navigation.ErrInvariantViolation)
}

func TestAutosave(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.AutosaveInterval = time.Nanosecond })
	require.NoError(t, f.server.Step(f.ctx))
	require.NoError(t, f.server.Step(f.ctx))
	assert.Equal(t, 2, f.store.count())
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.TickRate = 5 * time.Millisecond })
	ctx, cancel := context.WithTimeout(f.ctx, 100*time.Millisecond)
	defer cancel()

	require.NoError(t, f.server.Run(ctx, transport.NewPipeListener(1)))
	assert.Positive(t, f.server.Tick())
	assert.Equal(t, 1, f.store.count())

	require.NoError(t, f.server.Close())
	assert.ErrorIs(t, f.server.Run(f.ctx), ErrServerClosed)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	for name, mutate := range map[string]func(c *Config){
		"tick rate":   func(c *Config) { c.TickRate = 0 },
		"max clients": func(c *Config) { c.MaxClients = 0 },
		"send queue":  func(c *Config) { c.SendQueue = 0 },
		"intent rate": func(c *Config) { c.IntentRate = 0 },
		"budget":      func(c *Config) { c.StartingBudget = -1 },
		"tls pair":    func(c *Config) { c.TLSCert = "cert.pem" },
	} {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}

func TestMemberIntents(t *testing.T) {
	f := newFixture(t, nil)
	guests, err := f.server.sim.CreateFamily(sim.FamilySpec{Name: "Okafor", Members: []sim.MemberSpec{{Name: "Bo", Position: geom.V(10, 20)}}})
	require.NoError(t, err)
	bo := guests.Members[0]
	player := f.join(t, replication.Hello{Name: "ada", Family: f.family.ID})
	editor := f.editor(t)

	steal := player.intent(t, replication.Intent{Kind: replication.IntentMoveMember, Family: f.family.ID, Actor: bo, Target: f.family.ID})
	halt := player.intent(t, replication.Intent{Kind: replication.IntentCancelTasks, Family: f.family.ID, Actor: bo})
	walk := player.intent(t, replication.Intent{Kind: replication.IntentMoveActor, Family: f.family.ID, Actor: f.actor.ID, Position: geom.V(12, 12)})
	stop := player.intent(t, replication.Intent{Kind: replication.IntentCancelTasks, Family: f.family.ID, Actor: f.actor.ID})
	f.until(t, func() bool { return len(player.results) == 4 }, player)

	for _, id := range []uint64{steal, halt} {
		r, _ := player.result(id)
		assert.Equal(t, string(placement.ReasonPermissionDenied), r.Reason)
	}
	r, _ := player.result(walk)
	assert.True(t, r.Accepted, r.Reason)
	r, _ = player.result(stop)
	assert.True(t, r.Accepted, r.Reason)
	assert.Empty(t, f.actor.Tasks)

	give := player.intent(t, replication.Intent{Kind: replication.IntentMoveMember, Family: f.family.ID, Actor: f.actor.ID, Target: guests.ID})
	f.until(t, func() bool { _, ok := player.result(give); return ok }, player)
	r, _ = player.result(give)
	require.True(t, r.Accepted, r.Reason)
	assert.Equal(t, guests.ID, f.actor.Family)
	assert.Contains(t, guests.Members, f.actor.ID)
	assert.NotContains(t, f.family.Members, f.actor.ID)

	lost := player.intent(t, replication.Intent{Kind: replication.IntentMoveActor, Family: f.family.ID, Actor: f.actor.ID, Position: geom.V(6, 6)})
	back := editor.intent(t, replication.Intent{Kind: replication.IntentMoveMember, Actor: f.actor.ID, Target: f.family.ID})
	f.until(t, func() bool {
		_, a := player.result(lost)
		_, b := editor.result(back)
		return a && b
	}, player, editor)
	r, _ = player.result(lost)
	assert.Equal(t, string(placement.ReasonPermissionDenied), r.Reason)
	r, _ = editor.result(back)
	assert.True(t, r.Accepted, r.Reason)
	assert.Equal(t, f.family.ID, f.actor.Family)
}

func TestTellSecretIntent(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.TickRate = 200 * time.Millisecond })
	friend := &world.Actor{ID: f.world.NewID(), Name: "Bea", Family: f.family.ID, Position: geom.V(9, 3), Needs: world.FullNeeds()}
	require.NoError(t, f.world.AddActor(friend))
	f.family.Members = append(f.family.Members, friend.ID)
	f.actor.Needs.Social, friend.Needs.Social = 50, 50

	c := f.join(t, replication.Hello{Name: "ada", Family: f.family.ID})
	self := c.intent(t, replication.Intent{Kind: replication.IntentTellSecret, Family: f.family.ID, Actor: f.actor.ID, Target: f.actor.ID})
	id := c.intent(t, replication.Intent{Kind: replication.IntentTellSecret, Family: f.family.ID, Actor: f.actor.ID, Target: friend.ID})
	f.until(t, func() bool { return len(c.results) == 2 }, c)

	r, _ := c.result(self)
	assert.Equal(t, string(placement.ReasonInvalidRequest), r.Reason)
	r, _ = c.result(id)
	require.True(t, r.Accepted, r.Reason)

	f.until(t, func() bool { return f.actor.Needs.Social > 65 }, c)
	assert.Greater(t, friend.Needs.Social, 65.0)
}

func TestLotAndRoadIntents(t *testing.T) {
	f := newFixture(t, nil)
	player := f.join(t, replication.Hello{Name: "ada", Family: f.family.ID})
	editor := f.editor(t)

	outline := geom.Polygon{geom.V(1, 17), geom.V(7, 17), geom.V(7, 22), geom.V(1, 22)}
	denied := player.intent(t, replication.Intent{Kind: replication.IntentCreateLot, Family: f.family.ID, Vertices: outline})
	created := editor.intent(t, replication.Intent{Kind: replication.IntentCreateLot, Vertices: outline})
	f.until(t, func() bool {
		_, a := player.result(denied)
		_, b := editor.result(created)
		return a && b
	}, player, editor)
	r, _ := player.result(denied)
	assert.Equal(t, string(placement.ReasonPermissionDenied), r.Reason)
	r, _ = editor.result(created)
	require.True(t, r.Accepted, r.Reason)
	lot := r.Entity
	f.until(t, func() bool { return player.mirror.Has(lot) }, player, editor)

	buy := player.intent(t, replication.Intent{Kind: replication.IntentBuyLot, Family: f.family.ID, Target: lot})
	road := editor.intent(t, replication.Intent{Kind: replication.IntentCreateRoad, Start: geom.V(9, 20), End: geom.V(15, 20)})
	f.until(t, func() bool {
		_, a := player.result(buy)
		_, b := editor.result(road)
		return a && b
	}, player, editor)
	r, _ = player.result(buy)
	require.True(t, r.Accepted, r.Reason)
	got, ok := f.world.Lot(lot)
	require.True(t, ok)
	assert.Equal(t, f.family.ID, got.Owner)
	assert.Equal(t, int64(940), f.family.Budget)

	r, _ = editor.result(road)
	require.True(t, r.Accepted, r.Reason)
	roadID := r.Entity
	f.until(t, func() bool { return player.mirror.Has(roadID) }, player, editor)
	assert.Contains(t, player.mirror.Entities(replication.KindRoad), roadID)
}
