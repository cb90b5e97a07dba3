package placement

import (
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/homestead/internal/core/asset"
	"github.com/zeusync/homestead/internal/core/events"
	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/navigation"
	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/spatial"
	"github.com/zeusync/homestead/internal/core/world"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(e events.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type()
	}
	return out
}

type fixture struct {
	world   *world.World
	layer   *spatial.Layer
	library *asset.Library
	engine  *Engine
	events  *recorder

	family *world.Family
	lot    *world.Lot
	player Requester
	editor Requester
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

// newFixture builds a 16x24 world. The family lot covers y 0..16, city
// ground the rest. Two family members stand at (4,3) and (4,13).
func newFixture(t *testing.T) *fixture {
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
	for _, a := range []struct {
		name string
		pos  geom.Vec2
	}{{"Ada", geom.V(4, 3)}, {"Ben", geom.V(4, 13)}} {
		actor := &world.Actor{ID: w.NewID(), Name: a.name, Family: family.ID, Position: a.pos, Needs: world.FullNeeds()}
		require.NoError(t, w.AddActor(actor))
		family.Members = append(family.Members, actor.ID)
	}

	library := asset.NewLibrary(log.NewNop())
	_, err := library.LoadDir(filepath.Join("..", "..", "..", "testdata", "assets"))
	require.NoError(t, err)

	cfg := navigation.DefaultConfig()
	cfg.TileSize = 16
	layer, err := spatial.Build(cfg, w, log.NewNop())
	require.NoError(t, err)

	bus := events.NewBus()
	rec := &recorder{}
	_, err = bus.Subscribe(events.Wildcard, rec.handle)
	require.NoError(t, err)

	return &fixture{
		world:   w,
		layer:   layer,
		library: library,
		engine:  NewEngine(DefaultConfig(), w, layer, library, bus, log.NewNop()),
		events:  rec,
		family:  family,
		lot:     lot,
		player:  Requester{Family: family.ID, Role: RolePlayer},
		editor:  Requester{Role: RoleEditor},
	}
}

func (f *fixture) place(t *testing.T, who Requester, descriptor string, x, y float64) Result {
	t.Helper()
	res, err := f.engine.Apply(Request{Op: OpPlace, Requester: who, Descriptor: descriptor, Position: geom.V(x, y)})
	require.NoError(t, err)
	return res
}

func (f *fixture) wall(t *testing.T, from, to geom.Vec2) *world.Wall {
	t.Helper()
	res, err := f.engine.Apply(Request{Op: OpCreateWall, Requester: f.editor, Start: from, End: to})
	require.NoError(t, err)
	wall, ok := f.world.Wall(res.Entity)
	require.True(t, ok)
	return wall
}

func requireReason(t *testing.T, err error, want Reason) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrRejected)
	reason, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, want, reason)
}

func encoded(t *testing.T, w *world.World) []byte {
	t.Helper()
	data, err := w.Snapshot().Encode()
	require.NoError(t, err)
	return data
}

func TestPlaceChargesFamily(t *testing.T) {
	f := newFixture(t)

	res := f.place(t, f.player, "dining_table", 4, 6)
	assert.Equal(t, OpPlace, res.Op)
	assert.Equal(t, int64(120), res.Charged)
	assert.Equal(t, int64(880), f.family.Budget)

	table, ok := f.world.Object(res.Entity)
	require.True(t, ok)
	assert.Equal(t, f.lot.ID, table.Lot)
	assert.Equal(t, f.family.ID, table.Owner)

	assert.False(t, f.layer.Working().WalkableAt(geom.V(4, 6)))
	assert.True(t, f.layer.Mesh().WalkableAt(geom.V(4, 6)), "published mesh changes only at publish")
	f.layer.Publish()
	assert.False(t, f.layer.Mesh().WalkableAt(geom.V(4, 6)))

	assert.Contains(t, f.events.types(), events.TypeObjectPlaced)
	require.NoError(t, f.layer.Verify(f.world))
}

func TestDisconnectingPlacementRejected(t *testing.T) {
	f := newFixture(t)
	f.wall(t, geom.V(0, 8), geom.V(7, 8))
	f.wall(t, geom.V(9, 8), geom.V(16, 8))
	f.layer.Publish()

	before := encoded(t, f.world)
	working := f.layer.Working().Fingerprint()

	_, err := f.engine.Apply(Request{Op: OpPlace, Requester: f.player, Descriptor: "dining_table", Position: geom.V(8, 8)})
	requireReason(t, err, ReasonConnectivityBreak)

	assert.Equal(t, before, encoded(t, f.world))
	assert.Equal(t, working, f.layer.Working().Fingerprint())
	assert.Equal(t, int64(1000), f.family.Budget)
	assert.Contains(t, f.events.types(), events.TypePlacementRejected)

	f.place(t, f.player, "dining_table", 4, 5)
}

func TestCategoryRules(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Apply(Request{Op: OpPlace, Requester: f.player, Descriptor: "street_lamp", Position: geom.V(10, 4)})
	requireReason(t, err, ReasonCategoryMismatch)

	_, err = f.engine.Apply(Request{Op: OpPlace, Requester: f.editor, Descriptor: "dining_table", Position: geom.V(8, 20)})
	requireReason(t, err, ReasonCategoryMismatch)

	res := f.place(t, f.editor, "boulder", 8, 20)
	assert.Zero(t, res.Charged)
	boulder, ok := f.world.Object(res.Entity)
	require.True(t, ok)
	assert.Equal(t, world.City, boulder.Owner)
	assert.Equal(t, world.City, boulder.Lot)

	_, err = f.engine.Apply(Request{Op: OpPlace, Requester: f.player, Descriptor: "nope", Position: geom.V(8, 4)})
	requireReason(t, err, ReasonUnknownDescriptor)

	_, err = f.engine.Apply(Request{Op: OpPlace, Requester: f.editor, Descriptor: "boulder", Position: geom.V(8, 30)})
	requireReason(t, err, ReasonOutOfBounds)
}

func TestCollision(t *testing.T) {
	f := newFixture(t)
	f.wall(t, geom.V(0, 8), geom.V(7, 8))
	f.place(t, f.player, "dining_table", 4, 5)

	_, err := f.engine.Apply(Request{Op: OpPlace, Requester: f.player, Descriptor: "fridge", Position: geom.V(4.5, 5.2)})
	requireReason(t, err, ReasonCollision)

	_, err = f.engine.Apply(Request{Op: OpPlace, Requester: f.player, Descriptor: "fridge", Position: geom.V(3, 8.2)})
	requireReason(t, err, ReasonCollision)

	_, err = f.engine.Apply(Request{Op: OpCreateWall, Requester: f.editor, Start: geom.V(2, 5), End: geom.V(6, 5)})
	requireReason(t, err, ReasonCollision)
}

func TestOwnershipAndFunds(t *testing.T) {
	f := newFixture(t)
	stranger := &world.Family{ID: f.world.NewID(), Name: "Okafor", Budget: 5000}
	require.NoError(t, f.world.AddFamily(stranger))
	other := Requester{Family: stranger.ID, Role: RolePlayer}

	_, err := f.engine.Apply(Request{Op: OpPlace, Requester: other, Descriptor: "dining_table", Position: geom.V(10, 4)})
	requireReason(t, err, ReasonPermissionDenied)

	_, err = f.engine.Apply(Request{Op: OpPlace, Requester: f.player, Descriptor: "street_lamp", Position: geom.V(8, 20)})
	requireReason(t, err, ReasonPermissionDenied)

	table := f.place(t, f.player, "dining_table", 10, 4).Entity

	_, err = f.engine.Apply(Request{Op: OpRemove, Requester: other, Target: table})
	requireReason(t, err, ReasonPermissionDenied)
	_, err = f.engine.Apply(Request{Op: OpSetPermission, Requester: other, Target: table, Permission: world.PermissionPublic})
	requireReason(t, err, ReasonPermissionDenied)

	res, err := f.engine.Apply(Request{Op: OpSetPermission, Requester: f.player, Target: table, Permission: world.PermissionPublic})
	require.NoError(t, err)
	assert.Equal(t, OpSetPermission, res.Op)
	obj, _ := f.world.Object(table)
	assert.Equal(t, world.PermissionPublic, obj.Permission)

	res, err = f.engine.Apply(Request{Op: OpMove, Requester: f.player, Target: table, Position: geom.V(12, 6), Yaw: math.Pi / 2})
	require.NoError(t, err)
	assert.Zero(t, res.Charged)
	obj, _ = f.world.Object(table)
	assert.Equal(t, geom.V(12, 6), obj.Transform.Ground())
	assert.Equal(t, world.PermissionPublic, obj.Permission)

	res, err = f.engine.Apply(Request{Op: OpRemove, Requester: f.player, Target: table})
	require.NoError(t, err)
	assert.Equal(t, int64(-120), res.Charged)
	assert.Equal(t, int64(1000), f.family.Budget)
	assert.False(t, f.world.Exists(table))

	_, err = f.engine.Apply(Request{Op: OpRemove, Requester: f.player, Target: table})
	requireReason(t, err, ReasonUnknownEntity)

	f.family.Budget = 100
	_, err = f.engine.Apply(Request{Op: OpPlace, Requester: f.player, Descriptor: "dining_table", Position: geom.V(10, 4)})
	requireReason(t, err, ReasonInsufficientFunds)
	require.NoError(t, f.layer.Verify(f.world))
}

func TestClassicDoorSnapsIntoWall(t *testing.T) {
	f := newFixture(t)
	wall := f.wall(t, geom.V(2, 12), geom.V(12, 12))

	_, err := f.engine.Apply(Request{Op: OpPlace, Requester: f.player, Descriptor: "classic_door", Position: geom.V(5, 14)})
	requireReason(t, err, ReasonRequiresWall)

	res := f.place(t, f.player, "classic_door", 5, 12.4)
	assert.Equal(t, int64(150), res.Charged)
	door, ok := f.world.Object(res.Entity)
	require.True(t, ok)
	assert.Equal(t, wall.ID, door.Wall)
	assert.Equal(t, f.family.ID, door.Owner)
	assert.InDelta(t, 5, door.Transform.Position.X(), 1e-9)
	assert.InDelta(t, 12, door.Transform.Position.Z(), 1e-9)
	assert.InDelta(t, 0, door.Transform.Yaw, 1e-9)

	ap, ok := f.layer.Aperture(wall.ID)
	require.True(t, ok)
	assert.InDelta(t, 0.872*2.034, ap.Area, 1e-6)
	assert.Empty(t, ap.Holes)
	assert.Len(t, ap.Portals, 1)

	trigger, ok := f.layer.Trigger(door.ID)
	require.True(t, ok)
	assert.InDelta(t, 2.5, trigger.Radius, 1e-9)

	// The wall keeps its collision across the door.
	_, err = f.engine.Apply(Request{Op: OpPlace, Requester: f.player, Descriptor: "dining_table", Position: geom.V(5, 12.5)})
	requireReason(t, err, ReasonCollision)

	clock := f.place(t, f.player, "wall_clock", 8, 11.6)
	obj, _ := f.world.Object(clock.Entity)
	assert.Equal(t, wall.ID, obj.Wall)
	assert.InDelta(t, 11.84, obj.Transform.Position.Z(), 1e-9)
	assert.InDelta(t, -1, math.Cos(obj.Transform.Yaw), 1e-9)

	removed, err := f.engine.Apply(Request{Op: OpRemoveWall, Requester: f.editor, Target: wall.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []world.NetID{door.ID, clock.Entity}, removed.Removed)
	assert.Empty(t, f.world.Objects())
	assert.Contains(t, f.events.types(), events.TypeWallRemoved)
	require.NoError(t, f.layer.Verify(f.world))
}

func TestWallRules(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Apply(Request{Op: OpCreateWall, Requester: f.editor, Start: geom.V(4, 10), End: geom.V(4, 20)})
	requireReason(t, err, ReasonOutOfBounds)

	_, err = f.engine.Apply(Request{Op: OpCreateWall, Requester: f.editor, Start: geom.V(4, 10), End: geom.V(4.1, 10)})
	requireReason(t, err, ReasonInvalidRequest)

	res, err := f.engine.Apply(Request{Op: OpCreateWall, Requester: f.player, Start: geom.V(10, 2), End: geom.V(13.5, 2)})
	require.NoError(t, err)
	assert.Equal(t, int64(40), res.Charged)

	_, err = f.engine.Apply(Request{Op: OpCreateWall, Requester: f.player, Start: geom.V(2, 18), End: geom.V(6, 18)})
	requireReason(t, err, ReasonPermissionDenied)
}

func TestCommitRevalidatesStaleTicket(t *testing.T) {
	f := newFixture(t)

	first, err := f.engine.Validate(Request{Op: OpPlace, Requester: f.player, Descriptor: "dining_table", Position: geom.V(4, 6)})
	require.NoError(t, err)
	second, err := f.engine.Validate(Request{Op: OpPlace, Requester: f.player, Descriptor: "fridge", Position: geom.V(4, 6.2)})
	require.NoError(t, err)
	assert.Equal(t, StateValidated, second.State)

	_, err = f.engine.Commit(first)
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, first.State)

	_, err = f.engine.Commit(second)
	requireReason(t, err, ReasonCollision)
	assert.Equal(t, StateRejected, second.State)
	assert.Len(t, f.world.Objects(), 1)

	_, err = f.engine.Commit(first)
	assert.Error(t, err)
}

func TestRevalidateAfterReload(t *testing.T) {
	f := newFixture(t)
	near := f.place(t, f.player, "dining_table", 4, 6).Entity
	f.place(t, f.player, "fridge", 4, 8.2)
	far := f.place(t, f.player, "dining_table", 12, 3).Entity

	orig, ok := f.library.Get("dining_table")
	require.True(t, ok)
	bigger := *orig
	bigger.Bounds = asset.Bounds{Min: mgl64.Vec3{-0.8, 0, -2}, Max: mgl64.Vec3{0.8, 0.75, 2}}
	_, err := f.library.Replace(&bigger)
	require.NoError(t, err)

	replaced, removed, err := f.engine.Revalidate("dining_table")
	require.NoError(t, err)
	assert.Equal(t, []world.NetID{far}, replaced)
	assert.Equal(t, []world.NetID{near}, removed)

	obj, ok := f.world.Object(far)
	require.True(t, ok)
	assert.Same(t, &bigger, obj.Desc)
	assert.False(t, f.world.Exists(near))
	assert.Contains(t, f.events.types(), events.TypeObjectInvalidated)
	require.NoError(t, f.layer.Verify(f.world))
}
