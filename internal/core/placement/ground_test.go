package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/homestead/internal/core/events"
	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/world"
)

// cityLot outlines a 6x5 lot on the city ground of the fixture.
func cityLot(x float64) geom.Polygon {
	return geom.Polygon{geom.V(x, 17), geom.V(x+6, 17), geom.V(x+6, 22), geom.V(x, 22)}
}

func (f *fixture) createLot(t *testing.T, outline geom.Polygon) *world.Lot {
	t.Helper()
	res, err := f.engine.Apply(Request{Op: OpCreateLot, Requester: f.editor, Vertices: outline})
	require.NoError(t, err)
	lot, ok := f.world.Lot(res.Entity)
	require.True(t, ok)
	return lot
}

func TestCreateLot(t *testing.T) {
	f := newFixture(t)

	lot := f.createLot(t, cityLot(1))
	assert.Equal(t, world.City, lot.Owner)
	got, ok := f.world.LotAt(geom.V(3, 19))
	require.True(t, ok)
	assert.Equal(t, lot.ID, got.ID)
	assert.Contains(t, f.events.types(), events.TypeLotCreated)

	// Furniture is now allowed where only city objects were.
	f.place(t, f.editor, "dining_table", 4, 19.5)

	before := encoded(t, f.world)
	for _, tc := range []struct {
		name    string
		outline geom.Polygon
		who     Requester
		reason  Reason
	}{
		{"overlaps the family lot", geom.Polygon{geom.V(8, 14), geom.V(12, 14), geom.V(12, 20), geom.V(8, 20)}, f.editor, ReasonCollision},
		{"overlaps the new lot", cityLot(5), f.editor, ReasonCollision},
		{"leaves the world", geom.Polygon{geom.V(10, 18), geom.V(18, 18), geom.V(18, 22), geom.V(10, 22)}, f.editor, ReasonOutOfBounds},
		{"not convex", geom.Polygon{geom.V(8, 17), geom.V(15, 17), geom.V(10, 19), geom.V(15, 22), geom.V(8, 22)}, f.editor, ReasonInvalidRequest},
		{"degenerate", geom.Polygon{geom.V(8, 17), geom.V(15, 17)}, f.editor, ReasonInvalidRequest},
		{"player", cityLot(8), f.player, ReasonPermissionDenied},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Apply(Request{Op: OpCreateLot, Requester: tc.who, Vertices: tc.outline})
			requireReason(t, err, tc.reason)
		})
	}
	assert.Equal(t, before, encoded(t, f.world))
}

func TestCreateLotOverCityObjectRejected(t *testing.T) {
	f := newFixture(t)
	f.place(t, f.editor, "boulder", 4, 20)

	_, err := f.engine.Apply(Request{Op: OpCreateLot, Requester: f.editor, Vertices: cityLot(1)})
	requireReason(t, err, ReasonCollision)
	assert.Len(t, f.world.Lots(), 1)
}

func TestMoveAndRemoveLot(t *testing.T) {
	f := newFixture(t)
	lot := f.createLot(t, cityLot(1))

	res, err := f.engine.Apply(Request{Op: OpMoveLot, Requester: f.editor, Target: lot.ID, Position: geom.V(8, 0)})
	require.NoError(t, err)
	assert.Equal(t, lot.ID, res.Entity)
	moved, ok := f.world.Lot(lot.ID)
	require.True(t, ok)
	assert.Equal(t, geom.V(9, 17), moved.Polygon[0])
	_, ok = f.world.LotAt(geom.V(3, 19))
	assert.False(t, ok)

	_, err = f.engine.Apply(Request{Op: OpMoveLot, Requester: f.editor, Target: lot.ID, Position: geom.V(0, -3)})
	requireReason(t, err, ReasonCollision)

	f.place(t, f.player, "fridge", 4, 6)
	_, err = f.engine.Apply(Request{Op: OpRemoveLot, Requester: f.editor, Target: f.lot.ID})
	requireReason(t, err, ReasonInvalidRequest)

	table := f.place(t, f.editor, "dining_table", 12, 19.5).Entity
	_, err = f.engine.Apply(Request{Op: OpMoveLot, Requester: f.editor, Target: lot.ID, Position: geom.V(-8, 0)})
	requireReason(t, err, ReasonInvalidRequest)

	_, err = f.engine.Apply(Request{Op: OpRemove, Requester: f.editor, Target: table})
	require.NoError(t, err)
	_, err = f.engine.Apply(Request{Op: OpRemoveLot, Requester: f.player, Target: lot.ID})
	requireReason(t, err, ReasonPermissionDenied)
	_, err = f.engine.Apply(Request{Op: OpRemoveLot, Requester: f.editor, Target: lot.ID})
	require.NoError(t, err)
	assert.False(t, f.world.Exists(lot.ID))
	assert.Subset(t, f.events.types(), []string{events.TypeLotMoved, events.TypeLotRemoved})
}

func TestBuyLot(t *testing.T) {
	f := newFixture(t)
	lot := f.createLot(t, cityLot(1))
	table := f.place(t, f.editor, "dining_table", 4, 19.5).Entity
	obj, _ := f.world.Object(table)
	assert.Equal(t, world.City, obj.Owner)

	f.family.Budget = 10
	_, err := f.engine.Apply(Request{Op: OpBuyLot, Requester: f.player, Target: lot.ID})
	requireReason(t, err, ReasonInsufficientFunds)
	assert.Equal(t, world.City, lot.Owner)

	f.family.Budget = 1000
	res, err := f.engine.Apply(Request{Op: OpBuyLot, Requester: f.player, Target: lot.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(60), res.Charged, "30 square meters at 2 each")
	assert.Equal(t, int64(940), f.family.Budget)
	assert.Equal(t, f.family.ID, lot.Owner)
	assert.Equal(t, f.family.ID, obj.Owner, "what stands on the lot goes with it")
	assert.Contains(t, f.events.types(), events.TypeLotBought)

	// The new owner builds there like on its first lot.
	f.place(t, f.player, "fridge", 6, 21)

	stranger := &world.Family{ID: f.world.NewID(), Name: "Okafor", Budget: 5000}
	require.NoError(t, f.world.AddFamily(stranger))
	_, err = f.engine.Apply(Request{Op: OpBuyLot, Requester: Requester{Family: stranger.ID, Role: RolePlayer}, Target: lot.ID})
	requireReason(t, err, ReasonPermissionDenied)

	_, err = f.engine.Apply(Request{Op: OpBuyLot, Requester: f.editor, Target: f.world.NewID()})
	requireReason(t, err, ReasonUnknownEntity)
}

func TestRoads(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Apply(Request{Op: OpCreateRoad, Requester: f.editor, Start: geom.V(1, 20), End: geom.V(8, 20)})
	require.NoError(t, err)
	road, ok := f.world.Road(res.Entity)
	require.True(t, ok)
	assert.Equal(t, DefaultConfig().RoadHalfWidth, road.HalfWidth)
	assert.Contains(t, f.events.types(), events.TypeRoadCreated)

	// A second road joins the end of the first.
	res, err = f.engine.Apply(Request{Op: OpCreateRoad, Requester: f.editor, Start: geom.V(8.5, 20.3), End: geom.V(14, 20)})
	require.NoError(t, err)
	joined, _ := f.world.Road(res.Entity)
	assert.Equal(t, geom.V(8, 20), joined.Start)

	_, err = f.engine.Apply(Request{Op: OpCreateRoad, Requester: f.editor, Start: geom.V(4, 12), End: geom.V(4, 22)})
	requireReason(t, err, ReasonCollision)
	_, err = f.engine.Apply(Request{Op: OpCreateRoad, Requester: f.player, Start: geom.V(1, 23), End: geom.V(8, 23)})
	requireReason(t, err, ReasonPermissionDenied)
	_, err = f.engine.Apply(Request{Op: OpCreateRoad, Requester: f.editor, Start: geom.V(1, 23), End: geom.V(1.2, 23)})
	requireReason(t, err, ReasonInvalidRequest)

	_, err = f.engine.Apply(Request{Op: OpPlace, Requester: f.editor, Descriptor: "boulder", Position: geom.V(4, 20)})
	requireReason(t, err, ReasonCollision)
	_, err = f.engine.Apply(Request{Op: OpCreateLot, Requester: f.editor, Vertices: cityLot(1)})
	requireReason(t, err, ReasonCollision)

	// Roads do not block walking.
	require.NoError(t, f.layer.Verify(f.world))
	assert.True(t, f.layer.Working().WalkableAt(geom.V(4, 20)))

	_, err = f.engine.Apply(Request{Op: OpRemoveRoad, Requester: f.editor, Target: road.ID})
	require.NoError(t, err)
	assert.False(t, f.world.Exists(road.ID))
	f.place(t, f.editor, "boulder", 4, 20)
}

func TestStaleLotTicketKeepsID(t *testing.T) {
	f := newFixture(t)
	ticket, err := f.engine.Validate(Request{Op: OpCreateLot, Requester: f.editor, Vertices: cityLot(1)})
	require.NoError(t, err)
	f.engine.Invalidate()

	res, err := f.engine.Commit(ticket)
	require.NoError(t, err)
	assert.Equal(t, ticket.plan.entity, res.Entity)
	assert.True(t, f.world.Exists(res.Entity))
}
