package world

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/homestead/internal/core/asset"
	"github.com/zeusync/homestead/internal/core/geom"
)

func testDescriptor() *asset.Descriptor {
	return &asset.Descriptor{
		ID:       "crate",
		Category: asset.CategoryFurniture,
		Bounds: asset.Bounds{
			Min: mgl64.Vec3{-1, 0, -0.5},
			Max: mgl64.Vec3{1, 1, 0.5},
		},
		Components: []asset.Component{asset.SceneCollider{}},
		SpawnComponents: []asset.Component{
			asset.Interaction{Name: "sit", Distance: 1.5, Need: "fun", Restore: 10, Duration: 2},
		},
	}
}

func sequentialIDs() func() NetID {
	var n byte
	return func() NetID {
		n++
		var id NetID
		id[15] = n
		return id
	}
}

func newTestWorld() *World {
	w := New(geom.Rect{Min: geom.V(0, 0), Max: geom.V(64, 64)})
	w.SetIDSource(sequentialIDs())
	return w
}

func TestInstantiate(t *testing.T) {
	w := newTestWorld()
	desc := testDescriptor()

	obj := w.Instantiate(desc, Transform{Position: mgl64.Vec3{10, 0, 5}, Yaw: math.Pi / 2}, City)
	assert.Equal(t, "crate", obj.Descriptor)
	assert.Equal(t, PermissionPrivate, obj.Permission)
	assert.Len(t, obj.Components, 2)
	assert.InDelta(t, 1.5, obj.TriggerRadius(), 1e-9)
	require.Len(t, obj.Adverts(), 1)

	fp, ok := obj.Footprint()
	require.True(t, ok)
	assert.Equal(t, geom.V(10, 5), fp.Center)
	poly := fp.Polygon()
	b := poly.Bounds()
	assert.InDelta(t, 9.5, b.Min.X(), 1e-9, "rotated a quarter turn the long side runs along z")
	assert.InDelta(t, 4, b.Min.Y(), 1e-9)
}

func TestAddRemove(t *testing.T) {
	w := newTestWorld()
	obj := w.Instantiate(testDescriptor(), Transform{}, City)
	require.NoError(t, w.AddObject(obj))
	assert.ErrorIs(t, w.AddObject(obj), ErrDuplicateEntity)
	assert.True(t, w.Exists(obj.ID))

	_, err := w.RemoveObject(obj.ID)
	require.NoError(t, err)
	_, err = w.RemoveObject(obj.ID)
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestWallLocal(t *testing.T) {
	wall := &Wall{Start: geom.V(2, 2), End: geom.V(2, 8)}
	local := wall.Local(geom.V(1, 5))
	assert.InDelta(t, 3, local.X(), 1e-9)
	assert.InDelta(t, 1, local.Y(), 1e-9)

	fp := wall.Footprint()
	assert.InDelta(t, 3, fp.Half.X(), 1e-9)
	assert.InDelta(t, WallHalfWidth, fp.Half.Y(), 1e-9)
}

func TestLotAt(t *testing.T) {
	w := newTestWorld()
	lot := &Lot{ID: w.NewID(), Polygon: geom.Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}}
	require.NoError(t, w.AddLot(lot))

	got, ok := w.LotAt(geom.V(5, 5))
	require.True(t, ok)
	assert.Equal(t, lot.ID, got.ID)

	_, ok = w.LotAt(geom.V(15, 5))
	assert.False(t, ok)
}

func TestLotContentsAndRemoval(t *testing.T) {
	w := newTestWorld()
	lot := &Lot{ID: w.NewID(), Polygon: geom.Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}}
	require.NoError(t, w.AddLot(lot))
	obj := w.Instantiate(testDescriptor(), Transform{Position: mgl64.Vec3{3, 0, 3}}, City)
	obj.Lot = lot.ID
	require.NoError(t, w.AddObject(obj))
	require.NoError(t, w.AddObject(w.Instantiate(testDescriptor(), Transform{Position: mgl64.Vec3{30, 0, 30}}, City)))
	wall := &Wall{ID: w.NewID(), Start: geom.V(1, 1), End: geom.V(1, 5), Lot: lot.ID}
	require.NoError(t, w.AddWall(wall))

	objects, walls := w.LotContents(lot.ID)
	require.Len(t, objects, 1)
	assert.Equal(t, obj.ID, objects[0].ID)
	require.Len(t, walls, 1)
	assert.Equal(t, wall.ID, walls[0].ID)

	_, err := w.RemoveLot(lot.ID)
	require.NoError(t, err)
	assert.False(t, w.Exists(lot.ID))
	_, err = w.RemoveLot(lot.ID)
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestRoadFootprint(t *testing.T) {
	w := newTestWorld()
	road := &Road{ID: w.NewID(), Start: geom.V(0, 0), End: geom.V(0, 10), HalfWidth: 2}
	require.NoError(t, w.AddRoad(road))
	assert.ErrorIs(t, w.AddRoad(road), ErrDuplicateEntity)
	assert.True(t, w.Exists(road.ID))

	b := road.Footprint().Polygon().Bounds()
	assert.InDelta(t, -2, b.Min.X(), 1e-9)
	assert.InDelta(t, 2, b.Max.X(), 1e-9)
	assert.InDelta(t, 10, b.Max.Y(), 1e-9)

	_, err := w.RemoveRoad(road.ID)
	require.NoError(t, err)
	assert.Empty(t, w.Roads())
}

func TestNeeds(t *testing.T) {
	n := FullNeeds()
	assert.True(t, n.Add("hunger", 50))
	assert.Equal(t, MaxNeed, n.Hunger)
	assert.True(t, n.Add("bladder", -150))
	assert.Equal(t, 0.0, n.Bladder)
	assert.False(t, n.Add("thirst", 1))

	name, value := n.Lowest()
	assert.Equal(t, "bladder", name)
	assert.Equal(t, 0.0, value)
}

func TestActorTasks(t *testing.T) {
	a := &Actor{ID: uuid.New()}
	first := a.PushTask(Task{Kind: TaskMoveHere, Dest: geom.V(1, 1)})
	second := a.PushTask(Task{Kind: TaskUse})
	assert.NotEqual(t, first, second)

	cur, ok := a.CurrentTask()
	require.True(t, ok)
	assert.Equal(t, first, cur.ID)

	goal := a.Goal
	a.PopTask()
	assert.Equal(t, goal+1, a.Goal)
	cur, _ = a.CurrentTask()
	assert.Equal(t, second, cur.ID)

	a.CancelTasks()
	_, ok = a.CurrentTask()
	assert.False(t, ok)
}

func TestSnapshotRestore(t *testing.T) {
	w := newTestWorld()
	desc := testDescriptor()
	family := &Family{ID: w.NewID(), Name: "Smith", Budget: 1000}
	require.NoError(t, w.AddFamily(family))
	actor := &Actor{ID: w.NewID(), Family: family.ID, Needs: FullNeeds()}
	require.NoError(t, w.AddActor(actor))
	family.Members = append(family.Members, actor.ID)
	require.NoError(t, w.AddObject(w.Instantiate(desc, Transform{Position: mgl64.Vec3{3, 0, 3}}, family.ID)))
	require.NoError(t, w.AddWall(&Wall{ID: w.NewID(), Start: geom.V(0, 0), End: geom.V(4, 0)}))
	require.NoError(t, w.AddRoad(&Road{ID: w.NewID(), Start: geom.V(0, 20), End: geom.V(30, 20), HalfWidth: 1.5}))

	first, err := w.Snapshot().Encode()
	require.NoError(t, err)
	second, err := w.Snapshot().Encode()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	decoded, err := DecodeSnapshot(first)
	require.NoError(t, err)
	restored, err := Restore(decoded, func(id string) (*asset.Descriptor, bool) {
		return desc, id == desc.ID
	})
	require.NoError(t, err)

	again, err := restored.Snapshot().Encode()
	require.NoError(t, err)
	assert.Equal(t, first, again)

	require.Len(t, restored.Roads(), 1)
	assert.Equal(t, 1.5, restored.Roads()[0].HalfWidth)

	obj := restored.Objects()[0]
	assert.Same(t, desc, obj.Desc)
	assert.Len(t, obj.Components, 2)

	_, err = Restore(decoded, func(string) (*asset.Descriptor, bool) { return nil, false })
	assert.ErrorIs(t, err, asset.ErrUnknownDescriptor)
}

func TestSnapshotIsDeep(t *testing.T) {
	w := newTestWorld()
	family := &Family{ID: w.NewID(), Members: []NetID{w.NewID()}}
	require.NoError(t, w.AddFamily(family))

	snap := w.Snapshot()
	family.Members = append(family.Members, w.NewID())
	assert.Len(t, snap.Families[0].Members, 1)
}
