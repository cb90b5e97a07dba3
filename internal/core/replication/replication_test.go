package replication

import (
	"encoding/binary"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/homestead/internal/core/asset"
	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/spatial"
	"github.com/zeusync/homestead/internal/core/world"
)

type scene struct {
	world  *world.World
	family *world.Family
	actor  *world.Actor
	object *world.Object
	wall   *world.Wall
	fridge *asset.Descriptor
}

func sequentialIDs() func() world.NetID {
	var n uint64
	return func() world.NetID {
		n++
		var id uuid.UUID
		binary.BigEndian.PutUint64(id[8:], n)
		return id
	}
}

func newScene(t *testing.T) *scene {
	t.Helper()
	fridge, err := asset.LoadFile(filepath.Join("..", "..", "..", "testdata", "assets", "fridge.yaml"))
	require.NoError(t, err)

	w := world.New(geom.Rect{Min: geom.V(0, 0), Max: geom.V(16, 16)})
	w.SetIDSource(sequentialIDs())

	s := &scene{world: w, fridge: fridge}
	s.family = &world.Family{ID: w.NewID(), Name: "Okafor", Budget: 400}
	require.NoError(t, w.AddFamily(s.family))
	lot := &world.Lot{ID: w.NewID(), Polygon: geom.Polygon{geom.V(0, 0), geom.V(8, 0), geom.V(8, 8), geom.V(0, 8)}, Owner: s.family.ID}
	require.NoError(t, w.AddLot(lot))
	s.wall = &world.Wall{ID: w.NewID(), Start: geom.V(1, 6), End: geom.V(7, 6), Owner: s.family.ID, Lot: lot.ID}
	require.NoError(t, w.AddWall(s.wall))
	s.actor = &world.Actor{
		ID:       w.NewID(),
		Name:     "Chidi",
		Family:   s.family.ID,
		Position: geom.V(2, 2),
		Needs:    world.FullNeeds(),
		Activity: world.ActivityIdle,
	}
	require.NoError(t, w.AddActor(s.actor))
	s.family.Members = []world.NetID{s.actor.ID}
	s.object = s.place(t, geom.V(4, 3))
	return s
}

func (s *scene) place(t *testing.T, at geom.Vec2) *world.Object {
	t.Helper()
	o := s.world.Instantiate(s.fridge, world.Transform{Position: geom.Lift(at, 0)}, s.family.ID)
	require.NoError(t, s.world.AddObject(o))
	return o
}

func roundTrip[T any](t *testing.T, typ MessageType, v T) T {
	t.Helper()
	data, err := Encode(typ, v)
	require.NoError(t, err)
	env, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, typ, env.Type)
	var out T
	require.NoError(t, env.Into(&out))
	return out
}

func synced(t *testing.T, s *scene, tr *Tracker) *Mirror {
	t.Helper()
	_, _, err := tr.Diff(s.world)
	require.NoError(t, err)
	m := NewMirror(8)
	m.ApplySnapshot(roundTrip(t, TypeSnapshot, tr.Snapshot()))
	return m
}

func diff(t *testing.T, s *scene, tr *Tracker) (rel, unrel []Delta) {
	t.Helper()
	s.world.Tick++
	rel, unrel, err := tr.Diff(s.world)
	require.NoError(t, err)
	return rel, unrel
}

func TestEnvelope(t *testing.T) {
	small, err := Encode(TypeResync, Resync{Reason: "hash"})
	require.NoError(t, err)
	assert.Contains(t, string(small), `"payload":{"reason":"hash"}`)

	big := Resync{Reason: strings.Repeat("ab", CompressThreshold)}
	data, err := Encode(TypeResync, big)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"payload"`)
	assert.Less(t, len(data), CompressThreshold)

	env, err := Decode(data)
	require.NoError(t, err)
	var out Resync
	require.NoError(t, env.Into(&out))
	assert.Equal(t, big, out)

	_, err = Decode([]byte(`{"payload":{}}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
	_, err = Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

type apertures map[world.NetID]spatial.Aperture

func (a apertures) Aperture(id world.NetID) (spatial.Aperture, bool) {
	ap, ok := a[id]
	return ap, ok
}

func TestTrackerDiffs(t *testing.T) {
	s := newScene(t)
	cut := apertures{}
	tr := NewTracker(cut, 0)

	rel, unrel, err := tr.Diff(s.world)
	require.NoError(t, err)
	assert.Empty(t, unrel)
	require.Len(t, rel, 5)
	kinds := make([]EntityKind, 0, len(rel))
	for _, d := range rel {
		assert.True(t, d.Spawn)
		assert.True(t, d.Reliable)
		assert.Equal(t, uint64(1), d.Seq)
		assert.Zero(t, d.PrevReliable)
		kinds = append(kinds, d.Kind)
	}
	assert.Equal(t, []EntityKind{KindLot, KindWall, KindFamily, KindObject, KindActor}, kinds)

	rel, unrel = diff(t, s, tr)
	assert.Empty(t, rel, "nothing changed")
	assert.Empty(t, unrel)

	// Walking is cosmetic.
	s.actor.Position = geom.V(2.5, 2)
	s.actor.Activity = world.ActivityWalking
	rel, unrel = diff(t, s, tr)
	assert.Empty(t, rel)
	require.Len(t, unrel, 1)
	assert.Equal(t, s.actor.ID, unrel[0].Entity)
	assert.Equal(t, uint64(2), unrel[0].Seq)
	assert.Equal(t, uint64(1), unrel[0].PrevReliable)
	assert.Contains(t, unrel[0].Changes, ComponentMotion)

	// A task is topology.
	s.actor.PushTask(world.Task{Kind: world.TaskMoveHere, Dest: geom.V(6, 2)})
	rel, _ = diff(t, s, tr)
	require.Len(t, rel, 1)
	assert.Equal(t, uint64(3), rel[0].Seq)
	assert.Equal(t, uint64(1), rel[0].PrevReliable)
	assert.Contains(t, rel[0].Changes, ComponentTask)
	hash, ok := tr.Hash(s.actor.ID)
	require.True(t, ok)
	assert.Equal(t, hash, rel[0].Hash)

	// Cutouts appear on the wall once something is mounted.
	cut[s.wall.ID] = spatial.Aperture{
		Wall:    s.wall.ID,
		Cutouts: []geom.Polygon{{geom.V(1, 0), geom.V(2, 0), geom.V(2, 2), geom.V(1, 2)}},
		Pieces:  []geom.Polygon{{geom.V(1, 0), geom.V(2, 0), geom.V(2, 2), geom.V(1, 2)}},
		Portals: []geom.Interval{{Lo: 1, Hi: 2}},
	}
	rel, _ = diff(t, s, tr)
	require.Len(t, rel, 1)
	assert.Equal(t, s.wall.ID, rel[0].Entity)
	assert.Contains(t, rel[0].Changes, ComponentCutouts)

	delete(cut, s.wall.ID)
	rel, _ = diff(t, s, tr)
	require.Len(t, rel, 1)
	assert.Equal(t, json.RawMessage("null"), rel[0].Changes[ComponentCutouts])

	_, err = s.world.RemoveObject(s.object.ID)
	require.NoError(t, err)
	rel, _ = diff(t, s, tr)
	require.Len(t, rel, 1)
	assert.True(t, rel[0].Despawn)
	assert.Equal(t, rel[0].Seq, tr.Seq(s.object.ID))
	assert.Equal(t, 4, tr.Len())
}

func TestTrackerRefreshesUnreliable(t *testing.T) {
	s := newScene(t)
	tr := NewTracker(nil, 2)
	_, _, err := tr.Diff(s.world)
	require.NoError(t, err)

	_, unrel := diff(t, s, tr)
	require.Len(t, unrel, 1, "second diff resends cosmetic state")
	assert.Contains(t, unrel[0].Changes, ComponentNeeds)
	assert.Contains(t, unrel[0].Changes, ComponentMotion)

	_, unrel = diff(t, s, tr)
	assert.Empty(t, unrel)
}

func TestMirrorConverges(t *testing.T) {
	s := newScene(t)
	tr := NewTracker(nil, 0)
	m := synced(t, s, tr)

	var extra *world.Object
	for i := range 24 {
		switch i % 4 {
		case 0:
			s.actor.Position = s.actor.Position.Add(geom.V(0.1, 0))
			s.actor.Activity = world.ActivityWalking
		case 1:
			s.actor.PushTask(world.Task{Kind: world.TaskUse, Object: s.object.ID})
		case 2:
			s.actor.Needs.Add(world.NeedHunger, -3)
			s.family.Budget -= 10
		case 3:
			s.actor.PopTask()
			if s.object.Permission == world.PermissionPublic {
				s.object.Permission = world.PermissionPrivate
			} else {
				s.object.Permission = world.PermissionPublic
			}
		}
		switch i {
		case 8:
			extra = s.place(t, geom.V(6, 3))
		case 12:
			s.object.Transform.Position = geom.Lift(geom.V(3, 4), 0)
			s.object.Transform.Yaw = 1.5
		case 16:
			_, err := s.world.RemoveObject(extra.ID)
			require.NoError(t, err)
		}

		rel, unrel := diff(t, s, tr)
		require.NoError(t, m.ApplyBatch(roundTrip(t, TypeDeltas, Batch{Tick: s.world.Tick, Deltas: rel})))
		require.NoError(t, m.ApplyBatch(roundTrip(t, TypeDeltas, Batch{Tick: s.world.Tick, Deltas: unrel})))
	}

	snap := tr.Snapshot()
	assert.Len(t, m.Entities(""), len(snap.Entities))
	for _, es := range snap.Entities {
		me, ok := m.Entity(es.ID)
		require.True(t, ok, es.ID)
		assert.Equal(t, es.Components, me.Components, es.Kind)
		assert.Equal(t, es.Reliable, me.Seq)
		want, _ := tr.Hash(es.ID)
		got, _ := m.Hash(es.ID)
		assert.Equal(t, want, got)
	}
	assert.False(t, m.Has(extra.ID))
	assert.Equal(t, s.world.Tick, m.Tick())

	tf, ok, err := Get[TransformState](m, s.object.ID, ComponentTransform)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1.5, tf.Yaw, 1e-12)
}

// taskDeltas produces n reliable deltas for the scene's actor.
func taskDeltas(t *testing.T, s *scene, tr *Tracker, n int) []Delta {
	t.Helper()
	var out []Delta
	for i := range n {
		s.actor.PushTask(world.Task{Kind: world.TaskMoveHere, Dest: geom.V(float64(i), 1)})
		rel, _ := diff(t, s, tr)
		require.Len(t, rel, 1)
		out = append(out, rel[0])
	}
	return out
}

func TestMirrorOrdersReliableDeltas(t *testing.T) {
	s := newScene(t)
	tr := NewTracker(nil, 0)
	m := synced(t, s, tr)
	ds := taskDeltas(t, s, tr, 3)

	require.NoError(t, m.Apply(ds[2]))
	require.NoError(t, m.Apply(ds[1]))
	assert.Equal(t, 2, m.Pending())
	assert.Equal(t, uint64(1), m.Seq(s.actor.ID), "nothing applied out of order")

	require.NoError(t, m.Apply(ds[0]))
	assert.Zero(t, m.Pending())
	assert.Equal(t, ds[2].Seq, m.Seq(s.actor.ID))

	task, ok, err := Get[TaskState](m, s.actor.ID, ComponentTask)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, task.Tasks, 3)

	// Duplicates are ignored.
	require.NoError(t, m.Apply(ds[1]))
	assert.Equal(t, ds[2].Seq, m.Seq(s.actor.ID))
}

func TestMirrorUnreliableLatestWins(t *testing.T) {
	s := newScene(t)
	tr := NewTracker(nil, 0)
	m := synced(t, s, tr)

	s.actor.Position = geom.V(3, 2)
	_, first := diff(t, s, tr)
	s.actor.Position = geom.V(4, 2)
	_, second := diff(t, s, tr)
	require.Len(t, first, 1)
	require.Len(t, second, 1)

	require.NoError(t, m.Apply(second[0]))
	require.NoError(t, m.Apply(first[0]))

	motion, ok, err := Get[MotionState](m, s.actor.ID, ComponentMotion)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, geom.V(4, 2), motion.Position)
}

func TestMirrorDesync(t *testing.T) {
	s := newScene(t)
	tr := NewTracker(nil, 0)

	_, _, err := tr.Diff(s.world)
	require.NoError(t, err)
	ds := taskDeltas(t, s, tr, 3)

	fresh := NewMirror(8)
	assert.ErrorIs(t, fresh.Apply(ds[0]), ErrReplicationDesync, "no snapshot yet")

	m := NewMirror(8)
	m.ApplySnapshot(tr.Snapshot())
	s.actor.PushTask(world.Task{Kind: world.TaskMoveHere, Dest: geom.V(9, 9)})
	rel, _ := diff(t, s, tr)
	bad := rel[0]
	bad.Hash ^= 1
	err = m.Apply(bad)
	var de *DesyncError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, s.actor.ID, de.Entity)

	// Too many gaps.
	small := NewMirror(1)
	_, _, err = tr.Diff(s.world)
	require.NoError(t, err)
	small.ApplySnapshot(tr.Snapshot())
	ds = taskDeltas(t, s, tr, 3)
	require.NoError(t, small.Apply(ds[1]))
	assert.ErrorIs(t, small.Apply(ds[2]), ErrReplicationDesync)

	small.Desynced()
	assert.False(t, small.Synced())
}

func TestPredictorRollsBackRejected(t *testing.T) {
	s := newScene(t)
	tr := NewTracker(nil, 0)
	m := synced(t, s, tr)
	p := NewPredictor(m)

	before, ok := m.Component(s.object.ID, ComponentTransform)
	require.True(t, ok)

	require.NoError(t, p.Predict(7, s.object.ID, ComponentTransform, TransformState{Position: geom.Lift(geom.V(9, 9), 0)}))
	predicted, _, err := Predicted[TransformState](p, s.object.ID, ComponentTransform)
	require.NoError(t, err)
	assert.Equal(t, 9.0, predicted.Position.X())

	assert.Equal(t, 1, p.Resolve(IntentResult{ID: 7, Accepted: false, Reason: "collision"}))
	assert.Zero(t, p.Pending())
	after, ok := p.Component(s.object.ID, ComponentTransform)
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Equal(t, uint64(1), p.Mismatches())
}

func TestPredictorReconcilesAccepted(t *testing.T) {
	s := newScene(t)
	tr := NewTracker(nil, 0)
	m := synced(t, s, tr)
	p := NewPredictor(m)

	state := ObjectState{
		Descriptor: s.object.Descriptor,
		Owner:      s.object.Owner,
		Lot:        s.object.Lot,
		Permission: world.PermissionPublic,
		Wall:       s.object.Wall,
	}
	require.NoError(t, p.Predict(8, s.object.ID, ComponentObject, state))

	provisional := uuid.New()
	require.NoError(t, p.Predict(9, provisional, ComponentObject, ObjectState{Descriptor: "fridge"}))
	got, ok := p.Component(provisional, ComponentObject)
	require.True(t, ok)
	assert.NotEmpty(t, got)

	// The server applies both intents in one tick.
	s.object.Permission = world.PermissionPublic
	placed := s.place(t, geom.V(6, 2))
	rel, _ := diff(t, s, tr)

	assert.Zero(t, p.Resolve(IntentResult{ID: 8, Accepted: true, Entity: s.object.ID, Seq: tr.Seq(s.object.ID)}))
	assert.Zero(t, p.Resolve(IntentResult{ID: 9, Accepted: true, Entity: placed.ID, Seq: tr.Seq(placed.ID)}))
	assert.Equal(t, 2, p.Pending(), "mirror has not caught up yet")

	require.NoError(t, m.ApplyBatch(Batch{Tick: s.world.Tick, Deltas: rel}))
	assert.Zero(t, p.Reconcile())
	assert.Zero(t, p.Pending())

	obj, ok, err := Predicted[ObjectState](p, s.object.ID, ComponentObject)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state, obj)
	_, ok = p.Component(provisional, ComponentObject)
	assert.False(t, ok, "provisional entity replaced by the server one")
	assert.True(t, m.Has(placed.ID))
	assert.Zero(t, p.Mismatches())
}

func TestPredictorMismatchTakesServerValue(t *testing.T) {
	s := newScene(t)
	tr := NewTracker(nil, 0)
	m := synced(t, s, tr)
	p := NewPredictor(m)

	require.NoError(t, p.Predict(3, s.object.ID, ComponentTransform, TransformState{Position: geom.Lift(geom.V(5, 5), 0)}))

	// The server snapped the object somewhere else.
	s.object.Transform.Position = geom.Lift(geom.V(5, 4.8), 0)
	rel, _ := diff(t, s, tr)
	require.NoError(t, m.ApplyBatch(Batch{Tick: s.world.Tick, Deltas: rel}))

	assert.Equal(t, 1, p.Resolve(IntentResult{ID: 3, Accepted: true, Entity: s.object.ID, Seq: tr.Seq(s.object.ID)}))
	assert.Zero(t, p.Pending())
	tf, _, err := Predicted[TransformState](p, s.object.ID, ComponentTransform)
	require.NoError(t, err)
	assert.Equal(t, 4.8, tf.Position.Z())
}

func TestIntentValidate(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name   string
		intent Intent
		ok     bool
	}{
		{"place", Intent{ID: 1, Kind: IntentPlace, Descriptor: "fridge"}, true},
		{"place without descriptor", Intent{ID: 1, Kind: IntentPlace}, false},
		{"missing id", Intent{Kind: IntentPlace, Descriptor: "fridge"}, false},
		{"move", Intent{ID: 2, Kind: IntentMove, Target: id}, true},
		{"remove without target", Intent{ID: 2, Kind: IntentRemove}, false},
		{"permission", Intent{ID: 3, Kind: IntentSetPermission, Target: id, Permission: world.PermissionPublic}, true},
		{"bad permission", Intent{ID: 3, Kind: IntentSetPermission, Target: id, Permission: "shared"}, false},
		{"interact", Intent{ID: 4, Kind: IntentInteract, Actor: id, Target: id}, true},
		{"move actor", Intent{ID: 5, Kind: IntentMoveActor, Actor: id, Position: geom.V(1, 1)}, true},
		{"wall", Intent{ID: 6, Kind: IntentCreateWall, Start: geom.V(0, 0), End: geom.V(2, 0)}, true},
		{"point wall", Intent{ID: 6, Kind: IntentCreateWall}, false},
		{"family", Intent{ID: 7, Kind: IntentCreateFamily, Name: "Ito", Members: []Member{{Name: "Aki"}}}, true},
		{"empty family", Intent{ID: 7, Kind: IntentCreateFamily, Name: "Ito"}, false},
		{"delete family", Intent{ID: 8, Kind: IntentDeleteFamily, Family: id}, true},
		{"move member", Intent{ID: 10, Kind: IntentMoveMember, Actor: id, Target: uuid.New()}, true},
		{"move member without family", Intent{ID: 10, Kind: IntentMoveMember, Actor: id}, false},
		{"cancel tasks", Intent{ID: 11, Kind: IntentCancelTasks, Actor: id}, true},
		{"cancel without actor", Intent{ID: 11, Kind: IntentCancelTasks}, false},
		{"tell secret", Intent{ID: 12, Kind: IntentTellSecret, Actor: id, Target: uuid.New()}, true},
		{"tell secret to self", Intent{ID: 12, Kind: IntentTellSecret, Actor: id, Target: id}, false},
		{"lot", Intent{ID: 13, Kind: IntentCreateLot, Vertices: geom.Polygon{{0, 0}, {4, 0}, {4, 4}}}, true},
		{"line lot", Intent{ID: 13, Kind: IntentCreateLot, Vertices: geom.Polygon{{0, 0}, {4, 0}}}, false},
		{"buy lot", Intent{ID: 14, Kind: IntentBuyLot, Target: id}, true},
		{"move lot without target", Intent{ID: 15, Kind: IntentMoveLot, Position: geom.V(1, 0)}, false},
		{"road", Intent{ID: 16, Kind: IntentCreateRoad, Start: geom.V(0, 0), End: geom.V(5, 0)}, true},
		{"remove road", Intent{ID: 17, Kind: IntentRemoveRoad, Target: id}, true},
		{"unknown", Intent{ID: 9, Kind: "teleport"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.intent.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidIntent)
			}
		})
	}
	assert.True(t, Intent{Kind: IntentPlace}.Topological())
	assert.False(t, Intent{Kind: IntentInteract}.Topological())
}
