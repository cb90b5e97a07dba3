// Package spatial derives collision and navigation state from the world:
// wall apertures, the navmesh blocker grid and trigger regions. It is
// written by the tick goroutine only; the navmesh it publishes is read
// concurrently by path workers.
package spatial

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/navigation"
	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/world"
)

var ErrVerifyMismatch = errors.New("spatial state differs from a rebuild")

// TriggerRegion is a circle around an object that actors activate by
// entering it.
type TriggerRegion struct {
	Object world.NetID
	Center geom.Vec2
	Radius float64
}

func (t TriggerRegion) Contains(p geom.Vec2) bool {
	return geom.Distance(t.Center, p) <= t.Radius
}

type Layer struct {
	config    navigation.Config
	bounds    geom.Rect
	builder   *navigation.Builder
	published atomic.Pointer[navigation.Mesh]
	apertures map[world.NetID]Aperture
	triggers  map[world.NetID]TriggerRegion
	logger    log.Log
}

func NewLayer(config navigation.Config, bounds geom.Rect, logger log.Log) *Layer {
	l := &Layer{
		config:    config,
		bounds:    bounds,
		builder:   navigation.NewBuilder(config, bounds),
		apertures: make(map[world.NetID]Aperture),
		triggers:  make(map[world.NetID]TriggerRegion),
		logger:    logger.With(log.String("component", "spatial")),
	}
	l.published.Store(l.builder.Snapshot())
	return l
}

// Build creates a layer holding every entity of w and publishes it.
func Build(config navigation.Config, w *world.World, logger log.Log) (*Layer, error) {
	l := NewLayer(config, w.Bounds, logger)
	for _, wall := range w.Walls() {
		if err := l.InsertWall(w, wall); err != nil {
			return nil, err
		}
	}
	for _, o := range w.Objects() {
		if err := l.InsertObject(w, o); err != nil {
			return nil, err
		}
	}
	l.Publish()
	return l, nil
}

func (l *Layer) Config() navigation.Config { return l.config }

// Mesh returns the navmesh published at the last tick boundary.
func (l *Layer) Mesh() *navigation.Mesh { return l.published.Load() }

// Working returns the navmesh including edits made during the current tick.
// Only the tick goroutine may call it.
func (l *Layer) Working() *navigation.Mesh { return l.builder.Snapshot() }

// Publish makes the working navmesh visible to readers.
func (l *Layer) Publish() *navigation.Mesh {
	m := l.builder.Snapshot()
	if prev := l.published.Swap(m); prev != m {
		l.logger.Debug("Navmesh published", log.Uint64("version", m.Version()))
	}
	return m
}

func (l *Layer) Aperture(wall world.NetID) (Aperture, bool) {
	ap, ok := l.apertures[wall]
	return ap, ok
}

// Trigger returns the trigger region of an object.
func (l *Layer) Trigger(object world.NetID) (TriggerRegion, bool) {
	t, ok := l.triggers[object]
	return t, ok
}

// TriggersAt returns the regions containing p ordered by object id.
func (l *Layer) TriggersAt(p geom.Vec2) []TriggerRegion {
	var out []TriggerRegion
	for _, t := range l.triggers {
		if t.Contains(p) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b TriggerRegion) int { return compareIDs(a.Object, b.Object) })
	return out
}

// ObjectBlockers returns the inflated navmesh blockers of a free-standing
// object. Wall-mounted objects block through their wall instead.
func (l *Layer) ObjectBlockers(o *world.Object) []geom.Polygon {
	if o.Mounted() {
		return nil
	}
	fp, ok := o.Footprint()
	if !ok {
		return nil
	}
	return []geom.Polygon{fp.Inflate(l.config.AgentRadius).Polygon()}
}

// WallBlockers returns the inflated navmesh blockers of a wall carrying the
// given mounts. Holes and door portals are left open.
func (l *Layer) WallBlockers(wall *world.Wall, mounts []*world.Object) []geom.Polygon {
	ap := carve(wall, mounts)
	var out []geom.Polygon
	for _, piece := range wallPieces(wall, append(ap.Holes, ap.Portals...)) {
		out = append(out, piece.Inflate(l.config.AgentRadius).Polygon())
	}
	return out
}

// WallFootprints returns the un-inflated solid parts of a wall, used for
// collision between objects and walls.
func WallFootprints(wall *world.Wall, mounts []*world.Object) []geom.Polygon {
	ap := carve(wall, mounts)
	var out []geom.Polygon
	for _, piece := range wallPieces(wall, ap.Holes) {
		out = append(out, piece.Polygon())
	}
	return out
}

func (l *Layer) InsertObject(w *world.World, o *world.Object) error {
	if o.Mounted() {
		if err := l.refreshWall(w, o.Wall); err != nil {
			return err
		}
	} else if blockers := l.ObjectBlockers(o); len(blockers) > 0 {
		if err := l.builder.Add(o.ID, blockers); err != nil {
			return err
		}
	}
	if r := o.TriggerRadius(); r > 0 {
		l.triggers[o.ID] = TriggerRegion{Object: o.ID, Center: o.Transform.Ground(), Radius: r}
	}
	return nil
}

// RemoveObject drops the object's derived state. The object must already be
// gone from w so that its wall is recarved without it.
func (l *Layer) RemoveObject(w *world.World, o *world.Object) error {
	delete(l.triggers, o.ID)
	if o.Mounted() {
		return l.refreshWall(w, o.Wall)
	}
	if l.builder.Has(o.ID) {
		return l.builder.Remove(o.ID)
	}
	if len(l.ObjectBlockers(o)) > 0 {
		return &navigation.InvariantViolation{Op: "remove", Source: o.ID, Detail: "object had no blockers registered"}
	}
	return nil
}

func (l *Layer) InsertWall(w *world.World, wall *world.Wall) error {
	return l.refreshWall(w, wall.ID)
}

// RemoveWall drops a wall that is no longer part of w.
func (l *Layer) RemoveWall(wall *world.Wall) error {
	delete(l.apertures, wall.ID)
	if !l.builder.Has(wall.ID) {
		return &navigation.InvariantViolation{Op: "remove", Source: wall.ID, Detail: "wall was never inserted"}
	}
	return l.builder.Remove(wall.ID)
}

// refreshWall recarves a wall from the objects currently mounted on it and
// replaces its navmesh blockers.
func (l *Layer) refreshWall(w *world.World, id world.NetID) error {
	wall, ok := w.Wall(id)
	if !ok {
		return fmt.Errorf("%w: wall %s", world.ErrUnknownEntity, id)
	}
	mounts := w.ObjectsOnWall(id)
	l.apertures[id] = carve(wall, mounts)

	if l.builder.Has(id) {
		if err := l.builder.Remove(id); err != nil {
			return err
		}
	}
	return l.builder.Add(id, l.WallBlockers(wall, mounts))
}

// Verify rebuilds the spatial state of w from scratch and compares it with
// the incrementally maintained one.
func (l *Layer) Verify(w *world.World) error {
	fresh, err := Build(l.config, w, log.NewNop())
	if err != nil {
		return err
	}

	got, want := l.Working(), fresh.Working()
	if got.Fingerprint() != want.Fingerprint() {
		return fmt.Errorf("%w: navmesh partition", ErrVerifyMismatch)
	}
	if len(l.apertures) != len(fresh.apertures) {
		return fmt.Errorf("%w: %d apertures, rebuild has %d", ErrVerifyMismatch, len(l.apertures), len(fresh.apertures))
	}
	for id, ap := range fresh.apertures {
		mine, ok := l.apertures[id]
		if !ok || !geom.NearlyEqual(mine.Area, ap.Area) || !slices.Equal(mine.Holes, ap.Holes) || !slices.Equal(mine.Portals, ap.Portals) {
			return fmt.Errorf("%w: aperture of wall %s", ErrVerifyMismatch, id)
		}
	}
	if len(l.triggers) != len(fresh.triggers) {
		return fmt.Errorf("%w: trigger index", ErrVerifyMismatch)
	}
	return nil
}

func compareIDs(a, b world.NetID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
