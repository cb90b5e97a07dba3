// Package world holds the authoritative entity state: objects, walls, lots,
// roads, families and actors. A World is owned by a single goroutine; other
// goroutines read published snapshots.
package world

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/zeusync/homestead/internal/core/asset"
	"github.com/zeusync/homestead/internal/core/geom"
)

type World struct {
	Bounds geom.Rect
	Tick   uint64

	objects  map[NetID]*Object
	walls    map[NetID]*Wall
	lots     map[NetID]*Lot
	roads    map[NetID]*Road
	families map[NetID]*Family
	actors   map[NetID]*Actor

	newID func() NetID
}

func New(bounds geom.Rect) *World {
	return &World{
		Bounds:   bounds,
		objects:  make(map[NetID]*Object),
		walls:    make(map[NetID]*Wall),
		lots:     make(map[NetID]*Lot),
		roads:    make(map[NetID]*Road),
		families: make(map[NetID]*Family),
		actors:   make(map[NetID]*Actor),
		newID:    uuid.New,
	}
}

// SetIDSource replaces the NetID generator.
func (w *World) SetIDSource(fn func() NetID) { w.newID = fn }

func (w *World) NewID() NetID { return w.newID() }

// Instantiate creates an object from a descriptor with the instance
// component set attached. The object is not added to the world.
func (w *World) Instantiate(desc *asset.Descriptor, transform Transform, owner NetID) *Object {
	return &Object{
		ID:         w.newID(),
		Descriptor: desc.ID,
		Transform:  transform,
		Owner:      owner,
		Permission: PermissionPrivate,
		Desc:       desc,
		Components: desc.InstanceComponents(),
	}
}

func (w *World) Object(id NetID) (*Object, bool) {
	o, ok := w.objects[id]
	return o, ok
}

func (w *World) Wall(id NetID) (*Wall, bool) {
	v, ok := w.walls[id]
	return v, ok
}

func (w *World) Lot(id NetID) (*Lot, bool) {
	v, ok := w.lots[id]
	return v, ok
}

func (w *World) Road(id NetID) (*Road, bool) {
	v, ok := w.roads[id]
	return v, ok
}

func (w *World) Family(id NetID) (*Family, bool) {
	v, ok := w.families[id]
	return v, ok
}

func (w *World) Actor(id NetID) (*Actor, bool) {
	v, ok := w.actors[id]
	return v, ok
}

func (w *World) AddObject(o *Object) error {
	if _, ok := w.objects[o.ID]; ok {
		return fmt.Errorf("%w: object %s", ErrDuplicateEntity, o.ID)
	}
	w.objects[o.ID] = o
	return nil
}

func (w *World) RemoveObject(id NetID) (*Object, error) {
	o, ok := w.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: object %s", ErrUnknownEntity, id)
	}
	delete(w.objects, id)
	return o, nil
}

func (w *World) AddWall(v *Wall) error {
	if _, ok := w.walls[v.ID]; ok {
		return fmt.Errorf("%w: wall %s", ErrDuplicateEntity, v.ID)
	}
	w.walls[v.ID] = v
	return nil
}

func (w *World) RemoveWall(id NetID) (*Wall, error) {
	v, ok := w.walls[id]
	if !ok {
		return nil, fmt.Errorf("%w: wall %s", ErrUnknownEntity, id)
	}
	delete(w.walls, id)
	return v, nil
}

func (w *World) AddLot(v *Lot) error {
	if _, ok := w.lots[v.ID]; ok {
		return fmt.Errorf("%w: lot %s", ErrDuplicateEntity, v.ID)
	}
	w.lots[v.ID] = v
	return nil
}

func (w *World) RemoveLot(id NetID) (*Lot, error) {
	v, ok := w.lots[id]
	if !ok {
		return nil, fmt.Errorf("%w: lot %s", ErrUnknownEntity, id)
	}
	delete(w.lots, id)
	return v, nil
}

func (w *World) AddRoad(v *Road) error {
	if _, ok := w.roads[v.ID]; ok {
		return fmt.Errorf("%w: road %s", ErrDuplicateEntity, v.ID)
	}
	w.roads[v.ID] = v
	return nil
}

func (w *World) RemoveRoad(id NetID) (*Road, error) {
	v, ok := w.roads[id]
	if !ok {
		return nil, fmt.Errorf("%w: road %s", ErrUnknownEntity, id)
	}
	delete(w.roads, id)
	return v, nil
}

func (w *World) AddFamily(f *Family) error {
	if _, ok := w.families[f.ID]; ok {
		return fmt.Errorf("%w: family %s", ErrDuplicateEntity, f.ID)
	}
	w.families[f.ID] = f
	return nil
}

func (w *World) RemoveFamily(id NetID) (*Family, error) {
	f, ok := w.families[id]
	if !ok {
		return nil, fmt.Errorf("%w: family %s", ErrUnknownEntity, id)
	}
	delete(w.families, id)
	return f, nil
}

func (w *World) AddActor(a *Actor) error {
	if _, ok := w.actors[a.ID]; ok {
		return fmt.Errorf("%w: actor %s", ErrDuplicateEntity, a.ID)
	}
	w.actors[a.ID] = a
	return nil
}

func (w *World) RemoveActor(id NetID) (*Actor, error) {
	a, ok := w.actors[id]
	if !ok {
		return nil, fmt.Errorf("%w: actor %s", ErrUnknownEntity, id)
	}
	delete(w.actors, id)
	return a, nil
}

// Objects returns every object ordered by id.
func (w *World) Objects() []*Object { return sortedValues(w.objects) }

func (w *World) Walls() []*Wall { return sortedValues(w.walls) }

func (w *World) Lots() []*Lot { return sortedValues(w.lots) }

func (w *World) Roads() []*Road { return sortedValues(w.roads) }

func (w *World) Families() []*Family { return sortedValues(w.families) }

func (w *World) Actors() []*Actor { return sortedValues(w.actors) }

// ObjectsOnWall returns the objects mounted on a wall, ordered by id.
func (w *World) ObjectsOnWall(wall NetID) []*Object {
	var out []*Object
	for _, o := range w.Objects() {
		if o.Wall == wall {
			out = append(out, o)
		}
	}
	return out
}

// LotContents returns the objects and walls standing on a lot.
func (w *World) LotContents(lot NetID) ([]*Object, []*Wall) {
	var objects []*Object
	for _, o := range w.Objects() {
		if o.Lot == lot {
			objects = append(objects, o)
		}
	}
	var walls []*Wall
	for _, v := range w.Walls() {
		if v.Lot == lot {
			walls = append(walls, v)
		}
	}
	return objects, walls
}

// LotAt returns the lot containing p, if any.
func (w *World) LotAt(p geom.Vec2) (*Lot, bool) {
	for _, l := range w.Lots() {
		if l.Polygon.Contains(p) {
			return l, true
		}
	}
	return nil, false
}

// Exists reports whether any entity has the id.
func (w *World) Exists(id NetID) bool {
	_, o := w.objects[id]
	_, wl := w.walls[id]
	_, l := w.lots[id]
	_, r := w.roads[id]
	_, f := w.families[id]
	_, a := w.actors[id]
	return o || wl || l || r || f || a
}

func sortedValues[T any](m map[NetID]*T) []*T {
	ids := make([]NetID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b NetID) int { return bytes.Compare(a[:], b[:]) })

	out := make([]*T, len(ids))
	for i, id := range ids {
		out[i] = m[id]
	}
	return out
}
