package world

import (
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/zeusync/homestead/internal/core/asset"
	"github.com/zeusync/homestead/internal/core/geom"
)

// NetID identifies an entity on the wire and in saves.
type NetID = uuid.UUID

// City owns everything that no family owns.
var City = uuid.Nil

const (
	WallHalfWidth = 0.1
	WallHeight    = 2.8
)

type Transform struct {
	Position mgl64.Vec3 `json:"position"`
	Yaw      float64    `json:"yaw"`
}

func (t Transform) Ground() geom.Vec2 { return geom.Ground(t.Position) }

// Apply maps a point from object-local ground space into world space.
func (t Transform) Apply(local geom.Vec2) geom.Vec2 {
	return t.Ground().Add(geom.Rotate(local, t.Yaw))
}

type Permission string

const (
	PermissionPrivate Permission = "private"
	PermissionPublic  Permission = "public"
)

func (p Permission) Valid() bool { return p == PermissionPrivate || p == PermissionPublic }

type Object struct {
	ID         NetID      `json:"id"`
	Descriptor string     `json:"descriptor"`
	Transform  Transform  `json:"transform"`
	Owner      NetID      `json:"owner"`
	Lot        NetID      `json:"lot"`
	Permission Permission `json:"permission"`
	Wall       NetID      `json:"wall"`
	DoorOpen   bool       `json:"door_open,omitempty"`

	Desc       *asset.Descriptor `json:"-"`
	Components []asset.Component `json:"-"`
}

// Footprint is the collider in world space.
func (o *Object) Footprint() (geom.Footprint, bool) {
	if o.Desc == nil {
		return geom.Footprint{}, false
	}
	local, ok := o.Desc.Footprint()
	if !ok {
		return geom.Footprint{}, false
	}
	return geom.Footprint{
		Center: o.Transform.Apply(local.Center),
		Half:   local.Half,
		Angle:  o.Transform.Yaw,
	}, true
}

func (o *Object) Mount() (asset.WallMount, bool) {
	if o.Desc == nil {
		return asset.WallMount{}, false
	}
	return o.Desc.Mount()
}

// Mounted reports whether the object lives inside a wall.
func (o *Object) Mounted() bool { return o.Wall != uuid.Nil }

func (o *Object) Door() (asset.Door, bool) { return asset.Find[asset.Door](o.Components) }

func (o *Object) Adverts() []asset.Advert {
	var out []asset.Advert
	for _, a := range asset.All[asset.Advertiser](o.Components) {
		out = append(out, a.Advertises())
	}
	return out
}

// TriggerRadius is the largest trigger radius of the object, or zero.
func (o *Object) TriggerRadius() float64 {
	var r float64
	for _, t := range asset.All[asset.Trigger](o.Components) {
		r = math.Max(r, t.TriggerRadius())
	}
	return r
}

// UsableBy reports whether a member of family may use the object.
func (o *Object) UsableBy(family NetID) bool {
	return o.Permission == PermissionPublic || o.Owner == family
}

func (o *Object) clone() *Object {
	c := *o
	return &c
}

type Wall struct {
	ID    NetID     `json:"id"`
	Start geom.Vec2 `json:"start"`
	End   geom.Vec2 `json:"end"`
	Owner NetID     `json:"owner"`
	Lot   NetID     `json:"lot"`
}

func (w *Wall) Segment() geom.Segment { return geom.Segment{A: w.Start, B: w.End} }

func (w *Wall) Dir() geom.Vec2 { return w.End.Sub(w.Start).Normalize() }

func (w *Wall) Angle() float64 {
	d := w.End.Sub(w.Start)
	return math.Atan2(d.Y(), d.X())
}

func (w *Wall) Footprint() geom.Footprint {
	return geom.Footprint{
		Center: w.Start.Add(w.End).Mul(0.5),
		Half:   geom.V(w.Segment().Len()/2, WallHalfWidth),
		Angle:  w.Angle(),
	}
}

// Local converts a world point into wall space: x along the wall from
// Start, y the signed distance from the center line.
func (w *Wall) Local(p geom.Vec2) geom.Vec2 {
	d := w.Dir()
	rel := p.Sub(w.Start)
	return geom.V(rel.Dot(d), geom.PerpDot(d, rel))
}

type Lot struct {
	ID      NetID        `json:"id"`
	Polygon geom.Polygon `json:"polygon"`
	Owner   NetID        `json:"owner"`
}

// Road is a straight strip of city ground. Roads never block actors.
type Road struct {
	ID        NetID     `json:"id"`
	Start     geom.Vec2 `json:"start"`
	End       geom.Vec2 `json:"end"`
	HalfWidth float64   `json:"half_width"`
}

func (r *Road) Segment() geom.Segment { return geom.Segment{A: r.Start, B: r.End} }

func (r *Road) Footprint() geom.Footprint {
	d := r.End.Sub(r.Start)
	return geom.Footprint{
		Center: r.Start.Add(r.End).Mul(0.5),
		Half:   geom.V(d.Len()/2, r.HalfWidth),
		Angle:  math.Atan2(d.Y(), d.X()),
	}
}

type Family struct {
	ID      NetID   `json:"id"`
	Name    string  `json:"name"`
	Budget  int64   `json:"budget"`
	Members []NetID `json:"members"`
}

func (f *Family) HasMember(id NetID) bool { return slices.Contains(f.Members, id) }

func (f *Family) clone() *Family {
	c := *f
	c.Members = slices.Clone(f.Members)
	return &c
}

type TaskKind string

const (
	TaskMoveHere   TaskKind = "move_here"
	TaskUse        TaskKind = "use"
	TaskTellSecret TaskKind = "tell_secret"
)

type Task struct {
	ID     uint64    `json:"id"`
	Kind   TaskKind  `json:"kind"`
	Dest   geom.Vec2 `json:"dest"`
	Object NetID     `json:"object"`
	// Actor is the listener of a tell_secret task.
	Actor NetID `json:"actor"`
	// Need is set for tasks the actor chose by itself.
	Need string `json:"need,omitempty"`
}

type Activity string

const (
	ActivityIdle    Activity = "idle"
	ActivityWalking Activity = "walking"
	ActivityUsing   Activity = "using"
	ActivityTalking Activity = "talking"
)

type Actor struct {
	ID       NetID     `json:"id"`
	Name     string    `json:"name"`
	Family   NetID     `json:"family"`
	Position geom.Vec2 `json:"position"`
	Yaw      float64   `json:"yaw"`
	Needs    Needs     `json:"needs"`
	Tasks    []Task    `json:"tasks"`
	Activity Activity  `json:"activity"`

	Path []geom.Vec2 `json:"path,omitempty"`
	// PathVersion is the navmesh version the path was computed against.
	PathVersion uint64 `json:"path_version,omitempty"`
	// Goal increments whenever the destination changes, invalidating
	// in-flight path requests.
	Goal     uint64  `json:"goal"`
	UseTimer float64 `json:"use_timer,omitempty"`
	NextTask uint64  `json:"next_task"`
	Speed    float64 `json:"speed"`
	Waiting  bool    `json:"waiting,omitempty"`
}

func (a *Actor) CurrentTask() (Task, bool) {
	if len(a.Tasks) == 0 {
		return Task{}, false
	}
	return a.Tasks[0], true
}

// PushTask queues a task and returns its id.
func (a *Actor) PushTask(t Task) uint64 {
	a.NextTask++
	t.ID = a.NextTask
	a.Tasks = append(a.Tasks, t)
	return t.ID
}

// PopTask drops the current task and clears movement state.
func (a *Actor) PopTask() {
	if len(a.Tasks) > 0 {
		a.Tasks = slices.Delete(a.Tasks, 0, 1)
	}
	a.Path = nil
	a.UseTimer = 0
	a.Waiting = false
	a.Goal++
	a.Activity = ActivityIdle
}

func (a *Actor) CancelTasks() {
	a.Tasks = nil
	a.Path = nil
	a.UseTimer = 0
	a.Waiting = false
	a.Goal++
	a.Activity = ActivityIdle
}

func (a *Actor) clone() *Actor {
	c := *a
	c.Tasks = slices.Clone(a.Tasks)
	c.Path = slices.Clone(a.Path)
	return &c
}

// Needs are kept in [0, MaxNeed].
type Needs struct {
	Hunger  float64 `json:"hunger"`
	Social  float64 `json:"social"`
	Hygiene float64 `json:"hygiene"`
	Fun     float64 `json:"fun"`
	Energy  float64 `json:"energy"`
	Bladder float64 `json:"bladder"`
}

const MaxNeed = 100.0

const (
	NeedHunger  = "hunger"
	NeedSocial  = "social"
	NeedHygiene = "hygiene"
	NeedFun     = "fun"
	NeedEnergy  = "energy"
	NeedBladder = "bladder"
)

var NeedNames = []string{NeedHunger, NeedSocial, NeedHygiene, NeedFun, NeedEnergy, NeedBladder}

func FullNeeds() Needs {
	return Needs{MaxNeed, MaxNeed, MaxNeed, MaxNeed, MaxNeed, MaxNeed}
}

func (n *Needs) ref(name string) *float64 {
	switch name {
	case NeedHunger:
		return &n.Hunger
	case NeedSocial:
		return &n.Social
	case NeedHygiene:
		return &n.Hygiene
	case NeedFun:
		return &n.Fun
	case NeedEnergy:
		return &n.Energy
	case NeedBladder:
		return &n.Bladder
	}
	return nil
}

func (n Needs) Get(name string) (float64, bool) {
	v := n.ref(name)
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Add changes a need by delta, clamping to the valid range.
func (n *Needs) Add(name string, delta float64) bool {
	v := n.ref(name)
	if v == nil {
		return false
	}
	*v = math.Max(0, math.Min(MaxNeed, *v+delta))
	return true
}

// Lowest returns the most urgent need.
func (n Needs) Lowest() (string, float64) {
	name, value := "", math.Inf(1)
	for _, candidate := range NeedNames {
		v, _ := n.Get(candidate)
		if v < value {
			name, value = candidate, v
		}
	}
	return name, value
}
