package asset

import (
	"github.com/zeusync/homestead/internal/core/geom"
)

type ComponentKind string

const (
	KindSceneCollider ComponentKind = "scene_collider"
	KindWallMount     ComponentKind = "wall_mount"
	KindDoor          ComponentKind = "door"
	KindInteraction   ComponentKind = "interaction"
)

// Component is one entry of a descriptor's component lists. The set of
// implementations is closed; behavior is reached through the capability
// interfaces below.
type Component interface {
	Kind() ComponentKind
}

// ColliderProducer contributes a ground footprint in object-local space.
type ColliderProducer interface {
	Component
	Collider(bounds Bounds) geom.Footprint
}

// Mountable objects live inside a wall.
type Mountable interface {
	Component
	Mount() WallMount
}

// Trigger registers a circular region around the object that actors
// activate by entering it.
type Trigger interface {
	Component
	TriggerRadius() float64
}

// Advertiser offers a need restoration to actors.
type Advertiser interface {
	Component
	Advertises() Advert
}

type Advert struct {
	Need     string
	Restore  float64
	Duration float64
	Distance float64
}

// SceneCollider derives the collision footprint from the scene bounds.
type SceneCollider struct {
	// Padding grows the footprint on every side.
	Padding float64 `yaml:"padding"`
}

func (SceneCollider) Kind() ComponentKind { return KindSceneCollider }

func (c SceneCollider) Collider(bounds Bounds) geom.Footprint {
	return geom.Footprint{
		Center: geom.V((bounds.Min.X()+bounds.Max.X())/2, (bounds.Min.Z()+bounds.Max.Z())/2),
		Half:   geom.V((bounds.Max.X()-bounds.Min.X())/2+c.Padding, (bounds.Max.Z()-bounds.Min.Z())/2+c.Padding),
	}
}

type MountKind string

const (
	// MountEmbed cuts the object's cutout out of the wall.
	MountEmbed MountKind = "embed"
	// MountAttach hangs the object on the wall surface.
	MountAttach MountKind = "attach"
)

// WallMount describes how an object sits in a wall. Cutout is in wall-local
// coordinates: x along the wall, y is height. Hole removes wall collision
// across the cutout span.
type WallMount struct {
	Type   MountKind
	Cutout geom.Polygon
	Hole   bool
}

func (WallMount) Kind() ComponentKind { return KindWallMount }

func (m WallMount) Mount() WallMount { return m }

func (m WallMount) Embedded() bool { return m.Type == MountEmbed }

type Door struct {
	HalfWidth       float64
	TriggerDistance float64
	Animation       string
}

func (Door) Kind() ComponentKind { return KindDoor }

func (d Door) TriggerRadius() float64 { return d.TriggerDistance }

type Interaction struct {
	Name      string
	Distance  float64
	Animation string
	Need      string
	Restore   float64
	Duration  float64
}

func (Interaction) Kind() ComponentKind { return KindInteraction }

func (i Interaction) TriggerRadius() float64 { return i.Distance }

func (i Interaction) Advertises() Advert {
	return Advert{Need: i.Need, Restore: i.Restore, Duration: i.Duration, Distance: i.Distance}
}

// Find returns the first component in list implementing T.
func Find[T any](list []Component) (T, bool) {
	for _, c := range list {
		if v, ok := c.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// All returns every component in list implementing T.
func All[T any](list []Component) []T {
	var out []T
	for _, c := range list {
		if v, ok := c.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
