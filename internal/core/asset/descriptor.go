package asset

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeusync/homestead/internal/core/geom"
)

type General struct {
	Name    string `yaml:"name"`
	Author  string `yaml:"author"`
	License string `yaml:"license"`
}

// Bounds is the axis-aligned box of the scene in object-local space.
type Bounds struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// Descriptor is the immutable template shared by every instance of an
// object. Descriptors are never mutated after loading; a reload produces a
// new value.
type Descriptor struct {
	ID                 string
	General            General
	Category           Category
	Scene              string
	Bounds             Bounds
	PreviewTranslation mgl64.Vec3
	Price              int64

	Components      []Component
	PlaceComponents []Component
	SpawnComponents []Component
}

// PlacementComponents are the components considered while an object is
// being placed or validated.
func (d *Descriptor) PlacementComponents() []Component {
	return concat(d.Components, d.PlaceComponents)
}

// InstanceComponents are attached to a spawned instance.
func (d *Descriptor) InstanceComponents() []Component {
	return concat(d.Components, d.SpawnComponents)
}

// Footprint is the local collision footprint, if the descriptor has a
// collider.
func (d *Descriptor) Footprint() (geom.Footprint, bool) {
	c, ok := Find[ColliderProducer](d.PlacementComponents())
	if !ok {
		return geom.Footprint{}, false
	}
	return c.Collider(d.Bounds), true
}

func (d *Descriptor) Mount() (WallMount, bool) {
	m, ok := Find[Mountable](d.PlacementComponents())
	if !ok {
		return WallMount{}, false
	}
	return m.Mount(), true
}

// HalfWidth is the half extent of the object along its local x axis.
func (d *Descriptor) HalfWidth() float64 {
	return (d.Bounds.Max.X() - d.Bounds.Min.X()) / 2
}

func concat(a, b []Component) []Component {
	out := make([]Component, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
