package spatial

import (
	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/world"
)

// Aperture is the carved state of one wall: the union of the cutouts of
// every object embedded in it.
type Aperture struct {
	Wall world.NetID
	// Cutouts are the per-object cutouts in wall space, ordered by object.
	Cutouts []geom.Polygon
	// Pieces is the union of Cutouts as disjoint trapezoids.
	Pieces []geom.Polygon
	Area   float64
	// Holes are the spans along the wall with no collision.
	Holes []geom.Interval
	// Portals are door spans. The wall keeps its collision there but agents
	// may walk through.
	Portals []geom.Interval
}

// ObjectCutout places an object's cutout on a wall. The cutout follows the
// object's position along the wall and is mirrored when the object faces
// against the wall direction.
func ObjectCutout(wall *world.Wall, o *world.Object) (geom.Polygon, bool, bool) {
	mount, ok := o.Mount()
	if !ok || !mount.Embedded() {
		return nil, false, false
	}
	cutout := mount.Cutout
	facing := geom.Rotate(geom.V(1, 0), o.Transform.Yaw)
	if facing.Dot(wall.Dir()) < 0 {
		cutout = cutout.MirrorX()
	}
	along := wall.Local(o.Transform.Ground()).X()
	return cutout.Translate(geom.V(along, 0)), mount.Hole, true
}

// carve computes the aperture of a wall given the objects mounted on it.
func carve(wall *world.Wall, mounts []*world.Object) Aperture {
	ap := Aperture{Wall: wall.ID}
	var holes, portals []geom.Interval
	for _, o := range mounts {
		if door, ok := o.Door(); ok && door.HalfWidth > 0 {
			along := wall.Local(o.Transform.Ground()).X()
			portals = append(portals, geom.Interval{Lo: along - door.HalfWidth, Hi: along + door.HalfWidth})
		}
		cutout, hole, ok := ObjectCutout(wall, o)
		if !ok {
			continue
		}
		ap.Cutouts = append(ap.Cutouts, cutout)
		if hole {
			holes = append(holes, cutout.XSpan())
		}
	}
	ap.Pieces, ap.Area = geom.UnionConvex(ap.Cutouts)
	ap.Holes = geom.UnionIntervals(holes)
	ap.Portals = geom.UnionIntervals(portals)
	return ap
}

// Solid reports whether the wall blocks movement at distance along from its
// start.
func (a Aperture) Solid(along float64) bool {
	for _, h := range a.Holes {
		if along > h.Lo && along < h.Hi {
			return false
		}
	}
	return true
}

// wallPieces returns the ground footprints of the solid parts of a wall.
func wallPieces(wall *world.Wall, holes []geom.Interval) []geom.Footprint {
	length := wall.Segment().Len()
	spans := geom.SubtractIntervals(geom.Interval{Lo: 0, Hi: length}, holes)
	dir := wall.Dir()
	out := make([]geom.Footprint, 0, len(spans))
	for _, s := range spans {
		mid := (s.Lo + s.Hi) / 2
		out = append(out, geom.Footprint{
			Center: wall.Start.Add(dir.Mul(mid)),
			Half:   geom.V(s.Len()/2, world.WallHalfWidth),
			Angle:  wall.Angle(),
		})
	}
	return out
}
