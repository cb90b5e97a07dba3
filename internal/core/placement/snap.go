package placement

import (
	"math"

	"github.com/zeusync/homestead/internal/core/asset"
	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/world"
)

// snap finds the wall nearest to pos within the snap distance and returns
// the transform that puts desc on it. Embedded objects sit on the wall's
// center line facing along it; attached objects hang on the side pos is on.
func (e *Engine) snap(desc *asset.Descriptor, pos geom.Vec2, yaw float64) (*world.Wall, world.Transform, error) {
	var (
		best *world.Wall
		dist = math.Inf(1)
	)
	for _, wall := range e.world.Walls() {
		if d := wall.Segment().DistanceTo(pos); d <= e.config.SnapDistance && d < dist {
			best, dist = wall, d
		}
	}
	if best == nil {
		return nil, world.Transform{}, reject(ReasonRequiresWall, "no wall within %.2fm", e.config.SnapDistance)
	}

	half := desc.HalfWidth()
	length := best.Segment().Len()
	if length < 2*half {
		return nil, world.Transform{}, reject(ReasonRequiresWall, "wall %s too short", best.ID)
	}
	local := best.Local(pos)
	along := math.Min(math.Max(local.X(), half), length-half)
	dir := best.Dir()
	base := best.Start.Add(dir.Mul(along))
	angle := best.Angle()

	kind := asset.MountEmbed
	if mount, ok := desc.Mount(); ok {
		kind = mount.Type
	}
	if kind == asset.MountAttach {
		side := 1.0
		if local.Y() < 0 {
			side, angle = -1, angle+math.Pi
		}
		offset := world.WallHalfWidth + e.config.AttachGap - desc.Bounds.Min.Z()
		base = base.Add(geom.Perp(dir).Mul(side * offset))
	} else if geom.Rotate(geom.V(1, 0), yaw).Dot(dir) < 0 {
		angle += math.Pi
	}
	return best, world.Transform{Position: geom.Lift(base, 0), Yaw: geom.NormalizeAngle(angle)}, nil
}
