package placement

import (
	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/navigation"
	"github.com/zeusync/homestead/internal/core/spatial"
	"github.com/zeusync/homestead/internal/core/world"
)

// checkRegion verifies that every added object's category is permitted
// where it lands and that the payer can afford the edit.
func (e *Engine) checkRegion(p *plan) error {
	for _, o := range p.add {
		category := o.Desc.Category
		if o.Lot == world.City {
			if !category.AllowedInCity() {
				return reject(ReasonCategoryMismatch, "%s not allowed on city ground", category)
			}
		} else if !category.AllowedOnLot() {
			return reject(ReasonCategoryMismatch, "%s not allowed on a lot", category)
		}
	}
	return e.checkFunds(p)
}

func (e *Engine) checkFunds(p *plan) error {
	if p.charge <= 0 {
		return nil
	}
	family, ok := e.world.Family(p.payer)
	if !ok {
		return reject(ReasonPermissionDenied, "no family to charge")
	}
	if family.Budget < p.charge {
		return reject(ReasonInsufficientFunds, "costs %d, budget %d", p.charge, family.Budget)
	}
	return nil
}

// checkCollision rejects overlapping footprints. Wall-mounted objects only
// collide with free-standing objects.
func (e *Engine) checkCollision(p *plan) error {
	others := p.objects(e.world)
	walls := p.walls(e.world)

	for i, a := range p.add {
		fp, ok := a.Footprint()
		if !ok {
			continue
		}
		poly := fp.Polygon()
		for _, o := range others {
			if o.ID == a.ID || (a.Mounted() && o.Mounted()) {
				continue
			}
			if overlaps(poly, o) {
				return reject(ReasonCollision, "overlaps object %s", o.ID)
			}
		}
		for _, b := range p.add[:i] {
			if !(a.Mounted() && b.Mounted()) && overlaps(poly, b) {
				return reject(ReasonCollision, "overlaps object %s", b.ID)
			}
		}
		if a.Mounted() {
			continue
		}
		for _, wall := range walls {
			for _, piece := range spatial.WallFootprints(wall, p.mountsAfter(e.world, wall.ID)) {
				if poly.Intersects(piece) {
					return reject(ReasonCollision, "overlaps wall %s", wall.ID)
				}
			}
		}
	}

	if p.addWall != nil {
		pieces := spatial.WallFootprints(p.addWall, nil)
		for _, o := range others {
			if o.Mounted() {
				continue
			}
			for _, piece := range pieces {
				if overlaps(piece, o) {
					return reject(ReasonCollision, "wall overlaps object %s", o.ID)
				}
			}
		}
	}
	return nil
}

func overlaps(poly geom.Polygon, o *world.Object) bool {
	fp, ok := o.Footprint()
	if !ok {
		return false
	}
	other := fp.Polygon()
	if !poly.Bounds().Intersects(other.Bounds()) {
		return false
	}
	return poly.Intersects(other)
}

// overlay expresses the plan as blocker changes on mesh and returns the
// area of the grid it touches.
func (e *Engine) overlay(p *plan, mesh *navigation.Mesh) (*navigation.Overlay, geom.Rect) {
	o := navigation.NewOverlay()
	region := geom.EmptyRect()
	mark := func(polys []geom.Polygon, block bool) {
		cells := mesh.Rasterize(polys)
		if block {
			o.Block(mesh, cells)
		} else {
			o.Free(mesh, cells)
		}
		for _, poly := range polys {
			region = region.Union(poly.Bounds())
		}
	}

	for _, obj := range p.remove {
		mark(e.layer.ObjectBlockers(obj), false)
	}
	for _, obj := range p.add {
		mark(e.layer.ObjectBlockers(obj), true)
	}
	for _, wall := range p.touchedWalls(e.world) {
		mark(e.layer.WallBlockers(wall, e.world.ObjectsOnWall(wall.ID)), false)
		if p.removeWall == nil || p.removeWall.ID != wall.ID {
			mark(e.layer.WallBlockers(wall, p.mountsAfter(e.world, wall.ID)), true)
		}
	}
	if p.addWall != nil {
		mark(e.layer.WallBlockers(p.addWall, p.mountsAfter(e.world, p.addWall.ID)), true)
	}
	return o, region
}

// checkConnectivity evaluates the edit on a hypothetical mesh. Anchors are
// the actors of the affected families and the trigger regions of objects
// those families may use. Anchors that could reach each other before must
// still do so, and no anchor may be walled in completely.
func (e *Engine) checkConnectivity(p *plan, mesh *navigation.Mesh, o *navigation.Overlay) error {
	if o.Empty() {
		return nil
	}
	anchors := e.anchors(p, mesh)
	if len(anchors) == 0 {
		return nil
	}

	before, after := mesh.Labeling(), mesh.Label(o)
	prev := make([]map[int]bool, len(anchors))
	next := make([]map[int]bool, len(anchors))
	for i, a := range anchors {
		prev[i], next[i] = components(before, a.cells), components(after, a.cells)
		if len(prev[i]) > 0 && len(next[i]) == 0 {
			return reject(ReasonConnectivityBreak, "%s becomes unreachable", a.name)
		}
	}
	for i := range anchors {
		for j := i + 1; j < len(anchors); j++ {
			if intersects(prev[i], prev[j]) && !intersects(next[i], next[j]) {
				return reject(ReasonConnectivityBreak, "%s cut off from %s", anchors[i].name, anchors[j].name)
			}
		}
	}
	return nil
}

type anchor struct {
	name  string
	cells []navigation.Cell
}

func (e *Engine) anchors(p *plan, mesh *navigation.Mesh) []anchor {
	families := e.affectedFamilies(p)
	if len(families) == 0 {
		return nil
	}
	var out []anchor
	for _, a := range e.world.Actors() {
		if families[a.Family] {
			out = append(out, anchor{name: "actor " + a.Name, cells: mesh.CellsWithin(a.Position, e.config.AnchorRadius)})
		}
	}
	for _, obj := range e.world.Objects() {
		if p.touches(obj.ID) {
			continue
		}
		trigger, ok := e.layer.Trigger(obj.ID)
		if !ok {
			continue
		}
		for family := range families {
			if obj.UsableBy(family) {
				out = append(out, anchor{name: "object " + obj.ID.String(), cells: mesh.CellsWithin(trigger.Center, trigger.Radius)})
				break
			}
		}
	}
	return out
}

// affectedFamilies returns the families living where the plan builds: the
// owners of the touched lots, or every family when city ground changes.
func (e *Engine) affectedFamilies(p *plan) map[world.NetID]bool {
	lots := make(map[world.NetID]bool)
	for _, o := range p.add {
		lots[o.Lot] = true
	}
	for _, o := range p.remove {
		lots[o.Lot] = true
	}
	if p.addWall != nil {
		lots[p.addWall.Lot] = true
	}
	if p.removeWall != nil {
		lots[p.removeWall.Lot] = true
	}

	out := make(map[world.NetID]bool)
	if lots[world.City] {
		for _, f := range e.world.Families() {
			out[f.ID] = true
		}
		return out
	}
	for id := range lots {
		if owner := e.regionOwner(id); owner != world.City {
			out[owner] = true
		}
	}
	return out
}

func components(l *navigation.Labeling, cells []navigation.Cell) map[int]bool {
	out := make(map[int]bool)
	for _, c := range cells {
		if comp := l.Component(c); comp >= 0 {
			out[comp] = true
		}
	}
	return out
}

func intersects(a, b map[int]bool) bool {
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}

// checkOwnership verifies that the requester may build at every
// destination and owns every entity it changes.
func (e *Engine) checkOwnership(p *plan) error {
	if p.requester.Role.Privileged() {
		return nil
	}
	family := p.requester.Family
	if family == world.City {
		return reject(ReasonPermissionDenied, "player without family")
	}
	for _, lot := range p.destinations {
		if lot == world.City {
			return reject(ReasonPermissionDenied, "city ground is read-only for players")
		}
		if e.regionOwner(lot) != family {
			return reject(ReasonPermissionDenied, "lot %s belongs to another family", lot)
		}
	}
	for _, owner := range p.owners {
		if owner != family {
			return reject(ReasonPermissionDenied, "not the owner")
		}
	}
	return nil
}
