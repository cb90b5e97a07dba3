package placement

import (
	"math"

	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/world"
)

// purchase hands an unowned lot and the city-owned entities on it to a
// family.
type purchase struct {
	lot     *world.Lot
	family  world.NetID
	objects []*world.Object
	walls   []*world.Wall
}

func (e *Engine) planCreateLot(req Request) (*plan, error) {
	lot := &world.Lot{ID: e.world.NewID(), Polygon: req.Vertices.Clone()}
	return &plan{
		op:           OpCreateLot,
		requester:    req.Requester,
		entity:       lot.ID,
		addLot:       lot,
		destinations: []world.NetID{world.City},
	}, nil
}

func (e *Engine) planMoveLot(req Request) (*plan, error) {
	old, ok := e.world.Lot(req.Target)
	if !ok {
		return nil, reject(ReasonUnknownEntity, "lot %s", req.Target)
	}
	if err := e.requireEmpty(old); err != nil {
		return nil, err
	}
	moved := &world.Lot{ID: old.ID, Polygon: old.Polygon.Translate(req.Position), Owner: old.Owner}
	return &plan{
		op:           OpMoveLot,
		requester:    req.Requester,
		entity:       old.ID,
		addLot:       moved,
		removeLot:    old,
		destinations: []world.NetID{world.City},
	}, nil
}

func (e *Engine) planRemoveLot(req Request) (*plan, error) {
	old, ok := e.world.Lot(req.Target)
	if !ok {
		return nil, reject(ReasonUnknownEntity, "lot %s", req.Target)
	}
	if err := e.requireEmpty(old); err != nil {
		return nil, err
	}
	return &plan{
		op:           OpRemoveLot,
		requester:    req.Requester,
		entity:       old.ID,
		removeLot:    old,
		destinations: []world.NetID{world.City},
	}, nil
}

// planBuyLot gives an unowned lot to the requester's family. Players pay by
// area; what the city left on the lot goes with it.
func (e *Engine) planBuyLot(req Request) (*plan, error) {
	lot, ok := e.world.Lot(req.Target)
	if !ok {
		return nil, reject(ReasonUnknownEntity, "lot %s", req.Target)
	}
	family := req.Requester.Family
	if _, ok := e.world.Family(family); !ok {
		return nil, reject(ReasonPermissionDenied, "no family to own the lot")
	}
	if lot.Owner != world.City {
		return nil, reject(ReasonPermissionDenied, "lot %s is already owned", lot.ID)
	}

	buy := &purchase{lot: lot, family: family}
	objects, walls := e.world.LotContents(lot.ID)
	for _, o := range objects {
		if o.Owner == world.City {
			buy.objects = append(buy.objects, o)
		}
	}
	for _, wall := range walls {
		if wall.Owner == world.City {
			buy.walls = append(buy.walls, wall)
		}
	}
	p := &plan{
		op:        OpBuyLot,
		requester: req.Requester,
		entity:    lot.ID,
		purchase:  buy,
	}
	if req.Requester.Role == RolePlayer {
		p.payer, p.charge = family, e.lotPrice(lot)
	}
	return p, nil
}

func (e *Engine) planCreateRoad(req Request) (*plan, error) {
	start, end := e.snapRoadEnd(req.Start), e.snapRoadEnd(req.End)
	if geom.Distance(start, end) < e.config.MinRoadLength {
		return nil, reject(ReasonInvalidRequest, "road shorter than %.2fm", e.config.MinRoadLength)
	}
	road := &world.Road{ID: e.world.NewID(), Start: start, End: end, HalfWidth: e.config.RoadHalfWidth}
	return &plan{
		op:           OpCreateRoad,
		requester:    req.Requester,
		entity:       road.ID,
		addRoad:      road,
		destinations: []world.NetID{world.City},
	}, nil
}

func (e *Engine) planRemoveRoad(req Request) (*plan, error) {
	road, ok := e.world.Road(req.Target)
	if !ok {
		return nil, reject(ReasonUnknownEntity, "road %s", req.Target)
	}
	return &plan{
		op:           OpRemoveRoad,
		requester:    req.Requester,
		entity:       road.ID,
		removeRoad:   road,
		destinations: []world.NetID{world.City},
	}, nil
}

func (e *Engine) requireEmpty(lot *world.Lot) error {
	objects, walls := e.world.LotContents(lot.ID)
	if len(objects)+len(walls) > 0 {
		return reject(ReasonInvalidRequest, "lot %s is not empty", lot.ID)
	}
	return nil
}

// snapRoadEnd joins p to the nearest end of an existing road within the
// snap distance.
func (e *Engine) snapRoadEnd(p geom.Vec2) geom.Vec2 {
	best, dist := p, e.config.SnapDistance
	for _, road := range e.world.Roads() {
		for _, end := range [2]geom.Vec2{road.Start, road.End} {
			if d := geom.Distance(p, end); d <= dist {
				best, dist = end, d
			}
		}
	}
	return best
}

func (e *Engine) lotPrice(lot *world.Lot) int64 {
	return e.config.LotPricePerSquareMeter * int64(math.Ceil(lot.Polygon.Area()))
}

// lots returns the lots as they would exist after the plan.
func (p *plan) lots(w *world.World) []*world.Lot {
	var out []*world.Lot
	for _, lot := range w.Lots() {
		if p.removeLot != nil && p.removeLot.ID == lot.ID {
			continue
		}
		out = append(out, lot)
	}
	if p.addLot != nil {
		out = append(out, p.addLot)
	}
	return out
}

// roads returns the roads as they would exist after the plan.
func (p *plan) roads(w *world.World) []*world.Road {
	var out []*world.Road
	for _, road := range w.Roads() {
		if p.removeRoad != nil && p.removeRoad.ID == road.ID {
			continue
		}
		out = append(out, road)
	}
	if p.addRoad != nil {
		out = append(out, p.addRoad)
	}
	return out
}

// checkGround keeps lots convex, inside the world and apart from each
// other, and keeps roads on free city ground. Objects and walls never
// straddle a lot boundary and never stand on a road.
func (e *Engine) checkGround(p *plan) error {
	roads := p.roads(e.world)
	for _, o := range p.add {
		if o.Lot != world.City || o.Mounted() {
			continue
		}
		for _, road := range roads {
			if overlaps(road.Footprint().Polygon(), o) {
				return reject(ReasonCollision, "object on road %s", road.ID)
			}
		}
	}
	if p.addWall != nil {
		wall := p.addWall.Footprint().Polygon()
		for _, road := range roads {
			if wall.Intersects(road.Footprint().Polygon()) {
				return reject(ReasonCollision, "wall on road %s", road.ID)
			}
		}
	}
	if p.addLot != nil {
		if err := e.checkLot(p, p.addLot, roads); err != nil {
			return err
		}
	}
	if p.addRoad != nil {
		if err := e.checkRoad(p, p.addRoad); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) checkLot(p *plan, lot *world.Lot, roads []*world.Road) error {
	if err := lot.Polygon.ValidateConvex(); err != nil {
		return reject(ReasonInvalidRequest, "lot outline: %v", err)
	}
	for _, v := range lot.Polygon {
		if !e.world.Bounds.Contains(v) {
			return reject(ReasonOutOfBounds, "lot leaves the world")
		}
	}
	for _, other := range p.lots(e.world) {
		if other.ID != lot.ID && lot.Polygon.Intersects(other.Polygon) {
			return reject(ReasonCollision, "overlaps lot %s", other.ID)
		}
	}
	for _, road := range roads {
		if lot.Polygon.Intersects(road.Footprint().Polygon()) {
			return reject(ReasonCollision, "overlaps road %s", road.ID)
		}
	}
	for _, o := range e.world.Objects() {
		if o.Lot == lot.ID {
			continue
		}
		if lot.Polygon.Contains(o.Transform.Ground()) || overlaps(lot.Polygon, o) {
			return reject(ReasonCollision, "overlaps object %s", o.ID)
		}
	}
	for _, wall := range e.world.Walls() {
		if wall.Lot != lot.ID && lot.Polygon.Intersects(wall.Footprint().Polygon()) {
			return reject(ReasonCollision, "overlaps wall %s", wall.ID)
		}
	}
	return nil
}

func (e *Engine) checkRoad(p *plan, road *world.Road) error {
	if !e.world.Bounds.Contains(road.Start) || !e.world.Bounds.Contains(road.End) {
		return reject(ReasonOutOfBounds, "road leaves the world")
	}
	poly := road.Footprint().Polygon()
	for _, lot := range p.lots(e.world) {
		if poly.Intersects(lot.Polygon) {
			return reject(ReasonCollision, "road crosses lot %s", lot.ID)
		}
	}
	for _, o := range e.world.Objects() {
		if !o.Mounted() && overlaps(poly, o) {
			return reject(ReasonCollision, "road overlaps object %s", o.ID)
		}
	}
	for _, wall := range e.world.Walls() {
		if poly.Intersects(wall.Footprint().Polygon()) {
			return reject(ReasonCollision, "road overlaps wall %s", wall.ID)
		}
	}
	return nil
}

func (e *Engine) applyGround(p *plan) error {
	if p.removeLot != nil {
		if _, err := e.world.RemoveLot(p.removeLot.ID); err != nil {
			return err
		}
	}
	if p.addLot != nil {
		if err := e.world.AddLot(p.addLot); err != nil {
			return err
		}
	}
	if p.removeRoad != nil {
		if _, err := e.world.RemoveRoad(p.removeRoad.ID); err != nil {
			return err
		}
	}
	if p.addRoad != nil {
		if err := e.world.AddRoad(p.addRoad); err != nil {
			return err
		}
	}
	if buy := p.purchase; buy != nil {
		buy.lot.Owner = buy.family
		for _, o := range buy.objects {
			o.Owner = buy.family
		}
		for _, wall := range buy.walls {
			wall.Owner = buy.family
		}
	}
	return nil
}
