package placement

import (
	"bytes"
	"math"
	"slices"

	"github.com/zeusync/homestead/internal/core/asset"
	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/world"
)

type permissionChange struct {
	object *world.Object
	value  world.Permission
}

// plan is the full set of world mutations an edit would make.
type plan struct {
	op        Op
	requester Requester
	entity    world.NetID

	add        []*world.Object
	remove     []*world.Object
	addWall    *world.Wall
	removeWall *world.Wall
	permission *permissionChange
	addLot     *world.Lot
	removeLot  *world.Lot
	purchase   *purchase
	addRoad    *world.Road
	removeRoad *world.Road

	// payer is charged when charge is positive and refunded when negative.
	payer  world.NetID
	charge int64

	// destinations are the lots written to, world.City for city ground.
	destinations []world.NetID
	// owners are the families owning the existing entities touched.
	owners []world.NetID
}

func (p *plan) removes(id world.NetID) bool {
	return slices.ContainsFunc(p.remove, func(o *world.Object) bool { return o.ID == id })
}

func (p *plan) adds(id world.NetID) bool {
	return slices.ContainsFunc(p.add, func(o *world.Object) bool { return o.ID == id })
}

// touches reports whether the plan adds, removes or replaces the object.
func (p *plan) touches(id world.NetID) bool { return p.removes(id) || p.adds(id) }

// walls returns the walls as they would exist after the plan.
func (p *plan) walls(w *world.World) []*world.Wall {
	var out []*world.Wall
	for _, wall := range w.Walls() {
		if p.removeWall != nil && p.removeWall.ID == wall.ID {
			continue
		}
		out = append(out, wall)
	}
	if p.addWall != nil {
		out = append(out, p.addWall)
	}
	return out
}

// objects returns the existing objects the plan leaves in place.
func (p *plan) objects(w *world.World) []*world.Object {
	var out []*world.Object
	for _, o := range w.Objects() {
		if !p.removes(o.ID) {
			out = append(out, o)
		}
	}
	return out
}

// mountsAfter returns the objects mounted on a wall after the plan.
func (p *plan) mountsAfter(w *world.World, wall world.NetID) []*world.Object {
	var out []*world.Object
	for _, o := range w.ObjectsOnWall(wall) {
		if !p.removes(o.ID) {
			out = append(out, o)
		}
	}
	for _, o := range p.add {
		if o.Wall == wall {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b *world.Object) int { return bytes.Compare(a.ID[:], b.ID[:]) })
	return out
}

// touchedWalls returns the existing walls whose aperture the plan changes.
func (p *plan) touchedWalls(w *world.World) []*world.Wall {
	seen := make(map[world.NetID]bool)
	var out []*world.Wall
	visit := func(id world.NetID) {
		if id == world.City || seen[id] {
			return
		}
		seen[id] = true
		if wall, ok := w.Wall(id); ok {
			out = append(out, wall)
		}
	}
	for _, o := range p.remove {
		visit(o.Wall)
	}
	for _, o := range p.add {
		visit(o.Wall)
	}
	if p.removeWall != nil {
		visit(p.removeWall.ID)
	}
	return out
}

// plan turns a request into a plan, or rejects requests that reference
// unknown entities or cannot be located.
func (e *Engine) plan(req Request) (*plan, error) {
	switch req.Op {
	case OpPlace:
		return e.planPlace(req)
	case OpMove:
		return e.planMove(req)
	case OpRemove:
		return e.planRemove(req)
	case OpCreateWall:
		return e.planCreateWall(req)
	case OpRemoveWall:
		return e.planRemoveWall(req)
	case OpSetPermission:
		return e.planSetPermission(req)
	case OpCreateLot:
		return e.planCreateLot(req)
	case OpMoveLot:
		return e.planMoveLot(req)
	case OpRemoveLot:
		return e.planRemoveLot(req)
	case OpBuyLot:
		return e.planBuyLot(req)
	case OpCreateRoad:
		return e.planCreateRoad(req)
	case OpRemoveRoad:
		return e.planRemoveRoad(req)
	default:
		return nil, reject(ReasonInvalidRequest, "unknown op %q", req.Op)
	}
}

func (e *Engine) planPlace(req Request) (*plan, error) {
	desc, ok := e.library.Get(req.Descriptor)
	if !ok {
		return nil, reject(ReasonUnknownDescriptor, "%q", req.Descriptor)
	}
	o, err := e.locate(desc, req.Position, req.Yaw)
	if err != nil {
		return nil, err
	}
	p := &plan{
		op:           OpPlace,
		requester:    req.Requester,
		entity:       o.ID,
		add:          []*world.Object{o},
		destinations: []world.NetID{o.Lot},
	}
	if req.Requester.Role == RolePlayer {
		p.payer, p.charge = req.Requester.Family, desc.Price
	}
	return p, nil
}

func (e *Engine) planMove(req Request) (*plan, error) {
	old, ok := e.world.Object(req.Target)
	if !ok {
		return nil, reject(ReasonUnknownEntity, "object %s", req.Target)
	}
	if old.Desc == nil {
		return nil, reject(ReasonUnknownDescriptor, "%q", old.Descriptor)
	}
	moved, err := e.locate(old.Desc, req.Position, req.Yaw)
	if err != nil {
		return nil, err
	}
	moved.ID = old.ID
	moved.Owner = old.Owner
	moved.Permission = old.Permission
	return &plan{
		op:           OpMove,
		requester:    req.Requester,
		entity:       old.ID,
		add:          []*world.Object{moved},
		remove:       []*world.Object{old},
		destinations: []world.NetID{moved.Lot},
		owners:       []world.NetID{old.Owner},
	}, nil
}

func (e *Engine) planRemove(req Request) (*plan, error) {
	old, ok := e.world.Object(req.Target)
	if !ok {
		return nil, reject(ReasonUnknownEntity, "object %s", req.Target)
	}
	p := &plan{
		op:        OpRemove,
		requester: req.Requester,
		entity:    old.ID,
		remove:    []*world.Object{old},
		owners:    []world.NetID{old.Owner},
	}
	if req.Requester.Role == RolePlayer && old.Desc != nil {
		p.payer, p.charge = req.Requester.Family, -e.refund(old.Desc.Price)
	}
	return p, nil
}

func (e *Engine) planCreateWall(req Request) (*plan, error) {
	seg := geom.Segment{A: req.Start, B: req.End}
	if seg.Len() < e.config.MinWallLength {
		return nil, reject(ReasonInvalidRequest, "wall shorter than %.2fm", e.config.MinWallLength)
	}
	if !e.world.Bounds.Contains(req.Start) || !e.world.Bounds.Contains(req.End) {
		return nil, reject(ReasonOutOfBounds, "wall leaves the world")
	}
	lot := e.regionAt(req.Start)
	if e.regionAt(req.End) != lot {
		return nil, reject(ReasonOutOfBounds, "wall crosses a lot boundary")
	}
	wall := &world.Wall{
		ID:    e.world.NewID(),
		Start: req.Start,
		End:   req.End,
		Owner: e.regionOwner(lot),
		Lot:   lot,
	}
	p := &plan{
		op:           OpCreateWall,
		requester:    req.Requester,
		entity:       wall.ID,
		addWall:      wall,
		destinations: []world.NetID{lot},
	}
	if req.Requester.Role == RolePlayer {
		p.payer, p.charge = req.Requester.Family, e.wallPrice(wall)
	}
	return p, nil
}

func (e *Engine) planRemoveWall(req Request) (*plan, error) {
	wall, ok := e.world.Wall(req.Target)
	if !ok {
		return nil, reject(ReasonUnknownEntity, "wall %s", req.Target)
	}
	p := &plan{
		op:         OpRemoveWall,
		requester:  req.Requester,
		entity:     wall.ID,
		removeWall: wall,
		remove:     e.world.ObjectsOnWall(wall.ID),
		owners:     []world.NetID{wall.Owner},
	}
	if req.Requester.Role == RolePlayer {
		refund := e.refund(e.wallPrice(wall))
		for _, o := range p.remove {
			if o.Desc != nil {
				refund += e.refund(o.Desc.Price)
			}
		}
		p.payer, p.charge = req.Requester.Family, -refund
	}
	return p, nil
}

func (e *Engine) planSetPermission(req Request) (*plan, error) {
	o, ok := e.world.Object(req.Target)
	if !ok {
		return nil, reject(ReasonUnknownEntity, "object %s", req.Target)
	}
	if !req.Permission.Valid() {
		return nil, reject(ReasonInvalidRequest, "permission %q", req.Permission)
	}
	return &plan{
		op:         OpSetPermission,
		requester:  req.Requester,
		entity:     o.ID,
		permission: &permissionChange{object: o, value: req.Permission},
		owners:     []world.NetID{o.Owner},
	}, nil
}

// keepID gives the entity a plan creates the id it had when the plan was
// first validated.
func (p *plan) keepID(id world.NetID) {
	switch {
	case len(p.add) == 1 && p.op == OpPlace:
		p.add[0].ID = id
	case p.addWall != nil:
		p.addWall.ID = id
	case p.addLot != nil && p.op == OpCreateLot:
		p.addLot.ID = id
	case p.addRoad != nil:
		p.addRoad.ID = id
	default:
		return
	}
	p.entity = id
}

// locate builds an instance of desc at the requested pose. Objects that
// belong in a wall are snapped onto the nearest one.
func (e *Engine) locate(desc *asset.Descriptor, pos geom.Vec2, yaw float64) (*world.Object, error) {
	if _, mounted := desc.Mount(); mounted || desc.Category.NeedsWall() {
		wall, transform, err := e.snap(desc, pos, yaw)
		if err != nil {
			return nil, err
		}
		o := e.world.Instantiate(desc, transform, wall.Owner)
		o.Wall, o.Lot = wall.ID, wall.Lot
		return o, nil
	}

	if !e.world.Bounds.Contains(pos) {
		return nil, reject(ReasonOutOfBounds, "position %v", pos)
	}
	transform := world.Transform{Position: geom.Lift(pos, 0), Yaw: geom.NormalizeAngle(yaw)}
	lot := e.regionAt(pos)
	o := e.world.Instantiate(desc, transform, e.regionOwner(lot))
	o.Lot = lot
	if fp, ok := o.Footprint(); ok {
		for _, v := range fp.Polygon() {
			if !e.world.Bounds.Contains(v) {
				return nil, reject(ReasonOutOfBounds, "footprint leaves the world")
			}
		}
	}
	return o, nil
}

// regionAt returns the lot containing p, or world.City.
func (e *Engine) regionAt(p geom.Vec2) world.NetID {
	if lot, ok := e.world.LotAt(p); ok {
		return lot.ID
	}
	return world.City
}

func (e *Engine) regionOwner(lot world.NetID) world.NetID {
	if l, ok := e.world.Lot(lot); ok {
		return l.Owner
	}
	return world.City
}

func (e *Engine) wallPrice(wall *world.Wall) int64 {
	return e.config.WallPricePerMeter * int64(math.Ceil(wall.Segment().Len()))
}

func (e *Engine) refund(price int64) int64 {
	return int64(math.Floor(float64(price) * e.config.RefundRatio))
}
