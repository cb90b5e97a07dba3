// Package placement validates and applies edits of the world: placing,
// moving and removing objects, building walls, changing object
// permissions, and laying out lots and roads. Every edit is validated against the current world before it
// is committed; a rejected edit leaves the world untouched.
package placement

import (
	"fmt"

	"github.com/zeusync/homestead/internal/core/asset"
	"github.com/zeusync/homestead/internal/core/events"
	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/spatial"
	"github.com/zeusync/homestead/internal/core/world"
)

const eventSource = "placement"

// Engine is owned by the tick goroutine.
type Engine struct {
	config  Config
	world   *world.World
	layer   *spatial.Layer
	library *asset.Library
	bus     events.Bus
	logger  log.Log

	// generation advances on every world mutation the engine knows of.
	generation uint64
}

func NewEngine(config Config, w *world.World, layer *spatial.Layer, library *asset.Library, bus events.Bus, logger log.Log) *Engine {
	return &Engine{
		config:  config,
		world:   w,
		layer:   layer,
		library: library,
		bus:     bus,
		logger:  logger.With(log.String("component", "placement")),
	}
}

func (e *Engine) Generation() uint64 { return e.generation }

// Invalidate records a world change made outside the engine, so that
// outstanding tickets are re-validated on commit.
func (e *Engine) Invalidate() { e.generation++ }

// Validate runs every check against the current world and returns a ticket
// for Commit.
func (e *Engine) Validate(req Request) (*Ticket, error) {
	t := &Ticket{Request: req, State: StateProposed}
	p, err := e.validate(req, true)
	if err != nil {
		t.State = StateRejected
		e.rejected(req, err)
		return t, err
	}
	t.plan = p
	t.tiles = e.tilesOf(p)
	t.generation = e.generation
	t.State = StateValidated
	return t, nil
}

// Commit applies a validated ticket. When the world changed since Validate
// the ticket is validated again: from scratch if any navmesh tile it read
// changed, otherwise without the connectivity check.
func (e *Engine) Commit(t *Ticket) (Result, error) {
	if t.State != StateValidated {
		return Result{}, fmt.Errorf("commit of %s ticket", t.State)
	}
	if t.generation != e.generation {
		connectivity := !e.layer.Working().TilesUnchanged(t.tiles)
		p, err := e.validate(t.Request, connectivity)
		if err != nil {
			t.State = StateRejected
			e.rejected(t.Request, err)
			return Result{}, err
		}
		p.keepID(t.plan.entity)
		t.plan = p
	}

	if err := e.apply(t.plan); err != nil {
		return Result{}, err
	}
	t.State = StateCommitted
	e.generation++
	return e.result(t.plan), nil
}

// Apply validates and commits req in one step.
func (e *Engine) Apply(req Request) (Result, error) {
	t, err := e.Validate(req)
	if err != nil {
		return Result{}, err
	}
	return e.Commit(t)
}

func (e *Engine) validate(req Request, connectivity bool) (*plan, error) {
	p, err := e.plan(req)
	if err != nil {
		return nil, err
	}
	if err = e.checkRegion(p); err != nil {
		return nil, err
	}
	if err = e.checkCollision(p); err != nil {
		return nil, err
	}
	if err = e.checkGround(p); err != nil {
		return nil, err
	}
	if connectivity {
		mesh := e.layer.Working()
		overlay, _ := e.overlay(p, mesh)
		if err = e.checkConnectivity(p, mesh, overlay); err != nil {
			return nil, err
		}
	}
	if err = e.checkOwnership(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Engine) tilesOf(p *plan) map[int]uint64 {
	mesh := e.layer.Working()
	_, region := e.overlay(p, mesh)
	return mesh.TileVersions(region)
}

// apply mutates the world and the spatial layer. Failures here mean the
// derived state is corrupt and are returned as is.
func (e *Engine) apply(p *plan) error {
	for _, o := range p.remove {
		if _, err := e.world.RemoveObject(o.ID); err != nil {
			return err
		}
		if err := e.layer.RemoveObject(e.world, o); err != nil {
			return err
		}
	}
	if p.removeWall != nil {
		if _, err := e.world.RemoveWall(p.removeWall.ID); err != nil {
			return err
		}
		if err := e.layer.RemoveWall(p.removeWall); err != nil {
			return err
		}
	}
	if p.addWall != nil {
		if err := e.world.AddWall(p.addWall); err != nil {
			return err
		}
		if err := e.layer.InsertWall(e.world, p.addWall); err != nil {
			return err
		}
	}
	for _, o := range p.add {
		if err := e.world.AddObject(o); err != nil {
			return err
		}
		if err := e.layer.InsertObject(e.world, o); err != nil {
			return err
		}
	}
	if p.permission != nil {
		p.permission.object.Permission = p.permission.value
	}
	if err := e.applyGround(p); err != nil {
		return err
	}
	if p.charge != 0 {
		if family, ok := e.world.Family(p.payer); ok {
			family.Budget -= p.charge
		}
	}

	e.publish(p)
	e.logger.Debug("Edit committed",
		log.String("op", string(p.op)),
		log.Stringer("entity", p.entity),
		log.Int64("charged", p.charge),
	)
	return nil
}

func (e *Engine) result(p *plan) Result {
	r := Result{Op: p.op, Entity: p.entity, Charged: p.charge}
	for _, o := range p.remove {
		if o.ID != p.entity {
			r.Removed = append(r.Removed, o.ID)
		}
	}
	return r
}

func (e *Engine) publish(p *plan) {
	var batch []events.Event
	emit := func(typ string, id world.NetID, descriptor string) {
		batch = append(batch, events.NewEvent(typ, eventSource, events.Entity{
			ID:         id,
			Family:     p.requester.Family,
			Descriptor: descriptor,
			Tick:       e.world.Tick,
		}))
	}

	switch p.op {
	case OpPlace:
		emit(events.TypeObjectPlaced, p.entity, p.add[0].Descriptor)
	case OpMove:
		emit(events.TypeObjectMoved, p.entity, p.add[0].Descriptor)
	case OpRemove:
		emit(events.TypeObjectRemoved, p.entity, p.remove[0].Descriptor)
	case OpCreateWall:
		emit(events.TypeWallCreated, p.entity, "")
	case OpRemoveWall:
		for _, o := range p.remove {
			emit(events.TypeObjectRemoved, o.ID, o.Descriptor)
		}
		emit(events.TypeWallRemoved, p.entity, "")
	case OpSetPermission:
		emit(events.TypePermissionChanged, p.entity, p.permission.object.Descriptor)
	case OpCreateLot:
		emit(events.TypeLotCreated, p.entity, "")
	case OpMoveLot:
		emit(events.TypeLotMoved, p.entity, "")
	case OpRemoveLot:
		emit(events.TypeLotRemoved, p.entity, "")
	case OpBuyLot:
		batch = append(batch, events.NewEvent(events.TypeLotBought, eventSource, events.Entity{
			ID:     p.entity,
			Family: p.purchase.family,
			Tick:   e.world.Tick,
		}))
	case OpCreateRoad:
		emit(events.TypeRoadCreated, p.entity, "")
	case OpRemoveRoad:
		emit(events.TypeRoadRemoved, p.entity, "")
	}
	e.dispatch(batch...)
}

func (e *Engine) rejected(req Request, err error) {
	reason, ok := ReasonOf(err)
	if !ok {
		return
	}
	e.logger.Debug("Edit rejected",
		log.String("op", string(req.Op)),
		log.String("reason", string(reason)),
		log.Error(err),
	)
	e.dispatch(events.NewEvent(events.TypePlacementRejected, eventSource, events.Entity{
		ID:         req.Target,
		Family:     req.Requester.Family,
		Descriptor: req.Descriptor,
		Reason:     string(reason),
		Tick:       e.world.Tick,
	}))
}

func (e *Engine) dispatch(batch ...events.Event) {
	if e.bus == nil || len(batch) == 0 {
		return
	}
	if err := e.bus.PublishBatch(batch...); err != nil {
		e.logger.Warn("Event handler failed", log.Error(err))
	}
}
