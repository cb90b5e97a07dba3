package placement

import (
	"github.com/zeusync/homestead/internal/core/events"
	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/world"
)

const opRevalidate Op = "revalidate"

// Revalidate swaps the current descriptor into every instance of
// descriptorID. Instances that do not validate with the new descriptor are
// removed and reported as invalidated.
func (e *Engine) Revalidate(descriptorID string) (replaced, removed []world.NetID, err error) {
	desc, known := e.library.Get(descriptorID)
	for _, o := range e.world.Objects() {
		if o.Descriptor != descriptorID {
			continue
		}

		var reason Reason
		if !known {
			reason = ReasonUnknownDescriptor
		} else {
			next := *o
			next.Desc = desc
			next.Components = desc.InstanceComponents()
			p := &plan{
				op:        opRevalidate,
				requester: Requester{Role: RoleServer},
				entity:    o.ID,
				add:       []*world.Object{&next},
				remove:    []*world.Object{o},
			}
			reason = e.revalidate(p)
			if reason == "" {
				if err = e.apply(p); err != nil {
					return replaced, removed, err
				}
				replaced = append(replaced, o.ID)
				continue
			}
		}

		p := &plan{op: opRevalidate, requester: Requester{Role: RoleServer}, entity: o.ID, remove: []*world.Object{o}}
		if err = e.apply(p); err != nil {
			return replaced, removed, err
		}
		removed = append(removed, o.ID)
		e.logger.Info("Instance invalidated by reload",
			log.Stringer("object", o.ID),
			log.String("descriptor", descriptorID),
			log.String("reason", string(reason)),
		)
		e.dispatch(events.NewEvent(events.TypeObjectInvalidated, eventSource, events.Entity{
			ID:         o.ID,
			Family:     o.Owner,
			Descriptor: descriptorID,
			Reason:     string(reason),
			Tick:       e.world.Tick,
		}))
	}
	if len(replaced)+len(removed) > 0 {
		e.generation++
	}
	return replaced, removed, nil
}

// revalidate runs the checks that do not depend on who placed the object
// and returns the first failing reason.
func (e *Engine) revalidate(p *plan) Reason {
	o := p.add[0]
	_, mountable := o.Desc.Mount()
	if wantsWall := mountable || o.Desc.Category.NeedsWall(); wantsWall != o.Mounted() {
		return ReasonRequiresWall
	}
	check := func() error {
		if err := e.checkRegion(p); err != nil {
			return err
		}
		if err := e.checkCollision(p); err != nil {
			return err
		}
		mesh := e.layer.Working()
		overlay, _ := e.overlay(p, mesh)
		return e.checkConnectivity(p, mesh, overlay)
	}
	if err := check(); err != nil {
		reason, _ := ReasonOf(err)
		return reason
	}
	return ""
}
