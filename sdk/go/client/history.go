package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/replication"
	"github.com/zeusync/homestead/internal/core/world"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	// ErrStepRejected is returned when the server refuses an undo or redo,
	// usually because the world changed in between. The step stays where
	// it was.
	ErrStepRejected = errors.New("history step rejected")
	ErrNotMirrored  = errors.New("entity state not mirrored")
)

// Intents is what History needs from a client.
type Intents interface {
	Do(ctx context.Context, intent replication.Intent) (replication.IntentResult, error)
	Mirror() *replication.Mirror
}

// creates lists the intents producing a new entity.
var creates = map[replication.IntentKind]bool{
	replication.IntentPlace:      true,
	replication.IntentCreateWall: true,
	replication.IntentCreateLot:  true,
	replication.IntentCreateRoad: true,
}

type step struct {
	forward  replication.Intent
	backward replication.Intent
	// entity is the stable id of the entity the step creates or changes.
	entity world.NetID
}

// History undoes and redoes building edits. Undoing a removal places a new
// entity with a new id, so steps refer to entities by the id they had when
// first seen and History keeps track of their current one.
type History struct {
	client Intents
	limit  int

	mu       sync.Mutex
	undo     []step
	redo     []step
	current  map[world.NetID]world.NetID
	original map[world.NetID]world.NetID
}

// NewHistory keeps at most limit steps; zero keeps everything.
func NewHistory(client Intents, limit int) *History {
	return &History{
		client:   client,
		limit:    limit,
		current:  make(map[world.NetID]world.NetID),
		original: make(map[world.NetID]world.NetID),
	}
}

// Do sends an intent and records it when it is accepted and can be undone.
// Intents without an inverse, like buying a lot or commanding an actor,
// pass straight through.
func (h *History) Do(ctx context.Context, intent replication.Intent) (replication.IntentResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	backward, undoable, err := h.inverse(intent)
	if err != nil {
		return replication.IntentResult{}, err
	}
	r, err := h.client.Do(ctx, intent)
	if err != nil || !r.Accepted || !undoable {
		return r, err
	}

	s := step{forward: h.stable(intent), backward: backward, entity: h.stableID(intent.Target)}
	if creates[intent.Kind] {
		s.entity = h.stableID(r.Entity)
		s.backward.Target = s.entity
	}
	h.undo = append(h.undo, s)
	if h.limit > 0 && len(h.undo) > h.limit {
		h.undo = h.undo[1:]
	}
	h.redo = h.redo[:0]
	return r, nil
}

// Undo reverts the latest recorded step.
func (h *History) Undo(ctx context.Context) (replication.IntentResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.undo) == 0 {
		return replication.IntentResult{}, ErrNothingToUndo
	}
	s := h.undo[len(h.undo)-1]
	r, err := h.replay(ctx, s, s.backward)
	if err != nil {
		return r, err
	}
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, s)
	return r, nil
}

// Redo applies the latest undone step again.
func (h *History) Redo(ctx context.Context) (replication.IntentResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.redo) == 0 {
		return replication.IntentResult{}, ErrNothingToRedo
	}
	s := h.redo[len(h.redo)-1]
	r, err := h.replay(ctx, s, s.forward)
	if err != nil {
		return r, err
	}
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, s)
	return r, nil
}

// Len returns the number of steps that can be undone and redone.
func (h *History) Len() (undo, redo int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo), len(h.redo)
}

// Clear forgets every step.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undo, h.redo = nil, nil
	clear(h.current)
	clear(h.original)
}

func (h *History) replay(ctx context.Context, s step, intent replication.Intent) (replication.IntentResult, error) {
	if intent.Target != world.City {
		intent.Target = h.currentID(intent.Target)
	}
	r, err := h.client.Do(ctx, intent)
	if err != nil {
		return r, err
	}
	if !r.Accepted {
		return r, fmt.Errorf("%w: %s: %s", ErrStepRejected, intent.Kind, r.Reason)
	}
	if creates[intent.Kind] {
		h.bind(s.entity, r.Entity)
	}
	return r, nil
}

// inverse builds the intent undoing intent from the state the mirror holds
// before it is sent. Targets of the result are stable ids; the target of a
// creation is filled in once the server names the new entity.
func (h *History) inverse(intent replication.Intent) (replication.Intent, bool, error) {
	mirror := h.client.Mirror()
	back := replication.Intent{Family: intent.Family, Target: h.stableID(intent.Target)}

	switch intent.Kind {
	case replication.IntentPlace:
		back.Kind = replication.IntentRemove
	case replication.IntentCreateWall:
		back.Kind = replication.IntentRemoveWall
	case replication.IntentCreateLot:
		back.Kind = replication.IntentRemoveLot
	case replication.IntentCreateRoad:
		back.Kind = replication.IntentRemoveRoad

	case replication.IntentMove:
		tr, err := get[replication.TransformState](mirror, intent.Target, replication.ComponentTransform)
		if err != nil {
			return back, false, err
		}
		back.Kind, back.Position, back.Yaw = replication.IntentMove, geom.Ground(tr.Position), tr.Yaw
	case replication.IntentRemove:
		obj, err := get[replication.ObjectState](mirror, intent.Target, replication.ComponentObject)
		if err != nil {
			return back, false, err
		}
		tr, err := get[replication.TransformState](mirror, intent.Target, replication.ComponentTransform)
		if err != nil {
			return back, false, err
		}
		back = replication.Intent{
			Kind:       replication.IntentPlace,
			Family:     intent.Family,
			Descriptor: obj.Descriptor,
			Position:   geom.Ground(tr.Position),
			Yaw:        tr.Yaw,
		}
	case replication.IntentSetPermission:
		obj, err := get[replication.ObjectState](mirror, intent.Target, replication.ComponentObject)
		if err != nil {
			return back, false, err
		}
		back.Kind, back.Permission = replication.IntentSetPermission, obj.Permission
	case replication.IntentRemoveWall:
		wall, err := get[replication.WallState](mirror, intent.Target, replication.ComponentWall)
		if err != nil {
			return back, false, err
		}
		back = replication.Intent{Kind: replication.IntentCreateWall, Family: intent.Family, Start: wall.Start, End: wall.End}
	case replication.IntentMoveLot:
		back.Kind, back.Position = replication.IntentMoveLot, intent.Position.Mul(-1)
	case replication.IntentRemoveLot:
		lot, err := get[replication.LotState](mirror, intent.Target, replication.ComponentLot)
		if err != nil {
			return back, false, err
		}
		back = replication.Intent{Kind: replication.IntentCreateLot, Family: intent.Family, Vertices: lot.Polygon.Clone()}
	case replication.IntentRemoveRoad:
		road, err := get[replication.RoadState](mirror, intent.Target, replication.ComponentRoad)
		if err != nil {
			return back, false, err
		}
		back = replication.Intent{Kind: replication.IntentCreateRoad, Family: intent.Family, Start: road.Start, End: road.End}
	default:
		return back, false, nil
	}
	return back, true, nil
}

func get[T any](mirror *replication.Mirror, id world.NetID, component string) (T, error) {
	v, ok, err := replication.Get[T](mirror, id, component)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, fmt.Errorf("%w: %s has no %s", ErrNotMirrored, id, component)
	}
	return v, nil
}

func (h *History) stable(intent replication.Intent) replication.Intent {
	if intent.Target != world.City {
		intent.Target = h.stableID(intent.Target)
	}
	return intent
}

func (h *History) stableID(id world.NetID) world.NetID {
	if orig, ok := h.original[id]; ok {
		return orig
	}
	return id
}

func (h *History) currentID(id world.NetID) world.NetID {
	if cur, ok := h.current[id]; ok {
		return cur
	}
	return id
}

func (h *History) bind(stable, current world.NetID) {
	if old, ok := h.current[stable]; ok {
		delete(h.original, old)
	}
	h.current[stable] = current
	if stable != current {
		h.original[current] = stable
	}
}
