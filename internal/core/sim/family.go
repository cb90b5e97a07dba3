package sim

import (
	"fmt"
	"slices"

	"github.com/zeusync/homestead/internal/core/events"
	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/world"
)

type MemberSpec struct {
	Name     string
	Position geom.Vec2
}

type FamilySpec struct {
	Name    string
	Budget  int64
	Members []MemberSpec
	// Lot is an unowned lot the family moves into, if set.
	Lot world.NetID
}

// CreateFamily adds a family with its members. Nothing is created unless
// every member can be spawned.
func (s *Simulation) CreateFamily(spec FamilySpec) (*world.Family, error) {
	if spec.Name == "" || spec.Budget < 0 || len(spec.Members) == 0 {
		return nil, fmt.Errorf("%w: needs a name, members and a non-negative budget", ErrInvalidFamily)
	}
	mesh := s.layer.Working()
	for _, m := range spec.Members {
		if !s.world.Bounds.Contains(m.Position) {
			return nil, fmt.Errorf("%w: %s at %v", ErrOutOfBounds, m.Name, m.Position)
		}
		if !mesh.WalkableAt(m.Position) {
			return nil, fmt.Errorf("%w: %s at %v", ErrSpawnBlocked, m.Name, m.Position)
		}
	}
	var lot *world.Lot
	if spec.Lot != world.City {
		var ok bool
		if lot, ok = s.world.Lot(spec.Lot); !ok || lot.Owner != world.City {
			return nil, fmt.Errorf("%w: lot %s is not available", ErrInvalidFamily, spec.Lot)
		}
	}

	family := &world.Family{ID: s.world.NewID(), Name: spec.Name, Budget: spec.Budget}
	if err := s.world.AddFamily(family); err != nil {
		return nil, err
	}
	for _, m := range spec.Members {
		actor := &world.Actor{
			ID:       s.world.NewID(),
			Name:     m.Name,
			Family:   family.ID,
			Position: m.Position,
			Needs:    world.FullNeeds(),
			Activity: world.ActivityIdle,
			Speed:    s.config.WalkSpeed,
		}
		if err := s.world.AddActor(actor); err != nil {
			return nil, err
		}
		family.Members = append(family.Members, actor.ID)
	}
	if lot != nil {
		lot.Owner = family.ID
	}

	s.invalidate()
	s.logger.Info("Family created", log.Stringer("family", family.ID), log.Int("members", len(family.Members)))
	s.emit(events.TypeFamilyCreated, events.Entity{ID: family.ID, Family: family.ID})
	return family, nil
}

// DeleteFamily despawns the members and hands the family's lots, walls
// and objects over to the city.
func (s *Simulation) DeleteFamily(id world.NetID) error {
	family, ok := s.world.Family(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFamily, id)
	}
	for _, member := range family.Members {
		s.despawn(member)
	}
	for _, lot := range s.world.Lots() {
		if lot.Owner == id {
			lot.Owner = world.City
		}
	}
	for _, wall := range s.world.Walls() {
		if wall.Owner == id {
			wall.Owner = world.City
		}
	}
	for _, o := range s.world.Objects() {
		if o.Owner == id {
			o.Owner = world.City
		}
	}
	if _, err := s.world.RemoveFamily(id); err != nil {
		return err
	}

	s.invalidate()
	s.logger.Info("Family deleted", log.Stringer("family", id))
	s.emit(events.TypeFamilyDeleted, events.Entity{ID: id, Family: id})
	return nil
}

// MoveMember transfers an actor to another family. Its queued tasks are
// dropped.
func (s *Simulation) MoveMember(actorID, familyID world.NetID) error {
	actor, ok := s.world.Actor(actorID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownActor, actorID)
	}
	to, ok := s.world.Family(familyID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFamily, familyID)
	}
	if actor.Family == familyID {
		return nil
	}
	if from, ok := s.world.Family(actor.Family); ok {
		from.Members = slices.DeleteFunc(from.Members, func(id world.NetID) bool { return id == actorID })
	}
	to.Members = append(to.Members, actorID)
	actor.Family = familyID
	actor.CancelTasks()
	s.paths.Cancel(actorID)

	s.invalidate()
	s.emit(events.TypeMemberMoved, events.Entity{ID: actorID, Family: familyID})
	return nil
}

func (s *Simulation) despawn(id world.NetID) {
	if _, err := s.world.RemoveActor(id); err != nil {
		s.logger.Warn("Despawn of unknown actor", log.Stringer("actor", id))
	}
	delete(s.agents, id)
	s.paths.Cancel(id)
}

// MoveHere queues a walk to dest for an actor of family.
func (s *Simulation) MoveHere(actorID, family world.NetID, dest geom.Vec2) (uint64, error) {
	actor, err := s.commandable(actorID, family)
	if err != nil {
		return 0, err
	}
	if len(actor.Tasks) >= s.config.MaxTasks {
		return 0, ErrTaskQueueFull
	}
	if !s.world.Bounds.Contains(dest) {
		return 0, fmt.Errorf("%w: %v", ErrOutOfBounds, dest)
	}
	return actor.PushTask(world.Task{Kind: world.TaskMoveHere, Dest: dest}), nil
}

// Use queues the use of an object for an actor of family.
func (s *Simulation) Use(actorID, family, objectID world.NetID) (uint64, error) {
	actor, err := s.commandable(actorID, family)
	if err != nil {
		return 0, err
	}
	if len(actor.Tasks) >= s.config.MaxTasks {
		return 0, ErrTaskQueueFull
	}
	o, ok := s.world.Object(objectID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownObject, objectID)
	}
	if !o.UsableBy(actor.Family) {
		return 0, ErrNotUsable
	}
	if len(o.Adverts()) == 0 {
		return 0, ErrNothingToUse
	}
	return actor.PushTask(world.Task{Kind: world.TaskUse, Object: objectID}), nil
}

// CancelTasks clears the task queue of an actor of family.
func (s *Simulation) CancelTasks(actorID, family world.NetID) error {
	actor, err := s.commandable(actorID, family)
	if err != nil {
		return err
	}
	actor.CancelTasks()
	s.paths.Cancel(actorID)
	return nil
}

func (s *Simulation) commandable(actorID, family world.NetID) (*world.Actor, error) {
	actor, ok := s.world.Actor(actorID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActor, actorID)
	}
	if actor.Family != family {
		return nil, ErrForbidden
	}
	return actor, nil
}
