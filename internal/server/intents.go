package server

import (
	"errors"
	"fmt"

	"github.com/zeusync/homestead/internal/core/navigation"
	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/placement"
	"github.com/zeusync/homestead/internal/core/replication"
	"github.com/zeusync/homestead/internal/core/sim"
	"github.com/zeusync/homestead/internal/core/world"
)

// Rejection reasons not produced by the placement engine.
const (
	ReasonRateLimited   = "rate_limited"
	ReasonTaskQueueFull = "task_queue_full"
	ReasonFamilyClaimed = "family_claimed"
)

var placementOps = map[replication.IntentKind]placement.Op{
	replication.IntentPlace:         placement.OpPlace,
	replication.IntentMove:          placement.OpMove,
	replication.IntentRemove:        placement.OpRemove,
	replication.IntentCreateWall:    placement.OpCreateWall,
	replication.IntentRemoveWall:    placement.OpRemoveWall,
	replication.IntentSetPermission: placement.OpSetPermission,
	replication.IntentCreateLot:     placement.OpCreateLot,
	replication.IntentMoveLot:       placement.OpMoveLot,
	replication.IntentRemoveLot:     placement.OpRemoveLot,
	replication.IntentBuyLot:        placement.OpBuyLot,
	replication.IntentCreateRoad:    placement.OpCreateRoad,
	replication.IntentRemoveRoad:    placement.OpRemoveRoad,
}

// apply executes one intent for session. Rejections are reported in the
// result; the error is only set when the world can no longer be trusted.
func (s *Server) apply(session *Session, intent replication.Intent) (replication.IntentResult, error) {
	r := replication.IntentResult{ID: intent.ID, Entity: intent.Target}
	if intent.Actor != world.City && intent.Target == world.City {
		r.Entity = intent.Actor
	}

	entity, err := s.execute(session, intent)
	if err != nil {
		if errors.Is(err, navigation.ErrInvariantViolation) {
			return r, err
		}
		r.Reason = reasonOf(err)
		session.logger.Debug("Intent rejected",
			log.Uint64("intent", intent.ID),
			log.String("kind", string(intent.Kind)),
			log.String("reason", r.Reason),
			log.Error(err),
		)
		return r, nil
	}
	r.Accepted = true
	r.Entity = entity
	return r, nil
}

func (s *Server) execute(session *Session, intent replication.Intent) (world.NetID, error) {
	if err := intent.Validate(); err != nil {
		return world.City, err
	}
	if intent.Kind == replication.IntentCreateFamily {
		return s.createFamily(session, intent)
	}

	req, err := s.requester(session, intent)
	if err != nil {
		return world.City, err
	}
	switch intent.Kind {
	case replication.IntentInteract:
		_, err = s.sim.Use(intent.Actor, req.Family, intent.Target)
		return intent.Actor, err
	case replication.IntentMoveActor:
		_, err = s.sim.MoveHere(intent.Actor, req.Family, intent.Position)
		return intent.Actor, err
	case replication.IntentTellSecret:
		_, err = s.sim.TellSecret(intent.Actor, req.Family, intent.Target)
		return intent.Actor, err
	case replication.IntentCancelTasks:
		return intent.Actor, s.sim.CancelTasks(intent.Actor, req.Family)
	case replication.IntentMoveMember:
		return intent.Actor, s.moveMember(session, req, intent)
	case replication.IntentDeleteFamily:
		if err = s.sim.DeleteFamily(req.Family); err != nil {
			return world.City, err
		}
		s.release(req.Family)
		return req.Family, nil
	}

	op, ok := placementOps[intent.Kind]
	if !ok {
		return world.City, fmt.Errorf("%w: %s", replication.ErrInvalidIntent, intent.Kind)
	}
	ticket, err := s.engine.Validate(placement.Request{
		Op:         op,
		Requester:  req,
		Descriptor: intent.Descriptor,
		Target:     intent.Target,
		Position:   intent.Position,
		Yaw:        intent.Yaw,
		Start:      intent.Start,
		End:        intent.End,
		Permission: intent.Permission,
		Vertices:   intent.Vertices,
	})
	if err != nil {
		return world.City, err
	}
	res, err := s.engine.Commit(ticket)
	if err != nil {
		return world.City, err
	}
	return res.Entity, nil
}

// moveMember hands an actor to another family. Players may only give away
// members of their own family; editors move anyone anywhere.
func (s *Server) moveMember(session *Session, req placement.Requester, intent replication.Intent) error {
	if session.role != placement.RoleEditor {
		a, ok := s.world.Actor(intent.Actor)
		if !ok {
			return fmt.Errorf("%w: %s", sim.ErrUnknownActor, intent.Actor)
		}
		if a.Family != req.Family {
			return fmt.Errorf("%w: actor %s is not of family %s", ErrUnauthorized, a.ID, req.Family)
		}
	}
	return s.sim.MoveMember(intent.Actor, intent.Target)
}

// requester checks the claims of an intent against the session. Players
// act only for their own family; editors act for whichever family the
// intent names, or for the family of the commanded actor.
func (s *Server) requester(session *Session, intent replication.Intent) (placement.Requester, error) {
	if session.role == placement.RoleEditor {
		family := intent.Family
		if a, ok := s.world.Actor(intent.Actor); ok {
			family = a.Family
		}
		return placement.Requester{Family: family, Role: placement.RoleEditor}, nil
	}
	if intent.Family != session.family {
		return placement.Requester{}, fmt.Errorf("%w: claims family %s, session has %s", ErrUnauthorized, intent.Family, session.family)
	}
	return session.requester(), nil
}

func (s *Server) createFamily(session *Session, intent replication.Intent) (world.NetID, error) {
	spec := sim.FamilySpec{Name: intent.Name, Budget: intent.Budget, Lot: intent.Lot}
	if session.role != placement.RoleEditor {
		if session.family != world.City {
			return world.City, errFamilyClaimed
		}
		spec.Budget = s.config.StartingBudget
	}
	for _, m := range intent.Members {
		spec.Members = append(spec.Members, sim.MemberSpec{Name: m.Name, Position: m.Position})
	}
	f, err := s.sim.CreateFamily(spec)
	if err != nil {
		return world.City, err
	}
	if session.role != placement.RoleEditor {
		session.family = f.ID
	}
	return f.ID, nil
}

// release detaches every session from a deleted family.
func (s *Server) release(family world.NetID) {
	for _, session := range s.live {
		if session.family == family {
			session.family = world.City
		}
	}
}

var errFamilyClaimed = errors.New("session already has a family")

func reasonOf(err error) string {
	if reason, ok := placement.ReasonOf(err); ok {
		return string(reason)
	}
	switch {
	case errors.Is(err, errFamilyClaimed):
		return ReasonFamilyClaimed
	case errors.Is(err, sim.ErrTaskQueueFull):
		return ReasonTaskQueueFull
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, sim.ErrForbidden),
		errors.Is(err, sim.ErrNotUsable):
		return string(placement.ReasonPermissionDenied)
	case errors.Is(err, sim.ErrUnknownActor),
		errors.Is(err, sim.ErrUnknownObject),
		errors.Is(err, sim.ErrUnknownFamily):
		return string(placement.ReasonUnknownEntity)
	case errors.Is(err, sim.ErrOutOfBounds):
		return string(placement.ReasonOutOfBounds)
	case errors.Is(err, sim.ErrSpawnBlocked):
		return string(placement.ReasonCollision)
	}
	return string(placement.ReasonInvalidRequest)
}
