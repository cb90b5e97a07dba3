package sim

import (
	"fmt"
	"math"

	"github.com/zeusync/homestead/internal/core/behavior"
	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/world"
)

const keyTalkRetries = "talk.retries"

// maxTalkRetries bounds how often a speaker chases a listener that walked
// away from the end of its path.
const maxTalkRetries = 3

// TellSecret queues a conversation of an actor of family with listener.
// Both regain social when it ends.
func (s *Simulation) TellSecret(actorID, family, listenerID world.NetID) (uint64, error) {
	actor, err := s.commandable(actorID, family)
	if err != nil {
		return 0, err
	}
	if len(actor.Tasks) >= s.config.MaxTasks {
		return 0, ErrTaskQueueFull
	}
	if listenerID == actorID {
		return 0, fmt.Errorf("%w: talking to itself", ErrNothingToUse)
	}
	if _, ok := s.world.Actor(listenerID); !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownActor, listenerID)
	}
	return actor.PushTask(world.Task{Kind: world.TaskTellSecret, Actor: listenerID}), nil
}

func (s *Simulation) tellSecret(t *behavior.Tick[*subject], task world.Task) (behavior.Status, error) {
	a, mesh := t.Subject.actor, t.Subject.mesh
	listener, ok := s.world.Actor(task.Actor)
	if !ok {
		s.failTask(a, ErrUnknownActor)
		return behavior.StatusFailure, nil
	}

	if geom.Distance(a.Position, listener.Position) > s.config.TalkDistance {
		if s.follow(t, listener.Position) != behavior.StatusSuccess {
			return behavior.StatusRunning, nil
		}
		retries, _ := behavior.Value[int](t.BB, keyTalkRetries)
		if retries >= maxTalkRetries || mesh.ComponentAt(a.Position) != mesh.ComponentAt(listener.Position) {
			t.BB.Delete(keyTalkRetries)
			s.failTask(a, errUnreachable)
			return behavior.StatusFailure, nil
		}
		// The listener moved on; walk to where it stands now.
		t.BB.Set(keyTalkRetries, retries+1)
		t.BB.Delete(keyPathGoal)
		s.request(a, listener.Position)
		return behavior.StatusRunning, nil
	}

	if a.Activity != world.ActivityTalking {
		a.Activity = world.ActivityTalking
		a.Path = nil
		s.paths.Cancel(a.ID)
		to := listener.Position.Sub(a.Position)
		a.Yaw = math.Atan2(to.Y(), to.X())
	}
	a.UseTimer += t.Subject.dt
	if a.UseTimer < s.config.TalkDuration {
		return behavior.StatusRunning, nil
	}
	t.BB.Delete(keyTalkRetries)
	a.Needs.Add(world.NeedSocial, s.config.TalkRestore)
	listener.Needs.Add(world.NeedSocial, s.config.TalkRestore)
	s.completeTask(a)
	return behavior.StatusSuccess, nil
}

// closestListener finds the nearest other actor a can walk to.
func (s *Simulation) closestListener(a *world.Actor, t *behavior.Tick[*subject], home int) (*world.Actor, float64) {
	var (
		best *world.Actor
		dist = math.Inf(1)
	)
	for _, other := range s.world.Actors() {
		if other.ID == a.ID {
			continue
		}
		if home >= 0 && t.Subject.mesh.ComponentAt(other.Position) != home {
			continue
		}
		if d := geom.Distance(a.Position, other.Position); d < dist {
			best, dist = other, d
		}
	}
	return best, dist
}
