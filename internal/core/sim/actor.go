package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/zeusync/homestead/internal/core/behavior"
	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/navigation"
	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/world"
)

var errUnreachable = errors.New("object out of reach")

func (s *Simulation) performTask(t *behavior.Tick[*subject]) (behavior.Status, error) {
	a := t.Subject.actor
	task, ok := a.CurrentTask()
	if !ok {
		return behavior.StatusFailure, nil
	}
	switch task.Kind {
	case world.TaskMoveHere:
		return s.moveHere(t, task)
	case world.TaskUse:
		return s.use(t, task)
	case world.TaskTellSecret:
		return s.tellSecret(t, task)
	default:
		s.failTask(a, fmt.Errorf("unknown task kind %q", task.Kind))
		return behavior.StatusFailure, nil
	}
}

func (s *Simulation) moveHere(t *behavior.Tick[*subject], task world.Task) (behavior.Status, error) {
	a := t.Subject.actor
	if geom.Distance(a.Position, task.Dest) <= s.config.ArrivalRadius {
		s.completeTask(a)
		return behavior.StatusSuccess, nil
	}
	st := s.follow(t, task.Dest)
	if st == behavior.StatusSuccess {
		// The path ends as close as the mesh allows.
		s.completeTask(a)
	}
	return st, nil
}

func (s *Simulation) use(t *behavior.Tick[*subject], task world.Task) (behavior.Status, error) {
	a := t.Subject.actor
	o, ok := s.world.Object(task.Object)
	if !ok {
		s.failTask(a, ErrUnknownObject)
		return behavior.StatusFailure, nil
	}
	if !o.UsableBy(a.Family) {
		s.failTask(a, ErrNotUsable)
		return behavior.StatusFailure, nil
	}
	advert, ok := advertFor(o, task.Need)
	if !ok {
		s.failTask(a, ErrNothingToUse)
		return behavior.StatusFailure, nil
	}

	if distanceTo(o, a.Position) > s.reach(advert) {
		if s.follow(t, o.Transform.Ground()) == behavior.StatusSuccess {
			s.failTask(a, errUnreachable)
			return behavior.StatusFailure, nil
		}
		return behavior.StatusRunning, nil
	}

	if a.Activity != world.ActivityUsing {
		a.Activity = world.ActivityUsing
		a.Path = nil
		s.paths.Cancel(a.ID)
		to := o.Transform.Ground().Sub(a.Position)
		a.Yaw = math.Atan2(to.Y(), to.X())
	}
	a.UseTimer += t.Subject.dt
	if a.UseTimer < advert.Duration {
		return behavior.StatusRunning, nil
	}
	a.Needs.Add(advert.Need, advert.Restore)
	s.completeTask(a)
	return behavior.StatusSuccess, nil
}

// follow moves the actor along its path to dest. It returns running while
// the path is requested or walked and success once the path is used up. A
// path crossing cells blocked since it was computed is discarded and
// requested again.
func (s *Simulation) follow(t *behavior.Tick[*subject], dest geom.Vec2) behavior.Status {
	a, mesh := t.Subject.actor, t.Subject.mesh
	if goal, ok := behavior.Value[uint64](t.BB, keyPathGoal); !ok || goal != a.Goal {
		if !a.Waiting {
			s.request(a, dest)
		}
		return behavior.StatusRunning
	}
	if len(a.Path) == 0 {
		return behavior.StatusSuccess
	}
	if a.PathVersion != mesh.Version() {
		if err := checkPath(mesh, a); err != nil {
			s.logger.Debug("Repathing", log.Stringer("actor", a.ID), log.Error(err))
			a.Path = nil
			t.BB.Delete(keyPathGoal)
			s.request(a, dest)
			return behavior.StatusRunning
		}
		a.PathVersion = mesh.Version()
	}
	s.walk(a, t.Subject.dt)
	return behavior.StatusRunning
}

func checkPath(mesh *navigation.Mesh, a *world.Actor) error {
	waypoints := append([]geom.Vec2{a.Position}, a.Path...)
	if !mesh.PathClear(waypoints) {
		return navigation.ErrStalePath
	}
	return nil
}

func (s *Simulation) request(a *world.Actor, dest geom.Vec2) {
	err := s.paths.Request(navigation.Request{
		Token: navigation.Token{Agent: a.ID, Goal: a.Goal},
		From:  a.Position,
		To:    dest,
	})
	if err != nil {
		// Retried on the next tick.
		s.logger.Debug("Path request deferred", log.Stringer("actor", a.ID), log.Error(err))
		return
	}
	a.Waiting = true
}

func (s *Simulation) walk(a *world.Actor, dt float64) {
	speed := a.Speed
	if speed <= 0 {
		speed = s.config.WalkSpeed
	}
	step := speed * dt
	for step > 0 && len(a.Path) > 0 {
		next := a.Path[0]
		to := next.Sub(a.Position)
		d := to.Len()
		if d > geom.Epsilon {
			a.Yaw = math.Atan2(to.Y(), to.X())
		}
		if d <= step {
			a.Position = next
			a.Path = a.Path[1:]
			step -= d
			continue
		}
		a.Position = a.Position.Add(to.Mul(step / d))
		step = 0
	}
	if len(a.Path) == 0 {
		a.Path = nil
	}
	a.Activity = world.ActivityWalking
}
