package sim

import (
	"math"

	"github.com/zeusync/homestead/internal/core/asset"
	"github.com/zeusync/homestead/internal/core/behavior"
	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/navigation"
	"github.com/zeusync/homestead/internal/core/world"
)

const (
	keyPathGoal   = "path.goal"
	keyLowestNeed = "need.name"
	keyNeedLevel  = "need.level"
)

type needsSensor struct{}

func (needsSensor) Name() string { return "needs" }

func (needsSensor) Update(t *behavior.Tick[*subject]) error {
	name, level := t.Subject.actor.Needs.Lowest()
	t.BB.Set(keyLowestNeed, name)
	t.BB.Set(keyNeedLevel, level)
	return nil
}

func (s *Simulation) registry() *behavior.Registry[*subject] {
	reg := behavior.NewRegistry[*subject]()
	behavior.RegisterBuiltins(reg)

	reg.RegisterSensor("needs", func(behavior.Params) (behavior.Sensor[*subject], error) {
		return needsSensor{}, nil
	})
	reg.RegisterCondition("has_task", func(t *behavior.Tick[*subject]) (bool, error) {
		_, ok := t.Subject.actor.CurrentTask()
		return ok, nil
	})
	reg.RegisterLeaf("need_low", func(p behavior.Params) (behavior.Node[*subject], error) {
		threshold := p.Float("threshold", s.config.NeedThreshold)
		return behavior.NewCondition("need_low", func(t *behavior.Tick[*subject]) (bool, error) {
			level, ok := behavior.Value[float64](t.BB, keyNeedLevel)
			return ok && level < threshold, nil
		}), nil
	})
	reg.RegisterAction("choose_goal", s.chooseGoal)
	reg.RegisterAction("perform_task", s.performTask)
	reg.RegisterAction("idle", func(t *behavior.Tick[*subject]) (behavior.Status, error) {
		t.Subject.actor.Activity = world.ActivityIdle
		return behavior.StatusSuccess, nil
	})
	return reg
}

// chooseGoal queues a use task for the best reachable object restoring the
// most urgent need. Objects restoring more and lying closer score higher.
// Other actors restore social by talking to them.
func (s *Simulation) chooseGoal(t *behavior.Tick[*subject]) (behavior.Status, error) {
	a, mesh := t.Subject.actor, t.Subject.mesh
	need, ok := behavior.Value[string](t.BB, keyLowestNeed)
	if !ok || len(a.Tasks) >= s.config.MaxTasks {
		return behavior.StatusFailure, nil
	}
	home := mesh.ComponentAt(a.Position)

	var (
		best  *world.Object
		score = math.Inf(-1)
	)
	for _, o := range s.world.Objects() {
		if !o.UsableBy(a.Family) {
			continue
		}
		advert, ok := advertFor(o, need)
		if !ok {
			continue
		}
		reach := s.reach(advert)
		if home >= 0 && !reachable(mesh, o, reach, home) {
			continue
		}
		d := distanceTo(o, a.Position)
		if v := advert.Restore / (1 + d); v > score {
			best, score = o, v
		}
	}
	if need == world.NeedSocial {
		if other, d := s.closestListener(a, t, home); other != nil && s.config.TalkRestore/(1+d) > score {
			a.PushTask(world.Task{Kind: world.TaskTellSecret, Actor: other.ID, Need: need})
			return behavior.StatusSuccess, nil
		}
	}
	if best == nil {
		return behavior.StatusFailure, nil
	}
	a.PushTask(world.Task{Kind: world.TaskUse, Object: best.ID, Need: need})
	return behavior.StatusSuccess, nil
}

// reachable reports whether a walkable cell of component home lies within
// reach of the object.
func reachable(mesh *navigation.Mesh, o *world.Object, reach float64, home int) bool {
	radius := reach
	if fp, ok := o.Footprint(); ok {
		radius += fp.Half.Len()
	}
	for _, c := range mesh.CellsWithin(o.Transform.Ground(), radius) {
		if mesh.Component(c) == home && distanceTo(o, mesh.Center(c)) <= reach {
			return true
		}
	}
	return false
}

func advertFor(o *world.Object, need string) (asset.Advert, bool) {
	for _, a := range o.Adverts() {
		if need == "" || a.Need == need {
			return a, true
		}
	}
	return asset.Advert{}, false
}

func (s *Simulation) reach(a asset.Advert) float64 {
	if a.Distance > 0 {
		return a.Distance
	}
	return s.config.UseDistance
}

// distanceTo measures from p to the object's footprint, or to its position
// when it has none.
func distanceTo(o *world.Object, p geom.Vec2) float64 {
	fp, ok := o.Footprint()
	if !ok {
		return geom.Distance(o.Transform.Ground(), p)
	}
	poly := fp.Polygon()
	if poly.Contains(p) {
		return 0
	}
	d := math.Inf(1)
	for i := range poly {
		d = math.Min(d, poly.Edge(i).DistanceTo(p))
	}
	return d
}
