// Package sim advances families and their actors: needs decay, the
// behavior tree picks and performs tasks, actors follow paths computed in
// the background, and doors open for passing actors.
package sim

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/homestead/internal/core/behavior"
	"github.com/zeusync/homestead/internal/core/events"
	"github.com/zeusync/homestead/internal/core/navigation"
	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/spatial"
	"github.com/zeusync/homestead/internal/core/world"
)

//go:embed tree.yaml
var defaultTree []byte

const eventSource = "sim"

// PathPlanner computes paths asynchronously.
type PathPlanner interface {
	Request(req navigation.Request) error
	Cancel(agent uuid.UUID)
	Drain() []navigation.Result
}

// WorldObserver is told about world changes made by the simulation.
type WorldObserver interface {
	Invalidate()
}

// Simulation is owned by the tick goroutine.
type Simulation struct {
	config   Config
	world    *world.World
	layer    *spatial.Layer
	paths    PathPlanner
	observer WorldObserver
	bus      events.Bus
	logger   log.Log

	tree   *behavior.Tree[*subject]
	agents map[world.NetID]*behavior.Agent[*subject]
	clock  time.Duration
}

// subject is what the behavior tree drives: one actor during one tick.
type subject struct {
	actor *world.Actor
	mesh  *navigation.Mesh
	dt    float64
}

func New(config Config, w *world.World, layer *spatial.Layer, paths PathPlanner, observer WorldObserver, bus events.Bus, logger log.Log) (*Simulation, error) {
	s := &Simulation{
		config:   config,
		world:    w,
		layer:    layer,
		paths:    paths,
		observer: observer,
		bus:      bus,
		logger:   logger.With(log.String("component", "sim")),
		agents:   make(map[world.NetID]*behavior.Agent[*subject]),
	}

	source := defaultTree
	if config.Tree != "" {
		data, err := os.ReadFile(config.Tree)
		if err != nil {
			return nil, fmt.Errorf("behavior tree: %w", err)
		}
		source = data
	}
	cfg, err := behavior.LoadConfig(bytes.NewReader(source))
	if err != nil {
		return nil, err
	}
	if s.tree, err = behavior.Build(cfg, s.registry()); err != nil {
		return nil, err
	}
	return s, nil
}

// Clock is the simulated time since start.
func (s *Simulation) Clock() time.Duration { return s.clock }

// Step advances the simulation by dt.
func (s *Simulation) Step(ctx context.Context, dt time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.clock += dt
	s.world.Tick++
	s.applyPaths()

	seconds := dt.Seconds()
	mesh := s.layer.Mesh()
	for _, a := range s.world.Actors() {
		s.decay(a, seconds)
		agent := s.agent(a.ID)
		if _, err := agent.Step(ctx, &subject{actor: a, mesh: mesh, dt: seconds}, s.clock); err != nil {
			s.logger.Warn("Behavior failed", log.Stringer("actor", a.ID), log.Error(err))
		}
	}
	s.updateDoors()
	return nil
}

func (s *Simulation) agent(id world.NetID) *behavior.Agent[*subject] {
	a, ok := s.agents[id]
	if !ok {
		a = behavior.NewAgent(s.tree)
		s.agents[id] = a
	}
	return a
}

func (s *Simulation) decay(a *world.Actor, seconds float64) {
	for need, rate := range s.config.Decay {
		a.Needs.Add(need, -rate*seconds)
	}
}

// applyPaths hands finished path computations to their actors. Results for
// an old goal are dropped.
func (s *Simulation) applyPaths() {
	for _, res := range s.paths.Drain() {
		a, ok := s.world.Actor(res.Agent)
		if !ok || res.Goal != a.Goal {
			continue
		}
		a.Waiting = false
		if res.Err != nil {
			s.failTask(a, res.Err)
			continue
		}
		a.Path = nil
		if len(res.Path) > 1 {
			a.Path = append(a.Path, res.Path[1:]...)
		}
		a.PathVersion = res.Version
		s.agent(a.ID).Blackboard().Set(keyPathGoal, a.Goal)
	}
}

// updateDoors opens every door with a walking actor inside its trigger.
func (s *Simulation) updateDoors() {
	actors := s.world.Actors()
	for _, o := range s.world.Objects() {
		if _, ok := o.Door(); !ok {
			continue
		}
		trigger, ok := s.layer.Trigger(o.ID)
		if !ok {
			continue
		}
		open := false
		for _, a := range actors {
			if a.Activity == world.ActivityWalking && trigger.Contains(a.Position) {
				open = true
				break
			}
		}
		if open != o.DoorOpen {
			o.DoorOpen = open
			s.emit(events.TypeDoorToggled, events.Entity{ID: o.ID, Family: o.Owner, Descriptor: o.Descriptor})
		}
	}
}

func (s *Simulation) completeTask(a *world.Actor) {
	task, _ := a.CurrentTask()
	a.PopTask()
	s.paths.Cancel(a.ID)
	s.emit(events.TypeTaskCompleted, events.Entity{ID: a.ID, Family: a.Family, Reason: string(task.Kind)})
}

func (s *Simulation) failTask(a *world.Actor, cause error) {
	task, _ := a.CurrentTask()
	a.PopTask()
	s.paths.Cancel(a.ID)
	s.logger.Debug("Task failed",
		log.Stringer("actor", a.ID),
		log.String("task", string(task.Kind)),
		log.Error(cause),
	)
	s.emit(events.TypeTaskFailed, events.Entity{ID: a.ID, Family: a.Family, Reason: cause.Error()})
}

func (s *Simulation) emit(typ string, payload events.Entity) {
	if s.bus == nil {
		return
	}
	payload.Tick = s.world.Tick
	if err := s.bus.Publish(events.NewEvent(typ, eventSource, payload)); err != nil {
		s.logger.Warn("Event handler failed", log.String("event", typ), log.Error(err))
	}
}

func (s *Simulation) invalidate() {
	if s.observer != nil {
		s.observer.Invalidate()
	}
}
