package replication

import (
	"encoding/json"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/spatial"
	"github.com/zeusync/homestead/internal/core/world"
)

type EntityKind string

const (
	KindLot    EntityKind = "lot"
	KindRoad   EntityKind = "road"
	KindWall   EntityKind = "wall"
	KindFamily EntityKind = "family"
	KindObject EntityKind = "object"
	KindActor  EntityKind = "actor"
)

// Component names. Topology components travel reliably, the rest may be
// dropped.
const (
	ComponentObject    = "object"
	ComponentTransform = "transform"
	ComponentWall      = "wall"
	ComponentCutouts   = "cutouts"
	ComponentLot       = "lot"
	ComponentRoad      = "road"
	ComponentFamily    = "family"
	ComponentActor     = "actor"
	ComponentTask      = "task"
	ComponentMotion    = "motion"
	ComponentNeeds     = "needs"
	ComponentDoor      = "door"
)

var reliable = map[string]bool{
	ComponentObject:    true,
	ComponentTransform: true,
	ComponentWall:      true,
	ComponentCutouts:   true,
	ComponentLot:       true,
	ComponentRoad:      true,
	ComponentFamily:    true,
	ComponentActor:     true,
	ComponentTask:      true,
}

// Reliable reports whether changes of a component are sent reliably.
func Reliable(component string) bool { return reliable[component] }

type ObjectState struct {
	Descriptor string           `json:"descriptor"`
	Owner      world.NetID      `json:"owner"`
	Lot        world.NetID      `json:"lot"`
	Permission world.Permission `json:"permission"`
	Wall       world.NetID      `json:"wall"`
}

type TransformState struct {
	Position mgl64.Vec3 `json:"position"`
	Yaw      float64    `json:"yaw"`
}

type WallState struct {
	Start geom.Vec2   `json:"start"`
	End   geom.Vec2   `json:"end"`
	Owner world.NetID `json:"owner"`
	Lot   world.NetID `json:"lot"`
}

type CutoutState struct {
	Pieces  []geom.Polygon  `json:"pieces,omitempty"`
	Holes   []geom.Interval `json:"holes,omitempty"`
	Portals []geom.Interval `json:"portals,omitempty"`
}

type LotState struct {
	Polygon geom.Polygon `json:"polygon"`
	Owner   world.NetID  `json:"owner"`
}

type RoadState struct {
	Start     geom.Vec2 `json:"start"`
	End       geom.Vec2 `json:"end"`
	HalfWidth float64   `json:"half_width"`
}

type FamilyState struct {
	Name    string        `json:"name"`
	Budget  int64         `json:"budget"`
	Members []world.NetID `json:"members"`
}

type ActorState struct {
	Name   string      `json:"name"`
	Family world.NetID `json:"family"`
}

type TaskState struct {
	Tasks []world.Task `json:"tasks"`
}

type MotionState struct {
	Position geom.Vec2      `json:"position"`
	Yaw      float64        `json:"yaw"`
	Activity world.Activity `json:"activity"`
}

type DoorState struct {
	Open bool `json:"open"`
}

// ApertureSource provides the carved state of walls.
type ApertureSource interface {
	Aperture(wall world.NetID) (spatial.Aperture, bool)
}

// entityState is one entity encoded as components.
type entityState struct {
	kind  EntityKind
	comps map[string][]byte
}

type capture struct {
	order    []world.NetID
	entities map[world.NetID]*entityState
}

func (c *capture) add(id world.NetID, kind EntityKind, comps map[string]any) error {
	e := &entityState{kind: kind, comps: make(map[string][]byte, len(comps))}
	for name, v := range comps {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		e.comps[name] = data
	}
	c.order = append(c.order, id)
	c.entities[id] = e
	return nil
}

// captureWorld encodes every entity. Entities come in dependency order:
// lots, roads, walls, families, objects, actors.
func captureWorld(w *world.World, apertures ApertureSource) (*capture, error) {
	c := &capture{entities: make(map[world.NetID]*entityState)}
	for _, lot := range w.Lots() {
		if err := c.add(lot.ID, KindLot, map[string]any{
			ComponentLot: LotState{Polygon: lot.Polygon, Owner: lot.Owner},
		}); err != nil {
			return nil, err
		}
	}
	for _, road := range w.Roads() {
		if err := c.add(road.ID, KindRoad, map[string]any{
			ComponentRoad: RoadState{Start: road.Start, End: road.End, HalfWidth: road.HalfWidth},
		}); err != nil {
			return nil, err
		}
	}
	for _, wall := range w.Walls() {
		comps := map[string]any{
			ComponentWall: WallState{Start: wall.Start, End: wall.End, Owner: wall.Owner, Lot: wall.Lot},
		}
		if apertures != nil {
			if ap, ok := apertures.Aperture(wall.ID); ok && len(ap.Cutouts) > 0 {
				comps[ComponentCutouts] = CutoutState{Pieces: ap.Pieces, Holes: ap.Holes, Portals: ap.Portals}
			}
		}
		if err := c.add(wall.ID, KindWall, comps); err != nil {
			return nil, err
		}
	}
	for _, f := range w.Families() {
		if err := c.add(f.ID, KindFamily, map[string]any{
			ComponentFamily: FamilyState{Name: f.Name, Budget: f.Budget, Members: f.Members},
		}); err != nil {
			return nil, err
		}
	}
	for _, o := range w.Objects() {
		comps := map[string]any{
			ComponentObject: ObjectState{
				Descriptor: o.Descriptor,
				Owner:      o.Owner,
				Lot:        o.Lot,
				Permission: o.Permission,
				Wall:       o.Wall,
			},
			ComponentTransform: TransformState{Position: o.Transform.Position, Yaw: o.Transform.Yaw},
		}
		if _, ok := o.Door(); ok {
			comps[ComponentDoor] = DoorState{Open: o.DoorOpen}
		}
		if err := c.add(o.ID, KindObject, comps); err != nil {
			return nil, err
		}
	}
	for _, a := range w.Actors() {
		if err := c.add(a.ID, KindActor, map[string]any{
			ComponentActor:  ActorState{Name: a.Name, Family: a.Family},
			ComponentTask:   TaskState{Tasks: a.Tasks},
			ComponentMotion: MotionState{Position: a.Position, Yaw: a.Yaw, Activity: a.Activity},
			ComponentNeeds:  a.Needs,
		}); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// reliableHash fingerprints the reliable components of an entity. Server
// and mirror compute it over the same encoded bytes.
func reliableHash[V ~[]byte](comps map[string]V) uint64 {
	names := make([]string, 0, len(comps))
	for name := range comps {
		if Reliable(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	d := xxhash.New()
	for _, name := range names {
		_, _ = d.WriteString(name)
		_, _ = d.Write([]byte{0})
		_, _ = d.Write([]byte(comps[name]))
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}
