// Package events is the in-process domain event bus. Simulation and
// placement publish what happened during a tick; the server and tooling
// subscribe.
package events

import (
	"time"

	"github.com/zeusync/homestead/internal/core/world"
)

const (
	TypeObjectPlaced       = "object.placed"
	TypeObjectMoved        = "object.moved"
	TypeObjectRemoved      = "object.removed"
	TypeObjectInvalidated  = "object.invalidated"
	TypePermissionChanged  = "object.permission_changed"
	TypeDoorToggled        = "object.door_toggled"
	TypeWallCreated        = "wall.created"
	TypeWallRemoved        = "wall.removed"
	TypeLotCreated         = "lot.created"
	TypeLotMoved           = "lot.moved"
	TypeLotRemoved         = "lot.removed"
	TypeLotBought          = "lot.bought"
	TypeRoadCreated        = "road.created"
	TypeRoadRemoved        = "road.removed"
	TypeFamilyCreated      = "family.created"
	TypeFamilyDeleted      = "family.deleted"
	TypeMemberMoved        = "family.member_moved"
	TypeDescriptorReloaded = "asset.reloaded"
	TypePlacementRejected  = "placement.rejected"
	TypeTaskCompleted      = "actor.task_completed"
	TypeTaskFailed         = "actor.task_failed"
)

// Event is an immutable message delivered by the Bus.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
}

// Entity is the payload of every world event.
type Entity struct {
	ID         world.NetID `json:"id"`
	Family     world.NetID `json:"family"`
	Descriptor string      `json:"descriptor,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	Tick       uint64      `json:"tick"`
}

type simpleEvent struct {
	typeStr string
	source  string
	ts      time.Time
	data    any
}

func (e simpleEvent) Type() string         { return e.typeStr }
func (e simpleEvent) Source() string       { return e.source }
func (e simpleEvent) Timestamp() time.Time { return e.ts }
func (e simpleEvent) Data() any            { return e.data }

func NewEvent(typ, src string, data any) Event {
	return simpleEvent{typeStr: typ, source: src, ts: time.Now(), data: data}
}
