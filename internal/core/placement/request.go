package placement

import (
	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/world"
)

type Op string

const (
	OpPlace         Op = "place"
	OpMove          Op = "move"
	OpRemove        Op = "remove"
	OpCreateWall    Op = "create_wall"
	OpRemoveWall    Op = "remove_wall"
	OpSetPermission Op = "set_permission"
	OpCreateLot     Op = "create_lot"
	OpMoveLot       Op = "move_lot"
	OpRemoveLot     Op = "remove_lot"
	OpBuyLot        Op = "buy_lot"
	OpCreateRoad    Op = "create_road"
	OpRemoveRoad    Op = "remove_road"
)

type Role string

const (
	// RolePlayer acts for one family and pays for what it builds.
	RolePlayer Role = "player"
	// RoleEditor edits the city and any lot for free.
	RoleEditor Role = "editor"
	// RoleServer is the server itself.
	RoleServer Role = "server"
)

func (r Role) Privileged() bool { return r == RoleEditor || r == RoleServer }

type Requester struct {
	Family world.NetID
	Role   Role
}

// Request is one proposed edit of the world. Position is the offset for
// OpMoveLot; Vertices outline the lot of OpCreateLot.
type Request struct {
	Op         Op
	Requester  Requester
	Descriptor string
	Target     world.NetID
	Position   geom.Vec2
	Yaw        float64
	Start      geom.Vec2
	End        geom.Vec2
	Permission world.Permission
	Vertices   geom.Polygon
}

type State string

const (
	StateProposed  State = "proposed"
	StateValidated State = "validated"
	StateCommitted State = "committed"
	StateRejected  State = "rejected"
)

// Ticket is a validated edit waiting for commit. It remembers the navmesh
// tile versions it was validated against.
type Ticket struct {
	Request Request
	State   State

	plan       *plan
	tiles      map[int]uint64
	generation uint64
}

// Result describes a committed edit.
type Result struct {
	Op      Op
	Entity  world.NetID
	Removed []world.NetID
	Charged int64
}
