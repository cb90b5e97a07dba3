package replication

import (
	"encoding/json"
	"fmt"

	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/world"
)

// Hello is the first message of a client. Family is a claim the server
// checks before the session may act for it.
type Hello struct {
	Name   string      `json:"name"`
	Family world.NetID `json:"family"`
	Role   string      `json:"role,omitempty"`
	// Token authorizes the editor role.
	Token string `json:"token,omitempty"`
}

type Welcome struct {
	Session string      `json:"session"`
	Family  world.NetID `json:"family"`
	Role    string      `json:"role"`
	Tick    uint64      `json:"tick"`
}

// Resync asks the server for a fresh snapshot.
type Resync struct {
	Reason string `json:"reason"`
}

// EventMessage forwards a domain event to clients.
type EventMessage struct {
	Type   string          `json:"type"`
	Entity json.RawMessage `json:"entity"`
}

type IntentKind string

const (
	IntentPlace         IntentKind = "place"
	IntentMove          IntentKind = "move"
	IntentRemove        IntentKind = "remove"
	IntentInteract      IntentKind = "interact"
	IntentMoveActor     IntentKind = "move_actor"
	IntentCreateWall    IntentKind = "create_wall"
	IntentRemoveWall    IntentKind = "remove_wall"
	IntentCreateFamily  IntentKind = "create_family"
	IntentDeleteFamily  IntentKind = "delete_family"
	IntentSetPermission IntentKind = "set_permission"
	IntentMoveMember    IntentKind = "move_member"
	IntentCancelTasks   IntentKind = "cancel_tasks"
	IntentTellSecret    IntentKind = "tell_secret"
	IntentCreateLot     IntentKind = "create_lot"
	IntentMoveLot       IntentKind = "move_lot"
	IntentRemoveLot     IntentKind = "remove_lot"
	IntentBuyLot        IntentKind = "buy_lot"
	IntentCreateRoad    IntentKind = "create_road"
	IntentRemoveRoad    IntentKind = "remove_road"
)

type Member struct {
	Name     string    `json:"name"`
	Position geom.Vec2 `json:"position"`
}

// Intent is a client request to change the world. Family and Actor are the
// client's claims; the server never trusts them without a check. Target is
// the destination family of move_member and the listener of tell_secret;
// Position is the offset of move_lot.
type Intent struct {
	ID     uint64      `json:"id"`
	Kind   IntentKind  `json:"kind"`
	Family world.NetID `json:"family"`
	Actor  world.NetID `json:"actor"`

	Descriptor string           `json:"descriptor,omitempty"`
	Target     world.NetID      `json:"target"`
	Position   geom.Vec2        `json:"position"`
	Yaw        float64          `json:"yaw,omitempty"`
	Start      geom.Vec2        `json:"start"`
	End        geom.Vec2        `json:"end"`
	Permission world.Permission `json:"permission,omitempty"`
	Vertices   geom.Polygon     `json:"vertices,omitempty"`

	// create_family
	Name    string      `json:"name,omitempty"`
	Budget  int64       `json:"budget,omitempty"`
	Members []Member    `json:"members,omitempty"`
	Lot     world.NetID `json:"lot"`
}

// Validate checks that the intent is well formed. It does not look at the
// world.
func (i Intent) Validate() error {
	fail := func(why string) error {
		return fmt.Errorf("%w: %s %d: %s", ErrInvalidIntent, i.Kind, i.ID, why)
	}
	if i.ID == 0 {
		return fail("missing id")
	}
	switch i.Kind {
	case IntentPlace:
		if i.Descriptor == "" {
			return fail("missing descriptor")
		}
	case IntentMove, IntentRemove, IntentRemoveWall, IntentMoveLot, IntentRemoveLot, IntentBuyLot, IntentRemoveRoad:
		if i.Target == world.City {
			return fail("missing target")
		}
	case IntentSetPermission:
		if i.Target == world.City || !i.Permission.Valid() {
			return fail("missing target or permission")
		}
	case IntentInteract, IntentMoveMember, IntentTellSecret:
		if i.Actor == world.City || i.Target == world.City {
			return fail("missing actor or target")
		}
		if i.Kind == IntentTellSecret && i.Actor == i.Target {
			return fail("actor talks to itself")
		}
	case IntentMoveActor, IntentCancelTasks:
		if i.Actor == world.City {
			return fail("missing actor")
		}
	case IntentCreateWall, IntentCreateRoad:
		if i.Start == i.End {
			return fail("degenerate segment")
		}
	case IntentCreateLot:
		if len(i.Vertices) < 3 {
			return fail("lot needs three vertices")
		}
	case IntentCreateFamily:
		if i.Name == "" || len(i.Members) == 0 {
			return fail("missing name or members")
		}
	case IntentDeleteFamily:
		if i.Family == world.City {
			return fail("missing family")
		}
	default:
		return fail("unknown kind")
	}
	return nil
}

// Topological reports whether the intent changes placed geometry.
func (i Intent) Topological() bool {
	switch i.Kind {
	case IntentPlace, IntentMove, IntentRemove, IntentCreateWall, IntentRemoveWall:
		return true
	}
	return false
}

// IntentResult answers one intent. Seq is the reliable sequence of Entity
// that includes the change; the client drops its prediction once its
// mirror has reached it.
type IntentResult struct {
	ID       uint64      `json:"id"`
	Accepted bool        `json:"accepted"`
	Reason   string      `json:"reason,omitempty"`
	Entity   world.NetID `json:"entity"`
	Seq      uint64      `json:"seq,omitempty"`
	Tick     uint64      `json:"tick"`
}
