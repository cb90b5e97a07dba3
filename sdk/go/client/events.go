package client

import (
	"encoding/json"
	"time"

	"github.com/zeusync/homestead/internal/core/replication"
	"github.com/zeusync/homestead/internal/core/world"
)

type EventType string

const (
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	EventTypeReconnecting EventType = "reconnecting"
	EventTypeError        EventType = "error"
	EventTypeDesync       EventType = "desync"
	EventTypeSpawned      EventType = "spawned"
	EventTypeDespawned    EventType = "despawned"
	EventTypeIntentResult EventType = "intent_result"
	// EventTypeWorld carries a domain event of the server; Name holds its
	// type, for example "object.placed".
	EventTypeWorld EventType = "world"
)

type Event struct {
	Type      EventType
	Timestamp time.Time

	Entity world.NetID
	Kind   replication.EntityKind
	Local  uint32

	Name    string
	Payload json.RawMessage
	Result  *replication.IntentResult
	Error   error
}

type EventHandler func(event Event) error
