package replication

import (
	"encoding/json"
	"fmt"

	"github.com/zeusync/homestead/pkg/encoding"
)

type MessageType string

const (
	TypeHello        MessageType = "hello"
	TypeWelcome      MessageType = "welcome"
	TypeSnapshot     MessageType = "snapshot"
	TypeDeltas       MessageType = "deltas"
	TypeIntent       MessageType = "intent"
	TypeIntentResult MessageType = "intent_result"
	TypeResync       MessageType = "resync"
	TypeEvent        MessageType = "event"
)

const (
	// CompressThreshold is the payload size above which envelopes are LZ4
	// compressed.
	CompressThreshold = 4 << 10
	maxPayload        = 64 << 20
)

// Envelope frames every message on the wire. Exactly one of Payload and
// Compressed is set.
type Envelope struct {
	Type       MessageType     `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Compressed []byte          `json:"lz4,omitempty"`
}

// Encode wraps v in an envelope of the given type.
func Encode(typ MessageType, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	env := Envelope{Type: typ}
	if len(payload) > CompressThreshold {
		if env.Compressed, err = encoding.Compress(payload); err != nil {
			return nil, err
		}
	} else {
		env.Payload = payload
	}
	return json.Marshal(env)
}

// Decode reads an envelope, inflating a compressed payload.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	if len(env.Compressed) > 0 {
		payload, err := encoding.Decompress(env.Compressed, maxPayload)
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		env.Payload, env.Compressed = payload, nil
	}
	return env, nil
}

// Into unmarshals the payload into v.
func (e Envelope) Into(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedMessage, e.Type, err)
	}
	return nil
}

// EncodeEvent wraps a domain event payload in an event envelope.
func EncodeEvent(typ string, data any) ([]byte, error) {
	entity, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", typ, err)
	}
	return Encode(TypeEvent, EventMessage{Type: typ, Entity: entity})
}
