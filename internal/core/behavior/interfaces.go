// Package behavior implements YAML-configured behavior trees. Trees are
// generic over the subject they drive; leaves are registered by name and
// instantiated from configuration.
package behavior

import (
	"context"
	"time"
)

type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusRunning
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Tick is passed to every node visited during one evaluation.
type Tick[S any] struct {
	Ctx     context.Context
	Subject S
	BB      *Blackboard
	// Now is the simulation clock, not wall time.
	Now time.Duration
}

// Node is one vertex of a behavior tree. Nodes are shared between subjects
// and keep per-subject state in the blackboard.
type Node[S any] interface {
	Name() string
	Tick(t *Tick[S]) (Status, error)
}

// Sensor refreshes the blackboard before the tree is evaluated.
type Sensor[S any] interface {
	Name() string
	Update(t *Tick[S]) error
}

// Params are the free-form parameters of a configured node.
type Params map[string]any

func (p Params) String(key, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}
