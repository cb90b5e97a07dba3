package behavior

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrUnknownNode = errors.New("unknown behavior node")
	ErrInvalidTree = errors.New("invalid behavior tree")
)

type (
	LeafFactory[S any]      func(params Params) (Node[S], error)
	DecoratorFactory[S any] func(name string, params Params, child Node[S]) (Node[S], error)
	SensorFactory[S any]    func(params Params) (Sensor[S], error)
)

// Registry maps configuration names to node factories.
type Registry[S any] struct {
	mu         sync.RWMutex
	leaves     map[string]LeafFactory[S]
	decorators map[string]DecoratorFactory[S]
	sensors    map[string]SensorFactory[S]
}

func NewRegistry[S any]() *Registry[S] {
	return &Registry[S]{
		leaves:     make(map[string]LeafFactory[S]),
		decorators: make(map[string]DecoratorFactory[S]),
		sensors:    make(map[string]SensorFactory[S]),
	}
}

func (r *Registry[S]) RegisterLeaf(name string, f LeafFactory[S]) {
	r.mu.Lock()
	r.leaves[name] = f
	r.mu.Unlock()
}

// RegisterAction registers a leaf that needs no parameters.
func (r *Registry[S]) RegisterAction(name string, fn func(t *Tick[S]) (Status, error)) {
	r.RegisterLeaf(name, func(Params) (Node[S], error) { return NewAction(name, fn), nil })
}

// RegisterCondition registers a predicate leaf that needs no parameters.
func (r *Registry[S]) RegisterCondition(name string, fn func(t *Tick[S]) (bool, error)) {
	r.RegisterLeaf(name, func(Params) (Node[S], error) { return NewCondition(name, fn), nil })
}

func (r *Registry[S]) RegisterDecorator(name string, f DecoratorFactory[S]) {
	r.mu.Lock()
	r.decorators[name] = f
	r.mu.Unlock()
}

func (r *Registry[S]) RegisterSensor(name string, f SensorFactory[S]) {
	r.mu.Lock()
	r.sensors[name] = f
	r.mu.Unlock()
}

func (r *Registry[S]) NewLeaf(name string, params Params) (Node[S], error) {
	r.mu.RLock()
	f := r.leaves[name]
	r.mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("%w: leaf %q", ErrUnknownNode, name)
	}
	return f(params)
}

func (r *Registry[S]) NewDecorator(kind, name string, params Params, child Node[S]) (Node[S], error) {
	r.mu.RLock()
	f := r.decorators[kind]
	r.mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("%w: decorator %q", ErrUnknownNode, kind)
	}
	return f(name, params, child)
}

func (r *Registry[S]) NewSensor(name string, params Params) (Sensor[S], error) {
	r.mu.RLock()
	f := r.sensors[name]
	r.mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("%w: sensor %q", ErrUnknownNode, name)
	}
	return f(params)
}

// RegisterBuiltins registers the subject-independent nodes.
func RegisterBuiltins[S any](r *Registry[S]) {
	r.RegisterAction("succeed", func(*Tick[S]) (Status, error) { return StatusSuccess, nil })
	r.RegisterAction("fail", func(*Tick[S]) (Status, error) { return StatusFailure, nil })

	r.RegisterLeaf("flag", func(p Params) (Node[S], error) {
		key := p.String("key", "")
		if key == "" {
			return nil, fmt.Errorf("%w: flag requires key", ErrInvalidTree)
		}
		return NewCondition("flag("+key+")", func(t *Tick[S]) (bool, error) {
			v, _ := Value[bool](t.BB, key)
			return v, nil
		}), nil
	})
	r.RegisterLeaf("set_flag", func(p Params) (Node[S], error) {
		key, value := p.String("key", ""), p.Bool("value", true)
		if key == "" {
			return nil, fmt.Errorf("%w: set_flag requires key", ErrInvalidTree)
		}
		return NewAction("set_flag("+key+")", func(t *Tick[S]) (Status, error) {
			t.BB.Set(key, value)
			return StatusSuccess, nil
		}), nil
	})

	r.RegisterDecorator("invert", func(name string, _ Params, child Node[S]) (Node[S], error) {
		return NewInvert(name, child), nil
	})
	r.RegisterDecorator("repeat", func(name string, p Params, child Node[S]) (Node[S], error) {
		return NewRepeat(name, p.Int("times", 1), p.Bool("stop_on_failure", false), child), nil
	})
	r.RegisterDecorator("cooldown", func(name string, p Params, child Node[S]) (Node[S], error) {
		seconds := p.Float("seconds", 0)
		if seconds < 0 {
			return nil, fmt.Errorf("%w: negative cooldown", ErrInvalidTree)
		}
		return NewCooldown(name, time.Duration(seconds*float64(time.Second)), child), nil
	})
}
