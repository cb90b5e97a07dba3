package generic

import "sync"

// Pool is a typed sync.Pool. A value handed to Put goes through reset
// first; reset returns false to drop the value instead of keeping it.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T) bool
}

func NewPool[T any](generate func() T, reset func(T) bool) *Pool[T] {
	return &Pool[T]{
		pool:  sync.Pool{New: func() any { return generate() }},
		reset: reset,
	}
}

// NewHotPool returns a pool pre-filled with hotSize values.
func NewHotPool[T any](generate func() T, reset func(T) bool, hotSize int) *Pool[T] {
	p := NewPool(generate, reset)
	for range hotSize {
		p.pool.Put(generate())
	}
	return p
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(v T) {
	if p.reset != nil && !p.reset(v) {
		return
	}
	p.pool.Put(v)
}
