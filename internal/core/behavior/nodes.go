package behavior

import (
	"errors"
	"time"
)

type baseNode struct{ name string }

func (b baseNode) Name() string { return b.name }

// Action wraps a function as a leaf.
type Action[S any] struct {
	baseNode
	Fn func(t *Tick[S]) (Status, error)
}

func NewAction[S any](name string, fn func(t *Tick[S]) (Status, error)) *Action[S] {
	return &Action[S]{baseNode: baseNode{name: name}, Fn: fn}
}

func (a *Action[S]) Tick(t *Tick[S]) (Status, error) { return a.Fn(t) }

// Condition wraps a predicate as a leaf.
type Condition[S any] struct {
	baseNode
	Fn func(t *Tick[S]) (bool, error)
}

func NewCondition[S any](name string, fn func(t *Tick[S]) (bool, error)) *Condition[S] {
	return &Condition[S]{baseNode: baseNode{name: name}, Fn: fn}
}

func (c *Condition[S]) Tick(t *Tick[S]) (Status, error) {
	ok, err := c.Fn(t)
	if err != nil {
		return StatusFailure, err
	}
	if ok {
		return StatusSuccess, nil
	}
	return StatusFailure, nil
}

// Sequence runs children in order until one does not succeed.
type Sequence[S any] struct {
	baseNode
	children []Node[S]
}

func NewSequence[S any](name string, children ...Node[S]) *Sequence[S] {
	return &Sequence[S]{baseNode: baseNode{name: name}, children: children}
}

func (s *Sequence[S]) Tick(t *Tick[S]) (Status, error) {
	for _, ch := range s.children {
		st, err := ch.Tick(t)
		if err != nil {
			return StatusFailure, err
		}
		if st != StatusSuccess {
			return st, nil
		}
	}
	return StatusSuccess, nil
}

// Selector runs children in order until one does not fail. Errors of
// failed children are returned only when every child fails.
type Selector[S any] struct {
	baseNode
	children []Node[S]
}

func NewSelector[S any](name string, children ...Node[S]) *Selector[S] {
	return &Selector[S]{baseNode: baseNode{name: name}, children: children}
}

func (s *Selector[S]) Tick(t *Tick[S]) (Status, error) {
	var errs []error
	for _, ch := range s.children {
		st, err := ch.Tick(t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if st != StatusFailure {
			return st, nil
		}
	}
	return StatusFailure, errors.Join(errs...)
}

type ParallelPolicy int

const (
	RequireAll ParallelPolicy = iota
	RequireOne
)

// Parallel ticks every child and combines their results by policy.
type Parallel[S any] struct {
	baseNode
	children []Node[S]
	policy   ParallelPolicy
}

func NewParallel[S any](name string, policy ParallelPolicy, children ...Node[S]) *Parallel[S] {
	return &Parallel[S]{baseNode: baseNode{name: name}, policy: policy, children: children}
}

func (p *Parallel[S]) Tick(t *Tick[S]) (Status, error) {
	var (
		successes int
		running   bool
		errs      []error
	)
	for _, ch := range p.children {
		st, err := ch.Tick(t)
		if err != nil {
			errs = append(errs, err)
		}
		switch st {
		case StatusSuccess:
			successes++
		case StatusRunning:
			running = true
		}
	}
	err := errors.Join(errs...)
	switch {
	case p.policy == RequireAll && successes == len(p.children):
		return StatusSuccess, err
	case p.policy == RequireOne && successes > 0:
		return StatusSuccess, err
	case running:
		return StatusRunning, err
	default:
		return StatusFailure, err
	}
}

// Invert swaps success and failure of its child.
type Invert[S any] struct {
	baseNode
	child Node[S]
}

func NewInvert[S any](name string, child Node[S]) *Invert[S] {
	return &Invert[S]{baseNode: baseNode{name: name}, child: child}
}

func (n *Invert[S]) Tick(t *Tick[S]) (Status, error) {
	st, err := n.child.Tick(t)
	switch st {
	case StatusSuccess:
		return StatusFailure, err
	case StatusFailure:
		return StatusSuccess, err
	default:
		return st, err
	}
}

// Repeat ticks its child up to Times times within one evaluation.
type Repeat[S any] struct {
	baseNode
	child         Node[S]
	Times         int
	StopOnFailure bool
}

func NewRepeat[S any](name string, times int, stopOnFailure bool, child Node[S]) *Repeat[S] {
	return &Repeat[S]{baseNode: baseNode{name: name}, child: child, Times: times, StopOnFailure: stopOnFailure}
}

func (r *Repeat[S]) Tick(t *Tick[S]) (Status, error) {
	for range r.Times {
		st, err := r.child.Tick(t)
		if err != nil {
			return StatusFailure, err
		}
		if st == StatusRunning {
			return StatusRunning, nil
		}
		if st == StatusFailure && r.StopOnFailure {
			return StatusFailure, nil
		}
	}
	return StatusSuccess, nil
}

// Cooldown fails without ticking its child until Period of simulation time
// has passed since the child last succeeded.
type Cooldown[S any] struct {
	baseNode
	child  Node[S]
	Period time.Duration
}

func NewCooldown[S any](name string, period time.Duration, child Node[S]) *Cooldown[S] {
	return &Cooldown[S]{baseNode: baseNode{name: name}, child: child, Period: period}
}

func (c *Cooldown[S]) Tick(t *Tick[S]) (Status, error) {
	key := c.name + ".last"
	if last, ok := Value[time.Duration](t.BB, key); ok && t.Now-last < c.Period {
		return StatusFailure, nil
	}
	st, err := c.child.Tick(t)
	if st == StatusSuccess {
		t.BB.Set(key, t.Now)
	}
	return st, err
}

// Tree is an immutable behavior tree.
type Tree[S any] struct {
	root    Node[S]
	sensors []Sensor[S]
}

func NewTree[S any](root Node[S], sensors ...Sensor[S]) *Tree[S] {
	return &Tree[S]{root: root, sensors: sensors}
}

func (t *Tree[S]) Root() Node[S] { return t.root }

// Tick refreshes the sensors and evaluates the tree once.
func (t *Tree[S]) Tick(tc *Tick[S]) (Status, error) {
	for _, s := range t.sensors {
		if err := s.Update(tc); err != nil {
			return StatusFailure, err
		}
	}
	if t.root == nil {
		return StatusSuccess, nil
	}
	return t.root.Tick(tc)
}
