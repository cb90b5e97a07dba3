package behavior

import (
	"context"
	"time"
)

// Record is the outcome of one evaluation.
type Record struct {
	Status Status
	At     time.Duration
	Err    error
}

// Agent binds a shared tree to the blackboard of one subject.
type Agent[S any] struct {
	tree *Tree[S]
	bb   *Blackboard
	last Record
}

func NewAgent[S any](tree *Tree[S]) *Agent[S] {
	return &Agent[S]{tree: tree, bb: NewBlackboard()}
}

func (a *Agent[S]) Blackboard() *Blackboard { return a.bb }

func (a *Agent[S]) Last() Record { return a.last }

// Step evaluates the tree once for subject at simulation time now.
func (a *Agent[S]) Step(ctx context.Context, subject S, now time.Duration) (Status, error) {
	st, err := a.tree.Tick(&Tick[S]{Ctx: ctx, Subject: subject, BB: a.bb, Now: now})
	a.last = Record{Status: st, At: now, Err: err}
	return st, err
}
