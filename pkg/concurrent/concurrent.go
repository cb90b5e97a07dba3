// Package concurrent runs independent work on a bounded number of
// goroutines.
package concurrent

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Result pairs a value with the error that produced it.
type Result[R any] struct {
	Value R
	Err   error
}

// Each applies fn to every item with at most workers goroutines. Results
// come back in input order, each with its own error.
func Each[T any, R any](items []T, workers int, fn func(T) (R, error)) []Result[R] {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]Result[R], len(items))
	var group errgroup.Group
	group.SetLimit(workers)
	for i, item := range items {
		group.Go(func() error {
			r, err := fn(item)
			out[i] = Result[R]{Value: r, Err: err}
			return nil
		})
	}
	_ = group.Wait()
	return out
}
