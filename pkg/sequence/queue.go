// Package sequence holds small ordered containers used by the simulation
// hot paths.
package sequence

import (
	"cmp"
	"container/heap"
)

type PriorityItem[T any, P cmp.Ordered] struct {
	Value    T
	Priority P
	index    int
	order    uint64
}

type priorityQueue[T any, P cmp.Ordered] struct {
	items  []*PriorityItem[T, P]
	maxTop bool
}

func (pq *priorityQueue[T, P]) Len() int {
	return len(pq.items)
}

func (pq *priorityQueue[T, P]) Less(i, j int) bool {
	a, b := pq.items[i], pq.items[j]
	if a.Priority == b.Priority {
		return a.order < b.order
	}
	if pq.maxTop {
		return a.Priority > b.Priority
	}
	return a.Priority < b.Priority
}

func (pq *priorityQueue[T, P]) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
	pq.items[i].index = i
	pq.items[j].index = j
}

func (pq *priorityQueue[T, P]) Push(x any) {
	item := x.(*PriorityItem[T, P])
	item.index = len(pq.items)
	pq.items = append(pq.items, item)
}

func (pq *priorityQueue[T, P]) Pop() any {
	old := pq.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	pq.items = old[:n-1]
	return item
}

// PriorityQueue serves values by priority. Items with equal priority come
// out in the order they were enqueued, so results never depend on heap
// layout.
type PriorityQueue[T any, P cmp.Ordered] struct {
	pq    priorityQueue[T, P]
	count uint64
}

// NewMinQueue serves the lowest priority first.
func NewMinQueue[T any, P cmp.Ordered]() *PriorityQueue[T, P] {
	return &PriorityQueue[T, P]{}
}

// NewMaxQueue serves the highest priority first.
func NewMaxQueue[T any, P cmp.Ordered]() *PriorityQueue[T, P] {
	return &PriorityQueue[T, P]{pq: priorityQueue[T, P]{maxTop: true}}
}

func (q *PriorityQueue[T, P]) Enqueue(value T, priority P) *PriorityItem[T, P] {
	q.count++
	item := &PriorityItem[T, P]{
		Value:    value,
		Priority: priority,
		order:    q.count,
	}
	heap.Push(&q.pq, item)
	return item
}

func (q *PriorityQueue[T, P]) Dequeue() (T, bool) {
	if q.pq.Len() == 0 {
		var zero T
		return zero, false
	}
	item := heap.Pop(&q.pq).(*PriorityItem[T, P])
	return item.Value, true
}

func (q *PriorityQueue[T, P]) Peek() (T, bool) {
	if q.pq.Len() == 0 {
		var zero T
		return zero, false
	}
	return q.pq.items[0].Value, true
}

// Update changes the priority of an item still in the queue.
func (q *PriorityQueue[T, P]) Update(item *PriorityItem[T, P], priority P) {
	if item.index < 0 {
		return
	}
	item.Priority = priority
	heap.Fix(&q.pq, item.index)
}

func (q *PriorityQueue[T, P]) Len() int {
	return q.pq.Len()
}

func (q *PriorityQueue[T, P]) IsEmpty() bool {
	return q.pq.Len() == 0
}

func (q *PriorityQueue[T, P]) Reset() {
	q.pq.items = q.pq.items[:0]
	q.count = 0
}
