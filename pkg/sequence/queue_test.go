package sequence

import (
	"cmp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func drain[T any, P cmp.Ordered](q *PriorityQueue[T, P]) []T {
	var out []T
	for !q.IsEmpty() {
		v, _ := q.Dequeue()
		out = append(out, v)
	}
	return out
}

func TestMinQueue(t *testing.T) {
	q := NewMinQueue[string, float64]()
	q.Enqueue("c", 3.5)
	q.Enqueue("a", 0.5)
	q.Enqueue("b", 1.25)

	top, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, "a", top)
	assert.Equal(t, []string{"a", "b", "c"}, drain(q))

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestMaxQueue(t *testing.T) {
	q := NewMaxQueue[int, int]()
	for _, v := range []int{4, 9, 1, 7} {
		q.Enqueue(v, v)
	}
	assert.Equal(t, []int{9, 7, 4, 1}, drain(q))
}

func TestTiesKeepInsertionOrder(t *testing.T) {
	q := NewMinQueue[string, int]()
	q.Enqueue("first", 1)
	q.Enqueue("second", 1)
	q.Enqueue("zero", 0)
	q.Enqueue("third", 1)
	assert.Equal(t, []string{"zero", "first", "second", "third"}, drain(q))
}

func TestUpdate(t *testing.T) {
	q := NewMinQueue[string, int]()
	q.Enqueue("a", 1)
	b := q.Enqueue("b", 5)
	q.Update(b, 0)
	assert.Equal(t, []string{"b", "a"}, drain(q))

	q.Update(b, 3)
	assert.True(t, q.IsEmpty())
}
