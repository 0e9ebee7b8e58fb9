package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFixed(t *testing.T) {
	rq := NewRingQueue[int](2)
	require.NoError(t, rq.Enqueue(1))
	require.NoError(t, rq.Enqueue(2))
	assert.ErrorIs(t, rq.Enqueue(3), ErrQueueFull)

	v, err := rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = rq.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, rq.Enqueue(3))
	assert.Equal(t, []int{2, 3}, rq.Items())
}

func TestRingQueueGrows(t *testing.T) {
	rq := NewGrowingRingQueue[string](1)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, rq.Enqueue(s))
	}
	_, _ = rq.Dequeue()
	require.NoError(t, rq.Enqueue("f"))
	assert.Equal(t, []string{"b", "c", "d", "e", "f"}, rq.Items())

	for !rq.IsEmpty() {
		_, err := rq.Dequeue()
		require.NoError(t, err)
	}
	_, err := rq.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestUniqueQueueSetSemantics(t *testing.T) {
	uq := NewUniqueQueue[string, int]()
	assert.True(t, uq.Push("a", 1))
	assert.False(t, uq.Push("a", 2))
	assert.True(t, uq.Push("b", 3))
	assert.Equal(t, 2, uq.Len())

	k, v, ok := uq.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", k)
	assert.Equal(t, 1, v)

	// a popped key may be queued again
	assert.True(t, uq.Push("a", 4))
	assert.True(t, uq.Contains("a"))
}

func TestUniqueQueueSortStable(t *testing.T) {
	uq := NewUniqueQueue[string, int]()
	uq.Push("x", 2)
	uq.Push("y", 1)
	uq.Push("z", 2)
	uq.SortStable(func(a, b int) bool { return a < b })

	var order []string
	for {
		k, _, ok := uq.Pop()
		if !ok {
			break
		}
		order = append(order, k)
	}
	assert.Equal(t, []string{"y", "x", "z"}, order)
}
