package containers

import (
	"sort"
	"sync"
)

// UniqueQueue is a FIFO that holds each key at most once. Pushing a key that
// is already queued is a no-op, which keeps at most one pending entry per key.
type UniqueQueue[K comparable, V any] struct {
	mu      sync.Mutex
	queue   *RingQueue[K]
	pending map[K]V
}

func NewUniqueQueue[K comparable, V any]() *UniqueQueue[K, V] {
	return &UniqueQueue[K, V]{
		queue:   NewGrowingRingQueue[K](16),
		pending: make(map[K]V),
	}
}

// Push appends value under key unless key is already queued. It reports
// whether the value was added.
func (uq *UniqueQueue[K, V]) Push(key K, value V) bool {
	uq.mu.Lock()
	defer uq.mu.Unlock()

	if _, ok := uq.pending[key]; ok {
		return false
	}
	uq.pending[key] = value
	_ = uq.queue.Enqueue(key)
	return true
}

// Pop removes the front entry.
func (uq *UniqueQueue[K, V]) Pop() (K, V, bool) {
	uq.mu.Lock()
	defer uq.mu.Unlock()

	var zero V
	key, err := uq.queue.Dequeue()
	if err != nil {
		return key, zero, false
	}
	value := uq.pending[key]
	delete(uq.pending, key)
	return key, value, true
}

func (uq *UniqueQueue[K, V]) Contains(key K) bool {
	uq.mu.Lock()
	defer uq.mu.Unlock()
	_, ok := uq.pending[key]
	return ok
}

func (uq *UniqueQueue[K, V]) Len() int {
	uq.mu.Lock()
	defer uq.mu.Unlock()
	return uq.queue.Len()
}

// SortStable reorders the pending entries. FIFO order is kept between
// entries that less does not distinguish.
func (uq *UniqueQueue[K, V]) SortStable(less func(a, b V) bool) {
	uq.mu.Lock()
	defer uq.mu.Unlock()

	keys := uq.queue.Items()
	sort.SliceStable(keys, func(i, j int) bool {
		return less(uq.pending[keys[i]], uq.pending[keys[j]])
	})
	uq.queue = NewGrowingRingQueue[K](len(keys) + 1)
	for _, k := range keys {
		_ = uq.queue.Enqueue(k)
	}
}
