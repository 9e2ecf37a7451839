package queue

import (
	"cmp"
	"container/heap"
	"sync"

	"github.com/vwsim/framework/pkg/errors"
)

const component = "pqueue"

var (
	// ErrEmpty is returned by the DeleteX/FindX family on an empty queue.
	ErrEmpty = errors.NewError(errors.ErrCodeQueueEmpty, "priority queue is empty")
	// ErrKeyNotFound is returned by Value for an absent key.
	ErrKeyNotFound = errors.NewError(errors.ErrCodeKeyNotFound, "key not found")
)

// entry is the heap handle for one key. It sits in both heaps at once and
// records its position in each so it can be fixed or removed in O(log n).
type entry[K comparable, V any] struct {
	key    K
	value  V
	minIdx int
	maxIdx int
}

// IndexedPriorityQueue orders values by a less function and indexes them by
// an external key. Min and max are both available in O(1); insertion,
// deletion and re-prioritisation by key are O(log n).
//
// Ties between equal values are broken by heap position, not insertion
// order. All methods are safe for concurrent use.
type IndexedPriorityQueue[K comparable, V any] struct {
	mu    sync.Mutex
	index map[K]*entry[K, V]
	min   minHeap[K, V]
	max   maxHeap[K, V]
}

// NewIndexedPriorityQueue creates a queue ordered by the natural ordering of V.
func NewIndexedPriorityQueue[K comparable, V cmp.Ordered]() *IndexedPriorityQueue[K, V] {
	return NewIndexedPriorityQueueFunc[K](cmp.Less[V])
}

// NewIndexedPriorityQueueFunc creates a queue ordered by less.
func NewIndexedPriorityQueueFunc[K comparable, V any](less func(a, b V) bool) *IndexedPriorityQueue[K, V] {
	return &IndexedPriorityQueue[K, V]{
		index: make(map[K]*entry[K, V]),
		min:   minHeap[K, V]{less: less},
		max:   maxHeap[K, V]{less: less},
	}
}

// Len returns the number of queued items.
func (q *IndexedPriorityQueue[K, V]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.index)
}

// Add inserts value under key. It returns false and leaves the queue
// untouched if key is already present.
func (q *IndexedPriorityQueue[K, V]) Add(key K, value V) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.index[key]; exists {
		return false
	}
	q.insert(key, value)
	return true
}

// Set replaces the value stored under key and restores heap order at its
// position, or adds key if it is new.
func (q *IndexedPriorityQueue[K, V]) Set(key K, value V) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, exists := q.index[key]
	if !exists {
		q.insert(key, value)
		return
	}
	e.value = value
	heap.Fix(&q.min, e.minIdx)
	heap.Fix(&q.max, e.maxIdx)
}

// Value returns the value stored under key, or ErrKeyNotFound.
func (q *IndexedPriorityQueue[K, V]) Value(key K) (V, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, exists := q.index[key]
	if !exists {
		var zero V
		return zero, errors.NewError(errors.ErrCodeKeyNotFound, "key not found").
			WithComponent(component).
			WithOperation("Value").
			WithDetail("key", key)
	}
	return e.value, nil
}

// Get returns the value stored under key and whether it was present.
func (q *IndexedPriorityQueue[K, V]) Get(key K) (V, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, exists := q.index[key]; exists {
		return e.value, true
	}
	var zero V
	return zero, false
}

// Contains reports whether key is queued.
func (q *IndexedPriorityQueue[K, V]) Contains(key K) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, exists := q.index[key]
	return exists
}

// Remove deletes key and its value. It returns false if key was absent.
func (q *IndexedPriorityQueue[K, V]) Remove(key K) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, exists := q.index[key]
	if !exists {
		return false
	}
	q.remove(e)
	return true
}

// FindMin returns the smallest value without removing it.
func (q *IndexedPriorityQueue[K, V]) FindMin() (V, error) {
	_, v, err := q.FindMinWithKey()
	return v, err
}

// FindMax returns the largest value without removing it.
func (q *IndexedPriorityQueue[K, V]) FindMax() (V, error) {
	_, v, err := q.FindMaxWithKey()
	return v, err
}

// FindMinWithKey returns the smallest value and its key.
func (q *IndexedPriorityQueue[K, V]) FindMinWithKey() (K, V, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.min.items) == 0 {
		var k K
		var v V
		return k, v, emptyError("FindMin")
	}
	e := q.min.items[0]
	return e.key, e.value, nil
}

// FindMaxWithKey returns the largest value and its key.
func (q *IndexedPriorityQueue[K, V]) FindMaxWithKey() (K, V, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.max.items) == 0 {
		var k K
		var v V
		return k, v, emptyError("FindMax")
	}
	e := q.max.items[0]
	return e.key, e.value, nil
}

// DeleteMin removes and returns the smallest value.
func (q *IndexedPriorityQueue[K, V]) DeleteMin() (V, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.min.items) == 0 {
		var zero V
		return zero, emptyError("DeleteMin")
	}
	e := q.min.items[0]
	q.remove(e)
	return e.value, nil
}

// DeleteMax removes and returns the largest value.
func (q *IndexedPriorityQueue[K, V]) DeleteMax() (V, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.max.items) == 0 {
		var zero V
		return zero, emptyError("DeleteMax")
	}
	e := q.max.items[0]
	q.remove(e)
	return e.value, nil
}

// Keys returns the queued keys in no particular order.
func (q *IndexedPriorityQueue[K, V]) Keys() []K {
	q.mu.Lock()
	defer q.mu.Unlock()

	keys := make([]K, 0, len(q.index))
	for k := range q.index {
		keys = append(keys, k)
	}
	return keys
}

// Clear removes every item.
func (q *IndexedPriorityQueue[K, V]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.index = make(map[K]*entry[K, V])
	q.min.items = nil
	q.max.items = nil
}

func (q *IndexedPriorityQueue[K, V]) insert(key K, value V) {
	e := &entry[K, V]{key: key, value: value}
	heap.Push(&q.min, e)
	heap.Push(&q.max, e)
	q.index[key] = e
}

func (q *IndexedPriorityQueue[K, V]) remove(e *entry[K, V]) {
	heap.Remove(&q.min, e.minIdx)
	heap.Remove(&q.max, e.maxIdx)
	delete(q.index, e.key)
}

func emptyError(op string) error {
	return errors.NewError(errors.ErrCodeQueueEmpty, "priority queue is empty").
		WithComponent(component).
		WithOperation(op)
}

// minHeap and maxHeap implement heap.Interface over the shared entries,
// each maintaining its own index field.

type minHeap[K comparable, V any] struct {
	items []*entry[K, V]
	less  func(a, b V) bool
}

func (h *minHeap[K, V]) Len() int { return len(h.items) }

func (h *minHeap[K, V]) Less(i, j int) bool {
	return h.less(h.items[i].value, h.items[j].value)
}

func (h *minHeap[K, V]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].minIdx = i
	h.items[j].minIdx = j
}

func (h *minHeap[K, V]) Push(x any) {
	e := x.(*entry[K, V])
	e.minIdx = len(h.items)
	h.items = append(h.items, e)
}

func (h *minHeap[K, V]) Pop() any {
	n := len(h.items) - 1
	e := h.items[n]
	h.items[n] = nil
	h.items = h.items[:n]
	e.minIdx = -1
	return e
}

type maxHeap[K comparable, V any] struct {
	items []*entry[K, V]
	less  func(a, b V) bool
}

func (h *maxHeap[K, V]) Len() int { return len(h.items) }

func (h *maxHeap[K, V]) Less(i, j int) bool {
	return h.less(h.items[j].value, h.items[i].value)
}

func (h *maxHeap[K, V]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].maxIdx = i
	h.items[j].maxIdx = j
}

func (h *maxHeap[K, V]) Push(x any) {
	e := x.(*entry[K, V])
	e.maxIdx = len(h.items)
	h.items = append(h.items, e)
}

func (h *maxHeap[K, V]) Pop() any {
	n := len(h.items) - 1
	e := h.items[n]
	h.items[n] = nil
	h.items = h.items[:n]
	e.maxIdx = -1
	return e
}
