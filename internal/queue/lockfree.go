package queue

import "sync/atomic"

const cacheLinePad = 64

// LockFreeQueue is a bounded multi-producer/multi-consumer FIFO. Each slot
// carries a sequence number so producers and consumers claim slots with a
// single CAS on the tail or head cursor. Neither operation blocks: Enqueue
// reports false when the ring is full and Dequeue reports false when empty.
type LockFreeQueue[T any] struct {
	head  atomic.Uint64
	_     [cacheLinePad]byte
	tail  atomic.Uint64
	_     [cacheLinePad]byte
	mask  uint64
	slots []slot[T]
}

type slot[T any] struct {
	seq  atomic.Uint64
	data T
}

// NewLockFreeQueue creates a queue holding at least capacity items. The real
// capacity is rounded up to a power of two.
func NewLockFreeQueue[T any](capacity int) *LockFreeQueue[T] {
	size := 2
	for size < capacity {
		size <<= 1
	}

	q := &LockFreeQueue[T]{
		mask:  uint64(size - 1),
		slots: make([]slot[T], size),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

// Cap returns the number of slots in the ring.
func (q *LockFreeQueue[T]) Cap() int {
	return len(q.slots)
}

// Len returns an approximate item count; exact only when quiescent.
func (q *LockFreeQueue[T]) Len() int {
	tail := q.tail.Load()
	head := q.head.Load()
	if tail < head {
		return 0
	}
	return int(tail - head)
}

// Enqueue appends val; returns false if the ring is full.
func (q *LockFreeQueue[T]) Enqueue(val T) bool {
	for {
		tail := q.tail.Load()
		s := &q.slots[tail&q.mask]
		diff := int64(s.seq.Load()) - int64(tail)

		switch {
		case diff == 0:
			if q.tail.CompareAndSwap(tail, tail+1) {
				s.data = val
				s.seq.Store(tail + 1)
				return true
			}
		case diff < 0:
			return false
		}
	}
}

// Dequeue removes the oldest item; ok is false if the queue is empty.
func (q *LockFreeQueue[T]) Dequeue() (item T, ok bool) {
	for {
		head := q.head.Load()
		s := &q.slots[head&q.mask]
		diff := int64(s.seq.Load()) - int64(head+1)

		switch {
		case diff == 0:
			if q.head.CompareAndSwap(head, head+1) {
				item = s.data
				var zero T
				s.data = zero
				s.seq.Store(head + q.mask + 1)
				return item, true
			}
		case diff < 0:
			return item, false
		}
	}
}
