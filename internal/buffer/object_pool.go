package buffer

import (
	"reflect"

	"go.uber.org/atomic"

	"github.com/vwsim/framework/internal/queue"
	"github.com/vwsim/framework/pkg/errors"
	"github.com/vwsim/framework/pkg/types"
)

// ObjectPool recycles instances of T up to a fixed retained count. Lease and
// Return never block; a miss constructs a fresh instance with the factory and
// a Return past the cap drops the object for the garbage collector.
type ObjectPool[T any] struct {
	items       *queue.LockFreeQueue[T]
	factory     func() T
	maxRetained int64
	retained    atomic.Int64

	leases  atomic.Uint64
	hits    atomic.Uint64
	misses  atomic.Uint64
	returns atomic.Uint64
	dropped atomic.Uint64
}

// NewObjectPool creates a pool retaining at most maxRetained objects. factory
// builds a new instance whenever the pool is empty; panics from it reach the
// caller of Lease.
func NewObjectPool[T any](maxRetained int, factory func() T) (*ObjectPool[T], error) {
	if maxRetained < 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidArgument, "max retained must be positive, got %d", maxRetained).
			WithComponent("object-pool").
			WithOperation("NewObjectPool")
	}
	if factory == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidArgument, "factory must not be nil").
			WithComponent("object-pool").
			WithOperation("NewObjectPool")
	}

	return &ObjectPool[T]{
		items:       queue.NewLockFreeQueue[T](maxRetained),
		factory:     factory,
		maxRetained: int64(maxRetained),
	}, nil
}

// NewObjectPoolOf creates a pool of *T whose instances are zero values made
// with new(T).
func NewObjectPoolOf[T any](maxRetained int) (*ObjectPool[*T], error) {
	return NewObjectPool(maxRetained, func() *T { return new(T) })
}

// Lease returns a pooled instance, or a new one from the factory.
func (p *ObjectPool[T]) Lease() T {
	p.leases.Inc()

	if obj, ok := p.items.Dequeue(); ok {
		p.retained.Dec()
		p.hits.Inc()
		return obj
	}

	p.misses.Inc()
	return p.factory()
}

// Return hands obj back for reuse. A nil obj is rejected; an object arriving
// while the pool is full is dropped without error.
func (p *ObjectPool[T]) Return(obj T) error {
	if isNil(obj) {
		return errors.NewError(errors.ErrCodeInvalidArgument, "cannot return nil object").
			WithComponent("object-pool").
			WithOperation("Return")
	}
	p.returns.Inc()

	// Reserve a slot first so concurrent returns can never overshoot the cap.
	if p.retained.Inc() > p.maxRetained {
		p.retained.Dec()
		p.dropped.Inc()
		return nil
	}
	if !p.items.Enqueue(obj) {
		p.retained.Dec()
		p.dropped.Inc()
	}
	return nil
}

// Retained returns the number of objects currently held for reuse.
func (p *ObjectPool[T]) Retained() int {
	return int(p.retained.Load())
}

// MaxRetained returns the retention cap.
func (p *ObjectPool[T]) MaxRetained() int {
	return int(p.maxRetained)
}

// Stats returns a snapshot of the pool counters.
func (p *ObjectPool[T]) Stats() types.PoolStats {
	return types.PoolStats{
		Retained: p.retained.Load(),
		Leases:   p.leases.Load(),
		Hits:     p.hits.Load(),
		Misses:   p.misses.Load(),
		Returns:  p.returns.Load(),
		Dropped:  p.dropped.Load(),
	}
}

func isNil(obj any) bool {
	if obj == nil {
		return true
	}
	v := reflect.ValueOf(obj)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	}
	return false
}
