package buffer

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/atomic"

	"github.com/vwsim/framework/internal/queue"
	"github.com/vwsim/framework/pkg/errors"
	"github.com/vwsim/framework/pkg/types"
	"github.com/vwsim/framework/pkg/utils"
)

// DefaultMaxBuffersPerClass bounds the ring depth of a single size class.
const DefaultMaxBuffersPerClass = 16384

// TieredPoolConfig configures a TieredPool.
type TieredPoolConfig struct {
	// MaxAllocatedBytes caps the bytes held idle across all classes.
	MaxAllocatedBytes int64 `yaml:"max_allocated_bytes"`
	// SizeClasses are the poolable buffer lengths, strictly ascending.
	SizeClasses []int `yaml:"size_classes"`
	// IdleMaxAge culls buffers idle for longer during Maintain. Zero disables.
	IdleMaxAge time.Duration `yaml:"idle_max_age"`
	// MaxBuffersPerClass caps each class's ring. Zero means the default.
	MaxBuffersPerClass int `yaml:"max_buffers_per_class"`
}

// DefaultTieredPoolConfig returns classes from 1KB to 1MB sharing 64MB.
func DefaultTieredPoolConfig() *TieredPoolConfig {
	return &TieredPoolConfig{
		MaxAllocatedBytes: 64 << 20,
		SizeClasses: []int{
			1024,    // 1KB
			4096,    // 4KB
			8192,    // 8KB
			16384,   // 16KB
			32768,   // 32KB
			65536,   // 64KB
			131072,  // 128KB
			262144,  // 256KB
			524288,  // 512KB
			1048576, // 1MB
		},
		MaxBuffersPerClass: DefaultMaxBuffersPerClass,
	}
}

// Validate checks the configuration for consistency.
func (c *TieredPoolConfig) Validate() error {
	if c.MaxAllocatedBytes < 0 {
		return errors.Newf(errors.ErrCodeInvalidConfig, "max_allocated_bytes must not be negative, got %d", c.MaxAllocatedBytes)
	}
	if len(c.SizeClasses) == 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig, "at least one size class is required")
	}
	for i, size := range c.SizeClasses {
		if size <= 0 {
			return errors.Newf(errors.ErrCodeInvalidConfig, "size class %d must be positive, got %d", i, size)
		}
		if i > 0 && size <= c.SizeClasses[i-1] {
			return errors.Newf(errors.ErrCodeInvalidConfig, "size classes must be strictly ascending: %d follows %d", size, c.SizeClasses[i-1])
		}
	}
	if c.IdleMaxAge < 0 {
		return errors.Newf(errors.ErrCodeInvalidConfig, "idle_max_age must not be negative, got %s", c.IdleMaxAge)
	}
	if c.MaxBuffersPerClass < 0 {
		return errors.Newf(errors.ErrCodeInvalidConfig, "max_buffers_per_class must not be negative, got %d", c.MaxBuffersPerClass)
	}
	return nil
}

// pooledBuffer is an idle buffer stamped with the time it was returned.
type pooledBuffer struct {
	data     []byte
	returned time.Time
}

// TieredPool pools byte buffers in fixed size classes under a global byte
// ceiling. Lease and Return are lock-free; Maintain culls idle buffers and
// must not run concurrently with itself.
type TieredPool struct {
	sizes      []int
	classes    []*queue.LockFreeQueue[*pooledBuffer]
	maxBytes   int64
	idleMaxAge time.Duration

	allocated atomic.Int64

	leases        atomic.Uint64
	hits          atomic.Uint64
	misses        atomic.Uint64
	returns       atomic.Uint64
	dropped       atomic.Uint64
	culled        atomic.Uint64
	unserviceable atomic.Uint64

	logger *utils.StructuredLogger
	now    func() time.Time
}

// NewTieredPool creates a tiered pool. A nil config uses
// DefaultTieredPoolConfig and a nil logger discards output.
func NewTieredPool(config *TieredPoolConfig, logger *utils.StructuredLogger) (*TieredPool, error) {
	if config == nil {
		config = DefaultTieredPoolConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "invalid buffer pool configuration").
			WithComponent("buffer-pool").
			WithOperation("NewTieredPool").
			WithCause(err)
	}
	if logger == nil {
		logger = utils.NopLogger()
	}

	perClass := config.MaxBuffersPerClass
	if perClass == 0 {
		perClass = DefaultMaxBuffersPerClass
	}

	p := &TieredPool{
		sizes:      append([]int(nil), config.SizeClasses...),
		classes:    make([]*queue.LockFreeQueue[*pooledBuffer], len(config.SizeClasses)),
		maxBytes:   config.MaxAllocatedBytes,
		idleMaxAge: config.IdleMaxAge,
		logger:     logger.WithComponent("buffer-pool"),
		now:        time.Now,
	}
	for i, size := range p.sizes {
		// The byte ceiling admits at most one buffer past maxBytes/size.
		depth := config.MaxAllocatedBytes/int64(size) + 1
		if depth > int64(perClass) {
			depth = int64(perClass)
		}
		p.classes[i] = queue.NewLockFreeQueue[*pooledBuffer](int(depth))
	}

	return p, nil
}

// LeaseBytes returns a buffer of the smallest size class that holds minSize
// bytes. Requests larger than every class get an unpooled buffer of exactly
// minSize, which ReturnBytes will later discard.
func (p *TieredPool) LeaseBytes(minSize int) []byte {
	if minSize < 0 {
		minSize = 0
	}
	p.leases.Inc()

	idx := sort.SearchInts(p.sizes, minSize)
	if idx == len(p.sizes) {
		p.unserviceable.Inc()
		p.logger.Warn("buffer request not serviceable by any size class", utils.Fields{
			"requested":     minSize,
			"largest_class": p.sizes[len(p.sizes)-1],
			"code":          errors.ErrCodeNotServiceable,
		})
		return make([]byte, minSize)
	}

	if pb, ok := p.classes[idx].Dequeue(); ok {
		p.allocated.Sub(int64(len(pb.data)))
		p.hits.Inc()
		return pb.data
	}

	p.misses.Inc()
	return make([]byte, p.sizes[idx])
}

// ReturnBytes pools buf if its length is exactly a size class and the byte
// ceiling has room. Anything else is dropped silently. Pooled buffers are
// zeroed.
func (p *TieredPool) ReturnBytes(buf []byte) {
	if buf == nil {
		return
	}
	p.returns.Inc()

	idx := sort.SearchInts(p.sizes, len(buf))
	if idx == len(p.sizes) || p.sizes[idx] != len(buf) {
		p.dropped.Inc()
		return
	}

	size := int64(len(buf))
	if p.allocated.Add(size)-size >= p.maxBytes {
		p.allocated.Sub(size)
		p.dropped.Inc()
		return
	}

	clear(buf)
	if !p.classes[idx].Enqueue(&pooledBuffer{data: buf, returned: p.now()}) {
		p.allocated.Sub(size)
		p.dropped.Inc()
	}
}

// Maintain drops buffers that have been idle longer than IdleMaxAge and
// returns how many were culled. Each class is walked once: young buffers go
// back to the tail and the walk stops when one comes around again.
func (p *TieredPool) Maintain() int {
	if p.idleMaxAge <= 0 {
		return 0
	}

	now := p.now()
	culled := 0
	for _, class := range p.classes {
		seen := make(map[*pooledBuffer]struct{})
		for {
			pb, ok := class.Dequeue()
			if !ok {
				break
			}
			if _, again := seen[pb]; again {
				p.requeue(class, pb)
				break
			}
			if now.Sub(pb.returned) <= p.idleMaxAge {
				seen[pb] = struct{}{}
				p.requeue(class, pb)
				continue
			}
			p.allocated.Sub(int64(len(pb.data)))
			culled++
		}
	}

	if culled > 0 {
		p.culled.Add(uint64(culled))
		p.logger.Debug("culled idle buffers", utils.Fields{
			"count":     culled,
			"allocated": utils.FormatBytes(p.allocated.Load()),
		})
	}
	return culled
}

// requeue puts pb back; if concurrent returns filled the ring it is dropped.
func (p *TieredPool) requeue(class *queue.LockFreeQueue[*pooledBuffer], pb *pooledBuffer) {
	if !class.Enqueue(pb) {
		p.allocated.Sub(int64(len(pb.data)))
		p.dropped.Inc()
	}
}

// AllocatedBytes returns the bytes currently held idle in the pool.
func (p *TieredPool) AllocatedBytes() int64 {
	return p.allocated.Load()
}

// MaxAllocatedBytes returns the configured byte ceiling.
func (p *TieredPool) MaxAllocatedBytes() int64 {
	return p.maxBytes
}

// SizeClasses returns a copy of the configured size classes.
func (p *TieredPool) SizeClasses() []int {
	return append([]int(nil), p.sizes...)
}

// Stats returns a snapshot of the pool counters.
func (p *TieredPool) Stats() types.PoolStats {
	var retained int64
	for _, class := range p.classes {
		retained += int64(class.Len())
	}
	return types.PoolStats{
		Retained:       retained,
		Leases:         p.leases.Load(),
		Hits:           p.hits.Load(),
		Misses:         p.misses.Load(),
		Returns:        p.returns.Load(),
		Dropped:        p.dropped.Load(),
		Culled:         p.culled.Load(),
		Unserviceable:  p.unserviceable.Load(),
		AllocatedBytes: p.allocated.Load(),
	}
}

// String implements fmt.Stringer.
func (p *TieredPool) String() string {
	return fmt.Sprintf("TieredPool{classes=%v, allocated=%s, max=%s}",
		p.sizes, utils.FormatBytes(p.allocated.Load()), utils.FormatBytes(p.maxBytes))
}
