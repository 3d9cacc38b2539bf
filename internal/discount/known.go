package discount

import (
	"context"
	"errors"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DefaultGenerationKey counts writes to the discount code table.
const DefaultGenerationKey = "bookwise:discount:codes:gen"

// Generation is a shared counter bumped whenever any process creates a code.
// A filter built at generation g is complete for every code created before g.
type Generation interface {
	Current(ctx context.Context) (int64, error)
	Bump(ctx context.Context) error
}

// RedisGeneration keeps the counter in a single Redis key.
type RedisGeneration struct {
	R   *redis.Client
	Key string
}

func (g RedisGeneration) key() string {
	if g.Key == "" {
		return DefaultGenerationKey
	}
	return g.Key
}

// Current returns the counter, zero when it was never bumped.
func (g RedisGeneration) Current(ctx context.Context) (int64, error) {
	n, err := g.R.Get(ctx, g.key()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Bump advances the counter.
func (g RedisGeneration) Bump(ctx context.Context) error {
	return g.R.Incr(ctx, g.key()).Err()
}

// KnownCodes is a probabilistic set of existing codes used to reject unknown
// codes without a database round-trip. It is only authoritative for the
// generation it was built at.
type KnownCodes struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	gen    int64
	loads  singleflight.Group
}

// NewKnownCodes builds the filter from codes.
func NewKnownCodes(codes []string) *KnownCodes {
	k := &KnownCodes{}
	k.reset(codes, 0)
	return k
}

func newFilter(codes []string) *bloom.BloomFilter {
	n := uint(len(codes) * 10)
	if n < 1000 {
		n = 1000
	}
	f := bloom.NewWithEstimates(n, 0.001)
	for _, c := range codes {
		f.AddString(NormalizeCode(c))
	}
	return f
}

func (k *KnownCodes) reset(codes []string, gen int64) {
	f := newFilter(codes)
	k.mu.Lock()
	k.filter = f
	k.gen = gen
	k.mu.Unlock()
}

// MayContain reports false only when code is definitely unknown.
func (k *KnownCodes) MayContain(code string) bool {
	if k == nil {
		return true
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.filter == nil {
		return true
	}
	return k.filter.TestString(NormalizeCode(code))
}

// Add records a newly created code.
func (k *KnownCodes) Add(code string) {
	if k == nil {
		return
	}
	k.mu.Lock()
	if k.filter != nil {
		k.filter.AddString(NormalizeCode(code))
	}
	k.mu.Unlock()
}

// Generation is the counter value the filter was built at.
func (k *KnownCodes) Generation() int64 {
	if k == nil {
		return 0
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.gen
}
