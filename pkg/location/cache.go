package location

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FixCache stores the most recent fix so that requests with a MaximumAge can be
// answered without touching the hardware.
type FixCache interface {
	Load(ctx context.Context) (Location, bool, error)
	Store(ctx context.Context, loc Location) error
}

// MemoryFixCache keeps the last fix in process memory.
type MemoryFixCache struct {
	mu  sync.RWMutex
	loc Location
	ok  bool
}

// NewMemoryFixCache creates an empty in-memory cache.
func NewMemoryFixCache() *MemoryFixCache {
	return &MemoryFixCache{}
}

func (c *MemoryFixCache) Load(_ context.Context) (Location, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loc, c.ok, nil
}

func (c *MemoryFixCache) Store(_ context.Context, loc Location) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loc = loc
	c.ok = true
	return nil
}

// CachedProvider decorates a Provider with MaximumAge semantics.
type CachedProvider struct {
	provider Provider
	cache    FixCache
	logger   zerolog.Logger
	now      func() time.Time
}

// NewCachedProvider wraps provider with the given cache.
func NewCachedProvider(provider Provider, cache FixCache, logger zerolog.Logger) *CachedProvider {
	return &CachedProvider{
		provider: provider,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

// GetLocation returns the cached fix when it is no older than opts.MaximumAge,
// otherwise asks the wrapped provider and refreshes the cache.
func (c *CachedProvider) GetLocation(ctx context.Context, opts Options) (Location, error) {
	if opts.MaximumAge > 0 {
		cached, ok, err := c.cache.Load(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to read cached fix")
		} else if ok && c.now().Sub(cached.Timestamp) <= opts.MaximumAge {
			c.logger.Debug().Time("fix_time", cached.Timestamp).Msg("Serving cached fix")
			return cached, nil
		}
	}

	loc, err := c.provider.GetLocation(ctx, opts)
	if err != nil {
		return Location{}, err
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = c.now()
	}
	if err := c.cache.Store(ctx, loc); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache fix")
	}
	return loc, nil
}

// Close closes the wrapped provider.
func (c *CachedProvider) Close() error {
	return c.provider.Close()
}
