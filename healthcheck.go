package agentcore

import (
	"context"
	"sync"
	"time"
)

// DefaultHealthTTL is how long a health-check result stays fresh.
const DefaultHealthTTL = 30 * time.Second

type healthEntry struct {
	checkedAt time.Time
	result    error
}

// HealthCache is a read-through cache over Provider.HealthCheck, keyed by
// provider name. It is an explicit object owned by whichever component
// issues health checks; there is no process-wide instance.
type HealthCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]healthEntry

	// now is swappable in tests.
	now func() time.Time
}

func NewHealthCache(ttl time.Duration) *HealthCache {
	if ttl <= 0 {
		ttl = DefaultHealthTTL
	}
	return &HealthCache{
		ttl:     ttl,
		entries: map[string]healthEntry{},
		now:     time.Now,
	}
}

// Check returns the cached result when fresh, otherwise performs the check
// and caches the outcome (including failures).
func (c *HealthCache) Check(ctx context.Context, p Provider) error {
	c.mu.Lock()
	if e, ok := c.entries[p.Name()]; ok && c.now().Sub(e.checkedAt) < c.ttl {
		c.mu.Unlock()
		return e.result
	}
	c.mu.Unlock()

	return c.refresh(ctx, p)
}

// ForceRefresh bypasses the TTL and re-checks immediately.
func (c *HealthCache) ForceRefresh(ctx context.Context, p Provider) error {
	return c.refresh(ctx, p)
}

func (c *HealthCache) refresh(ctx context.Context, p Provider) error {
	result := p.HealthCheck(ctx)
	c.mu.Lock()
	c.entries[p.Name()] = healthEntry{checkedAt: c.now(), result: result}
	c.mu.Unlock()
	return result
}
