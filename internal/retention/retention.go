// Package retention evicts detached processes from the registry once they
// have been detached for longer than a configured TTL.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/zjrosen/procview/internal/cachemanager"
	"github.com/zjrosen/procview/internal/log"
	"github.com/zjrosen/procview/internal/registry"
)

type key string

// EvictHook runs after a process entry was removed from the registry.
type EvictHook func(id registry.ProcessID)

// Policy schedules eviction of detached entries. A zero TTL retains forever.
type Policy struct {
	registry *registry.Registry
	pending  cachemanager.ExpiringCache[key, registry.ProcessID]

	mu      sync.RWMutex
	ttl     time.Duration
	onEvict EvictHook
}

// New creates a policy. interval is how often expired entries are swept in
// the background; zero leaves sweeping to Sweep.
func New(reg *registry.Registry, ttl, interval time.Duration) *Policy {
	p := &Policy{
		registry: reg,
		pending:  cachemanager.NewInMemoryCacheManager[key, registry.ProcessID]("retention", cachemanager.NoExpiration, interval),
		ttl:      ttl,
	}
	p.pending.OnExpired(p.evict)
	return p
}

// SetEvictHook sets fn to run after each eviction.
func (p *Policy) SetEvictHook(fn EvictHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEvict = fn
}

// Enabled reports whether detached entries are ever evicted.
func (p *Policy) Enabled() bool {
	return p.TTL() > 0
}

// TTL returns how long a detached entry is retained.
func (p *Policy) TTL() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ttl
}

// SetTTL changes the retention for entries scheduled from now on.
func (p *Policy) SetTTL(ttl time.Duration) {
	p.mu.Lock()
	p.ttl = ttl
	p.mu.Unlock()
	log.Info(log.CatRetention, "retention changed", "ttl", ttl)
}

// Schedule marks id for eviction after the TTL. Rescheduling restarts the clock.
func (p *Policy) Schedule(id registry.ProcessID) {
	ttl := p.TTL()
	if ttl <= 0 {
		return
	}
	p.pending.Set(context.Background(), key(id.String()), id, ttl)
	log.Debug(log.CatRetention, "eviction scheduled", "id", id, "ttl", ttl)
}

// Pending returns how many entries await eviction.
func (p *Policy) Pending() int {
	return p.pending.Len()
}

// Sweep evicts every entry whose TTL has passed.
func (p *Policy) Sweep() {
	p.pending.DeleteExpired()
}

// Close cancels all pending evictions.
func (p *Policy) Close() {
	_ = p.pending.Flush(context.Background())
}

func (p *Policy) evict(_ key, id registry.ProcessID) {
	if !p.registry.Evict(id) {
		return
	}
	log.Info(log.CatRetention, "evicted detached process", "id", id)

	p.mu.RLock()
	fn := p.onEvict
	p.mu.RUnlock()
	if fn != nil {
		fn(id)
	}
}
