package detector

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const doctorCacheTTL = 5 * time.Minute

// CachedDoctor memoises the sidecar environment probe. The probe spawns a
// Python process to check the pose toolchain, which is far too slow to run
// per analysis job, so results are held for a TTL and refreshed lazily.
type CachedDoctor struct {
	runner Runner
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

// NewCachedDoctor wraps runner's doctor probe with a TTL cache.
func NewCachedDoctor(runner Runner, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		runner: runner,
		ttl:    doctorCacheTTL,
		logger: logger,
	}
}

// Get returns the cached capabilities, probing only when the cache is
// empty or older than the TTL.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	if caps := d.fresh(); caps != nil {
		return caps, nil
	}
	return d.Refresh(ctx)
}

func (d *CachedDoctor) fresh() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		return d.cached
	}
	return nil
}

// Peek returns whatever is cached, stale or nil included, without ever
// spawning the sidecar. Status endpoints use this to stay fast.
func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh probes unconditionally. A failed probe falls back to the stale
// cache when one exists: a previously working toolchain is a better answer
// than an error for a transient sidecar failure.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.runner.RunDoctor(ctx)
	if err != nil {
		d.logger.Warn("doctor probe failed", "error", err)
		if d.cached != nil {
			d.logger.Info("serving stale detector capabilities")
			return d.cached, nil
		}
		return nil, err
	}

	d.cached = caps
	return caps, nil
}

// Invalidate drops the cache so the next Get probes again.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
