package sink

import (
	"context"
	"sync"
	"time"

	"github.com/billglover/dragonsync/internal/model"
)

// CachingSink mirrors normalized ADS-B/UAT tracks into a TTL-keyed map read
// back through Snapshot (spec §4.4). It ignores non-ADS-B/UAT tracks. The
// ApiFacade does not read this cache: /drones serves the registry snapshot
// only.
type CachingSink struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	track     *model.Track
	expiresAt time.Time
}

// NewCachingSink constructs a CachingSink with the given TTL (spec default
// 120s).
func NewCachingSink(ttl time.Duration) *CachingSink {
	if ttl <= 0 {
		ttl = 120 * time.Second
	}
	return &CachingSink{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func (c *CachingSink) Name() string { return "adsb-cache" }

func (c *CachingSink) PublishTrack(ctx context.Context, track *model.Track, stale time.Time) error {
	if track.Kind != model.KindAircraftADSB && track.Kind != model.KindAircraftUAT {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[track.UID] = cacheEntry{track: track.Clone(), expiresAt: time.Now().Add(c.ttl)}
	return nil
}

func (c *CachingSink) MarkInactive(ctx context.Context, uid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, uid)
	return nil
}

func (c *CachingSink) Close() error { return nil }

// Snapshot returns all non-expired cached aircraft as of now.
func (c *CachingSink) Snapshot(now time.Time) []*model.Track {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*model.Track, 0, len(c.entries))
	for uid, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, uid)
			continue
		}
		out = append(out, e.track.Clone())
	}
	return out
}
