// Package signalstore holds the short-lived FPV alert store described in
// spec §3: TTL-expiring, FIFO-capped, independent of track admission.
package signalstore

import (
	"sync"
	"time"

	"github.com/billglover/dragonsync/internal/model"
)

const (
	// DefaultTTL is the default alert lifetime (spec §3, ~60s).
	DefaultTTL = 60 * time.Second
	// DefaultCapacity is the default FIFO cap (spec §3, ~200 entries).
	DefaultCapacity = 200
)

// Store is the FPV SignalAlert store. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	alerts   map[string]*model.SignalAlert
	order    []string
}

// New constructs a Store with the given TTL and FIFO capacity.
func New(ttl time.Duration, capacity int) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		ttl:      ttl,
		capacity: capacity,
		alerts:   make(map[string]*model.SignalAlert),
	}
}

// Add inserts or refreshes alert, evicting the oldest entry by FIFO order if
// the store is at capacity and the uid is new.
func (s *Store) Add(alert model.SignalAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[alert.UID]; !exists {
		if len(s.order) >= s.capacity {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.alerts, oldest)
		}
		s.order = append(s.order, alert.UID)
	}

	cp := alert
	s.alerts[alert.UID] = &cp
}

// Snapshot returns all non-expired alerts as of now.
func (s *Store) Snapshot(now time.Time) []*model.SignalAlert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.SignalAlert, 0, len(s.order))
	kept := s.order[:0:0]
	for _, uid := range s.order {
		a, ok := s.alerts[uid]
		if !ok {
			continue
		}
		if now.Sub(a.ObservedAt) > s.ttl {
			delete(s.alerts, uid)
			continue
		}
		kept = append(kept, uid)
		cp := *a
		out = append(out, &cp)
	}
	s.order = kept
	return out
}
