// Package enrich implements the asynchronous serial-number enrichment
// worker and its synchronous local-DB fast path, per spec §4.6. It wraps a
// SerialLookup capability (the FAA/manufacturer database external
// collaborator, out of scope per spec §1) and promotes opportunistic tracks
// to trusted in the registry when a lookup succeeds.
package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/billglover/dragonsync/internal/model"
	"github.com/billglover/dragonsync/internal/registry"
)

// Result is the outcome of a SerialLookup resolution.
type Result struct {
	Found      bool
	TrackingID string
	Status     string
	Make       string
	Model      string
	Source     string
}

// ResolveOptions parameterizes a SerialLookup.Resolve call.
type ResolveOptions struct {
	UseAPIFallback bool
	AddToDB        bool
}

// SerialLookup is the external enrichment database capability (spec §1, §6).
// Implementations may consult a local database, a remote API, or both.
type SerialLookup interface {
	Resolve(ctx context.Context, serial string, opts ResolveOptions) (Result, error)
}

// LocalLookup is the network-free fast-path capability consulted
// synchronously at Track creation/mutation (spec §4.6).
type LocalLookup interface {
	LookupLocal(serial string) (Result, bool, error)
}

type queueItem struct {
	id     string
	uid    string
	serial string
}

// Service is the process-wide EnrichmentService singleton described in
// spec §9 design notes: it owns the global disable flag, miss cache, and
// rate limiter as encapsulated state rather than bare package globals.
type Service struct {
	local  LocalLookup
	remote SerialLookup
	reg    *registry.Registry

	rateLimit time.Duration
	queueMax  int
	missCap   int

	mu          sync.Mutex
	enabled     bool
	apiEnabled  bool
	failureLogged bool
	missCache   map[string]struct{}
	missOrder   []string
	lastAPICall time.Time

	queue  chan queueItem
	done   chan struct{}
	once   sync.Once
}

// Config parameterizes a Service.
type Config struct {
	RateLimit      time.Duration
	QueueMax       int
	MissCacheCap   int
	UseAPIFallback bool
}

// New constructs an enrichment Service. local may be nil if no local
// database is configured (spec: "Enrichment-disabled" kind, §7); in that
// case the sync fast path always misses and every lookup queues async.
func New(cfg Config, local LocalLookup, remote SerialLookup, reg *registry.Registry) *Service {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = time.Second
	}
	if cfg.QueueMax <= 0 {
		cfg.QueueMax = 100
	}
	if cfg.MissCacheCap <= 0 {
		cfg.MissCacheCap = 1000
	}
	return &Service{
		local:      local,
		remote:     remote,
		reg:        reg,
		rateLimit:  cfg.RateLimit,
		queueMax:   cfg.QueueMax,
		missCap:    cfg.MissCacheCap,
		enabled:    true,
		apiEnabled: cfg.UseAPIFallback,
		missCache:  make(map[string]struct{}),
		queue:      make(chan queueItem, cfg.QueueMax),
		done:       make(chan struct{}),
	}
}

// FastPathResolve attempts a local-DB-only lookup on the calling goroutine
// (no network). It returns true if the track should be enriched immediately
// (and applies the result to the registry). A local miss with no remote
// SerialLookup configured is recorded in the miss cache; otherwise it queues
// an async fallback unless the queue is near capacity (spec §4.6: "If the
// queue is near capacity (>=100), the async fallback for this serial is
// dropped").
func (s *Service) FastPathResolve(uid, serial string) bool {
	if serial == "" {
		return false
	}
	if s.hasMissed(serial) {
		return false
	}

	if s.local != nil {
		if res, hit, err := s.local.LookupLocal(serial); err == nil && hit {
			if res.Found {
				s.apply(uid, res)
				return true
			}
			if s.remote == nil {
				s.recordMiss(serial)
				return false
			}
		}
	}

	s.enqueueAsync(uid, serial)
	return false
}

func (s *Service) enqueueAsync(uid, serial string) {
	s.mu.Lock()
	enabled := s.enabled
	s.mu.Unlock()
	if !enabled {
		return
	}

	if len(s.queue) >= s.queueMax {
		log.Debug().Str("serial", serial).Msg("dragonsync: enrichment: queue near capacity, dropping async fallback")
		return
	}

	select {
	case s.queue <- queueItem{id: uuid.NewString(), uid: uid, serial: serial}:
	default:
		log.Debug().Str("serial", serial).Msg("dragonsync: enrichment: queue full, dropping async fallback")
	}
}

// Run consumes the async queue until ctx is canceled or the queue is
// drained by a nil-equivalent Close() call (spec §4.6: "pushing a nil item
// drains the worker").
func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-s.queue:
			if !ok {
				return
			}
			if item.serial == "" {
				return
			}
			s.processOne(ctx, item)
		}
	}
}

// Close drains the worker by signaling queue termination (spec §4.6).
func (s *Service) Close() {
	s.once.Do(func() {
		close(s.queue)
	})
}

func (s *Service) processOne(ctx context.Context, item queueItem) {
	s.mu.Lock()
	enabled := s.enabled
	apiEnabled := s.apiEnabled
	wait := s.rateLimit - time.Since(s.lastAPICall)
	s.mu.Unlock()

	if !enabled {
		return
	}
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}

	s.mu.Lock()
	s.lastAPICall = time.Now()
	s.mu.Unlock()

	if s.remote == nil {
		s.disable("no remote SerialLookup configured")
		return
	}

	res, err := s.remote.Resolve(ctx, item.serial, ResolveOptions{UseAPIFallback: apiEnabled, AddToDB: true})
	if err != nil {
		s.disable(fmt.Sprintf("SerialLookup.Resolve failed: %v", err))
		return
	}

	if !res.Found {
		s.recordMiss(item.serial)
		return
	}

	s.apply(item.uid, res)
}

func (s *Service) apply(uid string, res Result) {
	enrichment := model.Enrichment{
		Attempted:  true,
		Success:    true,
		Pending:    false,
		TrackingID: res.TrackingID,
		Status:     res.Status,
		Make:       res.Make,
		Model:      res.Model,
		Source:     res.Source,
	}

	if !s.reg.ApplyEnrichment(uid, enrichment, time.Now()) {
		return
	}
	log.Info().Str("uid", uid).Str("make", res.Make).Str("model", res.Model).Msg("dragonsync: enrichment: track promoted to trusted")
}

func (s *Service) recordMiss(serial string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.missCache[serial]; ok {
		return
	}
	if len(s.missOrder) >= s.missCap {
		oldest := s.missOrder[0]
		s.missOrder = s.missOrder[1:]
		delete(s.missCache, oldest)
	}
	s.missCache[serial] = struct{}{}
	s.missOrder = append(s.missOrder, serial)
}

func (s *Service) hasMissed(serial string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.missCache[serial]
	return ok
}

func (s *Service) disable(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failureLogged {
		return
	}
	s.enabled = false
	s.failureLogged = true
	log.Error().Str("reason", reason).Msg("dragonsync: enrichment: disabled after persistent failure")
}

// Enabled reports whether the service is still accepting lookups.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}
