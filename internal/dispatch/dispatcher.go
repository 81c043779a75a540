// Package dispatch implements the Dispatcher tick loop (spec §4.3): per-track
// rate limiting, keep-alives, pilot/home emission, inactivity eviction, and
// per-sink failure isolation across an arbitrary set of Sinks.
package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/billglover/dragonsync/internal/cot"
	"github.com/billglover/dragonsync/internal/model"
	"github.com/billglover/dragonsync/internal/registry"
	"github.com/billglover/dragonsync/internal/signalstore"
	"github.com/billglover/dragonsync/internal/sink"
)

// droneAlertSentinel suppresses pilot/home emission for partially-decoded
// OcuSync frames (spec §4.3); Track.Partial is the preferred explicit flag
// per spec §9 design notes, checked in addition to the legacy uid match.
const droneAlertSentinel = "drone-alert"

// Dispatcher is the single logical tick loop that fans rate-limited track
// updates out to every registered Sink.
type Dispatcher struct {
	reg    *registry.Registry
	alerts *signalstore.Store
	sinks  []any

	tickInterval      time.Duration
	rateLimit         time.Duration
	keepAliveInterval time.Duration
	inactivityTimeout time.Duration
	fpvRadiusM        float64

	// lastSent tracks per-uid last-emission bookkeeping that does not
	// belong on the shared Track DTO mutated under the registry's lock.
	lastSent map[string]sentState
}

type sentState struct {
	at       time.Time
	position model.Position
}

// Config parameterizes a Dispatcher.
type Config struct {
	TickInterval      time.Duration
	RateLimit         time.Duration
	KeepAliveInterval time.Duration
	InactivityTimeout time.Duration
	FPVRadiusM        float64
}

// New constructs a Dispatcher over reg and alerts, fanning out to sinks.
func New(reg *registry.Registry, alerts *signalstore.Store, sinks []any, cfg Config) *Dispatcher {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 10 * time.Second
	}
	return &Dispatcher{
		reg:               reg,
		alerts:            alerts,
		sinks:             sinks,
		tickInterval:      cfg.TickInterval,
		rateLimit:         cfg.RateLimit,
		keepAliveInterval: cfg.KeepAliveInterval,
		inactivityTimeout: cfg.InactivityTimeout,
		fpvRadiusM:        cfg.FPVRadiusM,
		lastSent:          make(map[string]sentState),
	}
}

// Run blocks, ticking every TickInterval until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx, time.Now())
		}
	}
}

// tick performs one Dispatcher sweep (spec §4.3).
func (d *Dispatcher) tick(ctx context.Context, now time.Time) {
	evicted := d.reg.EvictInactive(now, d.inactivityTimeout)
	for _, track := range evicted {
		d.emitTerminal(ctx, track, now)
		delete(d.lastSent, track.UID)
	}

	for _, track := range d.reg.Snapshot() {
		d.tickTrack(ctx, track, now)
	}
}

func (d *Dispatcher) tickTrack(ctx context.Context, track *model.Track, now time.Time) {
	state, sent := d.lastSent[track.UID]

	switch {
	case !sent || now.Sub(state.at) >= d.rateLimit:
		d.emitFull(ctx, track, now)
	case now.Sub(state.at) >= d.keepAliveInterval:
		d.emitFull(ctx, track, now) // keepalive: same shape as a full update
	}
}

func (d *Dispatcher) emitFull(ctx context.Context, track *model.Track, now time.Time) {
	d.lastSent[track.UID] = sentState{at: now, position: track.Position}

	stale := cot.StaleFor(now, track.LastUpdateTime, d.inactivityTimeout)

	for _, s := range d.sinks {
		d.safePublish(s, func() error {
			if ts, ok := s.(sink.TrackSink); ok {
				return ts.PublishTrack(ctx, track, stale)
			}
			return nil
		})
	}

	if track.Kind == model.KindDrone && !d.suppressPilotHome(track) {
		// Pilot/home markers carry the drone's own track altitude.
		if !track.Auxiliary.PilotPosition.IsZero() {
			pilot := track.Auxiliary.PilotPosition
			pilot.AltM = track.Position.AltM
			for _, s := range d.sinks {
				d.safePublish(s, func() error {
					if ps, ok := s.(sink.PairSink); ok {
						return ps.PublishPilot(ctx, track.UID, pilot, stale)
					}
					return nil
				})
			}
		}
		if !track.Auxiliary.HomePosition.IsZero() {
			home := track.Auxiliary.HomePosition
			home.AltM = track.Position.AltM
			for _, s := range d.sinks {
				d.safePublish(s, func() error {
					if ps, ok := s.(sink.PairSink); ok {
						return ps.PublishHome(ctx, track.UID, home, stale)
					}
					return nil
				})
			}
		}
	}
}

func (d *Dispatcher) suppressPilotHome(track *model.Track) bool {
	return track.Partial || track.UID == droneAlertSentinel
}

func (d *Dispatcher) emitTerminal(ctx context.Context, track *model.Track, now time.Time) {
	for _, s := range d.sinks {
		d.safePublish(s, func() error {
			if ts, ok := s.(sink.TrackSink); ok {
				return ts.PublishTrack(ctx, track, now)
			}
			return nil
		})
	}
	for _, s := range d.sinks {
		d.safePublish(s, func() error {
			if ls, ok := s.(sink.LifecycleSink); ok {
				return ls.MarkInactive(ctx, track.UID)
			}
			return nil
		})
	}
}

// PublishSystem fans a host-kit system status observation out to every
// SystemSink. It bypasses the track registry entirely (spec §2), so there is
// no per-track LastUpdateTime to anchor StaleFor against; the status is
// treated as freshly observed at the moment of publish.
func (d *Dispatcher) PublishSystem(ctx context.Context, status *model.SystemStatus) {
	now := time.Now()
	stale := cot.StaleFor(now, now, d.inactivityTimeout)
	for _, s := range d.sinks {
		d.safePublish(s, func() error {
			if ss, ok := s.(sink.SystemSink); ok {
				return ss.PublishSystem(ctx, status, stale)
			}
			return nil
		})
	}
}

// PublishSignal fans an FPV RF alert out to every SignalSink.
func (d *Dispatcher) PublishSignal(ctx context.Context, alert *model.SignalAlert) {
	for _, s := range d.sinks {
		d.safePublish(s, func() error {
			if ss, ok := s.(sink.SignalSink); ok {
				return ss.PublishSignal(ctx, alert)
			}
			return nil
		})
	}
}

// safePublish wraps a single sink call so a failing or panicking sink never
// stalls the tick or affects any other sink (spec §4.3, §7 propagation
// policy).
func (d *Dispatcher) safePublish(s any, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			name := sinkName(s)
			log.Error().Interface("panic", r).Str("sink", name).Msg("dragonsync: dispatcher: sink panicked, isolated")
		}
	}()
	if err := fn(); err != nil {
		log.Warn().Err(err).Str("sink", sinkName(s)).Msg("dragonsync: dispatcher: sink publish failed, isolated")
	}
}

func sinkName(s any) string {
	if n, ok := s.(sink.Name); ok {
		return n.Name()
	}
	return "unknown"
}
