package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/billglover/dragonsync/internal/model"
	"github.com/billglover/dragonsync/internal/registry"
	"github.com/billglover/dragonsync/internal/signalstore"
)

type recordingSink struct {
	mu         sync.Mutex
	tracks     []*model.Track
	staleTimes []time.Time
	pilots     []string
	homes      []string
	inactive   []string
	systems    int
	signals    int
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) PublishTrack(ctx context.Context, track *model.Track, stale time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracks = append(r.tracks, track)
	r.staleTimes = append(r.staleTimes, stale)
	return nil
}

func (r *recordingSink) PublishPilot(ctx context.Context, uid string, pos model.Position, stale time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pilots = append(r.pilots, uid)
	return nil
}

func (r *recordingSink) PublishHome(ctx context.Context, uid string, pos model.Position, stale time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.homes = append(r.homes, uid)
	return nil
}

func (r *recordingSink) PublishSystem(ctx context.Context, status *model.SystemStatus, stale time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.systems++
	return nil
}

func (r *recordingSink) PublishSignal(ctx context.Context, alert *model.SignalAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals++
	return nil
}

func (r *recordingSink) MarkInactive(ctx context.Context, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inactive = append(r.inactive, uid)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) snapshotCounts() (tracks, pilots, homes, inactive int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tracks), len(r.pilots), len(r.homes), len(r.inactive)
}

type failingSink struct{}

func (failingSink) Name() string { return "failing" }
func (failingSink) PublishTrack(ctx context.Context, track *model.Track, stale time.Time) error {
	panic("boom")
}
func (failingSink) MarkInactive(ctx context.Context, uid string) error { return nil }
func (failingSink) Close() error                                      { return nil }

func TestTickEmitsFullUpdateOnFirstSight(t *testing.T) {
	reg := registry.New(10)
	now := time.Now()
	reg.Upsert(model.Observation{
		Kind: model.KindDrone, UID: "drone-1",
		Position: model.Position{Lat: 1, Lon: 1}, HasPosition: true,
		Auxiliary:  model.Auxiliary{PilotPosition: model.Position{Lat: 2, Lon: 2}},
		ObservedAt: now,
	}, now)

	rs := &recordingSink{}
	d := New(reg, signalstore.New(time.Minute, 10), []any{rs}, Config{RateLimit: time.Minute, KeepAliveInterval: time.Minute, InactivityTimeout: time.Hour})

	d.tick(context.Background(), now)

	tracks, pilots, _, _ := rs.snapshotCounts()
	if tracks != 1 {
		t.Fatalf("tracks published = %d, want 1", tracks)
	}
	if pilots != 1 {
		t.Fatalf("pilots published = %d, want 1", pilots)
	}
	if !rs.staleTimes[0].After(now) {
		t.Fatalf("stale = %v, want after now (%v) for a live track", rs.staleTimes[0], now)
	}
}

func TestTickSuppressesPilotHomeForPartialTrack(t *testing.T) {
	reg := registry.New(10)
	now := time.Now()
	reg.Upsert(model.Observation{
		Kind: model.KindDrone, UID: "drone-1",
		Position: model.Position{Lat: 1, Lon: 1}, HasPosition: true,
		Auxiliary:  model.Auxiliary{PilotPosition: model.Position{Lat: 2, Lon: 2}},
		ObservedAt: now,
		Partial:    true,
	}, now)

	rs := &recordingSink{}
	d := New(reg, signalstore.New(time.Minute, 10), []any{rs}, Config{RateLimit: time.Minute, KeepAliveInterval: time.Minute, InactivityTimeout: time.Hour})
	d.tick(context.Background(), now)

	_, pilots, homes, _ := rs.snapshotCounts()
	if pilots != 0 || homes != 0 {
		t.Fatalf("partial track emitted pilot=%d home=%d, want 0/0", pilots, homes)
	}
}

func TestTickHonorsRateLimit(t *testing.T) {
	reg := registry.New(10)
	now := time.Now()
	reg.Upsert(model.Observation{Kind: model.KindDrone, UID: "drone-1", ObservedAt: now}, now)

	rs := &recordingSink{}
	d := New(reg, signalstore.New(time.Minute, 10), []any{rs}, Config{RateLimit: time.Minute, KeepAliveInterval: time.Minute, InactivityTimeout: time.Hour})

	d.tick(context.Background(), now)
	d.tick(context.Background(), now.Add(time.Second))

	tracks, _, _, _ := rs.snapshotCounts()
	if tracks != 1 {
		t.Fatalf("tracks published within rate window = %d, want 1", tracks)
	}
}

func TestTickSendsKeepAliveAfterInterval(t *testing.T) {
	reg := registry.New(10)
	now := time.Now()
	reg.Upsert(model.Observation{Kind: model.KindDrone, UID: "drone-1", ObservedAt: now}, now)

	rs := &recordingSink{}
	d := New(reg, signalstore.New(time.Minute, 10), []any{rs}, Config{RateLimit: time.Hour, KeepAliveInterval: 5 * time.Second, InactivityTimeout: time.Hour})

	d.tick(context.Background(), now)
	d.tick(context.Background(), now.Add(10*time.Second))

	tracks, _, _, _ := rs.snapshotCounts()
	if tracks != 2 {
		t.Fatalf("tracks published across keepalive = %d, want 2", tracks)
	}
}

func TestTickEmitsTerminalAndMarksInactiveOnEviction(t *testing.T) {
	reg := registry.New(10)
	now := time.Now()
	reg.Upsert(model.Observation{Kind: model.KindDrone, UID: "drone-1", ObservedAt: now}, now)

	rs := &recordingSink{}
	d := New(reg, signalstore.New(time.Minute, 10), []any{rs}, Config{RateLimit: time.Minute, KeepAliveInterval: time.Minute, InactivityTimeout: 5 * time.Second})

	later := now.Add(time.Hour)
	d.tick(context.Background(), later)

	tracks, _, _, inactive := rs.snapshotCounts()
	if tracks != 1 {
		t.Fatalf("terminal track published = %d, want 1", tracks)
	}
	if inactive != 1 || inactive > 0 && rs.inactive[0] != "drone-1" {
		t.Fatalf("MarkInactive calls = %v, want [drone-1]", rs.inactive)
	}
	if !rs.staleTimes[0].Equal(later) {
		t.Fatalf("terminal stale = %v, want exactly %v", rs.staleTimes[0], later)
	}
}

func TestFailingSinkIsIsolated(t *testing.T) {
	reg := registry.New(10)
	now := time.Now()
	reg.Upsert(model.Observation{Kind: model.KindDrone, UID: "drone-1", ObservedAt: now}, now)

	good := &recordingSink{}
	d := New(reg, signalstore.New(time.Minute, 10), []any{failingSink{}, good}, Config{RateLimit: time.Minute, KeepAliveInterval: time.Minute, InactivityTimeout: time.Hour})

	d.tick(context.Background(), now)

	tracks, _, _, _ := good.snapshotCounts()
	if tracks != 1 {
		t.Fatalf("sibling sink after panic in another sink: tracks = %d, want 1", tracks)
	}
}

func TestPublishSystemFansOutToSystemSinks(t *testing.T) {
	rs := &recordingSink{}
	d := New(registry.New(10), signalstore.New(time.Minute, 10), []any{rs}, Config{})
	d.PublishSystem(context.Background(), &model.SystemStatus{Serial: "kit-1"})
	if rs.systems != 1 {
		t.Fatalf("systems published = %d, want 1", rs.systems)
	}
}

func TestPublishSignalFansOutToSignalSinks(t *testing.T) {
	rs := &recordingSink{}
	d := New(registry.New(10), signalstore.New(time.Minute, 10), []any{rs}, Config{})
	d.PublishSignal(context.Background(), &model.SignalAlert{UID: "fpv-1"})
	if rs.signals != 1 {
		t.Fatalf("signals published = %d, want 1", rs.signals)
	}
}
