// Package sink defines the Sink capability interfaces (spec §4.4) and their
// transport adapters. A concrete sink implements whichever subset of
// TrackSink/PairSink/SystemSink/LifecycleSink it supports; the Dispatcher
// probes for capabilities dynamically via type assertion rather than
// requiring every method on every sink (spec §9 design notes).
package sink

import (
	"context"
	"time"

	"github.com/billglover/dragonsync/internal/model"
)

// TrackSink publishes a full drone or manned-aircraft track update. stale is
// the precomputed CoT stale time (spec §4.3: now+remaining for a live track,
// now for the Dispatcher's terminal path) so every sink encodes the same
// value instead of each deriving its own from a locally known timeout.
type TrackSink interface {
	PublishTrack(ctx context.Context, track *model.Track, stale time.Time) error
}

// PairSink publishes the drone's pilot/home position markers.
type PairSink interface {
	PublishPilot(ctx context.Context, uid string, pos model.Position, stale time.Time) error
	PublishHome(ctx context.Context, uid string, pos model.Position, stale time.Time) error
}

// SystemSink publishes the host-kit system status snapshot.
type SystemSink interface {
	PublishSystem(ctx context.Context, status *model.SystemStatus, stale time.Time) error
}

// SignalSink publishes an FPV RF alert.
type SignalSink interface {
	PublishSignal(ctx context.Context, alert *model.SignalAlert) error
}

// LifecycleSink is notified when a track is evicted and closed at shutdown.
type LifecycleSink interface {
	MarkInactive(ctx context.Context, uid string) error
	Close() error
}

// Name is implemented by sinks that want to identify themselves in logs.
type Name interface {
	Name() string
}
