// Package source implements the ingest-side Sources described in spec §4.1:
// ZMQ SUB feeds for Remote-ID telemetry, system status and FPV alerts, an
// HTTP/file poller for ADS-B/UAT aircraft.json, and a Kismet REST poller.
// Each Source decodes raw messages, hands them to a Normalizer, and upserts
// the result into the registry (or, for FPV, into the signal store).
package source

import (
	"context"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog/log"

	"github.com/billglover/dragonsync/internal/model"
	"github.com/billglover/dragonsync/internal/normalize"
	"github.com/billglover/dragonsync/internal/registry"
	"github.com/billglover/dragonsync/internal/signalstore"
)

// RemoteIDSource subscribes to the Remote-ID telemetry ZMQ feed, normalizes
// each message, and upserts it into the registry.
type RemoteIDSource struct {
	Endpoint string
	SeenBy   string
	Reg      *registry.Registry
}

// Run connects to Endpoint and processes messages until ctx is cancelled.
func (s *RemoteIDSource) Run(ctx context.Context) error {
	sock := zmq4.NewSub(ctx)
	defer sock.Close()

	if err := sock.Dial(s.Endpoint); err != nil {
		return err
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		return err
	}
	log.Info().Str("endpoint", s.Endpoint).Msg("dragonsync: source: remote-id connected")

	for {
		msg, err := sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("dragonsync: source: remote-id recv failed")
			continue
		}
		if len(msg.Frames) == 0 {
			continue
		}
		now := time.Now()
		obs, ok := normalize.RemoteID(msg.Frames[0], s.SeenBy, now)
		if !ok {
			continue
		}
		s.Reg.Upsert(obs, now)
	}
}

// SystemStatusSource subscribes to the kit system-status ZMQ feed and
// publishes each snapshot via publish, bypassing the track registry.
type SystemStatusSource struct {
	Endpoint string
	Publish  func(*model.SystemStatus)
}

// Run connects to Endpoint and processes messages until ctx is cancelled.
func (s *SystemStatusSource) Run(ctx context.Context) error {
	sock := zmq4.NewSub(ctx)
	defer sock.Close()

	if err := sock.Dial(s.Endpoint); err != nil {
		return err
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		return err
	}
	log.Info().Str("endpoint", s.Endpoint).Msg("dragonsync: source: system-status connected")

	for {
		msg, err := sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("dragonsync: source: system-status recv failed")
			continue
		}
		if len(msg.Frames) == 0 {
			continue
		}
		status, ok := parseSystemStatus(msg.Frames[0], time.Now())
		if !ok {
			log.Warn().Msg("dragonsync: source: system-status decode failed")
			continue
		}
		s.Publish(&status)
	}
}

// FPVSource subscribes to the FPV RF-alert ZMQ feed, normalizes each
// message (resolving the anchor position against the latest system status),
// and adds admitted alerts to the signal store.
type FPVSource struct {
	Endpoint    string
	RadiusM     float64
	ConfirmOnly bool
	Alerts      *signalstore.Store
	// Anchor returns the kit's latest known position, used when the raw
	// message carries no sensor position of its own.
	Anchor func() model.Position
	// Dispatch fans the admitted alert out to SignalSinks, if set.
	Dispatch func(ctx context.Context, alert *model.SignalAlert)
}

// Run connects to Endpoint and processes messages until ctx is cancelled.
func (s *FPVSource) Run(ctx context.Context) error {
	sock := zmq4.NewSub(ctx)
	defer sock.Close()

	if err := sock.Dial(s.Endpoint); err != nil {
		return err
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		return err
	}
	log.Info().Str("endpoint", s.Endpoint).Msg("dragonsync: source: fpv connected")

	for {
		msg, err := sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("dragonsync: source: fpv recv failed")
			continue
		}
		if len(msg.Frames) == 0 {
			continue
		}
		opts := normalize.FPVOptions{
			Anchor:      s.Anchor(),
			RadiusM:     s.RadiusM,
			ConfirmOnly: s.ConfirmOnly,
		}
		alert, ok := normalize.FPV(msg.Frames[0], opts, time.Now())
		if !ok {
			continue
		}
		s.Alerts.Add(alert)
		if s.Dispatch != nil {
			s.Dispatch(ctx, &alert)
		}
	}
}
