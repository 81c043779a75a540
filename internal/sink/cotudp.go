package sink

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/billglover/dragonsync/internal/cot"
	"github.com/billglover/dragonsync/internal/model"
)

// UDPSink is the CoT-over-UDP sink (spec §4.4): fire-and-forget, socket
// created once, errors logged and ignored per send.
type UDPSink struct {
	addr string
	conn net.Conn
}

// NewUDPSink dials a UDP "connection" (a local socket bound to addr) once.
func NewUDPSink(addr string) (*UDPSink, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	return &UDPSink{addr: addr, conn: conn}, nil
}

func (s *UDPSink) Name() string { return "cot-udp:" + s.addr }

func (s *UDPSink) send(body []byte) error {
	if _, err := s.conn.Write(body); err != nil {
		log.Debug().Err(err).Str("addr", s.addr).Msg("dragonsync: cot-udp sink: send failed")
	}
	return nil
}

func (s *UDPSink) PublishTrack(ctx context.Context, track *model.Track, stale time.Time) error {
	now := time.Now()
	var e *cot.Event
	switch track.Kind {
	case model.KindAircraftADSB, model.KindAircraftUAT:
		e = cot.ADSBEvent(track, now, stale)
	default:
		e = cot.DroneEvent(track, now, stale)
	}
	body, err := cot.Encode(e)
	if err != nil {
		return err
	}
	return s.send(body)
}

func (s *UDPSink) PublishSystem(ctx context.Context, status *model.SystemStatus, stale time.Time) error {
	now := time.Now()
	body, err := cot.Encode(cot.SystemEvent(status, now, stale))
	if err != nil {
		return err
	}
	return s.send(body)
}

func (s *UDPSink) MarkInactive(ctx context.Context, uid string) error { return nil }

func (s *UDPSink) Close() error { return s.conn.Close() }
