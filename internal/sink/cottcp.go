package sink

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/billglover/dragonsync/internal/cot"
	"github.com/billglover/dragonsync/internal/model"
)

// TCPSink is the CoT-over-TCP/TLS sink (spec §4.4). It owns the connection
// and runs its own reconnect loop with exponential backoff capped at 60s
// (factor 2); when the socket is absent at send time, Publish* is a no-op
// and the reconnect loop is left to recover it.
type TCPSink struct {
	addr      string
	tlsConfig *tls.Config // nil for plain TCP

	connMu sync.Mutex
	conn   net.Conn

	reconnectMu sync.Mutex

	closed chan struct{}
	once   sync.Once
}

const (
	tcpInitialBackoff = time.Second
	tcpMaxBackoff      = 60 * time.Second
	tcpBackoffFactor   = 2
)

// NewTCPSink constructs a TCPSink and starts its reconnect loop. tlsConfig
// may be nil for a plain TCP connection (the TLS context itself is supplied
// externally per spec §6; this sink never parses PKCS#12).
func NewTCPSink(ctx context.Context, addr string, tlsConfig *tls.Config) *TCPSink {
	s := &TCPSink{addr: addr, tlsConfig: tlsConfig, closed: make(chan struct{})}
	go s.reconnectLoop(ctx)
	return s
}

func (s *TCPSink) Name() string { return "cot-tcp:" + s.addr }

func (s *TCPSink) reconnectLoop(ctx context.Context) {
	backoff := tcpInitialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		default:
		}

		if err := s.dial(); err != nil {
			log.Warn().Err(err).Str("addr", s.addr).Dur("retry_in", backoff).Msg("dragonsync: cot-tcp sink: connect failed")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			}
			backoff *= tcpBackoffFactor
			if backoff > tcpMaxBackoff {
				backoff = tcpMaxBackoff
			}
			continue
		}

		backoff = tcpInitialBackoff
		s.waitForDisconnect(ctx)
	}
}

func (s *TCPSink) dial() error {
	s.reconnectMu.Lock()
	defer s.reconnectMu.Unlock()

	var conn net.Conn
	var err error
	if s.tlsConfig != nil {
		conn, err = tls.Dial("tcp", s.addr, s.tlsConfig)
	} else {
		conn, err = net.Dial("tcp", s.addr)
	}
	if err != nil {
		return fmt.Errorf("cot-tcp: dial %s: %w", s.addr, err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	log.Info().Str("addr", s.addr).Msg("dragonsync: cot-tcp sink: connected")
	return nil
}

// waitForDisconnect blocks by issuing small reads until the connection
// errors out, so the reconnect loop notices drops promptly.
func (s *TCPSink) waitForDisconnect(ctx context.Context) {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return
	}

	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, err := conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.connMu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			s.connMu.Unlock()
			return
		}
	}
}

func (s *TCPSink) send(body []byte) error {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return nil // reconnect loop will recover; sends are fire-and-forget
	}
	if _, err := conn.Write(body); err != nil {
		log.Debug().Err(err).Msg("dragonsync: cot-tcp sink: write failed")
		s.connMu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.connMu.Unlock()
	}
	return nil
}

func (s *TCPSink) PublishTrack(ctx context.Context, track *model.Track, stale time.Time) error {
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

func (s *TCPSink) PublishPilot(ctx context.Context, uid string, pos model.Position, stale time.Time) error {
	t := &model.Track{UID: uid, Position: pos}
	t.Auxiliary.PilotPosition = pos
	return s.publishPerson(cot.PilotEvent(t, time.Now(), stale))
}

func (s *TCPSink) PublishHome(ctx context.Context, uid string, pos model.Position, stale time.Time) error {
	t := &model.Track{UID: uid, Position: pos}
	t.Auxiliary.HomePosition = pos
	return s.publishPerson(cot.HomeEvent(t, time.Now(), stale))
}

func (s *TCPSink) publishPerson(e *cot.Event) error {
	body, err := cot.Encode(e)
	if err != nil {
		return err
	}
	return s.send(body)
}

func (s *TCPSink) PublishSystem(ctx context.Context, status *model.SystemStatus, stale time.Time) error {
	now := time.Now()
	e := cot.SystemEvent(status, now, stale)
	body, err := cot.Encode(e)
	if err != nil {
		return err
	}
	return s.send(body)
}

func (s *TCPSink) MarkInactive(ctx context.Context, uid string) error {
	return nil
}

func (s *TCPSink) Close() error {
	s.once.Do(func() { close(s.closed) })
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}
