package sink

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/rs/zerolog/log"

	"github.com/billglover/dragonsync/internal/cot"
	"github.com/billglover/dragonsync/internal/model"
)

// MulticastSink publishes CoT events to a UDP multicast group, with
// optional interface binding and configurable TTL (spec §4.4, default TTL
// 1). When receive is enabled it also joins the group and pumps inbound CoT
// bytes to Inbound, so kits can echo each other's tracks.
type MulticastSink struct {
	addr      *net.UDPAddr
	conn      *net.UDPConn
	pconn     *ipv4.PacketConn
	Inbound   chan []byte
}

// NewMulticastSink joins/binds a multicast group for sending, and for
// receiving when receive is true.
func NewMulticastSink(address string, port int, iface string, ttl int, receive bool) (*MulticastSink, error) {
	if ttl <= 0 {
		ttl = 1
	}
	addr := &net.UDPAddr{IP: net.ParseIP(address), Port: port}

	var laddr *net.UDPAddr
	if receive {
		// Group traffic is delivered to the group's port, so bind it.
		laddr = &net.UDPAddr{Port: port}
	}
	var ifi *net.Interface
	if iface != "" {
		found, err := net.InterfaceByName(iface)
		if err != nil {
			return nil, fmt.Errorf("multicast: interface %s: %w", iface, err)
		}
		ifi = found
	}

	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("multicast: listen: %w", err)
	}

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.SetMulticastTTL(ttl); err != nil {
		conn.Close()
		return nil, fmt.Errorf("multicast: set TTL: %w", err)
	}
	if ifi != nil {
		if err := pconn.SetMulticastInterface(ifi); err != nil {
			conn.Close()
			return nil, fmt.Errorf("multicast: set interface: %w", err)
		}
	}

	m := &MulticastSink{addr: addr, conn: conn, pconn: pconn}

	if receive {
		if err := pconn.JoinGroup(ifi, addr); err != nil {
			conn.Close()
			return nil, fmt.Errorf("multicast: join group: %w", err)
		}
		m.Inbound = make(chan []byte, 64)
		go m.pump()
	}

	return m, nil
}

func (m *MulticastSink) pump() {
	buf := make([]byte, 65535)
	for {
		n, _, _, err := m.pconn.ReadFrom(buf)
		if err != nil {
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		select {
		case m.Inbound <- cp:
		default:
		}
	}
}

func (m *MulticastSink) Name() string { return "multicast:" + m.addr.String() }

func (m *MulticastSink) send(body []byte) error {
	if _, err := m.conn.WriteTo(body, m.addr); err != nil {
		log.Debug().Err(err).Msg("dragonsync: multicast sink: send failed")
	}
	return nil
}

func (m *MulticastSink) PublishTrack(ctx context.Context, track *model.Track, stale time.Time) error {
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
	return m.send(body)
}

func (m *MulticastSink) MarkInactive(ctx context.Context, uid string) error { return nil }

func (m *MulticastSink) Close() error { return m.conn.Close() }
