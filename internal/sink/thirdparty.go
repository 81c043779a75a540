package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/billglover/dragonsync/internal/model"
)

// ThirdPartySink is the rate-controlled fan-out bus for third-party/Lattice
// consumers (spec §4.4). It reconnects on channel closure the way the
// teacher's updater.go does, and internally drops publishes that exceed its
// configured per-category rate rather than surfacing backpressure to the
// Dispatcher.
type ThirdPartySink struct {
	exchange string
	droneHz  float64
	wardragonHz float64

	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel

	lastDrone     time.Time
	lastWardragon time.Time
}

// NewThirdPartySink dials conStr and declares a fanout exchange, mirroring
// the teacher's startUpdater reconnect-on-NotifyClose pattern.
func NewThirdPartySink(ctx context.Context, conStr, exchange string, droneHz, wardragonHz float64) (*ThirdPartySink, error) {
	conn, err := amqp.Dial(conStr)
	if err != nil {
		return nil, fmt.Errorf("thirdparty: connect to %s: %w", conStr, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("thirdparty: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", false, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("thirdparty: declare exchange %s: %w", exchange, err)
	}

	s := &ThirdPartySink{exchange: exchange, droneHz: droneHz, wardragonHz: wardragonHz, conn: conn, ch: ch}

	closures := conn.NotifyClose(make(chan *amqp.Error))
	go s.reconnectLoop(ctx, conStr, exchange, closures)

	return s, nil
}

func (s *ThirdPartySink) reconnectLoop(ctx context.Context, conStr, exchange string, closures chan *amqp.Error) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-closures:
			if !ok {
				return
			}
			conn, err := amqp.Dial(conStr)
			if err != nil {
				continue
			}
			ch, err := conn.Channel()
			if err != nil {
				conn.Close()
				continue
			}
			ch.ExchangeDeclare(exchange, "fanout", false, false, false, false, nil)

			s.mu.Lock()
			s.conn = conn
			s.ch = ch
			s.mu.Unlock()

			closures = conn.NotifyClose(make(chan *amqp.Error))
		}
	}
}

func (s *ThirdPartySink) Name() string { return "thirdparty:" + s.exchange }

func (s *ThirdPartySink) publish(body []byte) error {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	if ch == nil {
		return nil
	}
	return ch.Publish(s.exchange, "", false, false, amqp.Publishing{
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		Body:         body,
	})
}

// PublishTrack drops publishes that exceed droneHz (spec §4.4: "the sink
// drops excess publishes internally").
func (s *ThirdPartySink) PublishTrack(ctx context.Context, track *model.Track, stale time.Time) error {
	s.mu.Lock()
	if s.droneHz > 0 && !s.lastDrone.IsZero() && time.Since(s.lastDrone) < time.Duration(float64(time.Second)/s.droneHz) {
		s.mu.Unlock()
		return nil
	}
	s.lastDrone = time.Now()
	s.mu.Unlock()

	body, err := json.Marshal(track)
	if err != nil {
		return err
	}
	return s.publish(body)
}

// PublishSystem drops publishes that exceed wardragonHz.
func (s *ThirdPartySink) PublishSystem(ctx context.Context, status *model.SystemStatus, stale time.Time) error {
	s.mu.Lock()
	if s.wardragonHz > 0 && !s.lastWardragon.IsZero() && time.Since(s.lastWardragon) < time.Duration(float64(time.Second)/s.wardragonHz) {
		s.mu.Unlock()
		return nil
	}
	s.lastWardragon = time.Now()
	s.mu.Unlock()

	body, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return s.publish(body)
}

func (s *ThirdPartySink) MarkInactive(ctx context.Context, uid string) error { return nil }

func (s *ThirdPartySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
