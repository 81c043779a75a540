package sink

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/billglover/dragonsync/internal/model"
)

// MQTTConfig parameterizes an MQTTSink.
type MQTTConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	TLSConfig      *tls.Config
	Topic          string
	Retain         bool
	PerDroneTopics bool
	HADiscovery    bool
	ClientID       string
}

// MQTTSink publishes per-track JSON to an MQTT broker (spec §4.4). It
// arranges a last-will on disconnect and clears/refreshes retained state on
// MarkInactive.
type MQTTSink struct {
	cfg    MQTTConfig
	client mqtt.Client
}

type trackPayload struct {
	UID        string  `json:"uid"`
	Kind       string  `json:"kind"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	AltM       float64 `json:"alt_m"`
	CourseDeg  float64 `json:"course_deg"`
	SpeedMPS   float64 `json:"speed_mps"`
	Callsign   string  `json:"callsign,omitempty"`
	TrustLevel string  `json:"trust_level"`
	Make       string  `json:"make,omitempty"`
	Model      string  `json:"model,omitempty"`
}

// NewMQTTSink connects to the broker and configures a last-will message on
// cfg.Topic + "/status" announcing "offline".
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	scheme := "tcp"
	if cfg.TLSConfig != nil {
		scheme = "ssl"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetWill(cfg.Topic+"/status", "offline", 1, true).
		SetAutoReconnect(true)
	if cfg.TLSConfig != nil {
		opts.SetTLSConfig(cfg.TLSConfig)
	}

	client := mqtt.NewClient(opts)
	if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect: %w", tok.Error())
	}

	if tok := client.Publish(cfg.Topic+"/status", 1, cfg.Retain, "online"); tok.Wait() && tok.Error() != nil {
		log.Warn().Err(tok.Error()).Msg("dragonsync: mqtt sink: failed to publish online status")
	}

	return &MQTTSink{cfg: cfg, client: client}, nil
}

func (s *MQTTSink) Name() string { return "mqtt:" + s.cfg.Host }

func (s *MQTTSink) topicFor(track *model.Track) string {
	if s.cfg.PerDroneTopics {
		return fmt.Sprintf("%s/%s", s.cfg.Topic, track.UID)
	}
	return s.cfg.Topic
}

func (s *MQTTSink) PublishTrack(ctx context.Context, track *model.Track, stale time.Time) error {
	payload := trackPayload{
		UID:        track.UID,
		Kind:       string(track.Kind),
		Lat:        track.Position.Lat,
		Lon:        track.Position.Lon,
		AltM:       track.Position.AltM,
		CourseDeg:  track.Kinematics.CourseDeg,
		SpeedMPS:   track.Kinematics.GroundSpeedMPS,
		Callsign:   track.Identity.Callsign,
		TrustLevel: string(track.TrustLevel),
		Make:       track.Enrichment.Make,
		Model:      track.Enrichment.Model,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	topic := s.topicFor(track)
	tok := s.client.Publish(topic, 1, s.cfg.Retain, body)
	tok.WaitTimeout(2 * time.Second)
	if err := tok.Error(); err != nil {
		log.Debug().Err(err).Str("topic", topic).Msg("dragonsync: mqtt sink: publish failed")
	}

	if s.cfg.HADiscovery {
		s.publishHADiscovery(track)
	}
	return nil
}

func (s *MQTTSink) publishHADiscovery(track *model.Track) {
	topic := fmt.Sprintf("homeassistant/device_tracker/%s/config", track.UID)
	cfg := map[string]any{
		"name":          track.UID,
		"unique_id":     track.UID,
		"state_topic":   s.topicFor(track),
		"json_attributes_topic": s.topicFor(track),
	}
	body, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	s.client.Publish(topic, 1, true, body)
}

func (s *MQTTSink) MarkInactive(ctx context.Context, uid string) error {
	topic := s.cfg.Topic
	if s.cfg.PerDroneTopics {
		topic = fmt.Sprintf("%s/%s", s.cfg.Topic, uid)
	}
	tok := s.client.Publish(topic, 1, true, []byte{})
	tok.WaitTimeout(2 * time.Second)
	return tok.Error()
}

func (s *MQTTSink) Close() error {
	if tok := s.client.Publish(s.cfg.Topic+"/status", 1, s.cfg.Retain, "offline"); tok.Wait() {
		_ = tok.Error()
	}
	s.client.Disconnect(250)
	return nil
}
