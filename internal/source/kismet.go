package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/billglover/dragonsync/internal/normalize"
	"github.com/billglover/dragonsync/internal/registry"
)

// KismetSource polls a Kismet server's REST device feed incrementally,
// normalizes each device and upserts it into the registry, gating repeat
// sends per-uid by MinSendInterval (spec §4.1, grounded on
// kismet_ingest.py's start_kismet_worker).
type KismetSource struct {
	Host            string // e.g. "http://127.0.0.1:2501"
	APIKey          string
	SeenBy          string
	MinSendInterval time.Duration
	Reg             *registry.Registry

	client     *http.Client
	lastTS     int64
	lastSent   map[string]time.Time
	lastErrLog time.Time
}

// Run polls Host every interval until ctx is cancelled.
func (s *KismetSource) Run(ctx context.Context, interval time.Duration) error {
	if s.client == nil {
		s.client = &http.Client{Timeout: 10 * time.Second}
	}
	if s.lastSent == nil {
		s.lastSent = make(map[string]time.Time)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.poll(ctx); err != nil {
				s.logThrottled(err)
			}
		}
	}
}

func (s *KismetSource) poll(ctx context.Context) error {
	if s.lastSent == nil {
		s.lastSent = make(map[string]time.Time)
	}
	url := fmt.Sprintf("%s/devices/last-time/%d/devices.json", s.Host, s.lastTS)
	if s.APIKey != "" {
		url += "?KISMET=" + s.APIKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dragonsync: source: kismet poll: status %d", resp.StatusCode)
	}

	var devices []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		return err
	}

	now := time.Now()
	for _, raw := range devices {
		obs, ok := normalize.Kismet(raw, s.SeenBy, now)
		if !ok {
			continue
		}
		if last, seen := s.lastSent[obs.UID]; seen && now.Sub(last) < s.MinSendInterval {
			continue
		}
		s.Reg.Upsert(obs, now)
		s.lastSent[obs.UID] = now
	}
	s.lastTS = now.Unix()
	return nil
}

func (s *KismetSource) logThrottled(err error) {
	now := time.Now()
	if now.Sub(s.lastErrLog) < 30*time.Second {
		return
	}
	s.lastErrLog = now
	log.Warn().Err(err).Str("host", s.Host).Msg("dragonsync: source: kismet poll failed")
}
