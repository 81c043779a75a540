package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/billglover/dragonsync/internal/model"
	"github.com/billglover/dragonsync/internal/normalize"
	"github.com/billglover/dragonsync/internal/registry"
)

// AircraftKind selects which Normalizer an AircraftSource feeds.
type AircraftKind int

const (
	AircraftADSB AircraftKind = iota
	AircraftUAT
)

// aircraftFeed is the "aircraft" key wrapper common to dump1090/dump978
// aircraft.json output (grounded on the teacher's Scan type).
type aircraftFeed struct {
	Aircraft []json.RawMessage `json:"aircraft"`
}

// AircraftSource polls a dump1090/dump978-style aircraft.json endpoint
// (local file or HTTP(S) URL) on a fixed interval, normalizes each entry and
// upserts it into the registry (spec §4.1). For a local file it only
// re-reads when the file's mtime advances, matching the teacher's
// monitorFlights loop.
type AircraftSource struct {
	URL    string
	Kind   AircraftKind
	SeenBy string
	Reg    *registry.Registry

	client       *http.Client
	lastModified time.Time
	lastErrLog   time.Time
}

// Run polls URL every interval until ctx is cancelled.
func (s *AircraftSource) Run(ctx context.Context, interval time.Duration) error {
	if s.client == nil {
		s.client = &http.Client{Timeout: 5 * time.Second}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	isFile := !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			var (
				r   io.ReadCloser
				err error
			)
			if isFile {
				r, err = s.openFileIfChanged()
			} else {
				r, err = s.fetchHTTP(ctx)
			}
			if err != nil {
				s.logThrottled(err)
				continue
			}
			if r == nil {
				continue // file unchanged since last poll
			}
			s.ingest(r)
			r.Close()
		}
	}
}

func (s *AircraftSource) openFileIfChanged() (io.ReadCloser, error) {
	path := strings.TrimPrefix(s.URL, "file://")
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.ModTime().After(s.lastModified) {
		return nil, nil
	}
	s.lastModified = info.ModTime()
	return os.Open(path)
}

func (s *AircraftSource) fetchHTTP(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("dragonsync: source: aircraft fetch %s: status %d", s.URL, resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *AircraftSource) ingest(r io.Reader) {
	var feed aircraftFeed
	if err := json.NewDecoder(r).Decode(&feed); err != nil {
		s.logThrottled(err)
		return
	}

	now := time.Now()
	for _, entry := range feed.Aircraft {
		var (
			obs model.Observation
			ok  bool
		)
		switch s.Kind {
		case AircraftUAT:
			obs, ok = normalize.UAT(entry, s.SeenBy, now)
		default:
			obs, ok = normalize.ADSB(entry, s.SeenBy, now)
		}
		if !ok {
			continue
		}
		s.Reg.Upsert(obs, now)
	}
}

// logThrottled logs fetch/decode errors at most once every 30s, matching
// the teacher's low-noise posture for a source that polls every second.
func (s *AircraftSource) logThrottled(err error) {
	now := time.Now()
	if now.Sub(s.lastErrLog) < 30*time.Second {
		return
	}
	s.lastErrLog = now
	log.Warn().Err(err).Str("url", s.URL).Msg("dragonsync: source: aircraft poll failed")
}
