package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/billglover/dragonsync/internal/geo"
	"github.com/billglover/dragonsync/internal/model"
)

// fpvFragment mirrors the subset of an FPV alert's Basic ID / Location-Vector
// / Self-ID / Frequency / Signal Info fragment list the Normalizer reads
// (grounded on signal_ingest.py's _parse_fpv_alert).
type fpvFragment map[string]json.RawMessage

type fpvLocation struct {
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	GeodeticAltitude *float64 `json:"geodetic_altitude"`
}

type fpvFrequency struct {
	FrequencyHz *float64 `json:"frequency"`
}

type fpvSignalInfo struct {
	Source      string   `json:"source"`
	CenterHz    *float64 `json:"center_hz"`
	BandwidthHz *float64 `json:"bandwidth_hz"`
}

// FPVOptions parameterizes the FPV alert Normalizer with state it cannot
// derive from the raw message alone (spec §4.1).
type FPVOptions struct {
	Anchor      model.Position // the kit's latest system-status position
	RadiusM     float64        // deterministic-offset plotting radius
	ConfirmOnly bool           // accept only source == "confirm" when true
}

// FPV normalizes an FPV RF alert message into a drone-adjacent SignalAlert
// Observation (spec §4.1). It returns false if the message lacks a usable
// center frequency or fails the confirm_only filter.
func FPV(raw json.RawMessage, opts FPVOptions, now time.Time) (model.SignalAlert, bool) {
	var fragments []fpvFragment
	if err := json.Unmarshal(raw, &fragments); err != nil {
		return model.SignalAlert{}, false
	}

	var (
		centerHz, freqHz, bandwidthHz *float64
		sensorLat, sensorLon          *float64
		source                        = "unknown"
	)

	for _, frag := range fragments {
		if body, ok := frag["Location/Vector Message"]; ok {
			var l fpvLocation
			if json.Unmarshal(body, &l) == nil {
				sensorLat = firstNonNil(l.Latitude, sensorLat)
				sensorLon = firstNonNil(l.Longitude, sensorLon)
			}
		}
		if body, ok := frag["Frequency Message"]; ok {
			var f fpvFrequency
			if json.Unmarshal(body, &f) == nil {
				freqHz = firstNonNil(f.FrequencyHz, freqHz)
			}
		}
		if body, ok := frag["Signal Info"]; ok {
			var s fpvSignalInfo
			if json.Unmarshal(body, &s) == nil {
				if s.Source != "" {
					source = s.Source
				}
				centerHz = firstNonNil(s.CenterHz, centerHz)
				bandwidthHz = firstNonNil(s.BandwidthHz, bandwidthHz)
			}
		}
	}

	if centerHz == nil {
		centerHz = freqHz
	}
	if centerHz == nil {
		return model.SignalAlert{}, false
	}

	if opts.ConfirmOnly && source != "confirm" {
		return model.SignalAlert{}, false
	}

	anchorLat, anchorLon := opts.Anchor.Lat, opts.Anchor.Lon
	if sensorLat != nil && sensorLon != nil {
		anchorLat, anchorLon = *sensorLat, *sensorLon
	}

	uid := fmt.Sprintf("fpv-alert-%dMHz", int64(math.Round(*centerHz/1e6)))
	lat, lon := geo.DeterministicOffset(anchorLat, anchorLon, opts.RadiusM, uid)

	alert := model.SignalAlert{
		UID:         uid,
		Position:    model.Position{Lat: lat, Lon: lon, AltM: opts.Anchor.AltM},
		FrequencyHz: *centerHz,
		ObservedAt:  now,
	}
	if bandwidthHz != nil {
		alert.BandwidthHz = *bandwidthHz
	}
	return alert, true
}
