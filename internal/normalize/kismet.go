package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/billglover/dragonsync/internal/model"
)

// locationKeys is the ordered list of Kismet device-location fields the
// Normalizer probes, matching the candidate list Kismet's REST API is known
// to populate across device types (spec §4.1: "first populated candidate of
// a known key list").
var locationKeys = []string{
	"kismet.common.location.last_loc",
	"kismet.common.location.avg_loc",
	"kismet.common.location.last",
	"kismet.common.location.min_loc",
	"kismet.common.location.max_loc",
}

// Kismet normalizes a single Kismet REST device dict into a device-wifi or
// device-bt Observation (spec §4.1).
func Kismet(raw json.RawMessage, seenBy string, now time.Time) (model.Observation, bool) {
	var dev map[string]any
	if err := json.Unmarshal(raw, &dev); err != nil {
		return model.Observation{}, false
	}

	base, _ := dev["kismet.device.base"].(map[string]any)

	mac, _ := pickStringKeys(base, dev, "macaddr", "kismet.device.base.macaddr")
	phy, havePhy := pickStringKeys(base, dev, "phyname", "kismet.device.base.phyname")
	if !havePhy {
		phy = inferPhy(dev)
	}

	lat, lon, alt, ok := extractLocation(dev)
	if !ok {
		return model.Observation{}, false
	}

	kind := model.KindDeviceWifi
	prefix := "kismet-wifi"
	if phy == "BLUETOOTH" {
		kind = model.KindDeviceBT
		prefix = "kismet-bt"
	}

	uidBase := mac
	if uidBase == "" {
		if key, ok := pickStringKeys(base, dev, "key", "kismet.device.base.key"); ok {
			uidBase = key
		} else {
			uidBase = "unknown"
		}
	}

	name, _ := pickStringKeys(base, dev, "name", "commonname", "kismet.device.base.name", "kismet.device.base.commonname")
	manuf, _ := pickStringKeys(base, dev, "manuf", "kismet.device.base.manuf")
	sig, haveSig := pickFloatKeys(base, dev, "last_signal", "signal", "kismet.device.base.signal.last_signal")

	obs := model.Observation{
		Kind:        kind,
		UID:         fmt.Sprintf("%s-%s", prefix, uidBase),
		Position:    model.Position{Lat: lat, Lon: lon, AltM: alt},
		HasPosition: true,
		ObservedAt:  now,
		SeenBy:      seenBy,
	}
	obs.Identity.MAC = mac
	obs.Identity.Callsign = firstNonEmpty(name, firstNonEmpty(manuf, mac))
	obs.Identity.Description = manuf
	obs.Identity.Category = phy
	if haveSig {
		obs.Quality.RSSIDBm = sig
	}

	return obs, true
}

func inferPhy(dev map[string]any) string {
	if _, ok := dev["dot11.device"]; ok {
		return "IEEE802.11"
	}
	if _, ok := dev["bluetooth.device"]; ok {
		return "BLUETOOTH"
	}
	return "unknown"
}

// pickStringKeys returns the first non-empty string value for any key, tried
// against base then dev, in order.
func pickStringKeys(base, dev map[string]any, keys ...string) (string, bool) {
	for _, d := range []map[string]any{base, dev} {
		if d == nil {
			continue
		}
		for _, k := range keys {
			if v, ok := d[k]; ok {
				if s, ok := v.(string); ok && s != "" {
					return s, true
				}
			}
		}
	}
	return "", false
}

func pickFloatKeys(base, dev map[string]any, keys ...string) (float64, bool) {
	for _, d := range []map[string]any{base, dev} {
		if d == nil {
			continue
		}
		for _, k := range keys {
			if v, ok := d[k]; ok {
				switch n := v.(type) {
				case float64:
					return n, true
				case map[string]any:
					if inner, ok := n["last_signal"].(float64); ok {
						return inner, true
					}
				}
			}
		}
	}
	return 0, false
}

// extractLocation walks the known Kismet location-field shapes and returns
// the first populated lat/lon/alt triple.
func extractLocation(dev map[string]any) (lat, lon, alt float64, ok bool) {
	loc, _ := dev["kismet.common.location"].(map[string]any)

	candidates := []any{loc}
	for _, k := range locationKeys {
		if loc != nil {
			if v, present := loc[k]; present {
				candidates = append(candidates, v)
			}
		}
		if v, present := dev[k]; present {
			candidates = append(candidates, v)
		}
	}

	if last, present := dev["dot11.device.last_beaconed_ssid_record"].(map[string]any); present {
		if v, ok := last["dot11.advertisedssid.location"]; ok {
			candidates = append(candidates, v)
		}
	}
	if advertised, present := dev["dot11.device.advertised_ssid_map"].([]any); present {
		for _, item := range advertised {
			if m, ok := item.(map[string]any); ok {
				if v, ok := m["dot11.advertisedssid.location"]; ok {
					candidates = append(candidates, v)
				}
			}
		}
	}

	for _, c := range candidates {
		if lat, lon, alt, ok := parseLocationCandidate(c); ok {
			return lat, lon, alt, ok
		}
	}
	return 0, 0, 0, false
}

func parseLocationCandidate(val any) (lat, lon, alt float64, ok bool) {
	switch v := val.(type) {
	case map[string]any:
		if point, present := v["kismet.common.location.geopoint"]; present {
			return parseGeopoint(point, v["kismet.common.location.alt"])
		}
		for _, k := range locationKeys {
			if inner, present := v[k]; present {
				if lat, lon, alt, ok := parseLocationCandidate(inner); ok {
					return lat, lon, alt, ok
				}
			}
		}
		return 0, 0, 0, false
	case []any:
		return parseGeopoint(v, nil)
	default:
		return 0, 0, 0, false
	}
}

// parseGeopoint reads a Kismet geopoint, stored as [lon, lat(, alt)].
func parseGeopoint(point any, altOverride any) (lat, lon, alt float64, ok bool) {
	arr, isArr := point.([]any)
	if !isArr || len(arr) < 2 {
		return 0, 0, 0, false
	}
	lonF, lok := arr[0].(float64)
	latF, tok := arr[1].(float64)
	if !lok || !tok {
		return 0, 0, 0, false
	}
	if a, ok := altOverride.(float64); ok {
		alt = a
	} else if len(arr) >= 3 {
		if a, ok := arr[2].(float64); ok {
			alt = a
		}
	}
	return latF, lonF, alt, true
}
