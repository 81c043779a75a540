// Package normalize maps each source kind's raw JSON into a model.Observation
// (spec §4.1). Each Normalizer exposes a single Normalize operation and never
// touches the registry directly.
package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/billglover/dragonsync/internal/model"
)

// serialIDType and caaIDType are the two id_type values a Basic ID fragment
// carries; any other id_type with a non-empty id is tracked as drone-<id>.
const (
	serialIDType = "Serial Number (ANSI/CTA-2063-A)"
	caaIDType    = "CAA Assigned Registration ID"
)

// rawFragment is one member of a Remote-ID fragment list, keyed by its
// message-type name ("Basic ID", "Location/Vector Message", ...).
type rawFragment map[string]json.RawMessage

type basicIDFragment struct {
	IDType      string  `json:"id_type"`
	ID          string  `json:"id"`
	Description string  `json:"description"`
	MAC         string  `json:"mac"`
	RSSIDBm     float64 `json:"rssi"`
	UAType      *int    `json:"ua_type"`
}

type locationVectorFragment struct {
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	GeodeticAltitude   *float64 `json:"geodetic_altitude"`
	Height             *float64 `json:"height"`
	HeightType         string   `json:"height_type"`
	Speed              *float64 `json:"speed"`
	VSpeed             *float64 `json:"vspeed"`
	Direction          *float64 `json:"direction"`
	EWDirection        string   `json:"ew_dir"`
	OpStatus           string   `json:"op_status"`
	HorizontalAccuracy string   `json:"horizontal_accuracy"`
	VerticalAccuracy   string   `json:"vertical_accuracy"`
	BaroAccuracy       string   `json:"baro_accuracy"`
	SpeedAccuracy      string   `json:"speed_accuracy"`
	Timestamp          string   `json:"timestamp"`
}

type selfIDFragment struct {
	Text        string `json:"text"`
	Description string `json:"description"`
}

type systemFragment struct {
	OperatorLatitude  *float64 `json:"operator_lat"`
	OperatorLongitude *float64 `json:"operator_lon"`
	HomeLatitude      *float64 `json:"home_lat"`
	HomeLongitude     *float64 `json:"home_lon"`
}

type operatorIDFragment struct {
	OperatorIDType string `json:"operator_id_type"`
	OperatorID     string `json:"operator_id"`
}

// esp32Payload is the flat single-dict shape the ESP32 Remote-ID encoder
// emits in place of a fragment list (spec §9 design note: "Dynamic dict shape").
type esp32Payload struct {
	IDType            string   `json:"id_type"`
	ID                string   `json:"id"`
	MAC               string   `json:"mac"`
	Description       string   `json:"description"`
	RSSIDBm           float64  `json:"rssi"`
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
	GeodeticAltitude  *float64 `json:"geodetic_altitude"`
	Height            *float64 `json:"height"`
	HeightType        string   `json:"height_type"`
	Speed             *float64 `json:"speed"`
	VSpeed            *float64 `json:"vspeed"`
	Direction         *float64 `json:"direction"`
	EWDirection       string   `json:"ew_dir"`
	OpStatus          string   `json:"op_status"`
	OperatorLatitude  *float64 `json:"operator_lat"`
	OperatorLongitude *float64 `json:"operator_lon"`
	HomeLatitude      *float64 `json:"home_lat"`
	HomeLongitude     *float64 `json:"home_lon"`
	OperatorIDType    string   `json:"operator_id_type"`
	OperatorID        string   `json:"operator_id"`
	UAType            *int     `json:"ua_type"`
}

// accumulator merges Remote-ID fragments (or an ESP32 flat dict) into a
// single intermediate record before it becomes an Observation.
type accumulator struct {
	idType      string
	id          string
	mac         string
	description string
	rssi        float64

	lat, lon, alt *float64
	speed, vspeed *float64
	direction     *float64
	ewDir         string
	opStatus      string
	heightType    string

	pilotLat, pilotLon *float64
	homeLat, homeLon   *float64

	operatorIDType string
	operatorID     string

	uaType *int
}

// RemoteID normalizes a single Remote-ID message — either a JSON array of
// tagged fragments or an ESP32 flat dict — into an Observation. It returns
// false if the message carries no usable id/uid (spec §4.1).
func RemoteID(raw json.RawMessage, seenBy string, now time.Time) (model.Observation, bool) {
	acc, ok := mergeRemoteID(raw)
	if !ok {
		return model.Observation{}, false
	}

	obs := model.Observation{
		Kind:       model.KindDrone,
		ObservedAt: now,
		SeenBy:     seenBy,
	}

	if acc.lat != nil && acc.lon != nil {
		obs.HasPosition = true
		obs.Position.Lat = *acc.lat
		obs.Position.Lon = *acc.lon
		if acc.alt != nil {
			obs.Position.AltM = *acc.alt
		}
	}
	if acc.speed != nil {
		obs.Kinematics.GroundSpeedMPS = *acc.speed
	}
	if acc.vspeed != nil {
		obs.Kinematics.VerticalSpeedMPS = *acc.vspeed
	}
	if acc.direction != nil {
		obs.Kinematics.CourseDeg = normalizeDegrees(*acc.direction)
		obs.Kinematics.HasCourse = true
	}

	obs.Identity.MAC = acc.mac
	obs.Identity.Description = acc.description
	obs.Identity.Category = acc.opStatus
	obs.Quality.RSSIDBm = acc.rssi

	// An out-of-range ua_type leaves UATypeCode at 0 (unset) rather than
	// rejecting the Observation, so the drone is still tracked; cot.DroneType
	// renders code 0 with its no-type CoT entry.
	if acc.uaType != nil && *acc.uaType >= 0 && *acc.uaType <= 15 {
		obs.Identity.UATypeCode = *acc.uaType
	}

	if acc.pilotLat != nil && acc.pilotLon != nil {
		obs.Auxiliary.PilotPosition = model.Position{Lat: *acc.pilotLat, Lon: *acc.pilotLon}
	}
	if acc.homeLat != nil && acc.homeLon != nil {
		obs.Auxiliary.HomePosition = model.Position{Lat: *acc.homeLat, Lon: *acc.homeLon}
	}

	switch acc.idType {
	case serialIDType:
		if acc.id == "" {
			return model.Observation{}, false
		}
		obs.UID = "drone-" + acc.id
		if acc.operatorID != "" {
			obs.Identity.AltID = acc.operatorID
		}
	case caaIDType:
		if acc.mac == "" {
			return model.Observation{}, false
		}
		obs.Identity.AltID = acc.id
	default:
		if acc.id != "" {
			obs.UID = "drone-" + acc.id
		} else if acc.mac != "" {
			obs.Identity.AltID = acc.operatorID
		} else {
			return model.Observation{}, false
		}
	}

	return obs, true
}

func mergeRemoteID(raw json.RawMessage) (accumulator, bool) {
	var fragments []rawFragment
	if err := json.Unmarshal(raw, &fragments); err == nil {
		return mergeFragments(fragments), true
	}

	var flat esp32Payload
	if err := json.Unmarshal(raw, &flat); err != nil {
		return accumulator{}, false
	}
	return mergeESP32(flat), true
}

func mergeFragments(fragments []rawFragment) accumulator {
	var acc accumulator
	for _, frag := range fragments {
		if body, ok := frag["Basic ID"]; ok {
			var b basicIDFragment
			if json.Unmarshal(body, &b) == nil {
				acc.idType = firstNonEmpty(b.IDType, acc.idType)
				acc.id = firstNonEmpty(b.ID, acc.id)
				acc.mac = firstNonEmpty(strings.ToUpper(b.MAC), acc.mac)
				acc.description = firstNonEmpty(b.Description, acc.description)
				if b.RSSIDBm != 0 {
					acc.rssi = b.RSSIDBm
				}
				if b.UAType != nil {
					acc.uaType = b.UAType
				}
			}
		}
		if body, ok := frag["Location/Vector Message"]; ok {
			var l locationVectorFragment
			if json.Unmarshal(body, &l) == nil {
				acc.lat = firstNonNil(l.Latitude, acc.lat)
				acc.lon = firstNonNil(l.Longitude, acc.lon)
				acc.alt = firstNonNil(l.GeodeticAltitude, acc.alt)
				acc.speed = firstNonNil(l.Speed, acc.speed)
				acc.vspeed = firstNonNil(l.VSpeed, acc.vspeed)
				acc.direction = firstNonNil(l.Direction, acc.direction)
				acc.ewDir = firstNonEmpty(l.EWDirection, acc.ewDir)
				acc.opStatus = firstNonEmpty(l.OpStatus, acc.opStatus)
				acc.heightType = firstNonEmpty(l.HeightType, acc.heightType)
			}
		}
		if body, ok := frag["Self-ID Message"]; ok {
			var s selfIDFragment
			if json.Unmarshal(body, &s) == nil {
				acc.description = firstNonEmpty(s.Text, firstNonEmpty(s.Description, acc.description))
			}
		}
		if body, ok := frag["System Message"]; ok {
			var sys systemFragment
			if json.Unmarshal(body, &sys) == nil {
				acc.pilotLat = firstNonNil(sys.OperatorLatitude, acc.pilotLat)
				acc.pilotLon = firstNonNil(sys.OperatorLongitude, acc.pilotLon)
				acc.homeLat = firstNonNil(sys.HomeLatitude, acc.homeLat)
				acc.homeLon = firstNonNil(sys.HomeLongitude, acc.homeLon)
			}
		}
		if body, ok := frag["Operator ID Message"]; ok {
			var op operatorIDFragment
			if json.Unmarshal(body, &op) == nil {
				acc.operatorIDType = firstNonEmpty(op.OperatorIDType, acc.operatorIDType)
				acc.operatorID = firstNonEmpty(op.OperatorID, acc.operatorID)
			}
		}
	}
	return acc
}

func mergeESP32(p esp32Payload) accumulator {
	return accumulator{
		idType:         p.IDType,
		id:             p.ID,
		mac:            strings.ToUpper(p.MAC),
		description:    p.Description,
		rssi:           p.RSSIDBm,
		lat:            p.Latitude,
		lon:            p.Longitude,
		alt:            p.GeodeticAltitude,
		speed:          p.Speed,
		vspeed:         p.VSpeed,
		direction:      p.Direction,
		ewDir:          p.EWDirection,
		opStatus:       p.OpStatus,
		heightType:     p.HeightType,
		pilotLat:       p.OperatorLatitude,
		pilotLon:       p.OperatorLongitude,
		homeLat:        p.HomeLatitude,
		homeLon:        p.HomeLongitude,
		operatorIDType: p.OperatorIDType,
		operatorID:     p.OperatorID,
		uaType:         p.UAType,
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonNil(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

func normalizeDegrees(d float64) float64 {
	d = d - 360.0*float64(int(d/360.0))
	if d < 0 {
		d += 360.0
	}
	return d
}
