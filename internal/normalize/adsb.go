package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/billglover/dragonsync/internal/geo"
	"github.com/billglover/dragonsync/internal/model"
)

// aircraftEntry mirrors a single element of dump1090/readsb's aircraft.json
// (field reference: https://github.com/SDRplay/dump1090/blob/master/README-json.md),
// trimmed to the fields the Normalizer consumes. alt_geom/alt_baro are
// json.RawMessage because the wire format uses either a number or the
// literal string "ground".
type aircraftEntry struct {
	Hex      string          `json:"hex"`
	Flight   string          `json:"flight"`
	AltGeom  json.RawMessage `json:"alt_geom"`
	AltBaro  json.RawMessage `json:"alt_baro"`
	Lat      *float64        `json:"lat"`
	Lon      *float64        `json:"lon"`
	Gs       *float64        `json:"gs"`
	Track    *float64        `json:"track"`
	BaroRate *float64        `json:"baro_rate"`
	GeomRate *float64        `json:"geom_rate"`
	Squawk   string          `json:"squawk"`
	Category string          `json:"category"`
	Rssi     *float64        `json:"rssi"`
	NACp     *float64        `json:"nac_p"`
	NACv     *float64        `json:"nac_v"`
	NIC      *float64        `json:"nic"`
}

// ADSB normalizes a single dump1090/readsb aircraft.json entry (spec §4.1,
// worked example §8.3).
func ADSB(raw json.RawMessage, seenBy string, now time.Time) (model.Observation, bool) {
	var a aircraftEntry
	if err := json.Unmarshal(raw, &a); err != nil {
		return model.Observation{}, false
	}
	if a.Hex == "" {
		return model.Observation{}, false
	}

	obs := model.Observation{
		Kind:       model.KindAircraftADSB,
		UID:        "adsb-" + strings.ToLower(a.Hex),
		ObservedAt: now,
		SeenBy:     seenBy,
	}

	altFt, onGround, haveAlt := feetFromRawOrGround(a.AltGeom)
	if !haveAlt {
		altFt, onGround, haveAlt = feetFromRawOrGround(a.AltBaro)
	}
	if onGround {
		obs.Position.AltM = 0
		obs.Kinematics.OnGround = true
	} else if haveAlt {
		obs.Position.AltM = geo.FeetToMeters(altFt)
	}

	if a.Lat != nil && a.Lon != nil {
		obs.HasPosition = true
		obs.Position.Lat = *a.Lat
		obs.Position.Lon = *a.Lon
	}

	if a.Gs != nil {
		obs.Kinematics.GroundSpeedMPS = geo.KnotsToMPS(*a.Gs)
	}
	if a.GeomRate != nil {
		obs.Kinematics.VerticalSpeedMPS = geo.FeetPerMinuteToMPS(*a.GeomRate)
	} else if a.BaroRate != nil {
		obs.Kinematics.VerticalSpeedMPS = geo.FeetPerMinuteToMPS(*a.BaroRate)
	}
	if a.Track != nil {
		obs.Kinematics.CourseDeg = *a.Track
		obs.Kinematics.HasCourse = true
	}

	obs.Identity.MAC = strings.ToUpper(a.Hex)
	obs.Identity.Callsign = strings.TrimSpace(a.Flight)
	obs.Identity.AltID = a.Squawk
	obs.Identity.Category = a.Category

	if a.NIC != nil {
		obs.Quality.NIC = *a.NIC
	}
	if a.Rssi != nil {
		obs.Quality.RSSIDBm = *a.Rssi
	}

	obs.Quality.NACp, obs.Quality.NACv = deriveCELE(a.NACp, a.NACv, onGround)

	return obs, true
}

// feetFromRawOrGround parses an alt_geom/alt_baro field that is either a JSON
// number (feet) or the literal string "ground".
func feetFromRawOrGround(raw json.RawMessage) (feet float64, onGround bool, ok bool) {
	if len(raw) == 0 {
		return 0, false, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return 0, s == "ground", s == "ground"
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, false, true
	}
	return 0, false, false
}

