package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/billglover/dragonsync/internal/geo"
	"github.com/billglover/dragonsync/internal/model"
)

// uatEmitterToUAType maps the dump978 emitter-category field (DO-282B, 0-19)
// to the glossary's 0-15 UA type code (spec §4.1).
var uatEmitterToUAType = map[int]int{
	0: 15, 1: 1, 2: 1, 3: 1, 4: 1, 5: 1, 6: 1,
	7: 2, 8: 6, 9: 8, 10: 14, 11: 12, 12: 15,
	13: 15, 14: 14, 15: 14, 16: 14, 17: 14, 18: 14, 19: 15,
}

type uatEntry struct {
	Address         string          `json:"address"`
	Callsign        string          `json:"callsign"`
	EmitterCategory *int            `json:"emitter_category"`
	Lat             *float64        `json:"lat"`
	Lon             *float64        `json:"lon"`
	AltGeom         json.RawMessage `json:"alt_geom"`
	AltBaro         json.RawMessage `json:"alt_baro"`
	Gs              *float64        `json:"gs"`
	Track           *float64        `json:"track"`
	BaroRate        *float64        `json:"baro_rate"`
	GeomRate        *float64        `json:"geom_rate"`
	Squawk          string          `json:"squawk"`
	Rssi            *float64        `json:"rssi"`
	NACp            *float64        `json:"nac_p"`
	NACv            *float64        `json:"nac_v"`
	NIC             *float64        `json:"nic"`
}

// UAT normalizes a single dump978 aircraft entry (spec §4.1).
func UAT(raw json.RawMessage, seenBy string, now time.Time) (model.Observation, bool) {
	var a uatEntry
	if err := json.Unmarshal(raw, &a); err != nil {
		return model.Observation{}, false
	}
	if a.Address == "" {
		return model.Observation{}, false
	}

	obs := model.Observation{
		Kind:       model.KindAircraftUAT,
		UID:        strings.ToUpper(a.Address),
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

	obs.Identity.MAC = strings.ToUpper(a.Address)
	obs.Identity.Callsign = strings.TrimSpace(a.Callsign)
	obs.Identity.AltID = a.Squawk

	if a.EmitterCategory != nil {
		if code, ok := uatEmitterToUAType[*a.EmitterCategory]; ok {
			obs.Identity.UATypeCode = code
		}
	}

	if a.NIC != nil {
		obs.Quality.NIC = *a.NIC
	}
	if a.Rssi != nil {
		obs.Quality.RSSIDBm = *a.Rssi
	}
	obs.Quality.NACp, obs.Quality.NACv = deriveCELE(a.NACp, a.NACv, onGround)

	return obs, true
}
