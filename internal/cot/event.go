// Package cot builds Cursor-on-Target XML events from Tracks, pilot/home
// positions, FPV alerts, and system status, per spec §6.
package cot

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/billglover/dragonsync/internal/model"
)

// CoTTimeLayout is the ISO-8601 UTC microsecond layout CoT consumers expect.
const CoTTimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in the CoT wire format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(CoTTimeLayout)
}

// Event is the root CoT XML element.
type Event struct {
	XMLName xml.Name `xml:"event"`
	Version string   `xml:"version,attr"`
	UID     string   `xml:"uid,attr"`
	Type    string   `xml:"type,attr"`
	Time    string   `xml:"time,attr"`
	Start   string   `xml:"start,attr"`
	Stale   string   `xml:"stale,attr"`
	How     string   `xml:"how,attr"`
	Point   Point    `xml:"point"`
	Detail  Detail   `xml:"detail"`
}

// Point is the CoT position element. hae is height-above-ellipsoid in meters.
type Point struct {
	Lat float64 `xml:"lat,attr"`
	Lon float64 `xml:"lon,attr"`
	Hae float64 `xml:"hae,attr"`
	Ce  float64 `xml:"ce,attr"`
	Le  float64 `xml:"le,attr"`
}

// Detail holds the optional child elements a CoT event may carry.
type Detail struct {
	Contact          *Contact          `xml:"contact,omitempty"`
	PrecisionLocation *PrecisionLocation `xml:"precisionlocation,omitempty"`
	Track            *TrackDetail      `xml:"track,omitempty"`
	Remarks          *Remarks          `xml:"remarks,omitempty"`
	Color            *Color            `xml:"color,omitempty"`
	RID              *RID              `xml:"rid,omitempty"`
}

type Contact struct {
	Callsign string `xml:"callsign,attr"`
}

type PrecisionLocation struct {
	GeoPointSrc string `xml:"geopointsrc,attr"`
	AltSrc      string `xml:"altsrc,attr"`
}

type TrackDetail struct {
	Course float64 `xml:"course,attr"`
	Speed  float64 `xml:"speed,attr"`
}

type Remarks struct {
	Text string `xml:",chardata"`
}

type Color struct {
	Argb string `xml:"argb,attr"`
}

type RID struct {
	Make   string `xml:"make,attr"`
	Model  string `xml:"model,attr"`
	Source string `xml:"source,attr"`
}

// Encode renders e as a UTF-8 XML document with declaration.
func Encode(e *Event) ([]byte, error) {
	body, err := xml.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("cot: marshal event %s: %w", e.UID, err)
	}
	out := make([]byte, 0, len(body)+64)
	out = append(out, []byte(xml.Header)...)
	out = append(out, body...)
	return out, nil
}

// uaTypeCotType maps the 0-15 UA type code (spec glossary) to its CoT type.
// Unknown codes fall back to the generic multirotor event type.
var uaTypeCotType = map[int]string{
	0:  "a-u-A-M-H",
	1:  "a-u-A-M-F",
	2:  "a-u-A-M-H-R",
	3:  "a-u-A-M-H-Q",
	4:  "a-u-A-M-H-V",
	5:  "a-u-A-M-F-O",
	6:  "a-u-A-M-F-G",
	7:  "a-u-A-M-F-K",
	8:  "a-u-A-M-F-B-F",
	9:  "a-u-A-M-F-B-C",
	10: "a-u-A-M-F-L",
	11: "a-u-A-M-F-P",
	12: "a-u-A-M-F-R",
	13: "a-u-A-M-H-T",
	14: "a-u-G",
	15: "a-u-A-M-F-O",
}

// DroneType returns the CoT event type for a drone track's UA type code.
func DroneType(uaTypeCode int) string {
	if t, ok := uaTypeCotType[uaTypeCode]; ok {
		return t
	}
	return "a-u-A-M-H-R"
}

const (
	TypeADSB    = "a-f-A"
	TypeFPV     = "b-m-p-s-s"
	TypeSystem  = "a-f-G-E-S"
	TypePilotHome = "b-m-p-s-m"

	howMachineGPS = "m-g"
)

// StaleFor computes the non-terminal stale timestamp per spec §4.3:
// stale = now + max(0, inactivityTimeout - (now - lastUpdate)).
func StaleFor(now, lastUpdate time.Time, inactivityTimeout time.Duration) time.Time {
	remaining := inactivityTimeout - now.Sub(lastUpdate)
	if remaining < 0 {
		remaining = 0
	}
	return now.Add(remaining)
}

// DroneEvent builds the primary drone CoT event for track.
func DroneEvent(track *model.Track, now time.Time, stale time.Time) *Event {
	course := track.Kinematics.CourseDeg
	speed := track.Kinematics.GroundSpeedMPS

	remarks := droneRemarks(track)

	d := Detail{
		Contact: &Contact{Callsign: firstNonEmpty(track.Identity.Callsign, track.UID)},
		PrecisionLocation: &PrecisionLocation{GeoPointSrc: "gps", AltSrc: "gps"},
		Track:   &TrackDetail{Course: course, Speed: speed},
		Remarks: &Remarks{Text: remarks},
		Color:   &Color{Argb: "-256"},
	}
	if track.Enrichment.Success {
		d.RID = &RID{Make: track.Enrichment.Make, Model: track.Enrichment.Model, Source: track.Enrichment.Source}
	}

	ce, le := accuracy(track.Quality)

	return &Event{
		Version: "2.0",
		UID:     track.UID,
		Type:    DroneType(track.Identity.UATypeCode),
		Time:    FormatTime(now),
		Start:   FormatTime(now),
		Stale:   FormatTime(stale),
		How:     howMachineGPS,
		Point: Point{
			Lat: track.Position.Lat,
			Lon: track.Position.Lon,
			Hae: track.Position.AltM,
			Ce:  ce,
			Le:  le,
		},
		Detail: d,
	}
}

// TerminalEvent builds the stale=now terminal CoT that signals consumers to
// drop the icon on eviction (spec §4.3).
func TerminalEvent(track *model.Track, now time.Time) *Event {
	e := DroneEvent(track, now, now)
	return e
}

func droneRemarks(track *model.Track) string {
	base := fmt.Sprintf("UID: %s", track.UID)
	if track.Identity.AltID != "" {
		base += fmt.Sprintf(" | ID: %s", track.Identity.AltID)
	}
	if track.Enrichment.Success {
		base += fmt.Sprintf(" | RID: %s %s", track.Enrichment.Make, track.Enrichment.Model)
	}
	return base
}

func accuracy(q model.Quality) (ce, le float64) {
	if q.NACp != 0 {
		ce = q.NACp
	} else {
		ce = 35.0
	}
	if q.NACv != 0 {
		le = q.NACv
	} else {
		le = 999999.0
	}
	return ce, le
}

// PilotEvent builds the pilot-position CoT marker for a drone track.
// Open Question (SPEC_FULL.md): pilot/home altitude uses the drone's own
// track altitude, not zero.
func PilotEvent(track *model.Track, now, stale time.Time) *Event {
	return personMarker("pilot-"+track.UID, track.Auxiliary.PilotPosition, track.Position.AltM, now, stale)
}

// HomeEvent builds the home-position CoT marker for a drone track.
func HomeEvent(track *model.Track, now, stale time.Time) *Event {
	return personMarker("home-"+track.UID, track.Auxiliary.HomePosition, track.Position.AltM, now, stale)
}

func personMarker(uid string, pos model.Position, altM float64, now, stale time.Time) *Event {
	return &Event{
		Version: "2.0",
		UID:     uid,
		Type:    TypePilotHome,
		Time:    FormatTime(now),
		Start:   FormatTime(now),
		Stale:   FormatTime(stale),
		How:     howMachineGPS,
		Point:   Point{Lat: pos.Lat, Lon: pos.Lon, Hae: altM, Ce: 10, Le: 10},
		Detail:  Detail{Contact: &Contact{Callsign: uid}},
	}
}

// ADSBEvent builds the CoT event for a manned-aircraft ADS-B/UAT track.
func ADSBEvent(track *model.Track, now, stale time.Time) *Event {
	ce, le := accuracy(track.Quality)
	return &Event{
		Version: "2.0",
		UID:     track.UID,
		Type:    TypeADSB,
		Time:    FormatTime(now),
		Start:   FormatTime(now),
		Stale:   FormatTime(stale),
		How:     howMachineGPS,
		Point: Point{
			Lat: track.Position.Lat,
			Lon: track.Position.Lon,
			Hae: track.Position.AltM,
			Ce:  ce,
			Le:  le,
		},
		Detail: Detail{
			Contact: &Contact{Callsign: firstNonEmpty(track.Identity.Callsign, track.UID)},
			Track:   &TrackDetail{Course: track.Kinematics.CourseDeg, Speed: track.Kinematics.GroundSpeedMPS},
		},
	}
}

// FPVEvent builds the CoT event for an FPV RF alert.
func FPVEvent(alert *model.SignalAlert, now, stale time.Time, radiusM float64) *Event {
	return &Event{
		Version: "2.0",
		UID:     alert.UID,
		Type:    TypeFPV,
		Time:    FormatTime(now),
		Start:   FormatTime(now),
		Stale:   FormatTime(stale),
		How:     howMachineGPS,
		Point: Point{
			Lat: alert.Position.Lat,
			Lon: alert.Position.Lon,
			Hae: alert.Position.AltM,
			Ce:  radiusM,
			Le:  9999999.0,
		},
		Detail: Detail{
			Remarks: &Remarks{Text: fmt.Sprintf("FPV RF alert %.3f MHz", alert.FrequencyHz/1e6)},
		},
	}
}

// SystemEvent builds the host-kit system status CoT event.
func SystemEvent(status *model.SystemStatus, now, stale time.Time) *Event {
	return &Event{
		Version: "2.0",
		UID:     "wardragon-" + status.Serial,
		Type:    TypeSystem,
		Time:    FormatTime(now),
		Start:   FormatTime(now),
		Stale:   FormatTime(stale),
		How:     howMachineGPS,
		Point: Point{
			Lat: status.Position.Lat,
			Lon: status.Position.Lon,
			Hae: status.Position.AltM,
			Ce:  10,
			Le:  10,
		},
		Detail: Detail{
			Remarks: &Remarks{Text: fmt.Sprintf("cpu=%.1f%% temp=%.1fC uptime=%.0fs", status.CPUUsage, status.TemperatureC, status.UptimeS)},
		},
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
