// Package model holds the DTOs shared across the ingest-to-dispatch pipeline:
// Observation (transient Normalizer output) and Track (persistent registry entity).
package model

import "time"

// Kind identifies which Normalizer produced an Observation.
type Kind string

const (
	KindDrone       Kind = "drone"
	KindAircraftADSB Kind = "aircraft-adsb"
	KindAircraftUAT  Kind = "aircraft-uat"
	KindDeviceWifi   Kind = "device-wifi"
	KindDeviceBT     Kind = "device-bt"
	KindFPVAlert     Kind = "fpv-alert"
	KindSystem       Kind = "system"
)

// Trust reflects whether a Track's identity has been confirmed by enrichment.
type Trust string

const (
	TrustOpportunistic Trust = "opportunistic"
	TrustTrusted       Trust = "trusted"
)

// Position is a geodetic fix. Altitude is always meters in Track-facing code.
type Position struct {
	Lat   float64
	Lon   float64
	AltM  float64
}

// IsZero reports whether the position has never been set.
func (p Position) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0 && p.AltM == 0
}

// Kinematics holds motion fields, normalized to SI units.
type Kinematics struct {
	GroundSpeedMPS  float64
	VerticalSpeedMPS float64
	CourseDeg       float64
	HasCourse       bool
	OnGround        bool
}

// Identity holds the descriptive/identifying fields of an Observation or Track.
type Identity struct {
	MAC         string
	Callsign    string
	AltID       string // operator_id, squawk, caa_id, or registration depending on source
	Description string
	UATypeCode  int // 0-15, see glossary; 0 if unknown or out of range
	Category    string
}

// Quality holds positional/identity confidence fields.
type Quality struct {
	RSSIDBm           float64
	HorizontalAccuracyM float64
	VerticalAccuracyM   float64
	NIC  float64
	NACp float64
	NACv float64
}

// Auxiliary holds fields specific to a subset of source kinds.
type Auxiliary struct {
	PilotPosition Position // drones only
	HomePosition  Position // drones only
	FrequencyHz   float64  // fpv-alert only
	BandwidthHz   float64  // fpv-alert only
}

// Enrichment captures the result of a SerialLookup resolution.
type Enrichment struct {
	Attempted  bool
	Success    bool
	Pending    bool
	TrackingID string
	Status     string
	Make       string
	Model      string
	Source     string
}

// Observation is the transient, normalized output of a Normalizer. It carries
// no uid when a Remote-ID CAA-only fragment arrives with no serial number; the
// registry then resolves it to an existing track by MAC.
type Observation struct {
	Kind       Kind
	UID        string // empty for CAA-only Remote-ID fragments
	Position   Position
	HasPosition bool
	Kinematics Kinematics
	Identity   Identity
	Quality    Quality
	Auxiliary  Auxiliary
	ObservedAt time.Time
	SeenBy     string

	// EnrichmentSuccessHint lets a Normalizer (or the enrichment fast path)
	// signal that this uid's identity is already confirmed, so admission can
	// place it directly in the trusted pool instead of opportunistic.
	EnrichmentSuccessHint bool

	// Partial marks an Observation decoded from an incomplete OcuSync frame
	// (the "drone-alert" sentinel case); pilot/home CoT emission is
	// suppressed for tracks created from such observations.
	Partial bool
}

// Track is the persistent registry entity. All Observation fields are
// mirrored in; prev_position/enrichment/trust/last_* are registry-owned.
type Track struct {
	Kind       Kind
	UID        string
	Position   Position
	PrevPosition Position
	HasPrevPosition bool
	Kinematics Kinematics
	Identity   Identity
	Quality    Quality
	Auxiliary  Auxiliary
	SeenBy     string
	Partial    bool

	Enrichment Enrichment
	TrustLevel Trust

	CreatedAt       time.Time
	LastUpdateTime  time.Time
	LastSentTime    time.Time
	LastSentPosition Position
	HasSent          bool
}

// Clone returns a deep copy suitable for handing to a Dispatcher tick or an
// API snapshot without holding the registry lock during use.
func (t *Track) Clone() *Track {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// SystemStatus is the out-of-band host-kit observation. It bypasses the
// per-track registry and follows the same Sink fan-out as a Track.
type SystemStatus struct {
	Serial      string
	Position    Position
	SpeedMPS    float64
	CourseDeg   float64
	CPUUsage    float64
	MemTotalMB  float64
	MemAvailMB  float64
	DiskTotalMB float64
	DiskUsedMB  float64
	TemperatureC float64
	UptimeS     float64
	PlutoTempC  float64
	ZynqTempC   float64
	HasSDRTemps bool
	ReceivedAt  time.Time
}

// SignalAlert is an FPV RF detection event held in the short-lived
// signalstore, independent of the track registry.
type SignalAlert struct {
	UID         string
	Position    Position
	FrequencyHz float64
	BandwidthHz float64
	RSSIDBm     float64
	ObservedAt  time.Time
}
