package normalize

import (
	"testing"
	"time"

	"github.com/billglover/dragonsync/internal/model"
)

func TestFPVUsesFrequencyFallbackAndKitAnchor(t *testing.T) {
	raw := []byte(`[{"Frequency Message": {"frequency": 5800000000}}, {"Signal Info": {"source": "confirm"}}]`)
	opts := FPVOptions{Anchor: model.Position{Lat: 34.0, Lon: -117.0}, RadiusM: 50, ConfirmOnly: true}

	alert, ok := FPV(raw, opts, time.Now())
	if !ok {
		t.Fatalf("FPV() ok = false, want true")
	}
	if alert.UID != "fpv-alert-5800MHz" {
		t.Fatalf("UID = %q, want fpv-alert-5800MHz", alert.UID)
	}
	// Deterministic offset should stay within the configured radius.
	dLat := alert.Position.Lat - opts.Anchor.Lat
	dLon := alert.Position.Lon - opts.Anchor.Lon
	if dLat > 1 || dLon > 1 {
		t.Fatalf("offset too large: dLat=%v dLon=%v", dLat, dLon)
	}
}

func TestFPVConfirmOnlyFiltersUnconfirmed(t *testing.T) {
	raw := []byte(`[{"Signal Info": {"source": "maybe", "center_hz": 5800000000}}]`)
	opts := FPVOptions{Anchor: model.Position{Lat: 34.0, Lon: -117.0}, RadiusM: 50, ConfirmOnly: true}

	_, ok := FPV(raw, opts, time.Now())
	if ok {
		t.Fatalf("FPV() ok = true, want false (not confirmed)")
	}
}

func TestFPVSensorPositionOverridesAnchor(t *testing.T) {
	raw := []byte(`[
		{"Location/Vector Message": {"latitude": 10.0, "longitude": 20.0}},
		{"Signal Info": {"source": "confirm", "center_hz": 900000000}}
	]`)
	opts := FPVOptions{Anchor: model.Position{Lat: 34.0, Lon: -117.0}, RadiusM: 0, ConfirmOnly: true}

	alert, ok := FPV(raw, opts, time.Now())
	if !ok {
		t.Fatalf("FPV() ok = false, want true")
	}
	if alert.Position.Lat != 10.0 || alert.Position.Lon != 20.0 {
		t.Fatalf("Position = %+v, want sensor position (radius 0)", alert.Position)
	}
}

func TestFPVMissingFrequencyRejected(t *testing.T) {
	raw := []byte(`[{"Signal Info": {"source": "confirm"}}]`)
	opts := FPVOptions{Anchor: model.Position{Lat: 34.0, Lon: -117.0}, RadiusM: 50}
	_, ok := FPV(raw, opts, time.Now())
	if ok {
		t.Fatalf("FPV() ok = true, want false (no center_hz/frequency)")
	}
}

func TestFPVSameUIDStableOffset(t *testing.T) {
	raw := []byte(`[{"Signal Info": {"source": "confirm", "center_hz": 2400000000}}]`)
	opts := FPVOptions{Anchor: model.Position{Lat: 34.0, Lon: -117.0}, RadiusM: 100}

	a1, ok1 := FPV(raw, opts, time.Now())
	a2, ok2 := FPV(raw, opts, time.Now().Add(time.Minute))
	if !ok1 || !ok2 {
		t.Fatalf("FPV() ok = %v/%v, want true/true", ok1, ok2)
	}
	if a1.Position != a2.Position {
		t.Fatalf("repeated alerts plotted at different spots: %+v vs %+v", a1.Position, a2.Position)
	}
}
