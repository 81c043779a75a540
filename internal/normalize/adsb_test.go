package normalize

import (
	"testing"
	"time"
)

func TestADSBConversionWorkedExample(t *testing.T) {
	raw := []byte(`{"hex":"A12345","lat":40,"lon":-74,"alt_geom":1000,"gs":250,"track":90}`)
	obs, ok := ADSB(raw, "wardragon-1", time.Now())
	if !ok {
		t.Fatalf("ADSB() ok = false, want true")
	}
	if obs.UID != "adsb-a12345" {
		t.Fatalf("UID = %q, want adsb-a12345", obs.UID)
	}
	if got, want := obs.Position.AltM, 304.8; !approxEqual(got, want, 0.1) {
		t.Fatalf("AltM = %v, want ~%v", got, want)
	}
	if got, want := obs.Kinematics.GroundSpeedMPS, 128.611; !approxEqual(got, want, 0.01) {
		t.Fatalf("GroundSpeedMPS = %v, want ~%v", got, want)
	}
	if obs.Kinematics.CourseDeg != 90 {
		t.Fatalf("CourseDeg = %v, want 90", obs.Kinematics.CourseDeg)
	}
}

func TestADSBGroundStringAltitude(t *testing.T) {
	raw := []byte(`{"hex":"A12345","lat":40,"lon":-74,"alt_geom":"ground"}`)
	obs, ok := ADSB(raw, "wardragon-1", time.Now())
	if !ok {
		t.Fatalf("ADSB() ok = false, want true")
	}
	if obs.Position.AltM != 0 || !obs.Kinematics.OnGround {
		t.Fatalf("AltM/OnGround = %v/%v, want 0/true", obs.Position.AltM, obs.Kinematics.OnGround)
	}
}

func TestADSBMissingHexRejected(t *testing.T) {
	raw := []byte(`{"lat":40,"lon":-74}`)
	_, ok := ADSB(raw, "wardragon-1", time.Now())
	if ok {
		t.Fatalf("ADSB() ok = true, want false (missing hex)")
	}
}

func TestADSBDefaultCELEWithoutNACp(t *testing.T) {
	raw := []byte(`{"hex":"A12345","lat":40,"lon":-74}`)
	obs, ok := ADSB(raw, "wardragon-1", time.Now())
	if !ok {
		t.Fatalf("ADSB() ok = false, want true")
	}
	if obs.Quality.NACp != 35.0 || obs.Quality.NACv != 999999.0 {
		t.Fatalf("NACp/NACv = %v/%v, want 35.0/999999.0", obs.Quality.NACp, obs.Quality.NACv)
	}
}

func TestADSBDerivedCELEWithNACp(t *testing.T) {
	raw := []byte(`{"hex":"A12345","lat":40,"lon":-74,"nac_p":5,"nac_v":1}`)
	obs, ok := ADSB(raw, "wardragon-1", time.Now())
	if !ok {
		t.Fatalf("ADSB() ok = false, want true")
	}
	if got, want := obs.Quality.NACp, 5+56.57; !approxEqual(got, want, 0.001) {
		t.Fatalf("NACp = %v, want %v", got, want)
	}
	if got, want := obs.Quality.NACv, 1+12.5; !approxEqual(got, want, 0.001) {
		t.Fatalf("NACv = %v, want %v", got, want)
	}
}

func approxEqual(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}
