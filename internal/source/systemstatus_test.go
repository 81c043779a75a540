package source

import (
	"testing"
	"time"
)

func TestParseSystemStatusRequiresSerial(t *testing.T) {
	_, ok := parseSystemStatus([]byte(`{"gps_latitude":1.0}`), time.Now())
	if ok {
		t.Fatalf("ok = true, want false (no serial_number)")
	}
}

func TestParseSystemStatusSDRTemps(t *testing.T) {
	raw := []byte(`{"serial_number":"wd-1","gps_latitude":34.0,"gps_longitude":-117.0,"pluto_temp":41.5}`)
	status, ok := parseSystemStatus(raw, time.Now())
	if !ok {
		t.Fatalf("ok = false, want true")
	}
	if !status.HasSDRTemps || status.PlutoTempC != 41.5 {
		t.Fatalf("PlutoTempC/HasSDRTemps = %v/%v, want 41.5/true", status.PlutoTempC, status.HasSDRTemps)
	}
	if status.ZynqTempC != 0 {
		t.Fatalf("ZynqTempC = %v, want 0 (absent)", status.ZynqTempC)
	}
}
