package geo

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestFeetToMeters(t *testing.T) {
	got := FeetToMeters(1000)
	want := 304.8
	if !almostEqual(got, want, 0.01) {
		t.Errorf("FeetToMeters(1000) = %v, want ~%v", got, want)
	}
}

func TestKnotsToMPS(t *testing.T) {
	got := KnotsToMPS(250)
	want := 250 * 0.514444
	if !almostEqual(got, want, 0.01) {
		t.Errorf("KnotsToMPS(250) = %v, want ~%v", got, want)
	}
}

func TestFeetPerMinuteToMPS(t *testing.T) {
	got := FeetPerMinuteToMPS(1000)
	want := 1000 * 0.00508
	if !almostEqual(got, want, 0.01) {
		t.Errorf("FeetPerMinuteToMPS(1000) = %v, want ~%v", got, want)
	}
}

func TestBearingCardinal(t *testing.T) {
	testCases := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{"due_north", 0, 0, 1, 0, 0},
		{"due_east", 0, 0, 0, 1, 90},
		{"due_south", 1, 0, 0, 0, 180},
		{"due_west", 0, 1, 0, 0, 270},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Bearing(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			if got < 0 || got >= 360 {
				t.Fatalf("Bearing() = %v, out of [0,360)", got)
			}
			if !almostEqual(got, tc.want, 1.0) {
				t.Errorf("Bearing() = %v, want ~%v", got, tc.want)
			}
		})
	}
}

func TestDeterministicOffsetStable(t *testing.T) {
	lat1, lon1 := DeterministicOffset(34.1, -117.2, 500, "fpv-alert-121MHz")
	lat2, lon2 := DeterministicOffset(34.1, -117.2, 500, "fpv-alert-121MHz")
	if lat1 != lat2 || lon1 != lon2 {
		t.Fatalf("DeterministicOffset not stable across calls: (%v,%v) != (%v,%v)", lat1, lon1, lat2, lon2)
	}

	lat3, lon3 := DeterministicOffset(34.1, -117.2, 500, "fpv-alert-999MHz")
	if lat1 == lat3 && lon1 == lon3 {
		t.Errorf("different keys produced identical offsets")
	}
}
