package cot

import (
	"strings"
	"testing"
	"time"

	"github.com/billglover/dragonsync/internal/model"
)

func TestDroneEventFields(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	stale := now.Add(2 * time.Second)

	track := &model.Track{
		UID: "drone-ABC123",
		Position: model.Position{Lat: 34.1, Lon: -117.2, AltM: 120.5},
		Identity: model.Identity{UATypeCode: 2},
	}

	e := DroneEvent(track, now, stale)

	if e.Type != "a-u-A-M-H-R" {
		t.Errorf("Type = %q, want a-u-A-M-H-R", e.Type)
	}
	if e.Point.Lat != 34.1 || e.Point.Lon != -117.2 || e.Point.Hae != 120.5 {
		t.Errorf("Point = %+v, want lat=34.1 lon=-117.2 hae=120.5", e.Point)
	}

	body, err := Encode(e)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	s := string(body)
	if !strings.HasPrefix(s, `<?xml`) {
		t.Errorf("Encode() missing XML declaration: %s", s[:20])
	}
	if !strings.Contains(s, `uid="drone-ABC123"`) {
		t.Errorf("Encode() missing uid attr: %s", s)
	}
}

func TestStaleForNonTerminal(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 30, 0, time.UTC)
	last := now.Add(-10 * time.Second)
	timeout := 60 * time.Second

	stale := StaleFor(now, last, timeout)
	want := now.Add(50 * time.Second)
	if !stale.Equal(want) {
		t.Errorf("StaleFor() = %v, want %v", stale, want)
	}
}

func TestStaleForClampsAtZero(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 1, 0, 0, time.UTC)
	last := now.Add(-90 * time.Second)
	timeout := 60 * time.Second

	stale := StaleFor(now, last, timeout)
	if !stale.Equal(now) {
		t.Errorf("StaleFor() = %v, want clamped to now %v", stale, now)
	}
}

func TestTerminalEventStaleEqualsNow(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	track := &model.Track{UID: "drone-X", Position: model.Position{Lat: 1, Lon: 2}}
	e := TerminalEvent(track, now)
	if e.Stale != FormatTime(now) {
		t.Errorf("terminal event Stale = %s, want %s", e.Stale, FormatTime(now))
	}
}

func TestEnrichedDroneEventIncludesRID(t *testing.T) {
	now := time.Now()
	track := &model.Track{
		UID: "drone-X",
		Enrichment: model.Enrichment{Success: true, Make: "DJI", Model: "Mavic 3", Source: "local"},
	}
	e := DroneEvent(track, now, now)
	if e.Detail.RID == nil {
		t.Fatal("expected RID detail for enriched track")
	}
	if !strings.Contains(e.Detail.Remarks.Text, "RID: DJI Mavic 3") {
		t.Errorf("remarks = %q, want to contain RID: DJI Mavic 3", e.Detail.Remarks.Text)
	}
}
