package registry

import (
	"fmt"
	"testing"
	"time"

	"github.com/billglover/dragonsync/internal/model"
)

func obs(uid string, lat, lon float64) model.Observation {
	return model.Observation{
		Kind:        model.KindDrone,
		UID:         uid,
		Position:    model.Position{Lat: lat, Lon: lon, AltM: 100},
		HasPosition: true,
	}
}

func TestUpsertCreatesNewTrackOncePerUID(t *testing.T) {
	r := New(10)
	now := time.Now()

	track1, created1 := r.Upsert(obs("drone-A", 1, 1), now)
	if track1 == nil || !created1 {
		t.Fatalf("expected creation, got track=%v created=%v", track1, created1)
	}

	track2, created2 := r.Upsert(obs("drone-A", 2, 2), now.Add(time.Second))
	if created2 {
		t.Fatalf("expected mutation, not creation, on second Upsert with same uid")
	}
	if track2.Position.Lat != 2 {
		t.Errorf("track not mutated: Lat = %v, want 2", track2.Position.Lat)
	}

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("registry has %d tracks, want 1 (uid uniqueness invariant)", len(snap))
	}
}

func TestCapacityEvictsOldestFIFO(t *testing.T) {
	r := New(2)
	now := time.Now()

	r.Upsert(obs("drone-1", 1, 1), now)
	r.Upsert(obs("drone-2", 2, 2), now.Add(time.Second))
	r.Upsert(obs("drone-3", 3, 3), now.Add(2*time.Second))

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len(snapshot) = %d, want 2 (capacity invariant)", len(snap))
	}
	uids := map[string]bool{}
	for _, tr := range snap {
		uids[tr.UID] = true
	}
	if uids["drone-1"] {
		t.Errorf("expected oldest track drone-1 to be evicted under capacity pressure")
	}
	if !uids["drone-2"] || !uids["drone-3"] {
		t.Errorf("expected drone-2 and drone-3 to remain, got %v", uids)
	}
}

func TestCourseDerivedFromPositionsWhenAbsent(t *testing.T) {
	r := New(10)
	now := time.Now()

	r.Upsert(obs("drone-A", 0, 0), now)
	track, _ := r.Upsert(obs("drone-A", 1, 0), now.Add(time.Second))

	if track.Kinematics.CourseDeg < 0 || track.Kinematics.CourseDeg >= 360 {
		t.Fatalf("CourseDeg = %v, want in [0,360)", track.Kinematics.CourseDeg)
	}
	if track.Kinematics.CourseDeg > 1 && track.Kinematics.CourseDeg < 359 {
		t.Errorf("CourseDeg = %v, want ~0 (due north) for (0,0)->(1,0)", track.Kinematics.CourseDeg)
	}
}

func TestCourseProvidedBySourceIsNotOverridden(t *testing.T) {
	r := New(10)
	now := time.Now()

	o := obs("drone-A", 0, 0)
	o.Kinematics.HasCourse = true
	o.Kinematics.CourseDeg = 42
	r.Upsert(o, now)

	o2 := obs("drone-A", 1, 1)
	o2.Kinematics.HasCourse = true
	o2.Kinematics.CourseDeg = 99
	track, _ := r.Upsert(o2, now.Add(time.Second))

	if track.Kinematics.CourseDeg != 99 {
		t.Errorf("CourseDeg = %v, want 99 (source-provided course should not be overridden)", track.Kinematics.CourseDeg)
	}
}

func TestMACSpamGuard(t *testing.T) {
	r := New(100)
	now := time.Now()
	mac := "AA:BB:CC:DD:EE:FF"

	for i := 0; i < 5; i++ {
		o := obs(fmt.Sprintf("drone-%d", i), float64(i), float64(i))
		o.Identity.MAC = mac
		track, _ := r.Upsert(o, now.Add(time.Duration(i)*time.Millisecond))
		if track == nil {
			t.Fatalf("uid %d should have been admitted (within K=5 threshold)", i)
		}
	}

	o6 := obs("drone-6", 6, 6)
	o6.Identity.MAC = mac
	track6, _ := r.Upsert(o6, now.Add(10*time.Millisecond))
	if track6 != nil {
		t.Fatalf("6th distinct uid from spamming MAC should be rejected")
	}

	o7 := obs("drone-7", 7, 7)
	o7.Identity.MAC = mac
	track7, _ := r.Upsert(o7, now.Add(30*time.Second))
	if track7 != nil {
		t.Fatalf("7th distinct uid within backoff window B=60s should still be rejected")
	}

	o8 := obs("drone-8", 8, 8)
	o8.Identity.MAC = mac
	track8, _ := r.Upsert(o8, now.Add(61*time.Second))
	if track8 == nil {
		t.Fatalf("new uid after backoff B=60s expires should be admitted")
	}
}

func TestCAAOnlyMergeByMAC(t *testing.T) {
	r := New(10)
	now := time.Now()

	o := obs("drone-ABC123", 34.1, -117.2)
	o.Identity.MAC = "AA:BB:CC:DD:EE:FF"
	r.Upsert(o, now)

	caa := model.Observation{
		Kind: model.KindDrone,
		Identity: model.Identity{MAC: "AA:BB:CC:DD:EE:FF", AltID: "CAA-REG-123"},
	}
	merged, created := r.Upsert(caa, now.Add(time.Second))
	if created {
		t.Fatalf("CAA-only observation should never create a new track")
	}
	if merged == nil || merged.UID != "drone-ABC123" {
		t.Fatalf("expected CAA-only observation to merge into drone-ABC123, got %+v", merged)
	}
	if merged.Identity.AltID != "CAA-REG-123" {
		t.Errorf("AltID = %q, want CAA-REG-123", merged.Identity.AltID)
	}
}

func TestCAAOnlyDroppedWithoutMAC(t *testing.T) {
	r := New(10)
	caa := model.Observation{Kind: model.KindDrone}
	track, created := r.Upsert(caa, time.Now())
	if track != nil || created {
		t.Fatalf("CAA-only observation with no MAC must be dropped")
	}
}

func TestCAAOnlyDroppedOnAmbiguousMAC(t *testing.T) {
	r := New(10)
	now := time.Now()

	mac := "11:22:33:44:55:66"
	o1 := obs("drone-1", 1, 1)
	o1.Identity.MAC = mac
	r.Upsert(o1, now)
	o2 := obs("drone-2", 2, 2)
	o2.Identity.MAC = mac
	r.Upsert(o2, now.Add(100*time.Millisecond))

	caa := model.Observation{Kind: model.KindDrone, Identity: model.Identity{MAC: mac}}
	track, _ := r.Upsert(caa, now.Add(200*time.Millisecond))
	if track != nil {
		t.Fatalf("ambiguous MAC match (>1 track) must be dropped, got %+v", track)
	}
}

func TestEnrichmentPromotionIsOneWay(t *testing.T) {
	r := New(10)
	now := time.Now()

	r.Upsert(obs("drone-A", 1, 1), now)
	if got := r.Get("drone-A"); got.TrustLevel != model.TrustOpportunistic {
		t.Fatalf("new track TrustLevel = %v, want opportunistic", got.TrustLevel)
	}

	if !r.PromoteToTrusted("drone-A", now.Add(time.Second)) {
		t.Fatalf("PromoteToTrusted failed")
	}
	if got := r.Get("drone-A"); got.TrustLevel != model.TrustTrusted {
		t.Fatalf("TrustLevel = %v, want trusted after promotion", got.TrustLevel)
	}

	track, _ := r.Upsert(obs("drone-A", 2, 2), now.Add(2*time.Second))
	if track.TrustLevel != model.TrustTrusted {
		t.Fatalf("trust must never transition back to opportunistic, got %v", track.TrustLevel)
	}
}

func TestEvictInactiveRemovesStaleTracks(t *testing.T) {
	r := New(10)
	now := time.Now()
	timeout := 60 * time.Second

	r.Upsert(obs("drone-A", 1, 1), now)
	r.Upsert(obs("drone-B", 2, 2), now)

	later := now.Add(timeout + time.Second)
	r.Upsert(obs("drone-B", 2, 2), later) // keep B alive

	evicted := r.EvictInactive(later, timeout)
	if len(evicted) != 1 || evicted[0].UID != "drone-A" {
		t.Fatalf("EvictInactive() = %v, want exactly drone-A", evicted)
	}

	snap := r.Snapshot()
	if len(snap) != 1 || snap[0].UID != "drone-B" {
		t.Fatalf("snapshot after eviction = %v, want only drone-B", snap)
	}
}
