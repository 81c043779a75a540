package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/billglover/dragonsync/internal/model"
	"github.com/billglover/dragonsync/internal/registry"
)

type fakeLocal struct {
	hits map[string]Result
}

func (f *fakeLocal) LookupLocal(serial string) (Result, bool, error) {
	if r, ok := f.hits[serial]; ok {
		return r, true, nil
	}
	return Result{}, true, nil
}

type fakeRemote struct {
	result Result
	err    error
	calls  int
}

func (f *fakeRemote) Resolve(ctx context.Context, serial string, opts ResolveOptions) (Result, error) {
	f.calls++
	return f.result, f.err
}

func TestFastPathPromotesOnLocalHit(t *testing.T) {
	reg := registry.New(10)
	now := time.Now()
	reg.Upsert(model.Observation{Kind: model.KindDrone, UID: "drone-A", HasPosition: true, Position: model.Position{Lat: 1, Lon: 1}}, now)

	local := &fakeLocal{hits: map[string]Result{
		"ABC123": {Found: true, Make: "DJI", Model: "Mavic 3", Source: "local"},
	}}

	svc := New(Config{}, local, nil, reg)
	resolved := svc.FastPathResolve("drone-A", "ABC123")
	if !resolved {
		t.Fatalf("FastPathResolve() = false, want true on local hit")
	}

	track := reg.Get("drone-A")
	if track.TrustLevel != model.TrustTrusted {
		t.Fatalf("TrustLevel = %v, want trusted after enrichment success", track.TrustLevel)
	}
	if track.Enrichment.Make != "DJI" {
		t.Errorf("Make = %q, want DJI", track.Enrichment.Make)
	}
}

func TestFastPathMissFallsBackToAsyncQueue(t *testing.T) {
	reg := registry.New(10)
	reg.Upsert(model.Observation{Kind: model.KindDrone, UID: "drone-A", HasPosition: true, Position: model.Position{Lat: 1, Lon: 1}}, time.Now())

	local := &fakeLocal{hits: map[string]Result{}}
	remote := &fakeRemote{result: Result{Found: true, Make: "Autel", Model: "EVO", Source: "api"}}

	svc := New(Config{RateLimit: time.Millisecond}, local, remote, reg)
	resolved := svc.FastPathResolve("drone-A", "XYZ789")
	if resolved {
		t.Fatalf("FastPathResolve() = true, want false (miss should queue, not resolve sync)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go svc.Run(ctx)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if reg.Get("drone-A").TrustLevel == model.TrustTrusted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	track := reg.Get("drone-A")
	if track.TrustLevel != model.TrustTrusted {
		t.Fatalf("async worker did not promote track within deadline")
	}
	if remote.calls != 1 {
		t.Errorf("remote.calls = %d, want 1", remote.calls)
	}
}

func TestRepeatedMissIsSuppressedByMissCache(t *testing.T) {
	reg := registry.New(10)
	reg.Upsert(model.Observation{Kind: model.KindDrone, UID: "drone-A", HasPosition: true, Position: model.Position{Lat: 1, Lon: 1}}, time.Now())

	local := &fakeLocal{hits: map[string]Result{}}
	svc := New(Config{}, local, nil, reg)

	svc.FastPathResolve("drone-A", "NOPE")
	if !svc.hasMissed("NOPE") {
		t.Fatalf("expected NOPE to be recorded in miss cache after local miss")
	}

	svc.FastPathResolve("drone-A", "NOPE")
	if len(svc.queue) != 0 {
		t.Errorf("repeated miss should be suppressed, not re-queued; queue len = %d", len(svc.queue))
	}
}

func TestRemoteFailureDisablesService(t *testing.T) {
	reg := registry.New(10)
	reg.Upsert(model.Observation{Kind: model.KindDrone, UID: "drone-A", HasPosition: true, Position: model.Position{Lat: 1, Lon: 1}}, time.Now())

	local := &fakeLocal{hits: map[string]Result{}}
	remote := &fakeRemote{err: context.DeadlineExceeded}
	svc := New(Config{RateLimit: time.Millisecond}, local, remote, reg)

	svc.FastPathResolve("drone-A", "FAIL1")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	svc.Run(ctx)

	if svc.Enabled() {
		t.Fatalf("service should be disabled after a persistent remote failure")
	}
}
