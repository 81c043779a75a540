package sink

import (
	"context"
	"testing"
	"time"

	"github.com/billglover/dragonsync/internal/model"
)

func TestCachingSinkOnlyMirrorsADSB(t *testing.T) {
	c := NewCachingSink(time.Minute)
	ctx := context.Background()

	c.PublishTrack(ctx, &model.Track{UID: "drone-1", Kind: model.KindDrone}, time.Now())
	c.PublishTrack(ctx, &model.Track{UID: "adsb-a12345", Kind: model.KindAircraftADSB}, time.Now())

	snap := c.Snapshot(time.Now())
	if len(snap) != 1 || snap[0].UID != "adsb-a12345" {
		t.Fatalf("Snapshot() = %v, want only adsb-a12345", snap)
	}
}

func TestCachingSinkExpiresByTTL(t *testing.T) {
	c := NewCachingSink(time.Second)
	ctx := context.Background()
	c.PublishTrack(ctx, &model.Track{UID: "adsb-a12345", Kind: model.KindAircraftADSB}, time.Now())

	snap := c.Snapshot(time.Now().Add(2 * time.Second))
	if len(snap) != 0 {
		t.Fatalf("Snapshot() after TTL expiry = %v, want empty", snap)
	}
}

func TestCachingSinkMarkInactiveRemoves(t *testing.T) {
	c := NewCachingSink(time.Minute)
	ctx := context.Background()
	c.PublishTrack(ctx, &model.Track{UID: "adsb-a12345", Kind: model.KindAircraftADSB}, time.Now())
	c.MarkInactive(ctx, "adsb-a12345")

	snap := c.Snapshot(time.Now())
	if len(snap) != 0 {
		t.Fatalf("Snapshot() after MarkInactive = %v, want empty", snap)
	}
}
