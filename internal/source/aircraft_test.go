package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/billglover/dragonsync/internal/registry"
)

func TestAircraftSourceIngestsFileOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aircraft.json")
	body := `{"aircraft":[{"hex":"a12345","lat":40.0,"lon":-74.0,"alt_geom":1000,"gs":250,"track":90}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reg := registry.New(10)
	src := &AircraftSource{URL: path, Kind: AircraftADSB, SeenBy: "wardragon-1", Reg: reg}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	go src.Run(ctx, 20*time.Millisecond)
	<-ctx.Done()

	track := reg.Get("adsb-a12345")
	if track == nil {
		t.Fatalf("expected track adsb-a12345 to be admitted")
	}
}

func TestAircraftSourceSkipsUnchangedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aircraft.json")
	if err := os.WriteFile(path, []byte(`{"aircraft":[]}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	src := &AircraftSource{URL: path, Kind: AircraftADSB, SeenBy: "wardragon-1", Reg: registry.New(10)}

	r, err := src.openFileIfChanged()
	if err != nil || r == nil {
		t.Fatalf("first read: r=%v err=%v, want non-nil reader", r, err)
	}
	r.Close()

	r2, err := src.openFileIfChanged()
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if r2 != nil {
		t.Fatalf("expected nil reader for unchanged mtime")
	}
}
