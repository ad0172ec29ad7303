package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return store
}

func TestFindVehicleByDeviceID(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, err := store.CreateVehicle(ctx, "Vehicle 1", "device_1")
	if err != nil {
		t.Fatalf("create vehicle: %v", err)
	}

	v, err := store.FindVehicleByDeviceID(ctx, "device_1")
	if err != nil {
		t.Fatalf("find vehicle: %v", err)
	}
	if v.ID != id || v.Name != "Vehicle 1" || !v.IsActive {
		t.Fatalf("unexpected vehicle: %+v", v)
	}

	if _, err := store.FindVehicleByDeviceID(ctx, "device_unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocationOrdering(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	vehicleID, err := store.CreateVehicle(ctx, "Vehicle 1", "device_1")
	if err != nil {
		t.Fatalf("create vehicle: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		_, err := store.InsertLocation(ctx, Location{
			VehicleID: vehicleID,
			Latitude:  41.0 + float64(i)*0.001,
			Longitude: 2.0,
			Speed:     float64(i * 10),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("insert location %d: %v", i, err)
		}
	}

	asc, err := store.LocationsSince(ctx, vehicleID, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("locations since: %v", err)
	}
	if len(asc) != 3 {
		t.Fatalf("expected 3 locations, got %d", len(asc))
	}
	if !asc[0].Timestamp.Before(asc[2].Timestamp) {
		t.Fatalf("ascending order violated: %v then %v", asc[0].Timestamp, asc[2].Timestamp)
	}

	desc, err := store.RecentLocations(ctx, vehicleID, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("recent locations: %v", err)
	}
	if desc[0].Timestamp != asc[2].Timestamp {
		t.Fatalf("descending order violated: newest = %v, want %v", desc[0].Timestamp, asc[2].Timestamp)
	}

	latest, err := store.LatestLocation(ctx, vehicleID)
	if err != nil {
		t.Fatalf("latest location: %v", err)
	}
	if latest.Speed != 20 {
		t.Fatalf("latest location speed = %v, want 20", latest.Speed)
	}
}

func TestLatestLocationEmpty(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	vehicleID, err := store.CreateVehicle(ctx, "Vehicle 1", "device_1")
	if err != nil {
		t.Fatalf("create vehicle: %v", err)
	}

	if _, err := store.LatestLocation(ctx, vehicleID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSavedLocationLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	vehicleID, err := store.CreateVehicle(ctx, "Vehicle 1", "device_1")
	if err != nil {
		t.Fatalf("create vehicle: %v", err)
	}

	minutes := 7
	now := time.Now().UTC().Truncate(time.Second)
	id, err := store.InsertSavedLocation(ctx, SavedLocation{
		VehicleID:       vehicleID,
		Name:            "Auto-detected Stop",
		Latitude:        41.4,
		Longitude:       2.2,
		DurationMinutes: &minutes,
		VisitType:       VisitAutoDetected,
		Timestamp:       now.Add(-7 * time.Minute),
	})
	if err != nil {
		t.Fatalf("insert saved location: %v", err)
	}

	found, err := store.FindAutoStopSince(ctx, vehicleID, now.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("find auto stop: %v", err)
	}
	if found.ID != id {
		t.Fatalf("found stop %d, want %d", found.ID, id)
	}
	if found.DurationMinutes == nil || *found.DurationMinutes != 7 {
		t.Fatalf("unexpected duration: %v", found.DurationMinutes)
	}

	// Manual saves must not satisfy the auto-stop dedup lookup.
	if _, err := store.InsertSavedLocation(ctx, SavedLocation{
		VehicleID: vehicleID,
		Name:      "Depot",
		Latitude:  41.4,
		Longitude: 2.2,
		VisitType: VisitManual,
		Timestamp: now,
	}); err != nil {
		t.Fatalf("insert manual save: %v", err)
	}
	if _, err := store.FindAutoStopSince(ctx, vehicleID, now.Add(-5*time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for manual-only window, got %v", err)
	}

	name := "Warehouse"
	if err := store.UpdateSavedLocation(ctx, vehicleID, id, &name, nil); err != nil {
		t.Fatalf("update saved location: %v", err)
	}

	saved, err := store.ListSavedLocations(ctx, vehicleID)
	if err != nil {
		t.Fatalf("list saved locations: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("expected 2 saved locations, got %d", len(saved))
	}
	// Newest first.
	if saved[0].VisitType != VisitManual {
		t.Fatalf("expected manual save first, got %+v", saved[0])
	}
	if saved[1].Name != "Warehouse" {
		t.Fatalf("rename not applied: %+v", saved[1])
	}

	if err := store.UpdateSavedLocation(ctx, vehicleID, 9999, &name, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}

	if err := store.DeleteSavedLocation(ctx, vehicleID, id); err != nil {
		t.Fatalf("delete saved location: %v", err)
	}
	if err := store.DeleteSavedLocation(ctx, vehicleID, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
