package export

import (
	"context"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ginmardoa-gif/gps-tracker-final/internal/storage"
)

func TestRecordsAndCSV(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	vehicleID, err := store.CreateVehicle(ctx, "Vehicle 1", "device_1")
	if err != nil {
		t.Fatalf("create vehicle: %v", err)
	}

	now := time.Now().UTC()
	// Inserted newest first; the export must come back chronological.
	for i, off := range []time.Duration{-time.Minute, -3 * time.Minute, -2 * time.Minute} {
		_, err := store.InsertLocation(ctx, storage.Location{
			VehicleID: vehicleID,
			Latitude:  41.40 + float64(i)*0.01,
			Longitude: 2.17,
			Speed:     float64(i),
			Timestamp: now.Add(off),
		})
		if err != nil {
			t.Fatalf("insert location: %v", err)
		}
	}

	exporter := &Exporter{Store: store}
	records, err := exporter.Records(ctx, vehicleID, 24)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].Timestamp.Before(records[i-1].Timestamp) {
			t.Fatalf("records not chronological at %d: %v before %v", i, records[i].Timestamp, records[i-1].Timestamp)
		}
	}

	var sb strings.Builder
	if err := WriteCSV(&sb, records); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(sb.String())).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}
	header := strings.Join(rows[0], ",")
	if header != "Timestamp,Latitude,Longitude,Speed" {
		t.Fatalf("unexpected header: %q", header)
	}
	if _, err := time.Parse(time.RFC3339, rows[1][0]); err != nil {
		t.Fatalf("timestamp column not RFC3339: %v", err)
	}
}
