package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ginmardoa-gif/gps-tracker-final/internal/storage"
)

// Record is one exported track point.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
}

type Exporter struct {
	Store *storage.Store
}

// Records returns a vehicle's track over the trailing window in
// chronological order.
func (e *Exporter) Records(ctx context.Context, vehicleID int64, windowHours int) ([]Record, error) {
	since := time.Now().UTC().Add(-time.Duration(windowHours) * time.Hour)
	locations, err := e.Store.LocationsSince(ctx, vehicleID, since)
	if err != nil {
		return nil, fmt.Errorf("load window: %w", err)
	}

	records := make([]Record, 0, len(locations))
	for _, loc := range locations {
		records = append(records, Record{
			Timestamp: loc.Timestamp,
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Speed:     loc.Speed,
		})
	}
	return records, nil
}

// WriteCSV renders records as delimited text with a fixed header row.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Timestamp", "Latitude", "Longitude", "Speed"}); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatFloat(r.Latitude, 'f', -1, 64),
			strconv.FormatFloat(r.Longitude, 'f', -1, 64),
			strconv.FormatFloat(r.Speed, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
