package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ginmardoa-gif/gps-tracker-final/internal/detect"
	"github.com/ginmardoa-gif/gps-tracker-final/internal/storage"
)

// Report is one raw location report as delivered by a device.
// Coordinates arrive as json.Number so that presence and numeric
// coercion are decided here rather than at the transport boundary.
type Report struct {
	DeviceID  string      `json:"device_id"`
	Latitude  json.Number `json:"latitude"`
	Longitude json.Number `json:"longitude"`
	Speed     json.Number `json:"speed"`
}

type Result struct {
	VehicleName string
	LocationID  int64
}

// ValidationError marks a report that was rejected before anything was
// persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %s %s", e.Field, e.Reason)
}

type Ingestor struct {
	Store    *storage.Store
	Detector *detect.Detector
}

// Ingest validates and records one report, then runs stop detection for
// the same vehicle. The report is persisted first; a detection failure
// is logged and does not fail the ingestion. Lookup is by exact device
// id and matches inactive vehicles too.
func (i *Ingestor) Ingest(ctx context.Context, report Report) (Result, error) {
	if report.DeviceID == "" {
		return Result{}, &ValidationError{Field: "device_id", Reason: "is required"}
	}
	lat, err := requireNumber("latitude", report.Latitude)
	if err != nil {
		return Result{}, err
	}
	lon, err := requireNumber("longitude", report.Longitude)
	if err != nil {
		return Result{}, err
	}
	speed := 0.0
	if report.Speed != "" {
		speed, err = requireNumber("speed", report.Speed)
		if err != nil {
			return Result{}, err
		}
	}

	vehicle, err := i.Store.FindVehicleByDeviceID(ctx, report.DeviceID)
	if err != nil {
		return Result{}, fmt.Errorf("device %q: %w", report.DeviceID, err)
	}

	loc := storage.Location{
		VehicleID: vehicle.ID,
		Latitude:  lat,
		Longitude: lon,
		Speed:     speed,
		Timestamp: time.Now().UTC(),
	}
	id, err := i.Store.InsertLocation(ctx, loc)
	if err != nil {
		return Result{}, fmt.Errorf("persist report: %w", err)
	}
	loc.ID = id

	if i.Detector != nil {
		if err := i.Detector.Evaluate(ctx, vehicle.ID, loc); err != nil {
			log.Printf("stop detection for vehicle %d: %v", vehicle.ID, err)
		}
	}

	return Result{VehicleName: vehicle.Name, LocationID: id}, nil
}

func requireNumber(field string, value json.Number) (float64, error) {
	if value == "" {
		return 0, &ValidationError{Field: field, Reason: "is required"}
	}
	parsed, err := value.Float64()
	if err != nil {
		return 0, &ValidationError{Field: field, Reason: "must be numeric"}
	}
	return parsed, nil
}
