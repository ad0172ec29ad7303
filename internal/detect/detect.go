package detect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ginmardoa-gif/gps-tracker-final/internal/geo"
	"github.com/ginmardoa-gif/gps-tracker-final/internal/storage"
)

// DefaultStopName labels stops created by the detector.
const DefaultStopName = "Auto-detected Stop"

// Options are the detection policy parameters.
type Options struct {
	// Window is the trailing slice of history re-scanned on every point.
	// It doubles as the dedup interval for previously recorded stops.
	Window time.Duration
	// MinSamples is the fewest reports inside the window that can
	// support a stop conclusion.
	MinSamples int
	// MaxDistanceKM is the stationarity threshold between the oldest
	// windowed report and the current one.
	MaxDistanceKM float64
	// MinDuration is the shortest stationary period worth recording.
	MinDuration time.Duration
}

func DefaultOptions() Options {
	return Options{
		Window:        10 * time.Minute,
		MinSamples:    5,
		MaxDistanceKM: 0.05,
		MinDuration:   5 * time.Minute,
	}
}

// Detector re-evaluates a vehicle's trailing window on every ingested
// point and records at most one auto-detected stop per window. It keeps
// no state between calls beyond the persisted history itself, so a
// restart loses nothing.
type Detector struct {
	Store   *storage.Store
	Options Options

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// Evaluate runs the stop heuristic for one newly ingested report. The
// only side effect is at most one saved-location insert. Evaluations
// for the same vehicle are serialized so the dedup check-then-insert
// cannot race; different vehicles proceed in parallel.
func (d *Detector) Evaluate(ctx context.Context, vehicleID int64, current storage.Location) error {
	lock := d.vehicleLock(vehicleID)
	lock.Lock()
	defer lock.Unlock()

	since := time.Now().UTC().Add(-d.Options.Window)
	window, err := d.Store.RecentLocations(ctx, vehicleID, since)
	if err != nil {
		return fmt.Errorf("load window: %w", err)
	}
	if len(window) < d.Options.MinSamples {
		return nil
	}

	oldest := window[len(window)-1]
	dist := geo.Distance(oldest.Latitude, oldest.Longitude, current.Latitude, current.Longitude)
	if dist >= d.Options.MaxDistanceKM {
		return nil
	}

	elapsed := current.Timestamp.Sub(oldest.Timestamp)
	if elapsed < d.Options.MinDuration {
		return nil
	}

	if _, err := d.Store.FindAutoStopSince(ctx, vehicleID, since); err == nil {
		// A stop is already recorded inside the dedup window.
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("dedup check: %w", err)
	}

	minutes := int(elapsed.Minutes())
	_, err = d.Store.InsertSavedLocation(ctx, storage.SavedLocation{
		VehicleID:       vehicleID,
		Name:            DefaultStopName,
		Latitude:        current.Latitude,
		Longitude:       current.Longitude,
		DurationMinutes: &minutes,
		VisitType:       storage.VisitAutoDetected,
		// The stop started when the oldest windowed sample was seen,
		// not when it was detected.
		Timestamp: oldest.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("record stop: %w", err)
	}
	return nil
}

func (d *Detector) vehicleLock(vehicleID int64) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locks == nil {
		d.locks = make(map[int64]*sync.Mutex)
	}
	lock, ok := d.locks[vehicleID]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[vehicleID] = lock
	}
	return lock
}
