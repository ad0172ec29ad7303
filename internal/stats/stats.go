package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ginmardoa-gif/gps-tracker-final/internal/geo"
	"github.com/ginmardoa-gif/gps-tracker-final/internal/storage"
)

// Summary aggregates a vehicle's travel over a trailing window.
// DistanceKM is cumulative path length over consecutive points, not
// displacement.
type Summary struct {
	TotalPoints     int     `json:"total_points"`
	AvgSpeed        float64 `json:"avg_speed"`
	MaxSpeed        float64 `json:"max_speed"`
	DistanceKM      float64 `json:"distance_km"`
	TimePeriodHours int     `json:"time_period_hours"`
}

type Aggregator struct {
	Store *storage.Store
}

func (a *Aggregator) Summarize(ctx context.Context, vehicleID int64, windowHours int) (Summary, error) {
	since := time.Now().UTC().Add(-time.Duration(windowHours) * time.Hour)
	locations, err := a.Store.LocationsSince(ctx, vehicleID, since)
	if err != nil {
		return Summary{}, fmt.Errorf("load window: %w", err)
	}

	summary := Summary{TimePeriodHours: windowHours}
	if len(locations) == 0 {
		return summary, nil
	}

	// Pairwise summation needs stable chronological order even if the
	// source stops providing it.
	sort.Slice(locations, func(i, j int) bool {
		return locations[i].Timestamp.Before(locations[j].Timestamp)
	})

	var speedSum, distance float64
	for i, loc := range locations {
		speedSum += loc.Speed
		if loc.Speed > summary.MaxSpeed {
			summary.MaxSpeed = loc.Speed
		}
		if i > 0 {
			prev := locations[i-1]
			distance += geo.Distance(prev.Latitude, prev.Longitude, loc.Latitude, loc.Longitude)
		}
	}

	summary.TotalPoints = len(locations)
	summary.AvgSpeed = round2(speedSum / float64(len(locations)))
	summary.MaxSpeed = round2(summary.MaxSpeed)
	summary.DistanceKM = round2(distance)
	return summary, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
