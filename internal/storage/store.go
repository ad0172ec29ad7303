package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Visit types for saved locations.
const (
	VisitAutoDetected = "auto_detected"
	VisitManual       = "manual"
)

type Store struct {
	db *sql.DB
}

type Vehicle struct {
	ID       int64
	Name     string
	DeviceID string
	IsActive bool
}

// Location is one telemetry report. Rows are append-only; the timestamp
// is assigned by the server at ingestion time.
type Location struct {
	ID        int64
	VehicleID int64
	Latitude  float64
	Longitude float64
	Speed     float64
	Timestamp time.Time
}

// SavedLocation is a detected or manually saved stationary period.
// DurationMinutes is nil for manual saves. Only Name and Notes may
// change after creation.
type SavedLocation struct {
	ID              int64
	VehicleID       int64
	Name            string
	Latitude        float64
	Longitude       float64
	DurationMinutes *int
	VisitType       string
	Timestamp       time.Time
	Notes           string
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS vehicles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	device_id TEXT NOT NULL UNIQUE,
	is_active INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS locations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	vehicle_id INTEGER NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	speed REAL NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_locations_vehicle_ts ON locations (vehicle_id, ts);
CREATE TABLE IF NOT EXISTS saved_locations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	vehicle_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	duration_minutes INTEGER,
	visit_type TEXT NOT NULL,
	ts INTEGER NOT NULL,
	notes TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_saved_vehicle_ts ON saved_locations (vehicle_id, ts);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) CreateVehicle(ctx context.Context, name, deviceID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO vehicles (name, device_id, is_active)
VALUES (?, ?, 1)
`, name, deviceID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) CountVehicles(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM vehicles
`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// FindVehicleByDeviceID matches on the exact device identifier. The
// vehicle does not need to be active.
func (s *Store) FindVehicleByDeviceID(ctx context.Context, deviceID string) (Vehicle, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, device_id, is_active
FROM vehicles
WHERE device_id = ?
`, deviceID)
	var v Vehicle
	if err := row.Scan(&v.ID, &v.Name, &v.DeviceID, &v.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Vehicle{}, ErrNotFound
		}
		return Vehicle{}, err
	}
	return v, nil
}

func (s *Store) ListActiveVehicles(ctx context.Context) ([]Vehicle, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, device_id, is_active
FROM vehicles
WHERE is_active = 1
ORDER BY id
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []Vehicle
	for rows.Next() {
		var v Vehicle
		if err := rows.Scan(&v.ID, &v.Name, &v.DeviceID, &v.IsActive); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

func (s *Store) InsertLocation(ctx context.Context, loc Location) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO locations (vehicle_id, latitude, longitude, speed, ts)
VALUES (?, ?, ?, ?, ?)
`, loc.VehicleID, loc.Latitude, loc.Longitude, loc.Speed, loc.Timestamp.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LocationsSince returns reports at or after since, oldest first.
func (s *Store) LocationsSince(ctx context.Context, vehicleID int64, since time.Time) ([]Location, error) {
	return s.queryLocations(ctx, vehicleID, since, "ASC")
}

// RecentLocations returns reports at or after since, newest first.
func (s *Store) RecentLocations(ctx context.Context, vehicleID int64, since time.Time) ([]Location, error) {
	return s.queryLocations(ctx, vehicleID, since, "DESC")
}

func (s *Store) queryLocations(ctx context.Context, vehicleID int64, since time.Time, order string) ([]Location, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, vehicle_id, latitude, longitude, speed, ts
FROM locations
WHERE vehicle_id = ? AND ts >= ?
ORDER BY ts `+order+`, id `+order,
		vehicleID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

func (s *Store) LatestLocation(ctx context.Context, vehicleID int64) (Location, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, vehicle_id, latitude, longitude, speed, ts
FROM locations
WHERE vehicle_id = ?
ORDER BY ts DESC, id DESC
LIMIT 1
`, vehicleID)
	var loc Location
	var ts int64
	if err := row.Scan(&loc.ID, &loc.VehicleID, &loc.Latitude, &loc.Longitude, &loc.Speed, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Location{}, ErrNotFound
		}
		return Location{}, err
	}
	loc.Timestamp = time.Unix(ts, 0).UTC()
	return loc, nil
}

func (s *Store) InsertSavedLocation(ctx context.Context, sl SavedLocation) (int64, error) {
	var duration sql.NullInt64
	if sl.DurationMinutes != nil {
		duration = sql.NullInt64{Int64: int64(*sl.DurationMinutes), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO saved_locations (vehicle_id, name, latitude, longitude, duration_minutes, visit_type, ts, notes)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, sl.VehicleID, sl.Name, sl.Latitude, sl.Longitude, duration, sl.VisitType, sl.Timestamp.Unix(), sl.Notes)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FindAutoStopSince reports whether an auto-detected stop already exists
// in the trailing dedup window.
func (s *Store) FindAutoStopSince(ctx context.Context, vehicleID int64, since time.Time) (SavedLocation, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, vehicle_id, name, latitude, longitude, duration_minutes, visit_type, ts, notes
FROM saved_locations
WHERE vehicle_id = ? AND visit_type = ? AND ts >= ?
LIMIT 1
`, vehicleID, VisitAutoDetected, since.Unix())
	return scanSavedLocation(row)
}

func (s *Store) ListSavedLocations(ctx context.Context, vehicleID int64) ([]SavedLocation, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, vehicle_id, name, latitude, longitude, duration_minutes, visit_type, ts, notes
FROM saved_locations
WHERE vehicle_id = ?
ORDER BY ts DESC, id DESC
`, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var saved []SavedLocation
	for rows.Next() {
		sl, err := scanSavedLocation(rows)
		if err != nil {
			return nil, err
		}
		saved = append(saved, sl)
	}
	return saved, rows.Err()
}

// UpdateSavedLocation changes name and/or notes of a saved location.
// Nil fields are left untouched. Duration, visit type and timestamp are
// immutable once created.
func (s *Store) UpdateSavedLocation(ctx context.Context, vehicleID, id int64, name, notes *string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE saved_locations
SET name = COALESCE(?, name), notes = COALESCE(?, notes)
WHERE id = ? AND vehicle_id = ?
`, name, notes, id, vehicleID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSavedLocation(ctx context.Context, vehicleID, id int64) error {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM saved_locations
WHERE id = ? AND vehicle_id = ?
`, id, vehicleID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocation(row rowScanner) (Location, error) {
	var loc Location
	var ts int64
	if err := row.Scan(&loc.ID, &loc.VehicleID, &loc.Latitude, &loc.Longitude, &loc.Speed, &ts); err != nil {
		return Location{}, err
	}
	loc.Timestamp = time.Unix(ts, 0).UTC()
	return loc, nil
}

func scanSavedLocation(row rowScanner) (SavedLocation, error) {
	var sl SavedLocation
	var ts int64
	var duration sql.NullInt64
	err := row.Scan(&sl.ID, &sl.VehicleID, &sl.Name, &sl.Latitude, &sl.Longitude, &duration, &sl.VisitType, &ts, &sl.Notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SavedLocation{}, ErrNotFound
		}
		return SavedLocation{}, err
	}
	if duration.Valid {
		minutes := int(duration.Int64)
		sl.DurationMinutes = &minutes
	}
	sl.Timestamp = time.Unix(ts, 0).UTC()
	return sl, nil
}
