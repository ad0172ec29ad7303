package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/ginmardoa-gif/gps-tracker-final/internal/export"
	"github.com/ginmardoa-gif/gps-tracker-final/internal/ingest"
	"github.com/ginmardoa-gif/gps-tracker-final/internal/stats"
	"github.com/ginmardoa-gif/gps-tracker-final/internal/storage"
)

type Server struct {
	store        *storage.Store
	ingestor     *ingest.Ingestor
	aggregator   *stats.Aggregator
	exporter     *export.Exporter
	defaultHours int
}

func NewServer(store *storage.Store, ingestor *ingest.Ingestor, aggregator *stats.Aggregator, exporter *export.Exporter, defaultHours int) *Server {
	if defaultHours <= 0 {
		defaultHours = 24
	}
	return &Server{
		store:        store,
		ingestor:     ingestor,
		aggregator:   aggregator,
		exporter:     exporter,
		defaultHours: defaultHours,
	}
}

// Routes builds the API router with CORS applied to every route.
func (s *Server) Routes(allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.Get("/api/health", s.handleHealth)
	r.Post("/api/gps", s.handleGPS)
	r.Get("/api/vehicles", s.handleListVehicles)
	r.Route("/api/vehicles/{vehicleID}", func(r chi.Router) {
		r.Get("/location", s.handleLatestLocation)
		r.Get("/history", s.handleHistory)
		r.Get("/saved-locations", s.handleListSavedLocations)
		r.Post("/saved-locations", s.handleCreateSavedLocation)
		r.Put("/saved-locations/{locationID}", s.handleUpdateSavedLocation)
		r.Delete("/saved-locations/{locationID}", s.handleDeleteSavedLocation)
		r.Get("/export", s.handleExport)
		r.Get("/stats", s.handleStats)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "GPS Tracker API is running",
	})
}

func (s *Server) handleGPS(w http.ResponseWriter, r *http.Request) {
	var report ingest.Report
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	result, err := s.ingestor.Ingest(r.Context(), report)
	if err != nil {
		var verr *ingest.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
		case errors.Is(err, storage.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "vehicle not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to record location"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":     "GPS data received",
		"vehicle":     result.VehicleName,
		"location_id": result.LocationID,
	})
}

type vehicleResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	DeviceID string `json:"device_id"`
	IsActive bool   `json:"is_active"`
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.store.ListActiveVehicles(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list vehicles"})
		return
	}

	out := make([]vehicleResponse, 0, len(vehicles))
	for _, v := range vehicles {
		out = append(out, vehicleResponse{ID: v.ID, Name: v.Name, DeviceID: v.DeviceID, IsActive: v.IsActive})
	}
	writeJSON(w, http.StatusOK, out)
}

type locationResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Timestamp string  `json:"timestamp"`
}

func (s *Server) handleLatestLocation(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := s.vehicleID(w, r)
	if !ok {
		return
	}

	loc, err := s.store.LatestLocation(r.Context(), vehicleID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no location data"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load location"})
		return
	}

	writeJSON(w, http.StatusOK, locationResponse{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Speed:     loc.Speed,
		Timestamp: loc.Timestamp.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := s.vehicleID(w, r)
	if !ok {
		return
	}
	hours, ok := s.hoursParam(w, r)
	if !ok {
		return
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	locations, err := s.store.LocationsSince(r.Context(), vehicleID, since)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load history"})
		return
	}

	out := make([]locationResponse, 0, len(locations))
	for _, loc := range locations {
		out = append(out, locationResponse{
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Speed:     loc.Speed,
			Timestamp: loc.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type savedLocationResponse struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	DurationMinutes *int    `json:"stop_duration_minutes"`
	VisitType       string  `json:"visit_type"`
	Timestamp       string  `json:"timestamp"`
	Notes           string  `json:"notes"`
}

func (s *Server) handleListSavedLocations(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := s.vehicleID(w, r)
	if !ok {
		return
	}

	saved, err := s.store.ListSavedLocations(r.Context(), vehicleID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load saved locations"})
		return
	}

	out := make([]savedLocationResponse, 0, len(saved))
	for _, sl := range saved {
		out = append(out, savedLocationResponse{
			ID:              sl.ID,
			Name:            sl.Name,
			Latitude:        sl.Latitude,
			Longitude:       sl.Longitude,
			DurationMinutes: sl.DurationMinutes,
			VisitType:       sl.VisitType,
			Timestamp:       sl.Timestamp.UTC().Format(time.RFC3339),
			Notes:           sl.Notes,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type createSavedLocationRequest struct {
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Notes     string   `json:"notes"`
}

func (s *Server) handleCreateSavedLocation(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := s.vehicleID(w, r)
	if !ok {
		return
	}

	var req createSavedLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "latitude and longitude are required"})
		return
	}
	name := req.Name
	if name == "" {
		name = "Saved Location"
	}

	id, err := s.store.InsertSavedLocation(r.Context(), storage.SavedLocation{
		VehicleID: vehicleID,
		Name:      name,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		VisitType: storage.VisitManual,
		Timestamp: time.Now().UTC(),
		Notes:     req.Notes,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save location"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Location saved", "id": id})
}

type updateSavedLocationRequest struct {
	Name  *string `json:"name"`
	Notes *string `json:"notes"`
}

func (s *Server) handleUpdateSavedLocation(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := s.vehicleID(w, r)
	if !ok {
		return
	}
	locationID, ok := s.pathID(w, r, "locationID")
	if !ok {
		return
	}

	var req updateSavedLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	if err := s.store.UpdateSavedLocation(r.Context(), vehicleID, locationID, req.Name, req.Notes); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "location not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update location"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Location updated", "id": locationID})
}

func (s *Server) handleDeleteSavedLocation(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := s.vehicleID(w, r)
	if !ok {
		return
	}
	locationID, ok := s.pathID(w, r, "locationID")
	if !ok {
		return
	}

	if err := s.store.DeleteSavedLocation(r.Context(), vehicleID, locationID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "location not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete location"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Location deleted"})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := s.vehicleID(w, r)
	if !ok {
		return
	}
	hours, ok := s.hoursParam(w, r)
	if !ok {
		return
	}

	records, err := s.exporter.Records(r.Context(), vehicleID, hours)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to export data"})
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=vehicle_%d_data.csv", vehicleID))
		if err := export.WriteCSV(w, records); err != nil {
			// Headers are already out; nothing useful left to send.
			return
		}
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := s.vehicleID(w, r)
	if !ok {
		return
	}
	hours, ok := s.hoursParam(w, r)
	if !ok {
		return
	}

	summary, err := s.aggregator.Summarize(r.Context(), vehicleID, hours)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to compute stats"})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) vehicleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return s.pathID(w, r, "vehicleID")
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (s *Server) hoursParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	value := r.URL.Query().Get("hours")
	if value == "" {
		return s.defaultHours, true
	}
	hours, err := strconv.Atoi(value)
	if err != nil || hours <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "hours must be a positive integer"})
		return 0, false
	}
	return hours, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
