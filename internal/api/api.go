package api

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/tado-setpoint-exporter/db"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/model"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/projector"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/scheduler"
)

type Server struct {
	db     *sql.DB
	status *Status
}

type StatusResponse struct {
	At                  time.Time `json:"at"`
	LastZonesRefresh    time.Time `json:"last_zones_refresh"`
	LastScheduleRefresh time.Time `json:"last_schedule_refresh"`
	Zones               int       `json:"zones"`
}

type ZoneResponse struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Normalized  string   `json:"normalized_name"`
	Blocks      int      `json:"blocks"`
	SetpointNow *float64 `json:"setpoint_now"`
	Setpoint30m *float64 `json:"setpoint_30m"`
	Setpoint60m *float64 `json:"setpoint_60m"`
}

type HistoryResponse struct {
	RecordedAt  time.Time `json:"recorded_at"`
	SetpointNow *float64  `json:"setpoint_now"`
	Setpoint30m *float64  `json:"setpoint_30m"`
	Setpoint60m *float64  `json:"setpoint_60m"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer serves status from the loop snapshot and history from database, which may be nil.
func NewServer(database *sql.DB, status *Status) *Server {
	return &Server{
		db:     database,
		status: status,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.getStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/zones", s.getZones).Methods(http.MethodGet)
	r.HandleFunc("/api/zones/{zone}", s.getZone).Methods(http.MethodGet)
	r.HandleFunc("/api/zones/{zone}/schedule", s.getZoneSchedule).Methods(http.MethodGet)
	r.HandleFunc("/api/zones/{zone}/history", s.getZoneHistory).Methods(http.MethodGet)

	return r
}

func (s *Server) Start(port int) error {
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	handler := handlers.LoggingHandler(log.Logger, cors(s.Router()))

	addr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Info().Str("address", addr).Msg("Starting REST API server")

	return http.ListenAndServe(addr, handler)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) snapshot(w http.ResponseWriter) (scheduler.Snapshot, bool) {
	snap, ok := s.status.Snapshot()
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, "No data yet")
	}
	return snap, ok
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, StatusResponse{
		At:                  snap.At,
		LastZonesRefresh:    snap.LastZonesRefresh,
		LastScheduleRefresh: snap.LastScheduleRefresh,
		Zones:               len(snap.Zones),
	})
}

func (s *Server) getZones(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	out := make([]ZoneResponse, 0, len(snap.Zones))
	for _, z := range snap.Zones {
		out = append(out, toZoneResponse(z))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getZone(w http.ResponseWriter, r *http.Request) {
	z, ok := s.findZone(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, toZoneResponse(z))
}

func (s *Server) getZoneSchedule(w http.ResponseWriter, r *http.Request) {
	z, ok := s.findZone(w, r)
	if !ok {
		return
	}
	schedule := z.Schedule
	if schedule == nil {
		schedule = model.Schedule{}
	}
	s.writeJSON(w, http.StatusOK, schedule)
}

func (s *Server) getZoneHistory(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeError(w, http.StatusNotFound, "History is not enabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	zone := model.Normalize(mux.Vars(r)["zone"])
	records, err := db.GetSetpointHistory(s.db, zone, limit)
	if err != nil {
		log.Error().Err(err).Str("zone", zone).Msg("Failed to read setpoint history")
		s.writeError(w, http.StatusInternalServerError, "Failed to read history")
		return
	}

	out := make([]HistoryResponse, 0, len(records))
	for _, rec := range records {
		h := HistoryResponse{RecordedAt: rec.RecordedAt}
		if rec.HasData {
			h.SetpointNow, h.Setpoint30m, h.Setpoint60m = ptr(rec.Now), ptr(rec.In30), ptr(rec.In60)
		}
		out = append(out, h)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) findZone(w http.ResponseWriter, r *http.Request) (scheduler.ZoneStatus, bool) {
	snap, ok := s.snapshot(w)
	if !ok {
		return scheduler.ZoneStatus{}, false
	}
	name := model.Normalize(mux.Vars(r)["zone"])
	for _, z := range snap.Zones {
		if z.Normalized == name {
			return z, true
		}
	}
	s.writeError(w, http.StatusNotFound, fmt.Sprintf("Zone %s not found", name))
	return scheduler.ZoneStatus{}, false
}

func toZoneResponse(z scheduler.ZoneStatus) ZoneResponse {
	resp := ZoneResponse{
		ID:         z.ID,
		Name:       z.Name,
		Normalized: z.Normalized,
		Blocks:     len(z.Schedule),
	}
	if z.HasData {
		resp.SetpointNow = ptr(z.Projection.Now)
		resp.Setpoint30m = ptr(z.Projection.In30)
		resp.Setpoint60m = ptr(z.Projection.In60)
	}
	return resp
}

// ptr rounds to the published precision.
func ptr(v float64) *float64 {
	rounded, _ := strconv.ParseFloat(projector.Format(v), 64)
	return &rounded
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
