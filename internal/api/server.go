package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"fleet-ops-dashboard/internal/chart"
	"fleet-ops-dashboard/internal/engine"
	"fleet-ops-dashboard/internal/mapview"
	"fleet-ops-dashboard/internal/models"
	"fleet-ops-dashboard/internal/rankings"
	"fleet-ops-dashboard/internal/routes"
	"fleet-ops-dashboard/internal/store"
	"fleet-ops-dashboard/internal/ws"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
)

// Backend is the part of the telemetry backend the dashboard proxies
type Backend interface {
	rankings.Fetcher
	Query(ctx context.Context, question string) (*models.QueryResult, error)
	Spike(ctx context.Context, vehicleID string) error
}

// HealthReporter reports the state of the poll loop
type HealthReporter interface {
	Health() engine.Health
}

// Deps are the components the API serves. Layer, Scenes, Chart, Hub and
// Health are optional.
type Deps struct {
	Store     *store.Store
	Backend   Backend
	Layer     *mapview.Layer
	Scenes    *mapview.SceneFactory
	Container string
	Chart     *chart.Buffer
	Hub       *ws.Hub
	Health    HealthReporter
	Timeout   time.Duration
}

// Server represents the API server
type Server struct {
	deps   Deps
	router *mux.Router
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	if deps.Timeout <= 0 {
		deps.Timeout = 5 * time.Second
	}
	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Fleet state
	s.router.HandleFunc("/api/v1/fleet", s.handleFleet).Methods("GET")
	s.router.HandleFunc("/api/v1/stats", s.handleStats).Methods("GET")
	s.router.HandleFunc("/api/v1/anomalies", s.handleAnomalies).Methods("GET")
	s.router.HandleFunc("/api/v1/routes", s.handleRoutes).Methods("GET")

	// Map
	s.router.HandleFunc("/api/v1/map/scene", s.handleScene).Methods("GET")
	s.router.HandleFunc("/api/v1/map/filter", s.handleFilter).Methods("PUT")
	s.router.HandleFunc("/api/v1/map/activate", s.handleActivate).Methods("POST")
	s.router.HandleFunc("/api/v1/selection", s.handleSelect).Methods("PUT")
	s.router.HandleFunc("/api/v1/selection", s.handleClearSelection).Methods("DELETE")

	// Chart
	s.router.HandleFunc("/api/v1/chart", s.handleChart).Methods("GET")
	s.router.HandleFunc("/api/v1/chart.png", s.handleChartPNG).Methods("GET")

	// Backend proxies
	s.router.HandleFunc("/api/v1/rankings", s.handleRankings).Methods("GET")
	s.router.HandleFunc("/api/v1/query", s.handleQuery).Methods("POST")
	s.router.HandleFunc("/api/v1/spike", s.handleSpike).Methods("POST")

	if s.deps.Hub != nil {
		s.router.Handle("/ws", ws.HandleWebSocket(s.deps.Hub)).Methods("GET")
	}

	// Add middleware
	s.router.Use(loggingMiddleware)
	s.router.Use(jsonMiddleware)
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped in the CORS policy of the dashboard
func (s *Server) Handler() http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	})(s.router)
}

// Middleware
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Response helpers
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *meta       `json:"meta,omitempty"`
}

type meta struct {
	Total    int    `json:"total,omitempty"`
	Version  uint64 `json:"version,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
	Stale    bool   `json:"stale,omitempty"`
	QueryMs  int64  `json:"query_ms,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

func respondWithMeta(w http.ResponseWriter, data interface{}, m *meta) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data, Meta: m})
}

func (s *Server) stale() bool {
	return s.deps.Health != nil && s.deps.Health.Health().Stale
}

// Handlers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{"status": "healthy"}
	if s.deps.Health != nil {
		h := s.deps.Health.Health()
		if h.Stale {
			body["status"] = "degraded"
		}
		body["poll"] = h
	}
	if s.deps.Hub != nil {
		body["clients"] = s.deps.Hub.ClientCount()
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleFleet(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Store.State()
	respondWithMeta(w, st.Snapshot, &meta{Total: st.Snapshot.Len(), Version: st.Version, Stale: s.stale()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Store.State()
	respondWithMeta(w, st.Stats, &meta{Version: st.Version, Stale: s.stale()})
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Store.State()
	severity := models.Severity(strings.ToUpper(r.URL.Query().Get("severity")))

	out := make([]models.AnomalyEvent, 0, len(st.Anomalies))
	// newest first, as the alert list shows them
	for i := len(st.Anomalies) - 1; i >= 0; i-- {
		ev := st.Anomalies[i]
		if severity != "" && ev.Severity != severity {
			continue
		}
		out = append(out, ev)
	}
	respondWithMeta(w, out, &meta{Total: len(out), Version: st.Version})
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"options":     routes.FilterOptions(),
		"routes":      routes.Visible(routes.AllRoutes),
		"checkpoints": routes.Checkpoints(routes.AllRoutes),
	})
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	if s.deps.Layer == nil || s.deps.Scenes == nil {
		respondError(w, http.StatusServiceUnavailable, "map layer not configured")
		return
	}
	scene, ok := s.deps.Scenes.Scene(s.deps.Container)
	if !ok || s.deps.Layer.State() != mapview.Mounted {
		respondError(w, http.StatusServiceUnavailable, mapview.ErrNotMounted.Error())
		return
	}
	plan := s.deps.Layer.Plan()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"filter":  s.deps.Layer.Filter(),
		"scene":   scene.View(),
		"skipped": plan.Skipped,
		"redraws": s.deps.Layer.Redraws(),
	})
}

type filterRequest struct {
	Route string `json:"route"`
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	if s.deps.Layer == nil {
		respondError(w, http.StatusServiceUnavailable, "map layer not configured")
		return
	}
	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.deps.Layer.SetFilter(req.Route); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"filter": s.deps.Layer.Filter()})
}

type selectRequest struct {
	VehicleID string `json:"vehicle_id"`
}

func decodeSelect(r *http.Request) (string, error) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", errors.New("invalid JSON")
	}
	if strings.TrimSpace(req.VehicleID) == "" {
		return "", errors.New("vehicle_id is required")
	}
	return req.VehicleID, nil
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Layer == nil {
		respondError(w, http.StatusServiceUnavailable, "map layer not configured")
		return
	}
	id, err := decodeSelect(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch err := s.deps.Layer.Activate(id); {
	case errors.Is(err, mapview.ErrUnknownMarker):
		respondError(w, http.StatusNotFound, err.Error())
	case err != nil:
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondJSON(w, http.StatusOK, map[string]string{"selected_vehicle_id": s.deps.Store.Selected()})
	}
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	id, err := decodeSelect(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.deps.Store.Select(id)
	respondJSON(w, http.StatusOK, map[string]string{"selected_vehicle_id": s.deps.Store.Selected()})
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	s.deps.Store.ClearSelection()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chart == nil {
		respondError(w, http.StatusServiceUnavailable, "chart not configured")
		return
	}
	samples := s.deps.Chart.Samples()
	respondWithMeta(w, samples, &meta{Total: len(samples)})
}

func (s *Server) handleChartPNG(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chart == nil {
		respondError(w, http.StatusServiceUnavailable, "chart not configured")
		return
	}
	samples := s.deps.Chart.Samples()
	if len(samples) < 2 {
		respondError(w, http.StatusConflict, chart.ErrTooFewSamples.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := chart.RenderPNG(w, samples, 960, 360); err != nil {
		log.Printf("❌ Failed to render chart: %v", err)
	}
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.deps.Timeout)
	defer cancel()

	start := time.Now()
	res := rankings.Fetch(ctx, s.deps.Backend, s.deps.Store.State().Snapshot)
	respondWithMeta(w, res.Entries, &meta{
		Total:    len(res.Entries),
		Degraded: res.Degraded,
		QueryMs:  time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		respondError(w, http.StatusBadRequest, "question is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.Timeout)
	defer cancel()

	start := time.Now()
	result, err := s.deps.Backend.Query(ctx, req.Question)
	var qerr *models.QueryServiceError
	if errors.As(err, &qerr) {
		// the failure is shown in place of an answer
		respondError(w, http.StatusBadGateway, qerr.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithMeta(w, result, &meta{QueryMs: time.Since(start).Milliseconds()})
}

func (s *Server) handleSpike(w http.ResponseWriter, r *http.Request) {
	id, err := decodeSelect(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.Timeout)
	defer cancel()

	if err := s.deps.Backend.Spike(ctx, id); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"vehicle_id": id})
}
