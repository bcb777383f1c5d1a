package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Handler handles HTTP requests.
type Handler struct {
	store   *Store
	refresh func() error
}

// NewHandler creates a new HTTP handler. The refresh callback forces
// an immediate feed poll; pass nil to disable /api/refresh.
func NewHandler(store *Store, refresh func() error) *Handler {
	return &Handler{store: store, refresh: refresh}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/live", h.handleLive).Methods("GET")
	r.HandleFunc("/api/schedule", h.handleSchedule).Methods("GET")
	r.HandleFunc("/api/train/{id}", h.handleTrain).Methods("GET")
	r.HandleFunc("/api/search", h.handleSearch).Methods("GET")
	r.HandleFunc("/api/refresh", h.handleRefresh).Methods("GET")
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
}

// Response wraps API responses.
type Response struct {
	Success     bool        `json:"success"`
	Data        interface{} `json:"data,omitempty"`
	Count       int         `json:"count,omitempty"`
	LastUpdated string      `json:"lastUpdated,omitempty"`
	Error       string      `json:"error,omitempty"`
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	trains := h.store.Live()
	h.writeJSON(w, Response{
		Success:     true,
		Data:        trains,
		Count:       len(trains),
		LastUpdated: h.lastUpdated(),
	})
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	sched := h.store.Schedule()
	if sched.Empty() {
		h.writeError(w, "schedule not loaded", http.StatusServiceUnavailable)
		return
	}
	entries := sched.Entries()
	h.writeJSON(w, Response{
		Success: true,
		Data:    entries,
		Count:   len(entries),
	})
}

func (h *Handler) handleTrain(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	instances := h.store.Train(id)
	if len(instances) == 0 {
		h.writeError(w, "train not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, Response{
		Success:     true,
		Data:        instances,
		Count:       len(instances),
		LastUpdated: h.lastUpdated(),
	})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, "missing q parameter", http.StatusBadRequest)
		return
	}
	matches := h.store.Search(query)
	h.writeJSON(w, Response{
		Success:     true,
		Data:        matches,
		Count:       len(matches),
		LastUpdated: h.lastUpdated(),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if h.refresh == nil {
		h.writeError(w, "refresh not available", http.StatusNotImplemented)
		return
	}
	if err := h.refresh(); err != nil {
		h.writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.writeJSON(w, Response{Success: true, LastUpdated: h.lastUpdated()})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, Response{Success: true, LastUpdated: h.lastUpdated()})
}

func (h *Handler) lastUpdated() string {
	last := h.store.LastUpdate()
	if last.IsZero() {
		return ""
	}
	return last.Format(time.RFC3339)
}

func (h *Handler) writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(Response{Success: false, Error: msg})
}
