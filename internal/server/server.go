// Package server provides the local HTTP server for the Handwave device manager.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minghan/handwave/internal/device"
	"github.com/minghan/handwave/internal/server/api"
	"github.com/minghan/handwave/internal/store"
)

// Config holds the server configuration.
type Config struct {
	Cache      *device.StatusCache
	Dispatcher *device.Dispatcher
	Store      *store.Store
	Refresh    func() // manual refresh action, may be nil
}

// Server represents the HTTP server for the Handwave application.
type Server struct {
	config Config
	mux    *http.ServeMux
	events *EventsHandler
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		events: NewEventsHandler(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.Handle("/api/events", s.events)

	if s.config.Cache != nil {
		deviceHandler := api.NewDeviceHandler(s.config.Cache, s.config.Dispatcher)
		s.mux.Handle("/api/devices", deviceHandler)
		s.mux.Handle("/api/devices/", deviceHandler)
	}

	if s.config.Store != nil {
		historyHandler := api.NewHistoryHandler(s.config.Store)
		s.mux.Handle("/api/history", historyHandler)
	}
}

// Events returns the websocket event hub, used by the application to
// broadcast gesture and dispatch events.
func (s *Server) Events() *EventsHandler {
	return s.events
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// handleStats handles GET requests to /api/stats and reports the cache's
// hit/miss counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.config.Cache.Stats()

	var hitRate float64
	if total := stats.Hits + stats.Misses; total > 0 {
		hitRate = float64(stats.Hits) / float64(total)
	}

	response := map[string]interface{}{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"hit_rate": hitRate,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleRefresh handles POST requests to /api/refresh, triggering an
// immediate refresh of every device.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.config.Refresh != nil {
		s.config.Refresh()
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
