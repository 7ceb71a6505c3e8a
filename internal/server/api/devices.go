// Package api provides HTTP API handlers for the Handwave device manager.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/minghan/handwave/internal/device"
)

// DeviceHandler handles HTTP requests for device resources.
type DeviceHandler struct {
	cache      *device.StatusCache
	dispatcher *device.Dispatcher
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(cache *device.StatusCache, dispatcher *device.Dispatcher) *DeviceHandler {
	return &DeviceHandler{cache: cache, dispatcher: dispatcher}
}

// ServeHTTP implements the http.Handler interface and routes requests to
// appropriate methods.
func (h *DeviceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/devices, /api/devices/{id},
	// /api/devices/{id}/power, /api/devices/{id}/brightness
	path := strings.TrimPrefix(r.URL.Path, "/api/devices")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	id, action, _ := strings.Cut(path, "/")

	switch action {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.get(w, r, id)
	case "power":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.power(w, r, id)
	case "brightness":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.brightness(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "Unknown device action")
	}
}

// Request and response types

type deviceResponse struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Kind          string       `json:"kind"`
	Addr          string       `json:"addr"`
	State         device.State `json:"state"`
	Online        bool         `json:"online"`
	LastRefreshed string       `json:"last_refreshed,omitempty"`
}

type listDevicesResponse struct {
	Devices []deviceResponse `json:"devices"`
}

type powerRequest struct {
	On bool `json:"on"`
}

type brightnessRequest struct {
	Delta int `json:"delta"`
}

type dispatchResponse struct {
	BatchID  string                    `json:"batch_id"`
	Outcomes map[string]device.Outcome `json:"outcomes"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toResponse(d device.Device, status device.Status) deviceResponse {
	resp := deviceResponse{
		ID:     d.ID,
		Name:   d.Name,
		Kind:   string(d.Kind),
		Addr:   d.Addr,
		State:  status.State,
		Online: status.Online,
	}
	if !status.LastRefreshed.IsZero() {
		resp.LastRefreshed = status.LastRefreshed.Format(time.RFC3339)
	}
	return resp
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// list handles GET /api/devices. States come from the cache without
// forcing a refresh.
func (h *DeviceHandler) list(w http.ResponseWriter, r *http.Request) {
	statuses := h.cache.All()

	response := listDevicesResponse{
		Devices: make([]deviceResponse, 0, len(statuses)),
	}

	for _, d := range h.cache.Devices() {
		response.Devices = append(response.Devices, toResponse(d, statuses[d.ID]))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/devices/{id}. Unlike list, a stale entry triggers
// a refresh before responding.
func (h *DeviceHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	status, err := h.cache.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrUnknownDevice) {
			writeError(w, http.StatusNotFound, "Device not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to read device status")
		return
	}

	for _, d := range h.cache.Devices() {
		if d.ID == id {
			writeJSON(w, http.StatusOK, toResponse(d, status))
			return
		}
	}
	writeError(w, http.StatusNotFound, "Device not found")
}

// power handles POST /api/devices/{id}/power.
func (h *DeviceHandler) power(w http.ResponseWriter, r *http.Request, id string) {
	var req powerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	action := device.ActionPowerOff
	if req.On {
		action = device.ActionPowerOn
	}

	h.dispatch(w, r, device.NewBatch([]string{id}, action, 0))
}

// brightness handles POST /api/devices/{id}/brightness.
func (h *DeviceHandler) brightness(w http.ResponseWriter, r *http.Request, id string) {
	var req brightnessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Delta == 0 {
		writeError(w, http.StatusBadRequest, "Delta must be non-zero")
		return
	}

	h.dispatch(w, r, device.NewBatch([]string{id}, device.ActionBrightnessDelta, req.Delta))
}

func (h *DeviceHandler) dispatch(w http.ResponseWriter, r *http.Request, batch device.CommandBatch) {
	outcomes := h.dispatcher.Dispatch(r.Context(), batch)

	writeJSON(w, http.StatusOK, dispatchResponse{
		BatchID:  batch.ID,
		Outcomes: outcomes,
	})
}
