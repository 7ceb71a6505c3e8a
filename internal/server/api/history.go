package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/minghan/handwave/internal/store"
)

// DefaultHistoryLimit bounds /api/history responses when no limit is given.
const DefaultHistoryLimit = 50

// HistoryHandler serves the command history from the store.
type HistoryHandler struct {
	store *store.Store
}

// NewHistoryHandler creates a new HistoryHandler with the given store.
func NewHistoryHandler(s *store.Store) *HistoryHandler {
	return &HistoryHandler{store: s}
}

type historyEntry struct {
	BatchID   string `json:"batch_id"`
	DeviceID  string `json:"device_id"`
	Action    string `json:"action"`
	Delta     int    `json:"delta,omitempty"`
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

type historyResponse struct {
	Entries []historyEntry `json:"entries"`
}

// ServeHTTP handles GET /api/history?limit=N.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.store.CommandLog().Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read command history")
		return
	}

	response := historyResponse{
		Entries: make([]historyEntry, 0, len(entries)),
	}
	for _, e := range entries {
		response.Entries = append(response.Entries, historyEntry{
			BatchID:   e.BatchID,
			DeviceID:  e.DeviceID,
			Action:    e.Action,
			Delta:     e.Delta,
			OK:        e.OK,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, response)
}
