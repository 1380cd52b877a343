package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/crab-wise/tryst-scraper/internal/entity"
	"github.com/crab-wise/tryst-scraper/internal/usecase"
)

// StatusSource exposes the live run state. The pipeline satisfies it.
type StatusSource interface {
	Phase() usecase.Phase
	Snapshot() entity.ProgressSnapshot
}

type Handler struct {
	source StatusSource
}

func NewHandler(source StatusSource) *Handler {
	return &Handler{source: source}
}

// HandleRunStatus reports the current phase and progress snapshot.
func (h *Handler) HandleRunStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.source.Snapshot()
	resp := struct {
		Phase string `json:"phase"`
		entity.ProgressSnapshot
	}{
		Phase:            string(h.source.Phase()),
		ProgressSnapshot: snap,
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}
