package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tobiasvance/crewdesk/internal/store"
)

type CrewHandler struct {
	crews  *store.CrewStore
	logger *slog.Logger
}

func NewCrewHandler(crews *store.CrewStore, logger *slog.Logger) *CrewHandler {
	return &CrewHandler{crews: crews, logger: logger}
}

type crewRequest struct {
	Name string `json:"name"`
}

// Create handles POST /api/crews
func (h *CrewHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req crewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	crew, err := h.crews.Create(req.Name)
	if err != nil {
		h.logger.Error("create crew", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create crew"})
		return
	}
	writeJSON(w, http.StatusCreated, crew)
}

// List handles GET /api/crews
func (h *CrewHandler) List(w http.ResponseWriter, r *http.Request) {
	crews, err := h.crews.List()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list crews"})
		return
	}
	if crews == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, crews)
}

// Get handles GET /api/crews/{id}
func (h *CrewHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	crew, err := h.crews.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get crew"})
		return
	}
	if crew == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "crew not found"})
		return
	}
	writeJSON(w, http.StatusOK, crew)
}

// Update handles PUT /api/crews/{id}
func (h *CrewHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req crewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	crew, err := h.crews.Rename(id, req.Name)
	if err != nil {
		h.logger.Error("rename crew", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update crew"})
		return
	}
	if crew == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "crew not found"})
		return
	}
	writeJSON(w, http.StatusOK, crew)
}

// Delete handles DELETE /api/crews/{id}
func (h *CrewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	if err := h.crews.Delete(id); err != nil {
		h.logger.Error("delete crew", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete crew"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
