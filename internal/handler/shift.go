package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tobiasvance/crewdesk/internal/model"
	"github.com/tobiasvance/crewdesk/internal/store"
)

type ShiftHandler struct {
	shifts *store.ShiftStore
	logger *slog.Logger
}

func NewShiftHandler(shifts *store.ShiftStore, logger *slog.Logger) *ShiftHandler {
	return &ShiftHandler{shifts: shifts, logger: logger}
}

type shiftRequest struct {
	CrewID    int64     `json:"crew_id"`
	Title     string    `json:"title"`
	Location  string    `json:"location"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Capacity  int       `json:"capacity"`
}

func (req *shiftRequest) validate() string {
	req.Title = strings.TrimSpace(req.Title)
	switch {
	case req.Title == "":
		return "title is required"
	case req.Capacity < 1:
		return "capacity must be at least 1"
	case req.StartTime.IsZero() || req.EndTime.IsZero():
		return "start_time and end_time are required"
	case !req.StartTime.Before(req.EndTime):
		return "start_time must be before end_time"
	}
	return ""
}

// Create handles POST /api/shifts
func (h *ShiftHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req shiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.CrewID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "crew_id is required"})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	shift, err := h.shifts.Create(req.CrewID, req.Title, req.Location, req.StartTime.UTC(), req.EndTime.UTC(), req.Capacity)
	if err != nil {
		h.logger.Error("create shift", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create shift"})
		return
	}
	writeJSON(w, http.StatusCreated, shift)
}

// List handles GET /api/shifts and GET /api/crews/{id}/shifts
func (h *ShiftHandler) List(w http.ResponseWriter, r *http.Request) {
	shifts, err := h.shifts.List()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list shifts"})
		return
	}
	if shifts == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, shifts)
}

// ListByCrew handles GET /api/crews/{id}/shifts
func (h *ShiftHandler) ListByCrew(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	shifts, err := h.shifts.ListByCrew(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list shifts"})
		return
	}
	if shifts == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, shifts)
}

// Get handles GET /api/shifts/{id}
func (h *ShiftHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	shift, err := h.shifts.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get shift"})
		return
	}
	if shift == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "shift not found"})
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

// Update handles PUT /api/shifts/{id}
func (h *ShiftHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req shiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	shift, err := h.shifts.Update(id, req.Title, req.Location, req.StartTime.UTC(), req.EndTime.UTC(), req.Capacity)
	if err != nil {
		if errors.Is(err, store.ErrCapacityBelowConfirmed) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		h.logger.Error("update shift", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update shift"})
		return
	}
	if shift == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "shift not found"})
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

type shiftStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus handles PUT /api/shifts/{id}/status. Only catalog statuses can
// be set here; open and filled are derived by the scheduling engine.
func (h *ShiftHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req shiftStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	switch req.Status {
	case model.ShiftInProgress, model.ShiftCompleted, model.ShiftCancelled:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be in_progress, completed, or cancelled"})
		return
	}

	shift, err := h.shifts.SetStatus(id, req.Status)
	if err != nil {
		h.logger.Error("set shift status", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update shift status"})
		return
	}
	if shift == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "shift not found"})
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

// Delete handles DELETE /api/shifts/{id}
func (h *ShiftHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	if err := h.shifts.Delete(id); err != nil {
		h.logger.Error("delete shift", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete shift"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
