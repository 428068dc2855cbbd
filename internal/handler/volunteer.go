package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tobiasvance/crewdesk/internal/model"
	"github.com/tobiasvance/crewdesk/internal/store"
)

type VolunteerHandler struct {
	volunteers *store.VolunteerStore
	logger     *slog.Logger
}

func NewVolunteerHandler(volunteers *store.VolunteerStore, logger *slog.Logger) *VolunteerHandler {
	return &VolunteerHandler{volunteers: volunteers, logger: logger}
}

type volunteerRequest struct {
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Skills []string `json:"skills"`
}

// Create handles POST /api/volunteers
func (h *VolunteerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req volunteerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	volunteer, err := h.volunteers.Create(req.Name, req.Email, req.Skills)
	if err != nil {
		h.logger.Error("create volunteer", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create volunteer"})
		return
	}
	writeJSON(w, http.StatusCreated, volunteer)
}

// List handles GET /api/volunteers
func (h *VolunteerHandler) List(w http.ResponseWriter, r *http.Request) {
	volunteers, err := h.volunteers.List()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list volunteers"})
		return
	}
	if volunteers == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, volunteers)
}

// Get handles GET /api/volunteers/{id}
func (h *VolunteerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	volunteer, err := h.volunteers.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get volunteer"})
		return
	}
	if volunteer == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "volunteer not found"})
		return
	}
	writeJSON(w, http.StatusOK, volunteer)
}

// Update handles PUT /api/volunteers/{id}
func (h *VolunteerHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req volunteerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	volunteer, err := h.volunteers.Update(id, req.Name, req.Email, req.Skills)
	if err != nil {
		h.logger.Error("update volunteer", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update volunteer"})
		return
	}
	if volunteer == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "volunteer not found"})
		return
	}
	writeJSON(w, http.StatusOK, volunteer)
}

// Delete handles DELETE /api/volunteers/{id}
func (h *VolunteerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	if err := h.volunteers.Delete(id); err != nil {
		h.logger.Error("delete volunteer", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete volunteer"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type availabilityWindowRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type availabilityRequest struct {
	Windows []availabilityWindowRequest `json:"windows"`
}

// SetAvailability handles PUT /api/volunteers/{id}/availability. Replaces
// the volunteer's whole window set; an empty list means always available.
func (h *VolunteerHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	volunteer, err := h.volunteers.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get volunteer"})
		return
	}
	if volunteer == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "volunteer not found"})
		return
	}

	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	windows := make([]model.AvailabilityWindow, 0, len(req.Windows))
	for _, win := range req.Windows {
		if win.StartTime.IsZero() || win.EndTime.IsZero() || !win.StartTime.Before(win.EndTime) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "each window needs start_time before end_time"})
			return
		}
		windows = append(windows, model.AvailabilityWindow{
			VolunteerID: id,
			StartTime:   win.StartTime.UTC(),
			EndTime:     win.EndTime.UTC(),
		})
	}

	if err := h.volunteers.SetAvailability(id, windows); err != nil {
		h.logger.Error("set availability", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to set availability"})
		return
	}

	saved, err := h.volunteers.ListAvailability(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list availability"})
		return
	}
	if saved == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// ListAvailability handles GET /api/volunteers/{id}/availability
func (h *VolunteerHandler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	windows, err := h.volunteers.ListAvailability(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list availability"})
		return
	}
	if windows == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, windows)
}
