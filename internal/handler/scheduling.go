package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tobiasvance/crewdesk/internal/scheduling"
)

type SchedulingHandler struct {
	service *scheduling.Service
	logger  *slog.Logger
}

func NewSchedulingHandler(svc *scheduling.Service, logger *slog.Logger) *SchedulingHandler {
	return &SchedulingHandler{service: svc, logger: logger}
}

type assignRequest struct {
	ShiftID     int64 `json:"shift_id"`
	VolunteerID int64 `json:"volunteer_id"`
}

// Assign handles POST /api/assignments
func (h *SchedulingHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.ShiftID <= 0 || req.VolunteerID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "shift_id and volunteer_id are required"})
		return
	}

	assignment, err := h.service.Assign(r.Context(), req.ShiftID, req.VolunteerID)
	if err != nil {
		if scheduling.Code(err) == "" {
			h.logger.Error("assign", "error", err)
		}
		writeSchedulingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, assignment)
}

// Get handles GET /api/assignments/{id}
func (h *SchedulingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	assignment, err := h.service.GetAssignment(r.Context(), id)
	if err != nil {
		writeSchedulingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

// Cancel handles DELETE /api/assignments/{id}
func (h *SchedulingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		if scheduling.Code(err) == "" {
			h.logger.Error("cancel assignment", "error", err)
		}
		writeSchedulingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckIn handles POST /api/assignments/{id}/check-in
func (h *SchedulingHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "check in", h.service.CheckIn)
}

// Complete handles POST /api/assignments/{id}/complete
func (h *SchedulingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "complete", h.service.Complete)
}

// MarkMissed handles POST /api/assignments/{id}/miss
func (h *SchedulingHandler) MarkMissed(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "mark missed", h.service.MarkMissed)
}

func (h *SchedulingHandler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, int64) error) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	if err := fn(r.Context(), id); err != nil {
		if scheduling.Code(err) == "" {
			h.logger.Error(op, "assignment_id", id, "error", err)
		}
		writeSchedulingError(w, err)
		return
	}

	assignment, err := h.service.GetAssignment(r.Context(), id)
	if err != nil {
		writeSchedulingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

// ListForVolunteer handles GET /api/volunteers/{id}/assignments
func (h *SchedulingHandler) ListForVolunteer(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	assignments, err := h.service.ListForVolunteer(r.Context(), id)
	if err != nil {
		h.logger.Error("list assignments for volunteer", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list assignments"})
		return
	}
	if assignments == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

// ListForShift handles GET /api/shifts/{id}/assignments
func (h *SchedulingHandler) ListForShift(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	assignments, err := h.service.ListForShift(r.Context(), id)
	if err != nil {
		h.logger.Error("list assignments for shift", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list assignments"})
		return
	}
	if assignments == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

type swapRequest struct {
	AssignmentID        int64  `json:"assignment_id"`
	ProposedVolunteerID int64  `json:"proposed_volunteer_id"`
	Reason              string `json:"reason"`
}

// RequestSwap handles POST /api/swaps
func (h *SchedulingHandler) RequestSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.AssignmentID <= 0 || req.ProposedVolunteerID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "assignment_id and proposed_volunteer_id are required"})
		return
	}

	swap, err := h.service.RequestSwap(r.Context(), req.AssignmentID, req.ProposedVolunteerID, req.Reason)
	if err != nil {
		if scheduling.Code(err) == "" {
			h.logger.Error("request swap", "error", err)
		}
		writeSchedulingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, swap)
}

type resolveRequest struct {
	Decision string `json:"decision"`
}

// ResolveSwap handles POST /api/swaps/{id}/resolve
func (h *SchedulingHandler) ResolveSwap(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	var decision scheduling.Decision
	switch req.Decision {
	case "approve":
		decision = scheduling.DecisionApprove
	case "reject":
		decision = scheduling.DecisionReject
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "decision must be approve or reject"})
		return
	}

	swap, err := h.service.ResolveSwap(r.Context(), id, decision)
	if err != nil {
		if scheduling.Code(err) == "" {
			h.logger.Error("resolve swap", "swap_id", id, "error", err)
		}
		writeSchedulingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, swap)
}

// WithdrawSwap handles POST /api/swaps/{id}/withdraw
func (h *SchedulingHandler) WithdrawSwap(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	swap, err := h.service.WithdrawSwap(r.Context(), id)
	if err != nil {
		if scheduling.Code(err) == "" {
			h.logger.Error("withdraw swap", "swap_id", id, "error", err)
		}
		writeSchedulingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, swap)
}

// GetSwap handles GET /api/swaps/{id}
func (h *SchedulingHandler) GetSwap(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	swap, err := h.service.GetSwap(r.Context(), id)
	if err != nil {
		writeSchedulingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, swap)
}

// ListSwaps handles GET /api/swaps?status=pending
func (h *SchedulingHandler) ListSwaps(w http.ResponseWriter, r *http.Request) {
	swaps, err := h.service.ListSwaps(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.logger.Error("list swaps", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list swap requests"})
		return
	}
	if swaps == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, swaps)
}
