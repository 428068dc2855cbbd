package handler

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tobiasvance/crewdesk/internal/database"
	"github.com/tobiasvance/crewdesk/internal/model"
	"github.com/tobiasvance/crewdesk/internal/scheduling"
	"github.com/tobiasvance/crewdesk/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	db  *sql.DB
	mux *http.ServeMux

	crew  *model.Crew
	shift *model.Shift
	v1    *model.Volunteer
	v2    *model.Volunteer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	// Every pooled connection to :memory: would be its own empty database.
	db.SetMaxOpenConns(1)

	logger := testLogger()
	bus := scheduling.NewBus(logger)
	t.Cleanup(bus.Close)
	svc := scheduling.NewService(db, bus, logger)

	crews := store.NewCrewStore(db)
	shifts := store.NewShiftStore(db)
	volunteers := store.NewVolunteerStore(db)

	crew, err := crews.Create("Gate Crew")
	if err != nil {
		t.Fatalf("create crew: %v", err)
	}
	start := time.Date(2026, 7, 10, 8, 0, 0, 0, time.UTC)
	shift, err := shifts.Create(crew.ID, "Gate A Morning", "Gate A", start, start.Add(4*time.Hour), 1)
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}
	v1, err := volunteers.Create("Ada", "ada@example.com", nil)
	if err != nil {
		t.Fatalf("create volunteer: %v", err)
	}
	v2, err := volunteers.Create("Ben", "ben@example.com", nil)
	if err != nil {
		t.Fatalf("create volunteer: %v", err)
	}

	h := NewSchedulingHandler(svc, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/assignments", h.Assign)
	mux.HandleFunc("GET /api/assignments/{id}", h.Get)
	mux.HandleFunc("DELETE /api/assignments/{id}", h.Cancel)
	mux.HandleFunc("POST /api/assignments/{id}/check-in", h.CheckIn)
	mux.HandleFunc("POST /api/assignments/{id}/complete", h.Complete)
	mux.HandleFunc("POST /api/assignments/{id}/miss", h.MarkMissed)
	mux.HandleFunc("POST /api/swaps", h.RequestSwap)
	mux.HandleFunc("GET /api/swaps", h.ListSwaps)
	mux.HandleFunc("GET /api/swaps/{id}", h.GetSwap)
	mux.HandleFunc("POST /api/swaps/{id}/resolve", h.ResolveSwap)
	mux.HandleFunc("POST /api/swaps/{id}/withdraw", h.WithdrawSwap)

	return &fixture{db: db, mux: mux, crew: crew, shift: shift, v1: v1, v2: v2}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (message, code string) {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["error"], body["code"]
}

func TestAssignEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/api/assignments", map[string]int64{
		"shift_id": f.shift.ID, "volunteer_id": f.v1.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var created model.Assignment
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode assignment: %v", err)
	}
	if created.Status != model.AssignmentScheduled {
		t.Errorf("status = %q, want %q", created.Status, model.AssignmentScheduled)
	}
	if created.ShiftID != f.shift.ID || created.VolunteerID != f.v1.ID {
		t.Errorf("unexpected assignment %+v", created)
	}
}

func TestAssignShiftFullCode(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, "POST", "/api/assignments", map[string]int64{
		"shift_id": f.shift.ID, "volunteer_id": f.v1.ID,
	}); rec.Code != http.StatusCreated {
		t.Fatalf("first assign: %d", rec.Code)
	}

	rec := f.do(t, "POST", "/api/assignments", map[string]int64{
		"shift_id": f.shift.ID, "volunteer_id": f.v2.ID,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if _, code := decodeError(t, rec); code != "SHIFT_FULL" {
		t.Errorf("code = %q, want SHIFT_FULL", code)
	}
}

func TestAssignScheduleConflictCode(t *testing.T) {
	f := newFixture(t)

	shifts := store.NewShiftStore(f.db)
	start := f.shift.StartTime.Add(time.Hour)
	overlapping, err := shifts.Create(f.crew.ID, "Gate B Morning", "Gate B", start, start.Add(4*time.Hour), 2)
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}

	if rec := f.do(t, "POST", "/api/assignments", map[string]int64{
		"shift_id": f.shift.ID, "volunteer_id": f.v1.ID,
	}); rec.Code != http.StatusCreated {
		t.Fatalf("first assign: %d", rec.Code)
	}

	rec := f.do(t, "POST", "/api/assignments", map[string]int64{
		"shift_id": overlapping.ID, "volunteer_id": f.v1.ID,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if _, code := decodeError(t, rec); code != "SCHEDULE_CONFLICT" {
		t.Errorf("code = %q, want SCHEDULE_CONFLICT", code)
	}
}

func TestAssignUnknownShiftCode(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/api/assignments", map[string]int64{
		"shift_id": 9999, "volunteer_id": f.v1.ID,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if _, code := decodeError(t, rec); code != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", code)
	}
}

func TestTransitionEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/api/assignments", map[string]int64{
		"shift_id": f.shift.ID, "volunteer_id": f.v1.ID,
	})
	var a model.Assignment
	json.Unmarshal(rec.Body.Bytes(), &a)

	// scheduled -> completed skips checked_in and must be rejected
	rec = f.do(t, "POST", fmt.Sprintf("/api/assignments/%d/complete", a.ID), nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if _, code := decodeError(t, rec); code != "INVALID_TRANSITION" {
		t.Errorf("code = %q, want INVALID_TRANSITION", code)
	}

	rec = f.do(t, "POST", fmt.Sprintf("/api/assignments/%d/check-in", a.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("check-in status = %d: %s", rec.Code, rec.Body.String())
	}
	var checked model.Assignment
	json.Unmarshal(rec.Body.Bytes(), &checked)
	if checked.Status != model.AssignmentCheckedIn {
		t.Errorf("status = %q, want %q", checked.Status, model.AssignmentCheckedIn)
	}

	rec = f.do(t, "POST", fmt.Sprintf("/api/assignments/%d/complete", a.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCancelEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/api/assignments", map[string]int64{
		"shift_id": f.shift.ID, "volunteer_id": f.v1.ID,
	})
	var a model.Assignment
	json.Unmarshal(rec.Body.Bytes(), &a)

	rec = f.do(t, "DELETE", fmt.Sprintf("/api/assignments/%d", a.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("cancel status = %d", rec.Code)
	}

	// Cancelling again is idempotent
	rec = f.do(t, "DELETE", fmt.Sprintf("/api/assignments/%d", a.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("second cancel status = %d", rec.Code)
	}
}

func TestSwapEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/api/assignments", map[string]int64{
		"shift_id": f.shift.ID, "volunteer_id": f.v1.ID,
	})
	var a model.Assignment
	json.Unmarshal(rec.Body.Bytes(), &a)

	rec = f.do(t, "POST", "/api/swaps", map[string]any{
		"assignment_id": a.ID, "proposed_volunteer_id": f.v2.ID, "reason": "vacation",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("propose status = %d: %s", rec.Code, rec.Body.String())
	}
	var swap model.SwapRequest
	json.Unmarshal(rec.Body.Bytes(), &swap)
	if swap.Status != model.SwapPending {
		t.Errorf("swap status = %q, want %q", swap.Status, model.SwapPending)
	}

	// A second pending request for the same assignment is rejected
	rec = f.do(t, "POST", "/api/swaps", map[string]any{
		"assignment_id": a.ID, "proposed_volunteer_id": f.v2.ID,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate propose status = %d", rec.Code)
	}
	if _, code := decodeError(t, rec); code != "DUPLICATE_PENDING_SWAP" {
		t.Errorf("code = %q, want DUPLICATE_PENDING_SWAP", code)
	}

	rec = f.do(t, "POST", fmt.Sprintf("/api/swaps/%d/resolve", swap.ID), map[string]string{"decision": "approve"})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d: %s", rec.Code, rec.Body.String())
	}
	var resolved model.SwapRequest
	json.Unmarshal(rec.Body.Bytes(), &resolved)
	if resolved.Status != model.SwapApproved {
		t.Errorf("resolved status = %q, want %q", resolved.Status, model.SwapApproved)
	}

	// Resolving again is an invalid transition
	rec = f.do(t, "POST", fmt.Sprintf("/api/swaps/%d/resolve", swap.ID), map[string]string{"decision": "reject"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("re-resolve status = %d", rec.Code)
	}
	if _, code := decodeError(t, rec); code != "INVALID_TRANSITION" {
		t.Errorf("code = %q, want INVALID_TRANSITION", code)
	}
}

func TestResolveDecisionValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/api/swaps/1/resolve", map[string]string{"decision": "maybe"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
