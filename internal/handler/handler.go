// Package handler contains the HTTP endpoints. Handlers stay thin: they
// decode, call a store or the scheduling service, and encode. Business
// rules live behind the service boundary.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/tobiasvance/crewdesk/internal/scheduling"
)

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeSchedulingError maps a business-rule error to its HTTP shape:
// {"error": <message>, "code": <machine code>}. Unexpected errors come
// back as a plain 500.
func writeSchedulingError(w http.ResponseWriter, err error) {
	code := scheduling.Code(err)
	if code == "" {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	status := http.StatusConflict
	if code == "NOT_FOUND" {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}
