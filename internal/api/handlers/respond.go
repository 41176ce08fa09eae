package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wonny/rollup/internal/datekey"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// parseOptionalDate returns the zero Date for an empty parameter
func parseOptionalDate(r *http.Request, name string) (datekey.Date, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return datekey.Date{}, nil
	}
	return datekey.Parse(raw)
}
