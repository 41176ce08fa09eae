package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/dataset"
	"github.com/wonny/rollup/internal/datekey"
	"github.com/wonny/rollup/internal/ingest"
	"github.com/wonny/rollup/pkg/logger"
)

// MaxImportBytes caps an import request body (32 MiB)
const MaxImportBytes = 32 << 20

// ImportObserver is told about every parsed import
type ImportObserver interface {
	ObserveImport(result *contracts.IngestResult)
}

// SeriesHandler serves the series CRUD, import and export endpoints
// ⭐ SSOT: 시계열 API 핸들러는 이 구조체에서만
type SeriesHandler struct {
	svc      *dataset.Service
	limiter  *rate.Limiter
	observer ImportObserver
	logger   *logger.Logger
}

// NewSeriesHandler creates a series handler. A nil limiter allows every import.
func NewSeriesHandler(svc *dataset.Service, limiter *rate.Limiter, observer ImportObserver, log *logger.Logger) *SeriesHandler {
	return &SeriesHandler{
		svc:      svc,
		limiter:  limiter,
		observer: observer,
		logger:   log,
	}
}

// SeriesResponse lists stored records
type SeriesResponse struct {
	Count   int                     `json:"count"`
	Version uint64                  `json:"version"`
	Records []contracts.DailyRecord `json:"records"`
}

// List returns stored records, optionally bounded by from/to
// GET /api/series?from=&to=
func (h *SeriesHandler) List(w http.ResponseWriter, r *http.Request) {
	from, err := parseOptionalDate(r, "from")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseOptionalDate(r, "to")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap := h.svc.Snapshot()
	records := snap.Records()
	if !from.IsZero() || !to.IsZero() {
		first, _ := snap.First()
		latest, _ := snap.Latest()
		if from.IsZero() {
			from = first.Date
		}
		if to.IsZero() {
			to = latest.Date
		}
		from, to = datekey.Ordered(from, to)
		records = snap.Between(from, to)
	}
	if records == nil {
		records = []contracts.DailyRecord{}
	}

	respondJSON(w, http.StatusOK, SeriesResponse{
		Count:   len(records),
		Version: h.svc.Version(),
		Records: records,
	})
}

// UpsertRequest sets one day's value
type UpsertRequest struct {
	Value *float64 `json:"value"`
}

// Put sets the value for one date
// PUT /api/series/{date}
func (h *SeriesHandler) Put(w http.ResponseWriter, r *http.Request) {
	date, err := datekey.Parse(mux.Vars(r)["date"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		respondError(w, http.StatusBadRequest, "Invalid request body (expected {\"value\": number})")
		return
	}

	if err := h.svc.Upsert(r.Context(), date, *req.Value); err != nil {
		h.fail(w, err, "Failed to store value")
		return
	}

	respondJSON(w, http.StatusOK, contracts.DailyRecord{Date: date, Value: *req.Value})
}

// Delete removes one date
// DELETE /api/series/{date}
func (h *SeriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	date, err := datekey.Parse(mux.Vars(r)["date"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	removed, err := h.svc.Remove(r.Context(), date)
	if err != nil {
		h.fail(w, err, "Failed to delete value")
		return
	}
	if !removed {
		respondError(w, http.StatusNotFound, fmt.Sprintf("No value stored for %s", date))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Clear removes every record
// DELETE /api/series
func (h *SeriesHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Clear(r.Context()); err != nil {
		h.fail(w, err, "Failed to clear series")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportResponse reports what an import did
type ImportResponse struct {
	Merged int                     `json:"merged"`
	Total  int                     `json:"total"`
	Result *contracts.IngestResult `json:"result"`
}

// Import merges a delimited text body
// POST /api/series/import
func (h *SeriesHandler) Import(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		respondError(w, http.StatusTooManyRequests, "Import rate limit exceeded")
		return
	}

	body := http.MaxBytesReader(w, r.Body, MaxImportBytes)
	result, err := h.svc.Import(r.Context(), body)
	if result != nil && h.observer != nil {
		h.observer.ObserveImport(result)
	}

	switch {
	case errors.Is(err, ingest.ErrNoValidRows):
		respondJSON(w, http.StatusUnprocessableEntity, ImportResponse{Total: h.svc.Len(), Result: result})
		return
	case err != nil:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "Import body too large")
			return
		}
		h.fail(w, err, "Failed to import")
		return
	}

	respondJSON(w, http.StatusOK, ImportResponse{
		Merged: len(result.Records),
		Total:  h.svc.Len(),
		Result: result,
	})
}

// Export streams the series as delimited text
// GET /api/series/export
func (h *SeriesHandler) Export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.svc.Profile().Meta.Name+".csv"))

	n, err := h.svc.Export(w)
	if err != nil {
		// headers are already sent
		h.logger.WithError(err).Error("Export failed")
		return
	}

	h.logger.WithField("rows", n).Debug("Series exported")
}

// fail maps caller errors to 400 and everything else to 500
func (h *SeriesHandler) fail(w http.ResponseWriter, err error, message string) {
	if dataset.IsInputError(err) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.WithError(err).Error(message)
	respondError(w, http.StatusInternalServerError, message)
}
