package handlers

import (
	"fmt"
	"net/http"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/dataset"
	"github.com/wonny/rollup/internal/report"
	"github.com/wonny/rollup/pkg/logger"
)

// XLSXContentType is the media type of report workbooks
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AnalyticsHandler serves rollups, KPIs and the workbook report
type AnalyticsHandler struct {
	svc    *dataset.Service
	logger *logger.Logger
}

// NewAnalyticsHandler creates an analytics handler
func NewAnalyticsHandler(svc *dataset.Service, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc, logger: log}
}

// RollupResponse wraps the buckets of one query
type RollupResponse struct {
	Frequency contracts.Frequency         `json:"frequency"`
	From      string                      `json:"from,omitempty"`
	To        string                      `json:"to,omitempty"`
	Points    []contracts.WindowAggregate `json:"points"`
}

// Rollup returns comparable-window aggregates
// GET /api/rollup?from=&to=&freq=
func (h *AnalyticsHandler) Rollup(w http.ResponseWriter, r *http.Request) {
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

	freq := h.svc.Profile().Frequency()
	if raw := r.URL.Query().Get("freq"); raw != "" {
		freq, err = contracts.ParseFrequency(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	points, err := h.svc.Rollup(r.Context(), from, to, freq)
	if err != nil {
		if dataset.IsInputError(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.WithError(err).Error("Rollup failed")
		respondError(w, http.StatusInternalServerError, "Failed to compute rollup")
		return
	}

	resp := RollupResponse{Frequency: freq, Points: points}
	if !from.IsZero() {
		resp.From = from.String()
	}
	if !to.IsZero() {
		resp.To = to.String()
	}
	respondJSON(w, http.StatusOK, resp)
}

// KPI returns the headline snapshot
// GET /api/kpi
func (h *AnalyticsHandler) KPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.KPI(r.Context()))
}

// Report returns an XLSX workbook with the series, KPIs and rollups
// GET /api/report.xlsx?freq=monthly&freq=weekly
func (h *AnalyticsHandler) Report(w http.ResponseWriter, r *http.Request) {
	freqs, err := report.ParseFrequencies(r.URL.Query()["freq"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	wb, err := h.svc.Workbook(r.Context(), freqs)
	if err != nil {
		h.logger.WithError(err).Error("Report failed")
		respondError(w, http.StatusInternalServerError, "Failed to build report")
		return
	}

	w.Header().Set("Content-Type", XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", wb.Title+".xlsx"))
	if err := report.Write(w, wb); err != nil {
		h.logger.WithError(err).Error("Report write failed")
	}
}
