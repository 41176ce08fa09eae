package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/time/rate"

	"github.com/wonny/rollup/internal/api/handlers"
	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/dataset"
	"github.com/wonny/rollup/internal/realtime"
	"github.com/wonny/rollup/pkg/config"
	"github.com/wonny/rollup/pkg/logger"
)

type testAPI struct {
	server  *httptest.Server
	svc     *dataset.Service
	metrics *Metrics
}

func newTestAPI(t *testing.T, limiter *rate.Limiter, checks map[string]HealthFunc) *testAPI {
	t.Helper()

	log := logger.NewWithWriter(&config.Config{LogLevel: "error"}, io.Discard)
	hub := realtime.NewHub(log.Zerolog())
	svc := dataset.New(nil, dataset.Options{Notifier: hub}, log.Zerolog())
	metrics := NewMetrics()

	router := NewRouter(Deps{
		Series:    handlers.NewSeriesHandler(svc, limiter, metrics, log),
		Analytics: handlers.NewAnalyticsHandler(svc, log),
		Dataset:   svc,
		Realtime:  hub,
		Metrics:   metrics,
		Checks:    checks,
	}, log)

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return &testAPI{server: server, svc: svc, metrics: metrics}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

const sample = "Date,Milk (litres)\n01-01-2024,10\n02-01-2024,20\n31-02-2024,5\n01-02-2024,30\n"

func TestImportAndQuery(t *testing.T) {
	a := newTestAPI(t, nil, nil)

	resp := a.do(t, http.MethodPost, "/api/series/import", sample)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	imp := decode[handlers.ImportResponse](t, resp)
	assert.Equal(t, 3, imp.Merged)
	assert.Equal(t, 3, imp.Total)
	require.Len(t, imp.Result.Errors, 1)
	assert.Equal(t, 4, imp.Result.Errors[0].Row)

	resp = a.do(t, http.MethodGet, "/api/series?from=2024-01-02", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[handlers.SeriesResponse](t, resp)
	assert.Equal(t, 2, list.Count)

	resp = a.do(t, http.MethodGet, "/api/rollup?freq=monthly", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	roll := decode[handlers.RollupResponse](t, resp)
	require.Len(t, roll.Points, 2)
	assert.Equal(t, "2024-02", roll.Points[1].PeriodLabel)
	// February observed day 1 only, compared with January 1..1
	assert.Equal(t, 10.0, *roll.Points[1].PriorPeriodTotal)
	assert.Equal(t, 200.0, *roll.Points[1].PeriodOverPeriodPct)

	resp = a.do(t, http.MethodGet, "/api/kpi", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	kpi := decode[contracts.KPISnapshot](t, resp)
	assert.Equal(t, "2024-02-01", kpi.LatestDate.String())
	assert.Equal(t, 30.0, *kpi.LatestValue)
	assert.Nil(t, kpi.LatestYoYPct)
}

func TestImport_Empty(t *testing.T) {
	a := newTestAPI(t, nil, nil)

	resp := a.do(t, http.MethodPost, "/api/series/import", "date,value\nbad,1\n")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	imp := decode[handlers.ImportResponse](t, resp)
	assert.Zero(t, imp.Merged)
	assert.Len(t, imp.Result.Errors, 1)
}

func TestImport_RateLimited(t *testing.T) {
	a := newTestAPI(t, rate.NewLimiter(rate.Limit(0.001), 1), nil)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/api/series/import", "2024-01-01,1\n").StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, a.do(t, http.MethodPost, "/api/series/import", "2024-01-02,1\n").StatusCode)
}

func TestSeriesCRUD(t *testing.T) {
	a := newTestAPI(t, nil, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"put", http.MethodPut, "/api/series/2024-03-01", `{"value": 12.5}`, http.StatusOK},
		{"put dd-mm", http.MethodPut, "/api/series/02-03-2024", `{"value": 0}`, http.StatusOK},
		{"put negative", http.MethodPut, "/api/series/2024-03-03", `{"value": -1}`, http.StatusBadRequest},
		{"put missing value", http.MethodPut, "/api/series/2024-03-03", `{}`, http.StatusBadRequest},
		{"put bad date", http.MethodPut, "/api/series/2024-02-30", `{"value": 1}`, http.StatusBadRequest},
		{"delete", http.MethodDelete, "/api/series/2024-03-01", "", http.StatusNoContent},
		{"delete missing", http.MethodDelete, "/api/series/2024-03-01", "", http.StatusNotFound},
		{"bad rollup freq", http.MethodGet, "/api/rollup?freq=hourly", "", http.StatusBadRequest},
		{"bad rollup date", http.MethodGet, "/api/rollup?from=yesterday", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := a.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	assert.Equal(t, 1, a.svc.Len())
	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/api/series", "").StatusCode)
	assert.Equal(t, 0, a.svc.Len())
}

func TestExport(t *testing.T) {
	a := newTestAPI(t, nil, nil)
	a.do(t, http.MethodPost, "/api/series/import", sample)

	resp := a.do(t, http.MethodGet, "/api/series/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "date,value\n2024-01-01,10\n2024-01-02,20\n2024-02-01,30\n", string(body))
}

func TestReport(t *testing.T) {
	a := newTestAPI(t, nil, nil)
	a.do(t, http.MethodPost, "/api/series/import", sample)

	resp := a.do(t, http.MethodGet, "/api/report.xlsx?freq=daily", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, handlers.XLSXContentType, resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Daily")

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/report.xlsx?freq=yearly", "").StatusCode)
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t, nil, map[string]HealthFunc{
		"database": func(context.Context) error { return nil },
	})
	resp := a.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rep := decode[HealthReport](t, resp)
	assert.Equal(t, "ok", rep.Status)
	assert.Equal(t, map[string]string{"database": "ok"}, rep.Checks)

	down := newTestAPI(t, nil, map[string]HealthFunc{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	resp = down.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	rep = decode[HealthReport](t, resp)
	assert.Equal(t, "degraded", rep.Status)
	assert.Equal(t, "connection refused", rep.Checks["redis"])
}

func TestRecoverer(t *testing.T) {
	h := recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/kpi", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	a := newTestAPI(t, nil, nil)
	a.do(t, http.MethodPost, "/api/series/import", sample)
	a.do(t, http.MethodGet, "/api/kpi", "")

	resp := a.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "rollup_ingest_records_total 3")
	assert.Contains(t, text, "rollup_ingest_rejected_rows_total 1")
	assert.Contains(t, text, `rollup_imports_total{outcome="partial"} 1`)
	assert.Contains(t, text, `route="/api/kpi"`)
}
