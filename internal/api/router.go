package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/rollup/internal/api/handlers"
	"github.com/wonny/rollup/internal/dataset"
	"github.com/wonny/rollup/pkg/logger"
)

// healthTimeout bounds all dependency checks of one /health call
const healthTimeout = 2 * time.Second

// HealthFunc reports the state of an optional dependency
type HealthFunc func(ctx context.Context) error

// Deps holds everything the router serves
type Deps struct {
	Series    *handlers.SeriesHandler
	Analytics *handlers.AnalyticsHandler
	Dataset   *dataset.Service
	Realtime  http.Handler          // websocket endpoint, optional
	Metrics   *Metrics              // optional
	Checks    map[string]HealthFunc // e.g. "database", "redis"
}

// NewRouter wires every route
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(deps Deps, log *logger.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(recoverer(log), requestLog(log))

	r.Handle("/health", health(deps)).Methods(http.MethodGet)
	if deps.Realtime != nil {
		r.Handle("/ws", deps.Realtime).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)
		api.Use(deps.Metrics.Middleware)
	}

	// /series/import and /series/export must be registered before /series/{date}
	s := deps.Series
	api.HandleFunc("/series", s.List).Methods(http.MethodGet)
	api.HandleFunc("/series", s.Clear).Methods(http.MethodDelete)
	api.HandleFunc("/series/import", s.Import).Methods(http.MethodPost)
	api.HandleFunc("/series/export", s.Export).Methods(http.MethodGet)
	api.HandleFunc("/series/{date}", s.Put).Methods(http.MethodPut)
	api.HandleFunc("/series/{date}", s.Delete).Methods(http.MethodDelete)

	a := deps.Analytics
	api.HandleFunc("/rollup", a.Rollup).Methods(http.MethodGet)
	api.HandleFunc("/kpi", a.KPI).Methods(http.MethodGet)
	api.HandleFunc("/report.xlsx", a.Report).Methods(http.MethodGet)

	return r
}

// HealthReport is the /health body
type HealthReport struct {
	Status  string            `json:"status"` // ok, degraded
	Records int               `json:"records"`
	Version uint64            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

func health(deps Deps) http.HandlerFunc {
	names := make([]string, 0, len(deps.Checks))
	for name := range deps.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		rep := HealthReport{
			Status:  "ok",
			Records: deps.Dataset.Len(),
			Version: deps.Dataset.Version(),
			Checks:  make(map[string]string, len(names)),
		}
		for _, name := range names {
			rep.Checks[name] = "ok"
			if err := deps.Checks[name](ctx); err != nil {
				rep.Checks[name] = err.Error()
				rep.Status = "degraded"
			}
		}

		code := http.StatusOK
		if rep.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(rep)
	}
}
