package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/wonny/rollup/internal/api"
	"github.com/wonny/rollup/internal/api/handlers"
	"github.com/wonny/rollup/internal/realtime"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

  GET    /health                 상태 확인 (database, redis)
  GET    /api/series             저장된 값 (?from=&to=)
  PUT    /api/series/{date}      하루 값 저장 {"value": n}
  DELETE /api/series/{date}      하루 값 삭제
  DELETE /api/series             전체 삭제
  POST   /api/series/import      CSV 본문 적재
  GET    /api/series/export      CSV 내보내기
  GET    /api/rollup             집계 (?freq=daily|weekly|monthly|rolling30&from=&to=)
  GET    /api/kpi                KPI 스냅샷
  GET    /api/report.xlsx        엑셀 리포트 (?freq=monthly,weekly)
  GET    /ws                     KPI 푸시 (websocket)
  GET    /metrics                Prometheus

Example:
  go run ./cmd/rollup api --port 8080 --file milk.csv --scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort          string
	apiFile          string
	apiWithScheduler bool
	apiImportRate    float64
)

const (
	importBurst     = 5
	shutdownTimeout = 30 * time.Second
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default PORT)")
	apiCmd.Flags().StringVar(&apiFile, "file", "", "시작 시 적재할 CSV 파일")
	apiCmd.Flags().BoolVar(&apiWithScheduler, "scheduler", false, "run refresh/digest jobs in-process")
	apiCmd.Flags().Float64Var(&apiImportRate, "import-rate", 2, "imports per second allowed (burst 5)")
}

// apiStack is the HTTP side of an app
type apiStack struct {
	router  http.Handler
	hub     *realtime.Hub
	metrics *api.Metrics
}

// buildAPI wires handlers, health checks and the websocket hub over a.svc
func buildAPI(a *app, importRate float64) *apiStack {
	st := &apiStack{hub: realtime.NewHub(a.log.Zerolog())}
	a.svc.SetNotifier(st.hub)

	var observer handlers.ImportObserver
	if a.cfg.MetricsEnabled {
		st.metrics = api.NewMetrics()
		observer = st.metrics
	}

	checks := map[string]api.HealthFunc{}
	if a.db != nil {
		checks["database"] = a.db.Pool.Ping
	}
	if a.redis.Enabled() {
		checks["redis"] = a.redis.Ping
	}

	st.router = api.NewRouter(api.Deps{
		Series:    handlers.NewSeriesHandler(a.svc, rate.NewLimiter(rate.Limit(importRate), importBurst), observer, a.log),
		Analytics: handlers.NewAnalyticsHandler(a.svc, a.log),
		Dataset:   a.svc,
		Realtime:  st.hub,
		Metrics:   st.metrics,
		Checks:    checks,
	}, a.log)
	return st
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{file: apiFile})
	if err != nil {
		return err
	}
	defer a.Close()
	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	st := buildAPI(a, apiImportRate)
	defer st.hub.Close()
	a.svc.Digest(ctx) // seed the hub with the current KPI snapshot

	var metricsHandler http.Handler
	if st.metrics != nil {
		metricsHandler = st.metrics.Handler()
	}
	server := api.New(a.cfg, a.log, st.router, metricsHandler)

	if apiWithScheduler {
		sched, err := buildScheduler(a)
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	a.log.WithFields(map[string]interface{}{
		"records": a.svc.Len(),
		"profile": a.profile.Meta.Name,
	}).Info("API server ready")
	PrintSuccess(fmt.Sprintf("Server running on http://localhost:%s", a.cfg.Port))
	PrintInfo("Press Ctrl+C to stop")

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.log.Info("Server stopped")
	return nil
}
