package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/dataset"
	"github.com/wonny/rollup/internal/datekey"
	"github.com/wonny/rollup/internal/ingest"
	"github.com/wonny/rollup/internal/profile"
	"github.com/wonny/rollup/internal/source"
	"github.com/wonny/rollup/pkg/config"
	"github.com/wonny/rollup/pkg/logger"
	"github.com/wonny/rollup/pkg/redis"
)

func testApp(t *testing.T, sourceURL string, digest string) *app {
	t.Helper()
	cfg := &config.Config{
		Env: "development",
		Source: config.SourceConfig{
			URL:             sourceURL,
			Format:          "csv",
			RefreshSchedule: "0 */6 * * *",
			RateLimit:       30,
			Timeout:         time.Second,
		},
	}
	p := profile.Default()
	p.Schedule.Digest = digest

	return &app{
		cfg:     cfg,
		log:     logger.NewWithWriter(cfg, io.Discard),
		profile: p,
		redis:   redis.Disabled(),
		svc:     dataset.New(p, dataset.Options{}, zerolog.Nop()),
	}
}

func TestBuildScheduler(t *testing.T) {
	tests := []struct {
		name      string
		sourceURL string
		digest    string
		want      []string
	}{
		{"both jobs", "http://example.invalid/data.csv", "@daily", []string{"kpi_digest", "source_refresh"}},
		{"digest only", "", "@daily", []string{"kpi_digest"}},
		{"nothing configured", "", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched, err := buildScheduler(testApp(t, tt.sourceURL, tt.digest))
			require.NoError(t, err)
			assert.Equal(t, tt.want, sched.GetAllJobs())
		})
	}
}

func TestBuildScheduler_InvalidSpec(t *testing.T) {
	_, err := buildScheduler(testApp(t, "", "every tuesday"))
	assert.Error(t, err)
}

func TestMaskPassword(t *testing.T) {
	assert.Equal(t, "postgres://app:xxxxx@db:5432/rollup",
		maskPassword("postgres://app:secret@db:5432/rollup"))
	assert.Equal(t, "postgres://db:5432/rollup", maskPassword("postgres://db:5432/rollup"))
}

func TestPrintKPI(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		out := captureOutput(t)
		printKPI("milk", contracts.KPISnapshot{}, 2)
		assert.Contains(t, out.String(), "Series is empty")
	})

	t.Run("values", func(t *testing.T) {
		out := captureOutput(t)
		d := datekey.MustNew(2024, time.February, 29)
		printKPI("milk", contracts.KPISnapshot{
			LatestDate:   &d,
			LatestValue:  contracts.Float(15),
			LatestYoYPct: contracts.Float(50),
		}, 1)

		s := out.String()
		assert.Contains(t, s, "2024-02-29")
		assert.Contains(t, s, "15.0")
		assert.Contains(t, s, "+50.0%")
	})
}

func TestPrintRollup(t *testing.T) {
	out := captureOutput(t)
	printRollup(contracts.FrequencyMonthly, []contracts.WindowAggregate{
		{PeriodLabel: "2024-02", CurrentTotal: contracts.Float(1305), PriorPeriodTotal: contracts.Float(900)},
	}, 0)

	s := out.String()
	assert.Contains(t, s, "Rollup (monthly)")
	assert.Contains(t, s, "2024-02")
	assert.Contains(t, s, "1305")
	assert.Contains(t, s, "Prior period")
}

func TestParseFlagDate(t *testing.T) {
	d, err := parseFlagDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = parseFlagDate("29-02-2024")
	require.NoError(t, err)
	assert.Equal(t, datekey.MustNew(2024, time.February, 29), d)

	_, err = parseFlagDate("2024-02-30")
	assert.Error(t, err)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("connection reset")))
	assert.False(t, retryable(fmt.Errorf("pull source: %w", ingest.ErrNoValidRows)))
	assert.False(t, retryable(source.ErrNoTable))
}

func TestBuildAPI(t *testing.T) {
	a := testApp(t, "", "")
	a.cfg.MetricsEnabled = true

	st := buildAPI(a, 10)
	t.Cleanup(st.hub.Close)
	require.NotNil(t, st.metrics)

	for _, path := range []string{"/health", "/api/kpi", "/metrics"} {
		rec := httptest.NewRecorder()
		st.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestBuildAPI_NoMetrics(t *testing.T) {
	st := buildAPI(testApp(t, "", ""), 10)
	t.Cleanup(st.hub.Close)

	assert.Nil(t, st.metrics)
	rec := httptest.NewRecorder()
	st.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckGlobalFlags(t *testing.T) {
	prev := env
	t.Cleanup(func() { env = prev })

	for _, v := range []string{"", "production", " Staging "} {
		env = v
		assert.NoError(t, checkGlobalFlags(rootCmd, nil), v)
	}
	assert.Equal(t, "staging", env)

	env = "prod"
	assert.ErrorContains(t, checkGlobalFlags(rootCmd, nil), "prod")
}

func TestPrintStats(t *testing.T) {
	buf := captureOutput(t)

	sched, err := buildScheduler(testApp(t, "", "@daily"))
	require.NoError(t, err)
	res, err := sched.RunNow(context.Background(), "kpi_digest")
	require.NoError(t, err)
	require.True(t, res.Success)

	printStats(sched)
	out := buf.String()
	assert.Contains(t, out, "kpi_digest (@daily)")
	assert.Contains(t, out, "1 ok / 0 failed")
	assert.Contains(t, out, "100.0%")
	assert.NotContains(t, out, "Last failure")
}
