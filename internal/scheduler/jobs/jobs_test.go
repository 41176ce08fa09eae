package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/dataset"
	"github.com/wonny/rollup/internal/ingest"
	"github.com/wonny/rollup/internal/source"
	"github.com/wonny/rollup/pkg/config"
	"github.com/wonny/rollup/pkg/httputil"
	"github.com/wonny/rollup/pkg/logger"
)

type recorder struct {
	events []contracts.SeriesEvent
}

func (r *recorder) Publish(e contracts.SeriesEvent) { r.events = append(r.events, e) }

func testLogger() *logger.Logger {
	return logger.Nop()
}

func newSource(t *testing.T, body string) *source.Source {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	cfg := &config.Config{Env: "test"}
	client := httputil.New(cfg, testLogger()).DisableRetry()
	return source.New(client, source.Config{URL: server.URL, Format: "csv"},
		ingest.New(ingest.DefaultConfig(), zerolog.Nop()), zerolog.Nop())
}

func TestRefreshJob(t *testing.T) {
	rec := &recorder{}
	svc := dataset.New(nil, dataset.Options{Notifier: rec}, zerolog.Nop())
	job := NewRefreshJob(newSource(t, "date,value\n2024-01-01,1\n2024-01-02,x\n2024-01-03,3\n"), svc, "0 */6 * * *", testLogger())

	assert.Equal(t, "source_refresh", job.Name())
	assert.Equal(t, "0 */6 * * *", job.Schedule())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, svc.Len())
	require.Len(t, rec.events, 1)
	assert.Equal(t, contracts.EventImported, rec.events[0].Type)

	// second run hits 304 and applies nothing
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, rec.events, 1)
}

func TestRefreshJob_EmptySourceFails(t *testing.T) {
	svc := dataset.New(nil, dataset.Options{}, zerolog.Nop())
	job := NewRefreshJob(newSource(t, "date,value\n"), svc, "@hourly", testLogger())

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, ingest.ErrNoValidRows)

	// the failed document is fetched again instead of being skipped as unchanged
	err = job.Run(context.Background())
	assert.ErrorIs(t, err, ingest.ErrNoValidRows)
}

func TestDigestJob(t *testing.T) {
	rec := &recorder{}
	svc := dataset.New(nil, dataset.Options{Notifier: rec}, zerolog.Nop())
	job := NewDigestJob(svc, "0 8 * * *", testLogger())

	require.NoError(t, job.Run(context.Background()))
	_, err := svc.Import(context.Background(), strings.NewReader("2024-05-01,4\n"))
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	require.Len(t, rec.events, 3)
	assert.Equal(t, contracts.EventDigest, rec.events[2].Type)
	assert.Equal(t, 4.0, *rec.events[2].KPI.LatestValue)
}
