package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/rollup/internal/ingest"
	"github.com/wonny/rollup/pkg/config"
	"github.com/wonny/rollup/pkg/httputil"
	"github.com/wonny/rollup/pkg/logger"
)

const page = `<html><body>
<table class="nav"><tr><td>menu</td></tr></table>
<table class="data">
  <thead><tr><th>Date</th><th>Milk (litres)</th></tr></thead>
  <tbody>
    <tr><td>01-01-2024</td><td>1,200</td></tr>
    <tr><td>02-01-2024</td><td> 950 </td><td>ignored</td></tr>
    <tr><td colspan="2">subtotal</td></tr>
    <tr><td>31-02-2024</td><td>5</td></tr>
  </tbody>
</table>
</body></html>`

func newHTTPClient() *httputil.Client {
	cfg := &config.Config{Env: "test", LogLevel: "error"}
	return httputil.New(cfg, logger.New(cfg)).DisableRetry()
}

func TestExtractTable(t *testing.T) {
	text, err := ExtractTable(strings.NewReader(page), "table", ',')
	require.NoError(t, err)

	assert.Equal(t, "Date,Milk (litres)\n01-01-2024,\"1,200\"\n02-01-2024,950\n31-02-2024,5\n", text)

	_, err = ExtractTable(strings.NewReader("<p>nothing</p>"), "table", ',')
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestPull_HTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	}))
	defer server.Close()

	in := ingest.New(ingest.Config{ValueKeyword: "milk"}, zerolog.Nop())
	src := New(newHTTPClient(), Config{URL: server.URL}, in, zerolog.Nop())

	res, err := src.Pull(context.Background())
	require.NoError(t, err)

	assert.True(t, res.HeaderSkipped)
	require.Len(t, res.Records, 2)
	assert.Equal(t, 1200.0, res.Records[0].Value)
	assert.Equal(t, 950.0, res.Records[1].Value)
	assert.Len(t, res.Errors, 1)
}

func TestPull_CSV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("date;value\n2024-03-01;4\n"))
	}))
	defer server.Close()

	in := ingest.New(ingest.Config{Delimiter: ';'}, zerolog.Nop())
	src := New(newHTTPClient(), Config{URL: server.URL, Format: "csv"}, in, zerolog.Nop())

	res, err := src.Pull(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, server.URL, src.URL())
}

func TestPull_Errors(t *testing.T) {
	in := ingest.New(ingest.DefaultConfig(), zerolog.Nop())

	_, err := New(newHTTPClient(), Config{}, in, zerolog.Nop()).Pull(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err = New(newHTTPClient(), Config{URL: server.URL}, in, zerolog.Nop()).Pull(context.Background())
	var se *httputil.StatusError
	assert.True(t, errors.As(err, &se))

	html := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<p>no table</p>"))
	}))
	defer html.Close()

	_, err = New(newHTTPClient(), Config{URL: html.URL, Format: "html"}, in, zerolog.Nop()).Pull(context.Background())
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestPull_Unchanged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"abc"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		w.Write([]byte("2024-03-01,4\n"))
	}))
	defer server.Close()

	in := ingest.New(ingest.DefaultConfig(), zerolog.Nop())
	src := New(newHTTPClient(), Config{URL: server.URL, Format: "csv"}, in, zerolog.Nop())

	res, err := src.Pull(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)

	res, err = src.Pull(context.Background())
	assert.ErrorIs(t, err, ErrUnchanged)
	assert.Nil(t, res)

	src.Invalidate()
	res, err = src.Pull(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
}
