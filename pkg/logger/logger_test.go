package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/rollup/pkg/config"
)

func newBuffered(level, format string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	cfg := &config.Config{Env: "development", LogLevel: level, LogFormat: format}
	return NewWithWriter(cfg, &buf), &buf
}

// lines decodes every JSON log line written to buf
func lines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{" warn ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newBuffered("warn", "json")
	assert.Equal(t, zerolog.WarnLevel, log.Level())

	log.Debug("rollup computed")
	log.Info("snapshot restored")
	log.Warn("rows rejected")
	log.Error("source unreachable")

	got := lines(t, buf)
	require.Len(t, got, 2)
	assert.Equal(t, "warn", got[0]["level"])
	assert.Equal(t, "rows rejected", got[0]["message"])
	assert.Equal(t, "error", got[1]["level"])
	assert.Equal(t, "development", got[1]["env"])
}

func TestLevelIsPerInstance(t *testing.T) {
	quiet, quietBuf := newBuffered("error", "json")
	chatty, chattyBuf := newBuffered("debug", "json")

	quiet.Info("hidden")
	chatty.Debug("shown")

	assert.Empty(t, quietBuf.String())
	assert.Len(t, lines(t, chattyBuf), 1)
}

func TestFields(t *testing.T) {
	log, buf := newBuffered("debug", "json")

	log.WithField("dataset", "milk").
		WithFields(Fields{"freq": "weekly", "points": 13}).
		WithError(errors.New("cache miss")).
		Info("rollup served")

	got := lines(t, buf)
	require.Len(t, got, 1)
	assert.Equal(t, "milk", got[0]["dataset"])
	assert.Equal(t, "weekly", got[0]["freq"])
	assert.Equal(t, float64(13), got[0]["points"])
	assert.Equal(t, "cache miss", got[0]["error"])
}

func TestChildDoesNotLeakFields(t *testing.T) {
	log, buf := newBuffered("info", "json")

	_ = log.WithField("request_id", "abc")
	log.Info("plain")

	got := lines(t, buf)
	require.Len(t, got, 1)
	assert.NotContains(t, got[0], "request_id")
}

func TestComponent(t *testing.T) {
	log, buf := newBuffered("info", "json")

	zlog := log.Component("ingest")
	zlog.Info().Int("records", 3).Msg("input parsed")
	zlog.Debug().Msg("filtered by parent level")

	got := lines(t, buf)
	require.Len(t, got, 1)
	assert.Equal(t, "ingest", got[0]["component"])
	assert.Equal(t, float64(3), got[0]["records"])
}

func TestConsoleFormat(t *testing.T) {
	for _, format := range []string{"console", "pretty", "TEXT"} {
		t.Run(format, func(t *testing.T) {
			log, buf := newBuffered("info", format)
			log.Info("server started")

			out := buf.String()
			assert.Contains(t, out, "server started")
			assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "console output is not JSON")
		})
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error("discarded")
	assert.Equal(t, zerolog.Disabled, log.Level())
}
