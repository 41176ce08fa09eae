package logger_test

import (
	"errors"
	"os"

	"github.com/wonny/rollup/pkg/config"
	"github.com/wonny/rollup/pkg/logger"
)

// Example_basic shows command-level logging
func Example_basic() {
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "info",
		LogFormat: "console",
	}

	log := logger.New(cfg)

	log.Debug("not written at info level")
	log.Info("API server started")
}

// Example_withFields shows structured fields on a request
func Example_withFields() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}

	log := logger.NewWithWriter(cfg, os.Stderr)

	log.WithFields(logger.Fields{
		"freq":   "weekly",
		"from":   "2024-01-01",
		"to":     "2024-03-31",
		"points": 13,
	}).Info("Rollup served")
}

// Example_component shows the zerolog logger handed to engine packages
func Example_component() {
	log := logger.New(&config.Config{Env: "production", LogLevel: "error"})

	err := errors.New("connection refused")
	log.WithError(err).Error("Failed to fetch source")

	zlog := log.Component("source")
	zlog.Error().Err(err).Int("attempt", 3).Msg("giving up")
}
