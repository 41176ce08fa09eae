package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/rollup/pkg/config"
	"github.com/wonny/rollup/pkg/logger"
)

// Server runs the API listener and, when METRICS_PORT differs from PORT,
// a second listener for /metrics only
// ⭐ SSOT: API 서버 설정은 이 파일에서만
type Server struct {
	api     *http.Server
	metrics *http.Server
	log     *logger.Logger
}

// New builds the listeners; metrics may be nil
func New(cfg *config.Config, log *logger.Logger, router http.Handler, metrics http.Handler) *Server {
	s := &Server{
		api: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       time.Minute,
			WriteTimeout:      time.Minute,
			IdleTimeout:       2 * time.Minute,
		},
		log: log.WithFields(logger.Fields{"env": cfg.Env}),
	}

	if metrics != nil && cfg.MetricsEnabled && cfg.MetricsPort != "" && cfg.MetricsPort != cfg.Port {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics)
		s.metrics = &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s
}

// Start blocks until the API listener stops; Shutdown makes it return nil
func (s *Server) Start() error {
	if s.metrics != nil {
		go func() {
			s.log.WithField("addr", s.metrics.Addr).Info("Metrics listening")
			if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	s.log.WithField("addr", s.api.Addr).Info("API listening")
	if err := s.api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen %s: %w", s.api.Addr, err)
	}
	return nil
}

// Shutdown drains both listeners
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down API server")
	if s.metrics != nil {
		if err := s.metrics.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("Metrics server shutdown failed")
		}
	}
	return s.api.Shutdown(ctx)
}
