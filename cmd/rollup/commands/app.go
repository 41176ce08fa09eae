package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/wonny/rollup/internal/data/repos"
	"github.com/wonny/rollup/internal/dataset"
	"github.com/wonny/rollup/internal/profile"
	"github.com/wonny/rollup/internal/source"
	"github.com/wonny/rollup/pkg/config"
	"github.com/wonny/rollup/pkg/database"
	"github.com/wonny/rollup/pkg/httputil"
	"github.com/wonny/rollup/pkg/logger"
	"github.com/wonny/rollup/pkg/redis"
)

// appOptions selects where the series comes from
type appOptions struct {
	file    string // load this file instead of the database
	persist bool   // require the database (writes go through)
	offline bool   // never touch the database
}

// app bundles the shared dependencies of every command
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	profile *profile.Profile
	db      *database.DB
	redis   *redis.Client
	repo    *repos.DailyValueRepository
	svc     *dataset.Service
}

// loadConfig applies the global flags on top of the environment
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if profilePath != "" {
		cfg.ProfilePath = profilePath
	}
	return cfg, nil
}

// newApp wires config, logging, profile, storage and the dataset service
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg)

	p, err := profile.Load(cfg.ProfilePath)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	a := &app{cfg: cfg, log: log, profile: p, redis: redis.Disabled()}

	useDB := opts.file == "" && !opts.offline && cfg.Database.Enabled()
	if opts.persist && !cfg.Database.Enabled() {
		return nil, database.ErrDisabled
	}
	if opts.persist {
		useDB = true
	}

	dsOpts := dataset.Options{}

	if useDB {
		db, err := database.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.db = db
		a.repo = repos.NewDailyValueRepository(db.Pool)
		if err := a.repo.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, err
		}
		dsOpts.Repository = a.repo
		log.Debug("Connected to database")
	}

	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, cfg)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, caching disabled")
		} else {
			a.redis = rc
			dsOpts.Cache = redis.NewCache(rc, "rollup", cfg.Redis.CacheTTL)
		}
	}

	a.svc = dataset.New(p, dsOpts, log.Zerolog())

	if a.repo != nil {
		if _, err := a.svc.Restore(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	if opts.file != "" {
		if err := a.loadFile(ctx, opts.file); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

// loadFile imports a file into the in-memory series
func (a *app) loadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	result, err := a.svc.Import(ctx, f)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	if result.HasErrors() {
		a.log.WithFields(map[string]interface{}{
			"file":     path,
			"rejected": len(result.Errors),
		}).Warn("Some rows were rejected")
	}
	return nil
}

// source builds the remote source client
func (a *app) source() *source.Source {
	limiter := redis.NewLimiter(a.redis, "rollup")
	client := httputil.New(a.cfg, a.log).
		WithRateLimiter(limiter, redis.SourceLimit(a.cfg.Source.RateLimit))

	return source.New(client, source.Config{
		URL:    a.cfg.Source.URL,
		Format: a.cfg.Source.Format,
	}, a.svc.Ingestor(), a.log.Zerolog())
}

// Close releases connections
func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.db.Close()
}
