package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/datekey"
	"github.com/wonny/rollup/internal/ingest"
	"github.com/wonny/rollup/internal/kpi"
	"github.com/wonny/rollup/internal/profile"
	"github.com/wonny/rollup/internal/report"
	"github.com/wonny/rollup/internal/rollup"
	"github.com/wonny/rollup/internal/series"
	"github.com/wonny/rollup/pkg/redis"
)

// ResultCache stores computed results; *redis.Cache satisfies it
type ResultCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Notifier receives an event after every effective mutation
type Notifier interface {
	Publish(event contracts.SeriesEvent)
}

// Options wires the optional collaborators. Nil fields are skipped.
type Options struct {
	Repository contracts.DailyValueRepository
	Cache      ResultCache
	Notifier   Notifier
}

// Service owns the in-memory store and keeps the optional repository,
// cache and subscribers in step with it.
// ⭐ SSOT: 시계열 변경은 이 서비스를 통해서만 (write-through)
type Service struct {
	profile  *profile.Profile
	store    *series.Store
	ingestor *ingest.Ingestor
	agg      *rollup.Aggregator
	reporter *kpi.Reporter

	repo     contracts.DailyValueRepository
	cache    ResultCache
	notifier Notifier

	// held across the repository write and the store write of every mutation
	writeMu sync.Mutex

	// cache keys are scoped to the profile: precision and fiscal month change results
	profileTag string

	log zerolog.Logger
}

// New creates a service for profile p (nil uses profile.Default)
func New(p *profile.Profile, opts Options, log zerolog.Logger) *Service {
	if p == nil {
		p = profile.Default()
	}
	tag, err := profile.Hash(p)
	if err != nil {
		tag = p.Meta.Name
	}
	if len(tag) > 12 {
		tag = tag[:12]
	}

	return &Service{
		profile:    p,
		store:      series.NewStore(),
		ingestor:   ingest.New(p.IngestConfig(), log),
		agg:        rollup.NewAggregator(log),
		reporter:   kpi.NewReporter(p.FiscalStart(), log),
		repo:       opts.Repository,
		cache:      opts.Cache,
		notifier:   opts.Notifier,
		profileTag: tag,
		log:        log.With().Str("component", "dataset").Logger(),
	}
}

// SetNotifier replaces the subscriber; call before serving requests
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Profile returns the active dataset profile
func (s *Service) Profile() *profile.Profile { return s.profile }

// Ingestor returns the configured reader/writer
func (s *Service) Ingestor() *ingest.Ingestor { return s.ingestor }

// Snapshot returns the current immutable view
func (s *Service) Snapshot() *series.Series { return s.store.Snapshot() }

// Len returns the number of stored dates
func (s *Service) Len() int { return s.store.Len() }

// Version returns the store version
func (s *Service) Version() uint64 { return s.store.Version() }

// Restore loads every persisted record into the store
func (s *Service) Restore(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	records, err := s.repo.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load persisted series: %w", err)
	}
	n, err := s.store.Merge(records)
	if err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}

	s.log.Info().Int("records", n).Msg("series restored")
	s.notify(ctx, contracts.EventRestored, n)
	return n, nil
}

// Import parses r and merges the valid rows. The result is returned even
// when nothing was merged; ingest.ErrNoValidRows marks that case.
func (s *Service) Import(ctx context.Context, r io.Reader) (*contracts.IngestResult, error) {
	result, err := s.ingestor.Parse(r)
	if err != nil {
		return nil, err
	}
	if _, err := s.Apply(ctx, result); err != nil {
		return result, err
	}
	return result, nil
}

// Apply merges an already parsed result
func (s *Service) Apply(ctx context.Context, result *contracts.IngestResult) (int, error) {
	if err := ingest.NonEmpty(result); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.repo != nil {
		if err := s.repo.UpsertBatch(ctx, result.Records); err != nil {
			return 0, fmt.Errorf("persist import: %w", err)
		}
	}

	n, err := s.store.Merge(result.Records)
	if err != nil {
		return 0, err
	}

	s.log.Info().
		Int("merged", n).
		Int("rejected", len(result.Errors)).
		Int("total", s.store.Len()).
		Msg("records imported")

	s.notify(ctx, contracts.EventImported, n)
	return n, nil
}

// Upsert sets one day's value
func (s *Service) Upsert(ctx context.Context, date datekey.Date, value float64) error {
	if date.IsZero() {
		return series.ErrInvalidDate
	}
	if !contracts.ValidValue(value) {
		return fmt.Errorf("%w: %v on %s", series.ErrInvalidValue, value, date)
	}
	rec := contracts.DailyRecord{Date: date, Value: value}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.repo != nil {
		if err := s.repo.UpsertBatch(ctx, []contracts.DailyRecord{rec}); err != nil {
			return fmt.Errorf("persist %s: %w", date, err)
		}
	}
	if err := s.store.Upsert(date, value); err != nil {
		return err
	}

	s.notify(ctx, contracts.EventUpserted, 1)
	return nil
}

// Remove deletes one day; false when it was not stored
func (s *Service) Remove(ctx context.Context, date datekey.Date) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.repo != nil {
		if _, err := s.repo.Delete(ctx, date); err != nil {
			return false, fmt.Errorf("delete %s: %w", date, err)
		}
	}

	removed := s.store.Remove(date)
	if removed {
		s.notify(ctx, contracts.EventRemoved, 1)
	}
	return removed, nil
}

// Clear empties the series
func (s *Service) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.repo != nil {
		if err := s.repo.Clear(ctx); err != nil {
			return fmt.Errorf("clear persisted series: %w", err)
		}
	}

	n := s.store.Len()
	s.store.Clear()
	s.log.Info().Int("removed", n).Msg("series cleared")
	s.notify(ctx, contracts.EventCleared, n)
	return nil
}

// Export writes the current series as date,value text
func (s *Service) Export(w io.Writer) (int, error) {
	return s.ingestor.Export(w, s.store.Sorted())
}

// Rollup aggregates [from, to] at freq, rounded to the profile precision.
// Zero bounds default to the stored span.
func (s *Service) Rollup(ctx context.Context, from, to datekey.Date, freq contracts.Frequency) ([]contracts.WindowAggregate, error) {
	snap := s.store.Snapshot()
	key := s.cacheKey(func() string {
		return redis.RollupKey(snap.Fingerprint(), string(freq), from.String(), to.String())
	})

	var cached []contracts.WindowAggregate
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	points, err := s.agg.Aggregate(snap, from, to, freq)
	if err != nil {
		return nil, err
	}
	points = contracts.RoundAll(points, s.profile.Reporting.Precision)

	s.cacheSet(ctx, key, points)
	return points, nil
}

// KPI returns the headline snapshot, rounded to the profile precision
func (s *Service) KPI(ctx context.Context) contracts.KPISnapshot {
	return s.kpiFor(ctx, s.store.Snapshot())
}

func (s *Service) kpiFor(ctx context.Context, snap *series.Series) contracts.KPISnapshot {
	key := s.cacheKey(func() string {
		return redis.KPIKey(snap.Fingerprint(), int(s.reporter.FiscalStartMonth()))
	})

	var cached contracts.KPISnapshot
	if s.cacheGet(ctx, key, &cached) {
		return cached
	}

	out := s.reporter.Report(snap).Rounded(s.profile.Reporting.Precision)
	s.cacheSet(ctx, key, out)
	return out
}

// Workbook assembles a report over the whole stored span
func (s *Service) Workbook(ctx context.Context, freqs []contracts.Frequency) (report.Workbook, error) {
	snap := s.store.Snapshot()
	wb := report.Workbook{
		Title:  s.profile.Meta.Name,
		Unit:   s.profile.Meta.Unit,
		Series: snap,
		KPI:    s.kpiFor(ctx, snap),
	}
	for _, f := range freqs {
		points, err := s.Rollup(ctx, datekey.Date{}, datekey.Date{}, f)
		if err != nil {
			return wb, err
		}
		wb.Rollups = append(wb.Rollups, report.Rollup{Frequency: f, Points: points})
	}
	return wb, nil
}

// Digest publishes the current KPI snapshot without a mutation
func (s *Service) Digest(ctx context.Context) contracts.SeriesEvent {
	return s.notify(ctx, contracts.EventDigest, 0)
}

// cacheKey is empty without a cache so the fingerprint is never computed
func (s *Service) cacheKey(build func() string) string {
	if s.cache == nil {
		return ""
	}
	return s.profileTag + ":" + build()
}

// cache failures degrade to recomputation
func (s *Service) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache get failed")
		return false
	}
	return hit
}

func (s *Service) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, 0); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

func (s *Service) notify(ctx context.Context, typ contracts.SeriesEventType, changed int) contracts.SeriesEvent {
	snap := s.store.Snapshot()
	event := contracts.SeriesEvent{
		Type:    typ,
		Version: s.store.Version(),
		Records: snap.Len(),
		Changed: changed,
		KPI:     s.kpiFor(ctx, snap),
		At:      time.Now().UTC(),
	}
	if s.notifier != nil {
		s.notifier.Publish(event)
	}
	return event
}

// IsInputError reports whether err was caused by the caller's data
func IsInputError(err error) bool {
	return errors.Is(err, ingest.ErrNoValidRows) ||
		errors.Is(err, series.ErrInvalidValue) ||
		errors.Is(err, series.ErrInvalidDate) ||
		errors.Is(err, ingest.ErrInvalidDelimiter) ||
		errors.Is(err, rollup.ErrUnknownFrequency)
}
