package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/datekey"
	"github.com/wonny/rollup/internal/ingest"
	"github.com/wonny/rollup/internal/profile"
	"github.com/wonny/rollup/internal/series"
)

// fakeRepo is an in-memory contracts.DailyValueRepository
type fakeRepo struct {
	mu      sync.Mutex
	values  map[datekey.Date]float64
	failErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{values: make(map[datekey.Date]float64)}
}

func (r *fakeRepo) UpsertBatch(_ context.Context, records []contracts.DailyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	for _, rec := range records {
		r.values[rec.Date] = rec.Value
	}
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, date datekey.Date) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.values[date]
	delete(r.values, date)
	return ok, r.failErr
}

func (r *fakeRepo) Clear(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = make(map[datekey.Date]float64)
	return r.failErr
}

func (r *fakeRepo) LoadAll(context.Context) ([]contracts.DailyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]contracts.DailyRecord, 0, len(r.values))
	for d, v := range r.values {
		out = append(out, contracts.DailyRecord{Date: d, Value: v})
	}
	return out, r.failErr
}

// stallingRepo parks the first write of stallValue after it commits
// until release is closed
type stallingRepo struct {
	*fakeRepo
	stallValue float64
	committed  chan struct{}
	release    chan struct{}
	once       sync.Once
}

func newStallingRepo(v float64) *stallingRepo {
	return &stallingRepo{
		fakeRepo:   newFakeRepo(),
		stallValue: v,
		committed:  make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (r *stallingRepo) UpsertBatch(ctx context.Context, records []contracts.DailyRecord) error {
	if err := r.fakeRepo.UpsertBatch(ctx, records); err != nil {
		return err
	}
	if len(records) == 1 && records[0].Value == r.stallValue {
		r.once.Do(func() {
			close(r.committed)
			<-r.release
		})
	}
	return nil
}

// fakeCache stores JSON like the redis cache does
type fakeCache struct {
	data map[string][]byte
	hits int
}

func newFakeCache() *fakeCache { return &fakeCache{data: make(map[string][]byte)} }

func (c *fakeCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(b, dest)
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

type recorder struct {
	events []contracts.SeriesEvent
}

func (r *recorder) Publish(e contracts.SeriesEvent) { r.events = append(r.events, e) }

func day(y, m, d int) datekey.Date {
	return datekey.MustNew(y, time.Month(m), d)
}

func newTestService(opts Options) *Service {
	return New(nil, opts, zerolog.Nop())
}

func TestService_ImportWritesThrough(t *testing.T) {
	repo := newFakeRepo()
	rec := &recorder{}
	svc := newTestService(Options{Repository: repo, Notifier: rec})
	ctx := context.Background()

	res, err := svc.Import(ctx, strings.NewReader("date,value\n01-01-2024,10\nbad,1\n02-01-2024,20\n"))
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.Len(t, res.Errors, 1)

	assert.Equal(t, 2, svc.Len())
	assert.Len(t, repo.values, 2)

	require.Len(t, rec.events, 1)
	assert.Equal(t, contracts.EventImported, rec.events[0].Type)
	assert.Equal(t, 2, rec.events[0].Changed)
	assert.Equal(t, 20.0, *rec.events[0].KPI.LatestValue)
}

func TestService_ImportEmpty(t *testing.T) {
	svc := newTestService(Options{})

	res, err := svc.Import(context.Background(), strings.NewReader("date,value\nnope,1\n"))
	assert.ErrorIs(t, err, ingest.ErrNoValidRows)
	assert.True(t, IsInputError(err))
	require.NotNil(t, res)
	assert.Len(t, res.Errors, 1)
	assert.Equal(t, 0, svc.Len())
}

func TestService_RepositoryFailureLeavesStoreUntouched(t *testing.T) {
	repo := newFakeRepo()
	repo.failErr = errors.New("connection refused")
	svc := newTestService(Options{Repository: repo})
	ctx := context.Background()

	err := svc.Upsert(ctx, day(2024, 1, 1), 5)
	assert.Error(t, err)
	assert.Equal(t, 0, svc.Len())

	_, err = svc.Import(ctx, strings.NewReader("2024-01-01,1\n"))
	assert.Error(t, err)
	assert.False(t, IsInputError(err))
	assert.Equal(t, 0, svc.Len())
}

func TestService_UpsertRemoveClear(t *testing.T) {
	repo := newFakeRepo()
	rec := &recorder{}
	svc := newTestService(Options{Repository: repo, Notifier: rec})
	ctx := context.Background()

	require.NoError(t, svc.Upsert(ctx, day(2024, 1, 1), 5))
	require.NoError(t, svc.Upsert(ctx, day(2024, 1, 1), 7))
	v, _ := svc.Snapshot().Value(day(2024, 1, 1))
	assert.Equal(t, 7.0, v)

	assert.ErrorIs(t, svc.Upsert(ctx, day(2024, 1, 2), -1), series.ErrInvalidValue)
	assert.ErrorIs(t, svc.Upsert(ctx, datekey.Date{}, 1), series.ErrInvalidDate)

	removed, err := svc.Remove(ctx, day(2024, 1, 1))
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = svc.Remove(ctx, day(2024, 1, 1))
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, svc.Upsert(ctx, day(2024, 1, 3), 1))
	require.NoError(t, svc.Clear(ctx))
	assert.Equal(t, 0, svc.Len())
	assert.Empty(t, repo.values)

	types := make([]contracts.SeriesEventType, 0, len(rec.events))
	for _, e := range rec.events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []contracts.SeriesEventType{
		contracts.EventUpserted, contracts.EventUpserted, contracts.EventRemoved,
		contracts.EventUpserted, contracts.EventCleared,
	}, types)
	assert.True(t, rec.events[len(rec.events)-1].KPI.IsEmpty())
}

func TestService_ConcurrentWritersStayInStep(t *testing.T) {
	repo := newStallingRepo(1)
	svc := newTestService(Options{Repository: repo})
	ctx := context.Background()
	d := day(2024, 1, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, svc.Upsert(ctx, d, 1))
	}()
	<-repo.committed

	go func() {
		defer wg.Done()
		assert.NoError(t, svc.Upsert(ctx, d, 2))
	}()
	// give the second writer time to overtake if it could
	time.Sleep(50 * time.Millisecond)
	close(repo.release)
	wg.Wait()

	persisted, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)

	inMemory, ok := svc.Snapshot().Value(d)
	require.True(t, ok)
	assert.Equal(t, persisted[0].Value, inMemory, "memory and database disagree")
	assert.Equal(t, 2.0, inMemory)
}

func TestService_NoCacheSkipsKeys(t *testing.T) {
	svc := newTestService(Options{})
	key := svc.cacheKey(func() string {
		t.Error("key built without a cache")
		return "x"
	})
	assert.Empty(t, key)

	require.NoError(t, svc.Upsert(context.Background(), day(2024, 1, 1), 1))
	_, err := svc.Rollup(context.Background(), datekey.Date{}, datekey.Date{}, contracts.FrequencyDaily)
	require.NoError(t, err)
}

func TestService_Restore(t *testing.T) {
	repo := newFakeRepo()
	repo.values[day(2024, 1, 1)] = 1
	repo.values[day(2024, 1, 2)] = 2

	svc := newTestService(Options{Repository: repo})
	n, err := svc.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, svc.Len())

	n, err = newTestService(Options{}).Restore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_RollupRoundsAndCaches(t *testing.T) {
	cache := newFakeCache()
	svc := newTestService(Options{Cache: cache})
	ctx := context.Background()

	require.NoError(t, svc.Upsert(ctx, day(2024, 1, 1), 1.0/3))
	require.NoError(t, svc.Upsert(ctx, day(2024, 2, 1), 2.0/3))

	points, err := svc.Rollup(ctx, day(2024, 1, 1), day(2024, 2, 29), contracts.FrequencyMonthly)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 0.33, *points[0].CurrentTotal)
	assert.Equal(t, 0.67, *points[1].CurrentTotal)
	assert.Equal(t, 100.0, *points[1].PeriodOverPeriodPct)

	again, err := svc.Rollup(ctx, day(2024, 1, 1), day(2024, 2, 29), contracts.FrequencyMonthly)
	require.NoError(t, err)
	assert.Equal(t, points, again)
	assert.Equal(t, 1, cache.hits)

	// a mutation changes the fingerprint, so the old entry is never read
	require.NoError(t, svc.Upsert(ctx, day(2024, 2, 2), 1))
	fresh, err := svc.Rollup(ctx, day(2024, 1, 1), day(2024, 2, 29), contracts.FrequencyMonthly)
	require.NoError(t, err)
	assert.Equal(t, 1.67, *fresh[1].CurrentTotal)

	_, err = svc.Rollup(ctx, datekey.Date{}, datekey.Date{}, "hourly")
	assert.True(t, IsInputError(err))
}

func TestService_CacheScopedToProfile(t *testing.T) {
	cache := newFakeCache()
	ctx := context.Background()

	coarse := profile.Default()
	coarse.Reporting.Precision = 0

	a := New(nil, Options{Cache: cache}, zerolog.Nop())
	b := New(coarse, Options{Cache: cache}, zerolog.Nop())
	for _, svc := range []*Service{a, b} {
		require.NoError(t, svc.Upsert(ctx, day(2024, 1, 1), 1.0/3))
	}

	fine := a.KPI(ctx)
	rounded := b.KPI(ctx)
	assert.Equal(t, 0.33, *fine.LatestValue)
	assert.Equal(t, 0.0, *rounded.LatestValue, "same series, other profile, separate entry")
	assert.Len(t, cache.data, 2)
}

func TestService_ExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestService(Options{})
	for i := 0; i < 50; i++ {
		require.NoError(t, src.Upsert(ctx, day(2024, 1, 1).AddDays(i*3), float64(i)*1.25))
	}

	var buf bytes.Buffer
	n, err := src.Export(&buf)
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	dst := newTestService(Options{})
	_, err = dst.Import(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, src.Snapshot().Fingerprint(), dst.Snapshot().Fingerprint())
}

func TestService_ProfileSettings(t *testing.T) {
	p := profile.Default()
	p.Ingest.Delimiter = ";"
	p.Reporting.FiscalStartMonth = 1
	p.Reporting.Precision = 0

	svc := New(p, Options{}, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.Import(ctx, strings.NewReader("date;value\n2024-03-31;1,5\n2023-12-31;100\n"))
	require.NoError(t, err)

	snap := svc.KPI(ctx)
	assert.Equal(t, 15.0, *snap.YTDTotal, "calendar fiscal year excludes December")

	ev := svc.Digest(ctx)
	assert.Equal(t, contracts.EventDigest, ev.Type)
	assert.Equal(t, 2, ev.Records)
}
