package series

import (
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/datekey"
)

// ErrInvalidValue is returned for negative, NaN or infinite values
var ErrInvalidValue = errors.New("invalid value")

// ErrInvalidDate is returned for the zero Date
var ErrInvalidDate = errors.New("invalid date key")

// Store holds the sparse day→value dataset.
// Writers are serialized; readers take a point-in-time Snapshot.
// ⭐ SSOT: 시계열 데이터의 유일한 가변 저장소
type Store struct {
	mu      sync.RWMutex
	values  map[datekey.Date]float64
	version uint64
	snap    *Series // cached snapshot, nil after a mutation
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{values: make(map[datekey.Date]float64)}
}

func validate(date datekey.Date, value float64) error {
	if date.IsZero() {
		return ErrInvalidDate
	}
	if !contracts.ValidValue(value) {
		return fmt.Errorf("%w: %v on %s", ErrInvalidValue, value, date)
	}
	return nil
}

// Upsert inserts or overwrites the value for date
func (s *Store) Upsert(date datekey.Date, value float64) error {
	if err := validate(date, value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[date] = value
	s.touch()
	return nil
}

// Remove deletes date; returns false when it was not present
func (s *Store) Remove(date datekey.Date) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[date]; !ok {
		return false
	}
	delete(s.values, date)
	s.touch()
	return true
}

// Merge upserts every record in order (last write wins).
// All records are validated first; nothing is applied if one is invalid.
func (s *Store) Merge(records []contracts.DailyRecord) (int, error) {
	for i, r := range records {
		if err := validate(r.Date, r.Value); err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
	}
	if len(records) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		s.values[r.Date] = r.Value
	}
	s.touch()
	return len(records), nil
}

// Clear removes every entry
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.values) == 0 {
		return
	}
	s.values = make(map[datekey.Date]float64)
	s.touch()
}

// touch must be called with the write lock held
func (s *Store) touch() {
	s.version++
	s.snap = nil
}

// Len returns the number of stored dates
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Get returns the value stored for date
func (s *Store) Get(date datekey.Date) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[date]
	return v, ok
}

// Version increases on every effective mutation
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns an immutable, sorted view of the current contents.
// The view stays valid and unchanged while the store keeps mutating.
func (s *Store) Snapshot() *Series {
	s.mu.RLock()
	if snap := s.snap; snap != nil {
		s.mu.RUnlock()
		return snap
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		s.snap = newSeries(s.values)
	}
	return s.snap
}

// Sorted returns a lazy, restartable ascending sequence over a snapshot
// taken when Sorted is called.
func (s *Store) Sorted() iter.Seq[contracts.DailyRecord] {
	return s.Snapshot().All()
}
