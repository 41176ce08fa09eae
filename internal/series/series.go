package series

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"iter"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/datekey"
)

// Series is an immutable, ascending view of a store at one point in time.
// All analytics read from a Series, never from the Store directly.
type Series struct {
	records []contracts.DailyRecord
	index   map[datekey.Date]float64

	fpOnce      sync.Once
	fingerprint string
}

func newSeries(values map[datekey.Date]float64) *Series {
	records := make([]contracts.DailyRecord, 0, len(values))
	index := make(map[datekey.Date]float64, len(values))
	for d, v := range values {
		records = append(records, contracts.DailyRecord{Date: d, Value: v})
		index[d] = v
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
	return &Series{records: records, index: index}
}

// FromRecords builds a Series directly (last record wins on duplicates).
// Invalid records are skipped.
func FromRecords(records []contracts.DailyRecord) *Series {
	values := make(map[datekey.Date]float64, len(records))
	for _, r := range records {
		if r.IsValid() {
			values[r.Date] = r.Value
		}
	}
	return newSeries(values)
}

// Len returns the number of observations
func (s *Series) Len() int { return len(s.records) }

// All yields every record in ascending date order
func (s *Series) All() iter.Seq[contracts.DailyRecord] {
	return func(yield func(contracts.DailyRecord) bool) {
		for _, r := range s.records {
			if !yield(r) {
				return
			}
		}
	}
}

// Records returns a copy of the sorted records
func (s *Series) Records() []contracts.DailyRecord {
	return slices.Clone(s.records)
}

// Value returns the observation at d
func (s *Series) Value(d datekey.Date) (float64, bool) {
	v, ok := s.index[d]
	return v, ok
}

// ValuePtr returns the observation at d, nil when missing
func (s *Series) ValuePtr(d datekey.Date) *float64 {
	if v, ok := s.index[d]; ok {
		return &v
	}
	return nil
}

// First returns the earliest record
func (s *Series) First() (contracts.DailyRecord, bool) {
	if len(s.records) == 0 {
		return contracts.DailyRecord{}, false
	}
	return s.records[0], true
}

// Latest returns the most recent record
func (s *Series) Latest() (contracts.DailyRecord, bool) {
	if len(s.records) == 0 {
		return contracts.DailyRecord{}, false
	}
	return s.records[len(s.records)-1], true
}

// bounds returns the index range [lo, hi) of records within [from, to]
func (s *Series) bounds(from, to datekey.Date) (int, int) {
	from, to = datekey.Ordered(from, to)
	lo := sort.Search(len(s.records), func(i int) bool {
		return !s.records[i].Date.Before(from)
	})
	hi := sort.Search(len(s.records), func(i int) bool {
		return s.records[i].Date.After(to)
	})
	return lo, hi
}

// Between returns the records within the inclusive range [from, to]
func (s *Series) Between(from, to datekey.Date) []contracts.DailyRecord {
	lo, hi := s.bounds(from, to)
	return s.records[lo:hi:hi]
}

// Sum returns the total and the number of observations in [from, to]
func (s *Series) Sum(from, to datekey.Date) (float64, int) {
	lo, hi := s.bounds(from, to)
	var total float64
	for _, r := range s.records[lo:hi] {
		total += r.Value
	}
	return total, hi - lo
}

// SumPtr is Sum with nil for an empty window
func (s *Series) SumPtr(from, to datekey.Date) *float64 {
	total, n := s.Sum(from, to)
	if n == 0 {
		return nil
	}
	return &total
}

// Mean averages existing observations in [from, to]; missing days are
// ignored, not zero-filled. nil for an empty window.
func (s *Series) Mean(from, to datekey.Date) *float64 {
	total, n := s.Sum(from, to)
	if n == 0 {
		return nil
	}
	mean := total / float64(n)
	return &mean
}

// Fingerprint identifies the exact contents (dates and values).
// Computed once per snapshot.
func (s *Series) Fingerprint() string {
	s.fpOnce.Do(func() {
		h := sha256.New()
		var buf [8]byte
		for _, r := range s.records {
			h.Write([]byte(r.Date.String()))
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(r.Value))
			h.Write(buf[:])
		}
		s.fingerprint = hex.EncodeToString(h.Sum(nil))
	})
	return s.fingerprint
}
