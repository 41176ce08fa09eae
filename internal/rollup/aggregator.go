package rollup

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/datekey"
	"github.com/wonny/rollup/internal/growth"
	"github.com/wonny/rollup/internal/series"
)

// ErrUnknownFrequency is returned for a frequency outside contracts.Frequencies
var ErrUnknownFrequency = errors.New("unknown frequency")

const (
	// weekly YoY goes back 52 weeks so weekdays stay aligned
	weeksPerYearDays = 364
	// rolling YoY goes back exactly 365 days
	rollingYearDays = 365
	rollingWindow   = 30
)

// Aggregator builds comparable-window rollups from a series snapshot
// ⭐ SSOT: 기간별 집계/성장률 계산은 이 집계기에서만
type Aggregator struct {
	log zerolog.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(log zerolog.Logger) *Aggregator {
	return &Aggregator{
		log: log.With().Str("component", "rollup.aggregator").Logger(),
	}
}

// Aggregate returns the ordered buckets for [from, to] at the given frequency.
// from/to are swapped when reversed; a zero bound defaults to the series edge.
// Values carry full precision; round with contracts.RoundAll at output.
func (a *Aggregator) Aggregate(s *series.Series, from, to datekey.Date, freq contracts.Frequency) ([]contracts.WindowAggregate, error) {
	first, ok := s.First()
	if !ok {
		return []contracts.WindowAggregate{}, checkFrequency(freq)
	}
	latest, _ := s.Latest()
	if from.IsZero() {
		from = first.Date
	}
	if to.IsZero() {
		to = latest.Date
	}
	from, to = datekey.Ordered(from, to)

	var points []contracts.WindowAggregate
	switch freq {
	case contracts.FrequencyDaily:
		points = Daily(s, from, to)
	case contracts.FrequencyWeekly:
		points = Weekly(s, from, to)
	case contracts.FrequencyMonthly:
		points = Monthly(s, from, to)
	case contracts.FrequencyRolling30:
		points = Rolling30(s, from, to)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrequency, freq)
	}

	a.log.Debug().
		Str("frequency", string(freq)).
		Str("from", from.String()).
		Str("to", to.String()).
		Int("points", len(points)).
		Msg("rollup computed")

	return points, nil
}

func checkFrequency(freq contracts.Frequency) error {
	for _, f := range contracts.Frequencies {
		if f == freq {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownFrequency, freq)
}

// Daily emits one point per stored date in range.
// YoY compares with the same month/day a year earlier (Feb 29 → Feb 28).
// MoM compares with the same day a month earlier only if that date exists.
func Daily(s *series.Series, from, to datekey.Date) []contracts.WindowAggregate {
	records := s.Between(from, to)
	points := make([]contracts.WindowAggregate, 0, len(records))

	for _, r := range records {
		cur := r.Value
		priorYear := s.ValuePtr(r.Date.AddYears(-1))

		var priorMonth *float64
		if d, ok := r.Date.AddMonthsExact(-1); ok {
			priorMonth = s.ValuePtr(d)
		}

		points = append(points, contracts.WindowAggregate{
			PeriodLabel:         r.Date.String(),
			PeriodStart:         r.Date,
			PeriodEnd:           r.Date,
			CurrentTotal:        &cur,
			PriorPeriodTotal:    priorMonth,
			PriorYearTotal:      priorYear,
			PeriodOverPeriodPct: growth.Pct(&cur, priorMonth),
			YoYPct:              growth.Pct(&cur, priorYear),
		})
	}
	return points
}

// weekBucket collects one ISO week of in-range observations
type weekBucket struct {
	start   datekey.Date
	total   float64
	offsets [7]bool // Monday=0
}

// Weekly buckets by ISO week. Comparison weeks sum only the weekday offsets
// observed in the current week, and are nil unless every offset has data.
func Weekly(s *series.Series, from, to datekey.Date) []contracts.WindowAggregate {
	var buckets []*weekBucket
	for _, r := range s.Between(from, to) {
		start := r.Date.StartOfISOWeek()
		if n := len(buckets); n == 0 || buckets[n-1].start != start {
			buckets = append(buckets, &weekBucket{start: start})
		}
		b := buckets[len(buckets)-1]
		b.total += r.Value
		b.offsets[r.Date.ISOWeekday()] = true
	}

	points := make([]contracts.WindowAggregate, 0, len(buckets))
	for _, b := range buckets {
		cur := b.total
		priorWeek := offsetSum(s, b.start.AddDays(-7), b.offsets)
		priorYear := offsetSum(s, b.start.AddDays(-weeksPerYearDays), b.offsets)

		year, week := b.start.ISOWeek()
		points = append(points, contracts.WindowAggregate{
			PeriodLabel:         fmt.Sprintf("%04d-W%02d", year, week),
			PeriodStart:         b.start,
			PeriodEnd:           b.start.AddDays(6),
			CurrentTotal:        &cur,
			PriorPeriodTotal:    priorWeek,
			PriorYearTotal:      priorYear,
			PeriodOverPeriodPct: growth.Pct(&cur, priorWeek),
			YoYPct:              growth.Pct(&cur, priorYear),
		})
	}
	return points
}

// offsetSum sums weekStart+offset for each set offset; nil if any is missing
func offsetSum(s *series.Series, weekStart datekey.Date, offsets [7]bool) *float64 {
	var total float64
	matched := 0
	for off, set := range offsets {
		if !set {
			continue
		}
		v, ok := s.Value(weekStart.AddDays(off))
		if !ok {
			return nil
		}
		total += v
		matched++
	}
	if matched == 0 {
		return nil
	}
	return &total
}

// monthBucket collects one calendar month of in-range observations
type monthBucket struct {
	start  datekey.Date
	total  float64
	minDay int // first in-range day; >1 only when from clips the month
	maxDay int
}

// Monthly buckets by calendar month. Prior-month and prior-year comparators
// sum only days minDay..maxDay of the comparison month so a clipped or
// in-progress month is never compared with a complete one.
func Monthly(s *series.Series, from, to datekey.Date) []contracts.WindowAggregate {
	var buckets []*monthBucket
	for _, r := range s.Between(from, to) {
		start := r.Date.StartOfMonth()
		if n := len(buckets); n == 0 || buckets[n-1].start != start {
			b := &monthBucket{start: start, minDay: 1}
			if from.After(start) {
				b.minDay = from.Day()
			}
			buckets = append(buckets, b)
		}
		b := buckets[len(buckets)-1]
		b.total += r.Value
		b.maxDay = max(b.maxDay, r.Date.Day())
	}

	points := make([]contracts.WindowAggregate, 0, len(buckets))
	for _, b := range buckets {
		cur := b.total
		priorMonth := dayRangeSum(s, b.start.AddMonths(-1), b.minDay, b.maxDay)
		priorYear := dayRangeSum(s, b.start.AddYears(-1), b.minDay, b.maxDay)

		points = append(points, contracts.WindowAggregate{
			PeriodLabel:         fmt.Sprintf("%04d-%02d", b.start.Year(), int(b.start.Month())),
			PeriodStart:         b.start,
			PeriodEnd:           b.start.WithDay(b.start.DaysInMonth()),
			CurrentTotal:        &cur,
			PriorPeriodTotal:    priorMonth,
			PriorYearTotal:      priorYear,
			PeriodOverPeriodPct: growth.Pct(&cur, priorMonth),
			YoYPct:              growth.Pct(&cur, priorYear),
		})
	}
	return points
}

// dayRangeSum sums days minDay..maxDay of monthStart's month (maxDay clamped
// to the month end); nil when minDay is past the month end or nothing is stored
func dayRangeSum(s *series.Series, monthStart datekey.Date, minDay, maxDay int) *float64 {
	if minDay > monthStart.DaysInMonth() {
		return nil
	}
	return s.SumPtr(monthStart.WithDay(minDay), monthStart.WithDay(maxDay))
}

// Rolling30 emits one point per calendar day in range with the trailing
// 30-day inclusive sum. The range is clamped to [first, latest+29], the days
// whose window can hold data. An all-missing window is nil.
// YoY compares with the window ending exactly 365 days earlier.
func Rolling30(s *series.Series, from, to datekey.Date) []contracts.WindowAggregate {
	first, ok := s.First()
	if !ok {
		return []contracts.WindowAggregate{}
	}
	latest, _ := s.Latest()

	start := datekey.Max(from, first.Date)
	end := datekey.Min(to, latest.Date.AddDays(rollingWindow-1))
	if start.After(end) {
		return []contracts.WindowAggregate{}
	}

	points := make([]contracts.WindowAggregate, 0, start.DaysBetween(end)+1)
	for d := start; !d.After(end); d = d.AddDays(1) {
		cur := trailingSum(s, d)
		priorYear := trailingSum(s, d.AddDays(-rollingYearDays))

		points = append(points, contracts.WindowAggregate{
			PeriodLabel:    d.String(),
			PeriodStart:    d.AddDays(-(rollingWindow - 1)),
			PeriodEnd:      d,
			CurrentTotal:   cur,
			PriorYearTotal: priorYear,
			YoYPct:         growth.Pct(cur, priorYear),
		})
	}
	return points
}

func trailingSum(s *series.Series, end datekey.Date) *float64 {
	return s.SumPtr(end.AddDays(-(rollingWindow - 1)), end)
}
