package kpi

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/datekey"
	"github.com/wonny/rollup/internal/growth"
	"github.com/wonny/rollup/internal/series"
)

// DefaultFiscalStartMonth is the first month of the fiscal year
const DefaultFiscalStartMonth = time.April

// Reporter computes headline metrics anchored on the latest stored date
// ⭐ SSOT: KPI 계산은 여기서만 (기준일 = 마지막 관측일, 오늘 아님)
type Reporter struct {
	fiscalStart time.Month
	log         zerolog.Logger
}

// NewReporter creates a reporter; an out-of-range month falls back to April
func NewReporter(fiscalStart time.Month, log zerolog.Logger) *Reporter {
	if fiscalStart < time.January || fiscalStart > time.December {
		fiscalStart = DefaultFiscalStartMonth
	}
	return &Reporter{
		fiscalStart: fiscalStart,
		log:         log.With().Str("component", "kpi.reporter").Logger(),
	}
}

// FiscalStartMonth returns the configured first month of the fiscal year
func (r *Reporter) FiscalStartMonth() time.Month {
	return r.fiscalStart
}

// Report builds the snapshot. Every metric is nil when its basis is empty;
// an empty series yields an all-nil snapshot.
func (r *Reporter) Report(s *series.Series) contracts.KPISnapshot {
	latest, ok := s.Latest()
	if !ok {
		return contracts.KPISnapshot{}
	}

	d := latest.Date
	ly := d.AddYears(-1) // Feb 29 → Feb 28

	var snap contracts.KPISnapshot
	snap.LatestDate = &d
	snap.LatestValue = contracts.Float(latest.Value)
	snap.LatestYoYPct = growth.Pct(snap.LatestValue, s.ValuePtr(ly))

	snap.Avg7 = trailingMean(s, d, 7)
	snap.Avg7YoYPct = growth.Pct(snap.Avg7, trailingMean(s, ly, 7))

	snap.Avg30 = trailingMean(s, d, 30)
	snap.Avg30YoYPct = growth.Pct(snap.Avg30, trailingMean(s, ly, 30))

	fyStart := FiscalYearStart(d, r.fiscalStart)
	snap.YTDTotal = s.SumPtr(fyStart, d)
	snap.YTDYoYPct = growth.Pct(snap.YTDTotal, s.SumPtr(fyStart.AddYears(-1), ly))

	snap.MTDAvg = s.Mean(d.StartOfMonth(), d)
	snap.MTDYoYPct = growth.Pct(snap.MTDAvg, s.Mean(ly.StartOfMonth(), ly))

	r.log.Debug().
		Str("latest", d.String()).
		Str("fiscal_start", fyStart.String()).
		Msg("kpi snapshot computed")

	return snap
}

// FiscalYearStart returns the first day of the fiscal year containing d
func FiscalYearStart(d datekey.Date, startMonth time.Month) datekey.Date {
	return d.AddMonths(-monthsSince(d.Month(), startMonth)).StartOfMonth()
}

// monthsSince counts whole months from startMonth back to m within one fiscal year
func monthsSince(m, startMonth time.Month) int {
	return (int(m) - int(startMonth) + 12) % 12
}

// trailingMean averages existing values in the n-day window ending at end
func trailingMean(s *series.Series, end datekey.Date, n int) *float64 {
	return s.Mean(end.AddDays(-(n - 1)), end)
}
