package contracts

import (
	"fmt"
	"math"
	"strings"

	"github.com/wonny/rollup/internal/datekey"
)

// Frequency selects the rollup bucket type
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyRolling30 Frequency = "rolling30"
)

// Frequencies lists every supported frequency in display order
var Frequencies = []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyRolling30}

// ParseFrequency accepts the canonical names plus a few aliases
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "day", "d":
		return FrequencyDaily, nil
	case "weekly", "week", "w":
		return FrequencyWeekly, nil
	case "monthly", "month", "m":
		return FrequencyMonthly, nil
	case "rolling30", "rolling", "rolling-30", "r30":
		return FrequencyRolling30, nil
	default:
		return "", fmt.Errorf("unknown frequency %q", s)
	}
}

// WindowAggregate is one bucket of a rollup with its comparators.
// Nil pointers mean "no comparable data", never zero.
type WindowAggregate struct {
	PeriodLabel         string       `json:"period_label"`
	PeriodStart         datekey.Date `json:"period_start"`
	PeriodEnd           datekey.Date `json:"period_end"`
	CurrentTotal        *float64     `json:"current_total"`
	PriorPeriodTotal    *float64     `json:"prior_period_total"`
	PriorYearTotal      *float64     `json:"prior_year_total"`
	PeriodOverPeriodPct *float64     `json:"period_over_period_pct"`
	YoYPct              *float64     `json:"yoy_pct"`
}

// Rounded returns a copy with every number rounded to places decimals.
// Rounding happens once, at the presentation boundary.
func (w WindowAggregate) Rounded(places int) WindowAggregate {
	w.CurrentTotal = RoundPtr(w.CurrentTotal, places)
	w.PriorPeriodTotal = RoundPtr(w.PriorPeriodTotal, places)
	w.PriorYearTotal = RoundPtr(w.PriorYearTotal, places)
	w.PeriodOverPeriodPct = RoundPtr(w.PeriodOverPeriodPct, places)
	w.YoYPct = RoundPtr(w.YoYPct, places)
	return w
}

// RoundAll rounds a whole rollup
func RoundAll(points []WindowAggregate, places int) []WindowAggregate {
	out := make([]WindowAggregate, len(points))
	for i, p := range points {
		out[i] = p.Rounded(places)
	}
	return out
}

// KPISnapshot holds the headline metrics computed from the latest stored date
type KPISnapshot struct {
	LatestDate   *datekey.Date `json:"latest_date"`
	LatestValue  *float64      `json:"latest_value"`
	LatestYoYPct *float64      `json:"latest_yoy_pct"`
	Avg7         *float64      `json:"avg7"`
	Avg7YoYPct   *float64      `json:"avg7_yoy_pct"`
	Avg30        *float64      `json:"avg30"`
	Avg30YoYPct  *float64      `json:"avg30_yoy_pct"`
	YTDTotal     *float64      `json:"ytd_total"`
	YTDYoYPct    *float64      `json:"ytd_yoy_pct"`
	MTDAvg       *float64      `json:"mtd_avg"`
	MTDYoYPct    *float64      `json:"mtd_yoy_pct"`
}

// Rounded returns a copy with every number rounded to places decimals
func (k KPISnapshot) Rounded(places int) KPISnapshot {
	k.LatestValue = RoundPtr(k.LatestValue, places)
	k.LatestYoYPct = RoundPtr(k.LatestYoYPct, places)
	k.Avg7 = RoundPtr(k.Avg7, places)
	k.Avg7YoYPct = RoundPtr(k.Avg7YoYPct, places)
	k.Avg30 = RoundPtr(k.Avg30, places)
	k.Avg30YoYPct = RoundPtr(k.Avg30YoYPct, places)
	k.YTDTotal = RoundPtr(k.YTDTotal, places)
	k.YTDYoYPct = RoundPtr(k.YTDYoYPct, places)
	k.MTDAvg = RoundPtr(k.MTDAvg, places)
	k.MTDYoYPct = RoundPtr(k.MTDYoYPct, places)
	return k
}

// IsEmpty reports whether the snapshot was built from an empty series
func (k KPISnapshot) IsEmpty() bool {
	return k.LatestDate == nil
}

// Round rounds v half away from zero to places decimals
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// RoundPtr rounds a nullable value; nil stays nil
func RoundPtr(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	r := Round(*v, places)
	return &r
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
