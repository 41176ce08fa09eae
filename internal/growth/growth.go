// Package growth computes period-over-period percentage change.
//
// A missing or zero denominator is not an error: it means no comparison is
// available and is reported as nil.
package growth

// Pct returns (curr - prev) / prev * 100.
// nil when curr or prev is nil, or prev is exactly zero. No clamping.
func Pct(curr, prev *float64) *float64 {
	if curr == nil || prev == nil || *prev == 0 {
		return nil
	}
	v := (*curr - *prev) / *prev * 100
	return &v
}

// Of is Pct for plain values
func Of(curr, prev float64) *float64 {
	return Pct(&curr, &prev)
}
