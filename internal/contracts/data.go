package contracts

import (
	"math"

	"github.com/wonny/rollup/internal/datekey"
)

// DailyRecord is one observation for one calendar day
// ⭐ SSOT: 일별 관측값은 이 구조체로만 전달
type DailyRecord struct {
	Date  datekey.Date `json:"date"`
	Value float64      `json:"value"`
}

// IsValid reports whether the value can be stored (finite, non-negative)
func (r DailyRecord) IsValid() bool {
	return !r.Date.IsZero() && ValidValue(r.Value)
}

// ValidValue reports whether v is finite and >= 0
func ValidValue(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// RowError describes one rejected input row
type RowError struct {
	Row     int    `json:"row"`     // 1-based source line
	Message string `json:"message"`
}

// IngestResult is the outcome of parsing tabular input.
// Records and Errors may both be non-empty (partial success).
type IngestResult struct {
	Records       []DailyRecord `json:"records"`
	Errors        []RowError    `json:"errors"`
	HeaderSkipped bool          `json:"header_skipped"`
	Discarded     int           `json:"discarded"` // rows with fewer than two columns
}

// Empty reports whether no valid record was found
func (r *IngestResult) Empty() bool {
	return r == nil || len(r.Records) == 0
}

// HasErrors reports whether any row was rejected
func (r *IngestResult) HasErrors() bool {
	return r != nil && len(r.Errors) > 0
}
