package profile

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/wonny/rollup/internal/contracts"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks all required constraints
func Validate(p *Profile) error {
	// === Meta ===
	if p.Meta.Name == "" {
		return ValidationError{"meta.name", "required"}
	}

	// === Ingest ===
	if p.Ingest.Delimiter != `\t` && len([]rune(p.Ingest.Delimiter)) != 1 {
		return ValidationError{"ingest.delimiter", "must be a single character"}
	}
	if err := p.IngestConfig().Validate(); err != nil {
		return ValidationError{"ingest.delimiter", err.Error()}
	}

	// === Reporting ===
	if p.Reporting.FiscalStartMonth < 1 || p.Reporting.FiscalStartMonth > 12 {
		return ValidationError{"reporting.fiscal_start_month", "must be in [1, 12]"}
	}
	if p.Reporting.Precision < 0 || p.Reporting.Precision > 6 {
		return ValidationError{"reporting.precision", "must be in [0, 6]"}
	}
	if _, err := contracts.ParseFrequency(p.Reporting.DefaultFrequency); err != nil {
		return ValidationError{"reporting.default_frequency", err.Error()}
	}

	// === Schedule ===
	if p.Schedule.Digest != "" {
		if _, err := cron.ParseStandard(p.Schedule.Digest); err != nil {
			return ValidationError{"schedule.digest", err.Error()}
		}
	}

	return nil
}
