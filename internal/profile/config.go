package profile

import (
	"time"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/ingest"
)

// Profile describes one dataset: how to read it and how to report on it
type Profile struct {
	Meta      Meta      `yaml:"meta" json:"meta"`
	Ingest    Ingest    `yaml:"ingest" json:"ingest"`
	Reporting Reporting `yaml:"reporting" json:"reporting"`
	Schedule  Schedule  `yaml:"schedule" json:"schedule"`
}

// Meta 메타 정보
type Meta struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Unit        string `yaml:"unit" json:"unit"` // display only, e.g. "litres"
}

// Ingest controls the tabular reader
type Ingest struct {
	Delimiter    string   `yaml:"delimiter" json:"delimiter"` // single character
	ValueKeyword string   `yaml:"value_keyword" json:"value_keyword"`
	UnitTokens   []string `yaml:"unit_tokens" json:"unit_tokens"`
}

// Reporting controls rollup and KPI presentation
type Reporting struct {
	FiscalStartMonth int    `yaml:"fiscal_start_month" json:"fiscal_start_month"` // 1-12
	Precision        int    `yaml:"precision" json:"precision"`                   // decimals at output
	DefaultFrequency string `yaml:"default_frequency" json:"default_frequency"`
}

// Schedule holds cron specs for background jobs (empty disables)
type Schedule struct {
	Digest string `yaml:"digest" json:"digest"`
}

// Default returns the built-in profile used when no file is configured
func Default() *Profile {
	return &Profile{
		Meta: Meta{
			Name: "daily",
		},
		Ingest: Ingest{
			Delimiter:  ",",
			UnitTokens: append([]string(nil), ingest.DefaultUnitTokens...),
		},
		Reporting: Reporting{
			FiscalStartMonth: 4,
			Precision:        2,
			DefaultFrequency: string(contracts.FrequencyDaily),
		},
		Schedule: Schedule{
			Digest: "0 8 * * *",
		},
	}
}

// IngestConfig converts the ingest section for the ingest package
func (p *Profile) IngestConfig() ingest.Config {
	cfg := ingest.Config{
		ValueKeyword: p.Ingest.ValueKeyword,
		UnitTokens:   p.Ingest.UnitTokens,
	}
	if r := []rune(p.Ingest.Delimiter); len(r) == 1 {
		cfg.Delimiter = r[0]
	} else if p.Ingest.Delimiter == `\t` {
		cfg.Delimiter = '\t'
	}
	return cfg
}

// FiscalStart returns the first month of the fiscal year
func (p *Profile) FiscalStart() time.Month {
	return time.Month(p.Reporting.FiscalStartMonth)
}

// Frequency returns the default rollup frequency
func (p *Profile) Frequency() contracts.Frequency {
	f, err := contracts.ParseFrequency(p.Reporting.DefaultFrequency)
	if err != nil {
		return contracts.FrequencyDaily
	}
	return f
}
