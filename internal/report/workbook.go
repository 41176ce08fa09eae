package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/series"
)

// Sheet names
const (
	SheetSeries = "Series"
	SheetKPI    = "KPI"
)

// Rollup is one aggregate sheet
type Rollup struct {
	Frequency contracts.Frequency
	Points    []contracts.WindowAggregate
}

// Workbook collects everything written into one report
type Workbook struct {
	Title   string
	Unit    string
	Series  *series.Series
	KPI     contracts.KPISnapshot
	Rollups []Rollup
}

var aggregateHeader = []interface{}{
	"Period", "Start", "End", "Total", "Prior period", "Prior year", "Period change %", "YoY %",
}

// Write renders the workbook as XLSX into w
func Write(w io.Writer, wb Workbook) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetKPI); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeKPI(f, wb); err != nil {
		return err
	}
	if err := writeSeries(f, wb); err != nil {
		return err
	}
	for _, r := range wb.Rollups {
		if err := writeRollup(f, r); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeKPI(f *excelize.File, wb Workbook) error {
	k := wb.KPI
	latest := ""
	if k.LatestDate != nil {
		latest = k.LatestDate.String()
	}

	rows := [][]interface{}{
		{"Report", wb.Title},
		{"Unit", wb.Unit},
		{"Latest date", latest},
		{"Metric", "Value", "YoY %"},
		{"Latest value", cell(k.LatestValue), cell(k.LatestYoYPct)},
		{"7-day average", cell(k.Avg7), cell(k.Avg7YoYPct)},
		{"30-day average", cell(k.Avg30), cell(k.Avg30YoYPct)},
		{"Fiscal YTD total", cell(k.YTDTotal), cell(k.YTDYoYPct)},
		{"Month-to-date average", cell(k.MTDAvg), cell(k.MTDYoYPct)},
	}
	return setRows(f, SheetKPI, rows)
}

func writeSeries(f *excelize.File, wb Workbook) error {
	if _, err := f.NewSheet(SheetSeries); err != nil {
		return fmt.Errorf("create sheet %s: %w", SheetSeries, err)
	}

	rows := [][]interface{}{{"Date", "Value"}}
	if wb.Series != nil {
		for r := range wb.Series.All() {
			rows = append(rows, []interface{}{r.Date.String(), r.Value})
		}
	}
	return setRows(f, SheetSeries, rows)
}

func writeRollup(f *excelize.File, r Rollup) error {
	name := SheetName(r.Frequency)
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	rows := make([][]interface{}, 0, len(r.Points)+1)
	rows = append(rows, aggregateHeader)
	for _, p := range r.Points {
		rows = append(rows, []interface{}{
			p.PeriodLabel,
			p.PeriodStart.String(),
			p.PeriodEnd.String(),
			cell(p.CurrentTotal),
			cell(p.PriorPeriodTotal),
			cell(p.PriorYearTotal),
			cell(p.PeriodOverPeriodPct),
			cell(p.YoYPct),
		})
	}
	return setRows(f, name, rows)
}

// SheetName returns the sheet used for a frequency
func SheetName(freq contracts.Frequency) string {
	switch freq {
	case contracts.FrequencyDaily:
		return "Daily"
	case contracts.FrequencyWeekly:
		return "Weekly"
	case contracts.FrequencyMonthly:
		return "Monthly"
	case contracts.FrequencyRolling30:
		return "Rolling 30"
	default:
		return string(freq)
	}
}

func setRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, addr, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// cell leaves missing values blank instead of writing 0
func cell(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// DefaultFrequencies are the rollup sheets written when none are requested
var DefaultFrequencies = []contracts.Frequency{contracts.FrequencyMonthly, contracts.FrequencyWeekly}

// ParseFrequencies accepts repeated or comma-separated names
func ParseFrequencies(raw []string) ([]contracts.Frequency, error) {
	var out []contracts.Frequency
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			f, err := contracts.ParseFrequency(part)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return DefaultFrequencies, nil
	}
	return out, nil
}
