package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/rollup/internal/contracts"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name string
		v    *float64
		pct  bool
		want string
	}{
		{"nil number", nil, false, "-"},
		{"nil pct", nil, true, "-"},
		{"number", contracts.Float(1234.5), false, "1234.50"},
		{"positive pct", contracts.Float(12.345), true, "+12.35%"},
		{"negative pct", contracts.Float(-100), true, "-100.00%"},
		{"zero pct", contracts.Float(0), true, "0.00%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.pct {
				assert.Equal(t, tt.want, formatPct(tt.v, 2))
			} else {
				assert.Equal(t, tt.want, formatNumber(tt.v, 2))
			}
		})
	}
}

func TestPrintTable(t *testing.T) {
	buf := captureOutput(t)

	widths := []int{8, 6}
	PrintTableHeader([]string{"Period", "Total"}, widths)
	PrintTableRow([]string{"2024-01", "12.5"}, widths)

	want := "Period    Total \n" + strings.Repeat("─", 16) + "\n" + "2024-01     12.5\n"
	assert.Equal(t, want, buf.String())
}

func TestPrintRowErrors(t *testing.T) {
	buf := captureOutput(t)

	PrintRowErrors([]contracts.RowError{{Row: 2, Message: "a"}, {Row: 5, Message: "b"}, {Row: 9, Message: "c"}}, 2)
	assert.Equal(t, "   • row 2: a\n   • row 5: b\n   … 1 more\n", buf.String())
}
