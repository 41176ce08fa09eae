package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/wonny/rollup/internal/contracts"
)

// 출력 포맷은 이 파일에서만 정의

// stdout receives human-readable output; export switches it to stderr
var stdout io.Writer = os.Stdout

const (
	ruleWidth = 59
	colGap    = "  "
)

func rule(ch string) string { return strings.Repeat(ch, ruleWidth) }

// PrintHeader prints a boxed title with an optional subtitle
func PrintHeader(title, subtitle string) {
	fmt.Fprintln(stdout)
	PrintDoubleSeparator()
	fmt.Fprintln(stdout, "  "+title)
	if subtitle != "" {
		PrintSeparator()
		fmt.Fprintln(stdout, "  "+subtitle)
	}
	PrintDoubleSeparator()
}

func PrintSeparator()       { fmt.Fprintln(stdout, rule("─")) }
func PrintDoubleSeparator() { fmt.Fprintln(stdout, rule("═")) }

func PrintSuccess(msg string) { fmt.Fprintln(stdout, "✅ "+msg) }
func PrintError(msg string)   { fmt.Fprintln(stdout, "❌ "+msg) }
func PrintInfo(msg string)    { fmt.Fprintln(stdout, "ℹ️  "+msg) }

// PrintWarning stands apart from the surrounding output
func PrintWarning(msg string) {
	fmt.Fprintf(stdout, "\n⚠️  %s\n\n", msg)
}

// PrintTableHeader prints the column titles and an underline spanning them
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	total := len(colGap) * max(len(widths)-1, 0)
	for _, w := range widths {
		total += w
	}
	fmt.Fprintln(stdout, strings.Repeat("─", total))
}

// PrintTableRow pads each cell to its width; numeric cells after the first are right-aligned
func PrintTableRow(values []string, widths []int) {
	cells := make([]string, len(values))
	for i, v := range values {
		if i > 0 && isNumeric(v) {
			cells[i] = fmt.Sprintf("%*s", widths[i], v)
		} else {
			cells[i] = fmt.Sprintf("%-*s", widths[i], v)
		}
	}
	fmt.Fprintln(stdout, strings.Join(cells, colGap))
}

// PrintKeyValue prints one aligned "key : value" line
func PrintKeyValue(key, value string, keyWidth int) {
	fmt.Fprintf(stdout, "   %-*s : %s\n", keyWidth, key, value)
}

// PrintRowErrors lists rejected rows, at most limit of them
func PrintRowErrors(errs []contracts.RowError, limit int) {
	shown := min(len(errs), max(limit, 0))
	for _, e := range errs[:shown] {
		fmt.Fprintf(stdout, "   • row %d: %s\n", e.Row, e.Message)
	}
	if rest := len(errs) - shown; rest > 0 {
		fmt.Fprintf(stdout, "   … %d more\n", rest)
	}
}

// formatNumber renders a nullable number; missing values print as "-"
func formatNumber(v *float64, places int) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', places, 64)
}

// formatPct renders a nullable percentage with an explicit sign when positive
func formatPct(v *float64, places int) string {
	s := formatNumber(v, places)
	if v == nil {
		return s
	}
	if *v > 0 {
		s = "+" + s
	}
	return s + "%"
}

func isNumeric(s string) bool {
	if s == "-" {
		return true
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "+"), "%")
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
