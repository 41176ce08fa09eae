package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/datekey"
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "기간별 집계 및 성장률 조회",
	Long: `일/주/월/30일 롤링 집계와 비교 기간 성장률을 출력합니다.

비교 기간은 항상 같은 날짜 범위만 합산합니다
(부분 월은 이전 달의 같은 일수와 비교).

Example:
  go run ./cmd/rollup query --file milk.csv --freq monthly
  go run ./cmd/rollup query --freq weekly --from 2024-01-01 --to 2024-03-31
  go run ./cmd/rollup query --freq rolling30 --json`,
	RunE: runQuery,
}

var (
	queryFile string
	queryFreq string
	queryFrom string
	queryTo   string
	queryJSON bool
)

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVar(&queryFile, "file", "", "read this CSV instead of the database")
	queryCmd.Flags().StringVar(&queryFreq, "freq", "", "daily|weekly|monthly|rolling30 (default from profile)")
	queryCmd.Flags().StringVar(&queryFrom, "from", "", "range start (YYYY-MM-DD or DD-MM-YYYY)")
	queryCmd.Flags().StringVar(&queryTo, "to", "", "range end")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print JSON")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	from, err := parseFlagDate(queryFrom)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := parseFlagDate(queryTo)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	a, err := newApp(ctx, appOptions{file: queryFile})
	if err != nil {
		return err
	}
	defer a.Close()

	freq := a.profile.Frequency()
	if queryFreq != "" {
		if freq, err = contracts.ParseFrequency(queryFreq); err != nil {
			return err
		}
	}

	points, err := a.svc.Rollup(ctx, from, to, freq)
	if err != nil {
		return err
	}

	if queryJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(points)
	}

	printRollup(freq, points, a.profile.Reporting.Precision)
	return nil
}

func printRollup(freq contracts.Frequency, points []contracts.WindowAggregate, places int) {
	PrintHeader(fmt.Sprintf("Rollup (%s)", freq), fmt.Sprintf("%d periods", len(points)))

	priorLabel := "Prior period"
	if freq == contracts.FrequencyRolling30 {
		priorLabel = "-"
	}

	widths := []int{12, 14, 14, 14, 10, 10}
	PrintTableHeader([]string{"Period", "Total", priorLabel, "Prior year", "Change", "YoY"}, widths)
	for _, p := range points {
		PrintTableRow([]string{
			p.PeriodLabel,
			formatNumber(p.CurrentTotal, places),
			formatNumber(p.PriorPeriodTotal, places),
			formatNumber(p.PriorYearTotal, places),
			formatPct(p.PeriodOverPeriodPct, places),
			formatPct(p.YoYPct, places),
		}, widths)
	}
}

func parseFlagDate(s string) (datekey.Date, error) {
	if s == "" {
		return datekey.Date{}, nil
	}
	return datekey.Parse(s)
}
