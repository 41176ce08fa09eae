package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/rollup/internal/contracts"
)

// kpiCmd represents the kpi command
var kpiCmd = &cobra.Command{
	Use:   "kpi",
	Short: "KPI 스냅샷 조회",
	Long: `마지막 관측일 기준 KPI 를 출력합니다.

- 최신 값과 전년 동일자 대비 (2/29 → 2/28)
- 7일 / 30일 평균과 전년 대비
- 회계연도 누계 (기본 4월 시작) 와 전년 대비
- 당월 평균과 전년 대비

Example:
  go run ./cmd/rollup kpi --file milk.csv
  go run ./cmd/rollup kpi --json`,
	RunE: runKPI,
}

var (
	kpiFile string
	kpiJSON bool
)

func init() {
	rootCmd.AddCommand(kpiCmd)

	kpiCmd.Flags().StringVar(&kpiFile, "file", "", "read this CSV instead of the database")
	kpiCmd.Flags().BoolVar(&kpiJSON, "json", false, "print JSON")
}

func runKPI(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, appOptions{file: kpiFile})
	if err != nil {
		return err
	}
	defer a.Close()

	snap := a.svc.KPI(ctx)

	if kpiJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	printKPI(a.profile.Meta.Name, snap, a.profile.Reporting.Precision)
	return nil
}

func printKPI(name string, k contracts.KPISnapshot, places int) {
	if k.IsEmpty() {
		PrintWarning("Series is empty")
		return
	}

	PrintHeader("KPI", fmt.Sprintf("%s as of %s", name, k.LatestDate))

	widths := []int{22, 14, 10}
	PrintTableHeader([]string{"Metric", "Value", "YoY"}, widths)
	rows := []struct {
		label string
		v     *float64
		yoy   *float64
	}{
		{"Latest value", k.LatestValue, k.LatestYoYPct},
		{"7-day average", k.Avg7, k.Avg7YoYPct},
		{"30-day average", k.Avg30, k.Avg30YoYPct},
		{"Fiscal YTD total", k.YTDTotal, k.YTDYoYPct},
		{"Month-to-date average", k.MTDAvg, k.MTDYoYPct},
	}
	for _, r := range rows {
		PrintTableRow([]string{r.label, formatNumber(r.v, places), formatPct(r.yoy, places)}, widths)
	}
}
