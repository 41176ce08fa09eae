package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/rollup/internal/report"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "엑셀 리포트 생성",
	Long: `KPI, 원본 시계열, 집계 시트를 담은 XLSX 파일을 만듭니다.

Example:
  go run ./cmd/rollup report --file milk.csv
  go run ./cmd/rollup report --freq monthly,rolling30 --out q1.xlsx`,
	RunE: runReport,
}

var (
	reportFile  string
	reportOut   string
	reportFreqs []string
)

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportFile, "file", "", "read this CSV instead of the database")
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "output path (default <profile name>.xlsx)")
	reportCmd.Flags().StringSliceVar(&reportFreqs, "freq", nil, "rollup sheets (default monthly,weekly)")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	freqs, err := report.ParseFrequencies(reportFreqs)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, appOptions{file: reportFile})
	if err != nil {
		return err
	}
	defer a.Close()

	wb, err := a.svc.Workbook(ctx, freqs)
	if err != nil {
		return err
	}

	out := reportOut
	if out == "" {
		out = a.profile.Meta.Name + ".xlsx"
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	defer f.Close()

	if err := report.Write(f, wb); err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("Report written to %s (%d sheets)", out, len(freqs)+2))
	return nil
}
