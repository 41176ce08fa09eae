package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "시계열을 CSV 로 내보내기",
	Long: `저장된 시계열을 date,value CSV 로 출력합니다 (기본 stdout).
출력은 import 로 그대로 다시 읽을 수 있습니다.

Example:
  go run ./cmd/rollup export > backup.csv
  go run ./cmd/rollup export --file raw.csv --out clean.csv`,
	RunE: runExport,
}

var (
	exportFile string
	exportOut  string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportFile, "file", "", "read this CSV instead of the database")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output path (default stdout)")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// CSV goes to stdout, so messages go to stderr
	stdout = os.Stderr

	a, err := newApp(ctx, appOptions{file: exportFile})
	if err != nil {
		return err
	}
	defer a.Close()

	var w io.Writer = os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOut, err)
		}
		defer f.Close()
		w = f
	}

	n, err := a.svc.Export(w)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if exportOut != "" {
		PrintSuccess(fmt.Sprintf("%d rows written to %s", n, exportOut))
	}
	return nil
}
