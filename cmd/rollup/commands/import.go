package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/ingest"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "CSV 파일 또는 원격 소스를 DB 에 적재",
	Long: `date,value 형식의 파일을 검증하고 PostgreSQL 에 적재합니다.

잘못된 행은 건너뛰고 행 번호와 사유를 출력합니다.
--dry-run 은 DB 없이 검증만 수행합니다.
--source 는 SOURCE_URL 에서 한 번 가져옵니다 (CSV 또는 HTML 표).

Example:
  go run ./cmd/rollup import milk.csv
  go run ./cmd/rollup import milk.csv --dry-run
  go run ./cmd/rollup import --source`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

var (
	importDryRun bool
	importSource bool
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "validate only, do not persist")
	importCmd.Flags().BoolVar(&importSource, "source", false, "pull from SOURCE_URL instead of a file")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if importSource == (len(args) == 1) {
		return errors.New("give either a file or --source")
	}

	a, err := newApp(ctx, appOptions{persist: !importDryRun, offline: importDryRun})
	if err != nil {
		return err
	}
	defer a.Close()

	var result *contracts.IngestResult
	var label string

	if importSource {
		if !a.cfg.Source.Enabled() {
			return errors.New("SOURCE_URL is not set")
		}
		label = a.cfg.Source.URL
		result, err = a.source().Pull(ctx)
		if err != nil {
			return err
		}
	} else {
		label = args[0]
		f, err := os.Open(label)
		if err != nil {
			return fmt.Errorf("open %s: %w", label, err)
		}
		defer f.Close()

		result, err = a.svc.Ingestor().Parse(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", label, err)
		}
	}

	PrintHeader("Import", label)
	PrintKeyValue("Valid rows", fmt.Sprint(len(result.Records)), 14)
	PrintKeyValue("Rejected rows", fmt.Sprint(len(result.Errors)), 14)
	PrintKeyValue("Short rows", fmt.Sprint(result.Discarded), 14)
	PrintKeyValue("Header", fmt.Sprint(result.HeaderSkipped), 14)
	if result.HasErrors() {
		PrintSeparator()
		PrintRowErrors(result.Errors, 20)
	}
	PrintSeparator()

	if err := ingest.NonEmpty(result); err != nil {
		PrintError("No valid rows found")
		return err
	}

	if importDryRun {
		PrintInfo("Dry run: nothing persisted")
		return nil
	}

	n, err := a.svc.Apply(ctx, result)
	if err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("%d rows stored (%d dates in series)", n, a.svc.Len()))
	return nil
}
