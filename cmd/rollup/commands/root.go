package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// version is set with -ldflags "-X github.com/wonny/rollup/cmd/rollup/commands.version=..."
var version = "dev"

// global flags, read by loadConfig
var (
	configFile  string
	profilePath string
	env         string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:     "rollup",
	Short:   "Daily rollup & growth analytics",
	Version: version,
	Long: `일별 시계열 (date → value) 을 적재하고
일/주/월/30일 롤링 집계와 YoY·MoM·WoW 성장률, KPI 를 계산합니다.

Without --file, commands use the series stored in PostgreSQL
when DATABASE_URL is set.

Examples:
  go run ./cmd/rollup import milk.csv
  go run ./cmd/rollup query --file milk.csv --freq monthly
  go run ./cmd/rollup kpi --file milk.csv
  go run ./cmd/rollup report --freq monthly,weekly -o milk.xlsx
  go run ./cmd/rollup api --scheduler`,
	SilenceUsage:      true,
	PersistentPreRunE: checkGlobalFlags,
}

// Execute runs the command selected by os.Args
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "env file (default is .env)")
	pf.StringVar(&profilePath, "profile", "", "dataset profile YAML (default PROFILE_PATH or built-in)")
	pf.StringVar(&env, "env", "", "environment override (development|staging|production)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// checkGlobalFlags rejects a bad --env before any connection is opened
func checkGlobalFlags(cmd *cobra.Command, args []string) error {
	env = strings.ToLower(strings.TrimSpace(env))
	switch env {
	case "", "development", "staging", "production":
		return nil
	}
	return fmt.Errorf("--env must be development, staging or production (got %q)", env)
}
