package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/rollup/internal/data/repos"
	"github.com/wonny/rollup/pkg/database"
)

// dbCheckCmd represents the db-check command
var dbCheckCmd = &cobra.Command{
	Use:   "db-check",
	Short: "DB 연결 및 데이터 상태 확인",
	Long: `데이터베이스 연결, 커넥션 풀, 저장된 시계열 범위를 확인합니다.

확인 항목:
- Ping 및 응답 시간
- 커넥션 풀 통계
- 저장된 일수와 기간 (data.daily_values)

Example:
  go run ./cmd/rollup db-check`,
	RunE: runDBCheck,
}

func init() {
	rootCmd.AddCommand(dbCheckCmd)
}

func runDBCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled() {
		return database.ErrDisabled
	}

	PrintHeader("Database Check", fmt.Sprintf("ENV: %s", cfg.Env))
	PrintKeyValue("URL", maskPassword(cfg.Database.URL), 16)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg)
	if err != nil {
		PrintError("Connection failed")
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	health, err := db.HealthCheck(ctx)
	if err != nil {
		PrintError("Ping failed")
		return err
	}
	PrintSuccess(fmt.Sprintf("Ping successful (%v)", health.Latency.Round(time.Microsecond)))

	PrintSeparator()
	PrintKeyValue("Max conns", fmt.Sprint(health.Pool.MaxConns), 16)
	PrintKeyValue("Total conns", fmt.Sprint(health.Pool.TotalConns), 16)
	PrintKeyValue("Acquired", fmt.Sprint(health.Pool.AcquiredConns), 16)
	PrintKeyValue("Idle", fmt.Sprint(health.Pool.IdleConns), 16)
	PrintKeyValue("Acquire count", fmt.Sprint(health.Pool.AcquireCount), 16)

	repo := repos.NewDailyValueRepository(db.Pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}

	n, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	first, last, ok, err := repo.Span(ctx)
	if err != nil {
		return err
	}

	PrintSeparator()
	PrintKeyValue("Stored days", fmt.Sprint(n), 16)
	if !ok {
		PrintWarning("data.daily_values is empty")
		return nil
	}
	PrintKeyValue("Span", fmt.Sprintf("%s ~ %s", first, last), 16)
	if calendar := first.DaysBetween(last) + 1; calendar > n {
		PrintKeyValue("Missing days", fmt.Sprint(calendar-n), 16)
	}

	PrintSuccess("All checks passed")
	return nil
}

// maskPassword hides the password of a connection URL
func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	return u.Redacted()
}
