package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/rollup/internal/dataset"
	"github.com/wonny/rollup/internal/scheduler"
	"github.com/wonny/rollup/internal/scheduler/jobs"
	"github.com/wonny/rollup/internal/source"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `백그라운드 작업:
  source_refresh  SOURCE_URL 을 SOURCE_REFRESH_SCHEDULE 마다 가져와 적재
  kpi_digest      profile schedule.digest 마다 KPI 스냅샷 로그 및 푸시

Example:
  go run ./cmd/rollup scheduler start
  go run ./cmd/rollup scheduler list
  go run ./cmd/rollup scheduler run source_refresh`,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "스케줄러 시작 (Ctrl+C 로 종료, 종료 시 실행 통계 출력)",
			RunE:  runScheduler,
		},
		&cobra.Command{
			Use:   "list",
			Short: "등록된 작업과 다음 실행 시각",
			RunE:  listJobs,
		},
		&cobra.Command{
			Use:   "run <job>",
			Short: "작업 즉시 실행 (완료까지 대기)",
			Args:  cobra.ExactArgs(1),
			RunE:  runJob,
		},
	)
}

// withScheduler opens the app, registers its jobs and hands both to fn
func withScheduler(opts appOptions, fn func(*app, *scheduler.Scheduler) error) error {
	a, err := newApp(context.Background(), opts)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := buildScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	return fn(a, sched)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	return withScheduler(appOptions{}, func(a *app, sched *scheduler.Scheduler) error {
		if len(sched.GetAllJobs()) == 0 {
			PrintWarning("No jobs configured (set SOURCE_URL or schedule.digest)")
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sched.Start()
		PrintSuccess("Scheduler started")
		printJobs(sched)
		PrintInfo("Press Ctrl+C to stop")

		<-ctx.Done()
		sched.Stop()

		printStats(sched)
		return nil
	})
}

func listJobs(cmd *cobra.Command, args []string) error {
	return withScheduler(appOptions{offline: true}, func(_ *app, sched *scheduler.Scheduler) error {
		// cron computes next-run times only while running
		sched.Start()
		defer sched.Stop()
		printJobs(sched)
		return nil
	})
}

func runJob(cmd *cobra.Command, args []string) error {
	name := args[0]
	return withScheduler(appOptions{}, func(_ *app, sched *scheduler.Scheduler) error {
		PrintInfo("Running job: " + name)

		res, err := sched.RunNow(context.Background(), name)
		if err != nil {
			return err
		}
		if !res.Success {
			PrintError(fmt.Sprintf("%s failed after %d attempt(s): %s", name, res.Attempts, res.Error))
			return fmt.Errorf("job %s failed", name)
		}
		PrintSuccess(fmt.Sprintf("%s completed in %s", name, res.Duration.Round(time.Millisecond)))
		return nil
	})
}

func printJobs(sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()
	widths := []int{18, 16, 20}

	PrintTableHeader([]string{"Job", "Schedule", "Next run"}, widths)
	for _, name := range sched.GetAllJobs() {
		next := "-"
		if t, err := sched.NextRun(name); err == nil && !t.IsZero() {
			next = t.Format("2006-01-02 15:04")
		}
		PrintTableRow([]string{name, stats[name].Schedule, next}, widths)
	}
}

// printStats summarises what ran during this process
func printStats(sched *scheduler.Scheduler) {
	const ts = "2006-01-02 15:04:05"
	stats := sched.GetJobStats()

	PrintHeader("Job Statistics", "")
	for _, name := range sched.GetAllJobs() {
		st := stats[name]
		fmt.Fprintf(stdout, "📊 %s (%s)\n", name, st.Schedule)
		PrintKeyValue("Runs", fmt.Sprintf("%d ok / %d failed", st.SuccessCount, st.FailureCount), 14)
		if st.TotalRuns > 0 {
			PrintKeyValue("Success rate", fmt.Sprintf("%.1f%%", st.SuccessRate*100), 14)
		}
		if st.LastRun != nil {
			PrintKeyValue("Last run", st.LastRun.Format(ts), 14)
		}
		if st.LastFailure != nil {
			PrintKeyValue("Last failure", st.LastFailure.Format(ts), 14)
			PrintKeyValue("Error", st.LastError, 14)
		}
		fmt.Fprintln(stdout)
	}
}

// buildScheduler registers the refresh and digest jobs that the config enables
func buildScheduler(a *app) (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log,
		scheduler.WithRetry(2, 30*time.Second),
		scheduler.WithTimeout(a.cfg.Source.Timeout*4),
		scheduler.WithRetryIf(retryable),
	)

	var list []scheduler.Job
	if a.cfg.Source.Enabled() && a.cfg.Source.RefreshSchedule != "" {
		list = append(list, jobs.NewRefreshJob(a.source(), a.svc, a.cfg.Source.RefreshSchedule, a.log))
	}
	if spec := a.profile.Schedule.Digest; spec != "" {
		list = append(list, jobs.NewDigestJob(a.svc, spec, a.log))
	}

	for _, job := range list {
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// retryable rejects failures another attempt cannot fix
func retryable(err error) bool {
	return !dataset.IsInputError(err) &&
		!errors.Is(err, source.ErrNoTable) &&
		!errors.Is(err, source.ErrNotConfigured)
}
