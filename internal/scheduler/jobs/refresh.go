package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/source"
	"github.com/wonny/rollup/pkg/logger"
)

// Puller fetches and parses the remote source; *source.Source satisfies it
type Puller interface {
	Pull(ctx context.Context) (*contracts.IngestResult, error)
	Invalidate()
	URL() string
}

// Applier merges a parsed result; *dataset.Service satisfies it
type Applier interface {
	Apply(ctx context.Context, result *contracts.IngestResult) (int, error)
}

// RefreshJob pulls the configured source and merges it into the series
type RefreshJob struct {
	source   Puller
	target   Applier
	schedule string
	logger   *logger.Logger
}

// NewRefreshJob creates a new refresh job
func NewRefreshJob(source Puller, target Applier, schedule string, log *logger.Logger) *RefreshJob {
	return &RefreshJob{
		source:   source,
		target:   target,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "source_refresh"
}

// Schedule returns the cron schedule
func (j *RefreshJob) Schedule() string {
	return j.schedule
}

// Run executes the refresh
func (j *RefreshJob) Run(ctx context.Context) error {
	j.logger.WithField("url", j.source.URL()).Debug("Starting scheduled source refresh")

	result, err := j.source.Pull(ctx)
	if errors.Is(err, source.ErrUnchanged) {
		j.logger.WithField("url", j.source.URL()).Info("Source unchanged, nothing to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("pull source: %w", err)
	}

	merged, err := j.target.Apply(ctx, result)
	if err != nil {
		j.source.Invalidate()
		return fmt.Errorf("apply source: %w", err)
	}

	fields := map[string]interface{}{
		"merged":   merged,
		"rejected": len(result.Errors),
	}
	if result.HasErrors() {
		first := result.Errors[0]
		fields["first_error"] = fmt.Sprintf("row %d: %s", first.Row, first.Message)
		j.logger.WithFields(fields).Warn("Source refresh completed with rejected rows")
		return nil
	}

	j.logger.WithFields(fields).Info("Source refresh completed")
	return nil
}
