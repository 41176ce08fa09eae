package jobs

import (
	"context"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/pkg/logger"
)

// Digester publishes the current KPI snapshot; *dataset.Service satisfies it
type Digester interface {
	Digest(ctx context.Context) contracts.SeriesEvent
}

// DigestJob logs and broadcasts the KPI snapshot on a schedule
type DigestJob struct {
	target   Digester
	schedule string
	logger   *logger.Logger
}

// NewDigestJob creates a new digest job
func NewDigestJob(target Digester, schedule string, log *logger.Logger) *DigestJob {
	return &DigestJob{
		target:   target,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *DigestJob) Name() string {
	return "kpi_digest"
}

// Schedule returns the cron schedule
func (j *DigestJob) Schedule() string {
	return j.schedule
}

// Run executes the digest
func (j *DigestJob) Run(ctx context.Context) error {
	event := j.target.Digest(ctx)

	if event.KPI.IsEmpty() {
		j.logger.Info("KPI digest: series is empty")
		return nil
	}

	k := event.KPI
	j.logger.WithFields(map[string]interface{}{
		"latest_date":  k.LatestDate.String(),
		"latest_value": deref(k.LatestValue),
		"avg7":         deref(k.Avg7),
		"avg30":        deref(k.Avg30),
		"ytd_total":    deref(k.YTDTotal),
		"ytd_yoy_pct":  deref(k.YTDYoYPct),
		"records":      event.Records,
	}).Info("KPI digest")

	return nil
}

// deref keeps missing metrics as null in the log
func deref(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
