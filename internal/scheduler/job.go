package scheduler

import (
	"context"
	"time"
)

// historySize is the number of results kept per job
const historySize = 100

// Job represents a scheduled job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	// Name returns the job name
	Name() string

	// Run executes one attempt; the context carries the attempt timeout
	Run(ctx context.Context) error

	// Schedule returns the cron expression, e.g. "0 */6 * * *",
	// "0 0 8 * * *" (with seconds), "@daily"
	Schedule() string
}

// Trigger says what started a run
type Trigger string

const (
	TriggerCron   Trigger = "cron"
	TriggerManual Trigger = "manual"
)

// JobResult represents the result of a job execution
type JobResult struct {
	JobName   string        `json:"job_name"`
	Trigger   Trigger       `json:"trigger"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// JobHistory keeps the most recent results of one job, oldest first
type JobHistory struct {
	Results []JobResult
}

// Add appends a result, evicting the oldest past historySize
func (h *JobHistory) Add(result JobResult) {
	if len(h.Results) == historySize {
		copy(h.Results, h.Results[1:])
		h.Results = h.Results[:historySize-1]
	}
	h.Results = append(h.Results, result)
}

// Last returns the most recent result
func (h *JobHistory) Last() (JobResult, bool) {
	if len(h.Results) == 0 {
		return JobResult{}, false
	}
	return h.Results[len(h.Results)-1], true
}

// Latest returns up to n most recent results, oldest first
func (h *JobHistory) Latest(n int) []JobResult {
	n = min(max(n, 0), len(h.Results))
	return h.Results[len(h.Results)-n:]
}

// Counts returns the number of successful and failed runs kept
func (h *JobHistory) Counts() (ok, failed int) {
	for _, r := range h.Results {
		if r.Success {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// SuccessRate returns the share of successful runs (0.0 - 1.0)
func (h *JobHistory) SuccessRate() float64 {
	if len(h.Results) == 0 {
		return 0
	}
	ok, _ := h.Counts()
	return float64(ok) / float64(len(h.Results))
}

// lastWith returns the start time of the latest result with the given outcome
func (h *JobHistory) lastWith(success bool) *time.Time {
	for i := len(h.Results) - 1; i >= 0; i-- {
		if h.Results[i].Success == success {
			t := h.Results[i].StartTime
			return &t
		}
	}
	return nil
}
