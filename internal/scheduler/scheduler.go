package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/rollup/pkg/logger"
)

var (
	// ErrJobNotFound is returned for an unknown job name
	ErrJobNotFound = errors.New("job not found")

	// ErrJobRunning is returned by RunNow while the same job is in flight
	ErrJobRunning = errors.New("job already running")
)

// parser accepts 5-field specs, 6-field specs with seconds and descriptors
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule checks a cron expression
func ValidateSchedule(spec string) error {
	_, err := parser.Parse(spec)
	return err
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithRetry sets how often and how long apart a failed run is retried
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(s *Scheduler) {
		s.maxRetries = maxRetries
		s.retryDelay = delay
	}
}

// WithTimeout bounds a single attempt; non-positive values keep the default
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetryIf decides per error whether another attempt can help.
// Errors it rejects end the run after the first attempt.
func WithRetryIf(fn func(error) bool) Option {
	return func(s *Scheduler) {
		s.retryable = fn
	}
}

// entry is one registered job and its run state
type entry struct {
	job     Job
	id      cron.EntryID
	running bool
	history JobHistory
}

// Scheduler runs refresh and digest jobs on cron schedules.
// A job never overlaps itself: a tick that finds it running is skipped.
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron   *cron.Cron
	logger *logger.Logger

	mu      sync.Mutex
	entries map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc

	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	retryable  func(error) bool
}

// New creates a new scheduler
func New(log *logger.Logger, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		logger:     log,
		entries:    make(map[string]*entry),
		ctx:        ctx,
		cancel:     cancel,
		maxRetries: 3,
		retryDelay: time.Minute,
		timeout:    10 * time.Minute,
		retryable:  func(error) bool { return true },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLogger{log: log}),
		cron.WithChain(cron.Recover(cronLogger{log: log})),
	)
	return s
}

// AddJob registers a job under its name
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	id, err := s.cron.AddFunc(job.Schedule(), func() {
		if _, err := s.run(s.ctx, name, TriggerCron); errors.Is(err, ErrJobRunning) {
			s.logger.WithField("job", name).Warn("Previous run still in progress, tick skipped")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.entries[name] = &entry{job: job, id: id}

	s.logger.WithFields(logger.Fields{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")

	return nil
}

// RemoveJob unschedules a job; a run in flight finishes normally
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	s.cron.Remove(e.id)
	delete(s.entries, name)
	s.logger.WithField("job", name).Info("Job removed from scheduler")

	return nil
}

// Start starts the cron loop
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// NextRun returns the next scheduled time; zero before Start
func (s *Scheduler) NextRun(name string) (time.Time, error) {
	s.mu.Lock()
	e, exists := s.entries[name]
	s.mu.Unlock()

	if !exists {
		return time.Time{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.cron.Entry(e.id).Next, nil
}

// RunJob starts a job in the background, outside its schedule
func (s *Scheduler) RunJob(name string) error {
	job, err := s.claim(name)
	if err != nil {
		return err
	}
	go s.execute(s.ctx, job, TriggerManual)
	return nil
}

// RunNow runs a job synchronously and returns its result
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobResult, error) {
	return s.run(ctx, name, TriggerManual)
}

func (s *Scheduler) run(ctx context.Context, name string, trigger Trigger) (JobResult, error) {
	job, err := s.claim(name)
	if err != nil {
		return JobResult{}, err
	}
	return s.execute(ctx, job, trigger), nil
}

// claim marks a job as running
func (s *Scheduler) claim(name string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if e.running {
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	e.running = true
	return e.job, nil
}

// execute runs a claimed job with retries and records the result
func (s *Scheduler) execute(ctx context.Context, job Job, trigger Trigger) JobResult {
	name := job.Name()
	log := s.logger.WithFields(logger.Fields{"job": name, "trigger": trigger})
	log.Info("Job started")

	result := JobResult{JobName: name, Trigger: trigger, StartTime: time.Now()}
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		result.Attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		lastErr = job.Run(attemptCtx)
		cancel()

		if lastErr == nil {
			result.Success = true
			break
		}
		if !s.retryable(lastErr) || attempt == s.maxRetries {
			break
		}

		log.WithError(lastErr).WithField("attempt", result.Attempts).Warn("Job attempt failed, retrying")

		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = s.maxRetries
		case <-time.After(s.retryDelay):
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	if !result.Success && lastErr != nil {
		result.Error = lastErr.Error()
	}

	// the entry may have been removed while running
	s.mu.Lock()
	if e, ok := s.entries[name]; ok {
		e.running = false
		e.history.Add(result)
	}
	s.mu.Unlock()

	log = log.WithFields(logger.Fields{"duration": result.Duration, "attempts": result.Attempts})
	if result.Success {
		log.Info("Job completed successfully")
	} else {
		log.WithField("error", result.Error).Error("Job failed")
	}

	return result
}

// GetJobHistory returns a copy of the history for a specific job
func (s *Scheduler) GetJobHistory(name string) (*JobHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return &JobHistory{Results: append([]JobResult(nil), e.history.Results...)}, nil
}

// GetAllJobs returns all registered job names, sorted
func (s *Scheduler) GetAllJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JobStats summarises one job for the CLI and health output
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	Running      bool       `json:"running"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// GetJobStats returns statistics for all registered jobs
func (s *Scheduler) GetJobStats() map[string]JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]JobStats, len(s.entries))
	for name, e := range s.entries {
		ok, failed := e.history.Counts()
		st := JobStats{
			JobName:      name,
			Schedule:     e.job.Schedule(),
			Running:      e.running,
			TotalRuns:    len(e.history.Results),
			SuccessCount: ok,
			FailureCount: failed,
			SuccessRate:  e.history.SuccessRate(),
			LastSuccess:  e.history.lastWith(true),
			LastFailure:  e.history.lastWith(false),
		}
		if last, ok := e.history.Last(); ok {
			start := last.StartTime
			st.LastRun = &start
			st.LastError = last.Error
		}
		stats[name] = st
	}
	return stats
}

// cronLogger routes robfig/cron's own messages into the zerolog wrapper
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kv(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(kv(keysAndValues)).Error("cron: " + msg)
}

func kv(pairs []interface{}) logger.Fields {
	fields := make(logger.Fields, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		fields[fmt.Sprint(pairs[i])] = pairs[i+1]
	}
	return fields
}
