// Package scheduler runs the periodic reconciliation jobs: differential ERP
// sync, link batches and settlement resolution.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/erp/reconciler/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// JobStatus represents the outcome of the last execution of a job
type JobStatus string

const (
	JobStatusIdle    JobStatus = "IDLE"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobFunc is the work a job performs on each tick
type JobFunc func(ctx context.Context) error

// Job is a named function run every Interval
type Job struct {
	Name     string
	Interval time.Duration
	Run      JobFunc
	// RunOnStart executes the job once as soon as the scheduler starts
	RunOnStart bool
}

// JobStats describes the executions of one job
type JobStats struct {
	Name           string        `json:"name"`
	Interval       time.Duration `json:"interval"`
	Status         JobStatus     `json:"status"`
	Runs           int           `json:"runs"`
	Failures       int           `json:"failures"`
	Skipped        int           `json:"skipped"`
	LastStartedAt  *time.Time    `json:"last_started_at,omitempty"`
	LastFinishedAt *time.Time    `json:"last_finished_at,omitempty"`
	LastDuration   time.Duration `json:"last_duration"`
	LastError      string        `json:"last_error,omitempty"`
}

// Config holds scheduler configuration
type Config struct {
	Enabled    bool
	JobTimeout time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		JobTimeout: 30 * time.Minute,
	}
}

type jobState struct {
	job     Job
	running bool
	stats   JobStats
}

// Scheduler runs registered jobs on tickers. A tick that arrives while the
// previous execution of the same job is still running is skipped.
type Scheduler struct {
	config Config
	logger *zap.Logger
	now    func() time.Time

	jobs map[string]*jobState

	cancel    context.CancelFunc
	ctx       context.Context
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config Config, logger *zap.Logger) *Scheduler {
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultConfig().JobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config: config,
		logger: logger,
		now:    time.Now,
		jobs:   make(map[string]*jobState),
	}
}

// Register adds a job. Jobs must be registered before Start.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil || job.Interval <= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidJob, job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return ErrSchedulerRunning
	}
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("%w: %q registered twice", ErrInvalidJob, job.Name)
	}
	s.jobs[job.Name] = &jobState{
		job:   job,
		stats: JobStats{Name: job.Name, Interval: job.Interval, Status: JobStatusIdle},
	}
	return nil
}

// Start starts one ticker loop per job. A disabled scheduler accepts
// manual triggers but never ticks.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.ctx = ctx
	s.cancel = cancel
	jobs := make([]Job, 0, len(s.jobs))
	for _, st := range s.jobs {
		jobs = append(jobs, st.job)
	}
	s.mu.Unlock()

	if !s.config.Enabled {
		s.logger.Info("Scheduler disabled, jobs run on demand only", zap.Int("jobs", len(jobs)))
		return nil
	}

	for _, job := range jobs {
		s.wg.Add(1)
		go s.runLoop(ctx, job)
	}

	s.logger.Info("Scheduler started",
		zap.Int("jobs", len(jobs)),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

// RunNow starts the named job immediately in the background
func (s *Scheduler) RunNow(name string) error {
	return s.trigger(name)
}

// Stats returns the execution stats of every job, sorted by name
func (s *Scheduler) Stats() []JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStats, 0, len(s.jobs))
	for _, st := range s.jobs {
		out = append(out, st.stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	defer s.wg.Done()

	if job.RunOnStart {
		_ = s.trigger(job.Name)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.trigger(job.Name)
		}
	}
}

// trigger marks the job running and executes it in its own goroutine
func (s *Scheduler) trigger(name string) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	st, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrJobNotFound, name)
	}
	if st.running {
		st.stats.Skipped++
		s.mu.Unlock()
		s.logger.Warn("Skipping job, previous execution still running", zap.String("job", name))
		return fmt.Errorf("%w: %q", ErrJobAlreadyRunning, name)
	}
	st.running = true
	started := s.now()
	st.stats.Status = JobStatusRunning
	st.stats.LastStartedAt = &started
	job := st.job
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		err := s.execute(ctx, job)
		s.finish(name, started, err)
	}()
	return nil
}

func (s *Scheduler) execute(ctx context.Context, job Job) (err error) {
	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: job %q panicked: %v", job.Name, r)
		}
	}()

	s.logger.Debug("Running job", zap.String("job", job.Name))
	telemetry.WithJobLabels(jobCtx, job.Name, func(ctx context.Context) {
		err = job.Run(ctx)
	})
	return err
}

func (s *Scheduler) finish(name string, started time.Time, err error) {
	finished := s.now()
	duration := finished.Sub(started)

	s.mu.Lock()
	st := s.jobs[name]
	st.running = false
	st.stats.Runs++
	st.stats.LastFinishedAt = &finished
	st.stats.LastDuration = duration
	if err != nil {
		st.stats.Failures++
		st.stats.Status = JobStatusFailed
		st.stats.LastError = err.Error()
	} else {
		st.stats.Status = JobStatusSuccess
		st.stats.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Job failed",
			zap.String("job", name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("Job completed successfully",
		zap.String("job", name),
		zap.Duration("duration", duration),
	)
}
