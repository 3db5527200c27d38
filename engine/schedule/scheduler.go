package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/codemode/codemode/engine/core"
	"github.com/codemode/codemode/engine/template"
	"github.com/codemode/codemode/engine/workflow"
	"github.com/codemode/codemode/pkg/logger"
)

var (
	ErrJobNotFound   = errors.New("scheduled workflow not found")
	ErrNotCron       = errors.New("workflow has no cron trigger")
	ErrAlreadyExists = errors.New("workflow is already scheduled")
)

// Job is the scheduler-owned projection of a cron workflow. One job per
// workflow id.
type Job struct {
	WorkflowID     core.ID   `json:"workflow_id"`
	CronExpression string    `json:"cron_expression"`
	NextRun        time.Time `json:"next_run"`
	Enabled        bool      `json:"enabled"`
}

// TriggerFunc hands an execution off to the caller. Invoked fire-and-forget
// from the poll loop; the scheduler never blocks on it.
type TriggerFunc func(ctx context.Context, workflowID, executionID core.ID)

// Scheduler owns the job map and the polling control loop. Each tick fires
// every due, enabled job and recomputes its next run from the current
// wall-clock time rather than the missed instant: a delayed tick coalesces
// missed fires instead of backfilling them (at-most-once-per-tick).
type Scheduler struct {
	mu      sync.RWMutex
	jobs    map[core.ID]*Job
	parser  CronParser
	trigger TriggerFunc

	pollInterval time.Duration
	timezone     string
	now          func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Scheduler)

// WithClock overrides the wall clock; used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithTimezone(tz string) Option {
	return func(s *Scheduler) { s.timezone = tz }
}

func NewScheduler(parser CronParser, trigger TriggerFunc, pollInterval time.Duration, opts ...Option) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	s := &Scheduler{
		jobs:         make(map[core.ID]*Job),
		parser:       parser,
		trigger:      trigger,
		pollInterval: pollInterval,
		timezone:     "UTC",
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleWorkflow registers a cron workflow. A missing or unparseable
// cron expression is terminal here.
func (s *Scheduler) ScheduleWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	if wf.TriggerType != template.TriggerCron || wf.CronExpression == "" {
		return fmt.Errorf("%w: %s", ErrNotCron, wf.ID)
	}
	next, err := s.parser.Next(wf.CronExpression, s.now(), s.timezone)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[wf.ID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, wf.ID)
	}
	s.jobs[wf.ID] = &Job{
		WorkflowID:     wf.ID,
		CronExpression: wf.CronExpression,
		NextRun:        next,
		Enabled:        wf.Enabled,
	}
	logger.FromContext(ctx).Info("scheduled workflow",
		"workflow_id", wf.ID, "cron", wf.CronExpression, "next_run", next)
	return nil
}

func (s *Scheduler) UnscheduleWorkflow(ctx context.Context, workflowID core.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[workflowID]; !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, workflowID)
	}
	delete(s.jobs, workflowID)
	logger.FromContext(ctx).Info("unscheduled workflow", "workflow_id", workflowID)
	return nil
}

// UpdateSchedule replaces the cron expression and recomputes the next run.
func (s *Scheduler) UpdateSchedule(ctx context.Context, workflowID core.ID, cronExpr string) error {
	next, err := s.parser.Next(cronExpr, s.now(), s.timezone)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[workflowID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, workflowID)
	}
	job.CronExpression = cronExpr
	job.NextRun = next
	logger.FromContext(ctx).Info("updated schedule",
		"workflow_id", workflowID, "cron", cronExpr, "next_run", next)
	return nil
}

func (s *Scheduler) SetWorkflowEnabled(workflowID core.ID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[workflowID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, workflowID)
	}
	job.Enabled = enabled
	return nil
}

// ManualTrigger fires the workflow immediately, disabled or not, and
// returns the generated execution id.
func (s *Scheduler) ManualTrigger(ctx context.Context, workflowID core.ID) (core.ID, error) {
	s.mu.RLock()
	_, ok := s.jobs[workflowID]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrJobNotFound, workflowID)
	}
	execID := core.MustNewID()
	s.fire(ctx, workflowID, execID)
	return execID, nil
}

func (s *Scheduler) GetNextExecution(workflowID core.ID) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[workflowID]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrJobNotFound, workflowID)
	}
	return job.NextRun, nil
}

// GetScheduledWorkflows returns a snapshot of every job.
func (s *Scheduler) GetScheduledWorkflows() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	return out
}

// GetUpcomingExecutions returns up to limit enabled jobs sorted ascending
// by next run.
func (s *Scheduler) GetUpcomingExecutions(limit int) []Job {
	s.mu.RLock()
	upcoming := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if job.Enabled {
			upcoming = append(upcoming, *job)
		}
	}
	s.mu.RUnlock()
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].NextRun.Before(upcoming[j].NextRun) })
	if limit > 0 && len(upcoming) > limit {
		upcoming = upcoming[:limit]
	}
	return upcoming
}

// Start launches the poll loop. Stop or context cancellation ends it.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
	logger.FromContext(ctx).Info("scheduler started", "poll_interval", s.pollInterval)
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Tick scans all jobs once. For each due, enabled job the next run is
// recomputed from the current time first, then the job fires without
// blocking the scan: a slow tick cannot accumulate drift, missed instants
// are not backfilled, and one due instant never fires twice. A cron
// expression that stopped parsing is logged and skipped that tick, never
// removed; it does not fire.
func (s *Scheduler) Tick(ctx context.Context) {
	log := logger.FromContext(ctx)
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if !job.Enabled || job.NextRun.After(now) {
			continue
		}
		next, err := s.parser.Next(job.CronExpression, now, s.timezone)
		if err != nil {
			log.Error("skipping job with unparseable cron expression",
				"workflow_id", id, "cron", job.CronExpression, "error", err)
			continue
		}
		job.NextRun = next
		s.fire(ctx, id, core.MustNewID())
	}
}

// fire hands the execution off on its own goroutine; trigger outcome is
// decoupled from the tick.
func (s *Scheduler) fire(ctx context.Context, workflowID, execID core.ID) {
	log := logger.FromContext(ctx)
	log.Info("triggering execution", "workflow_id", workflowID, "execution_id", execID)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error("execution trigger panicked", "workflow_id", workflowID, "panic", r)
			}
		}()
		s.trigger(ctx, workflowID, execID)
	}()
}
