package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemode/codemode/engine/core"
	"github.com/codemode/codemode/engine/template"
	"github.com/codemode/codemode/engine/workflow"
	"github.com/codemode/codemode/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingTrigger struct {
	mu    sync.Mutex
	fired []core.ID
}

func (r *recordingTrigger) fn(_ context.Context, workflowID, _ core.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, workflowID)
}

func (r *recordingTrigger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

// decayingParser parses successfully for the first good calls, then fails
// every call after.
type decayingParser struct {
	mu    sync.Mutex
	calls int
	good  int
}

func (p *decayingParser) Next(_ string, after time.Time, _ string) (time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls > p.good {
		return time.Time{}, assert.AnError
	}
	return after.Add(time.Minute), nil
}

func cronWorkflow(expr string) *workflow.Workflow {
	return &workflow.Workflow{
		ID:             core.MustNewID(),
		Name:           "nightly",
		TriggerType:    template.TriggerCron,
		CronExpression: expr,
		Enabled:        true,
	}
}

func schedCtx() context.Context {
	return logger.ContextWithLogger(context.Background(), logger.NewNop())
}

func TestScheduler_ScheduleWorkflow(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t.Run("Should compute a next run strictly after now", func(t *testing.T) {
		clock := newFakeClock(t0)
		s := NewScheduler(NewStandardParser(), (&recordingTrigger{}).fn, time.Minute, WithClock(clock.Now))
		wf := cronWorkflow("0 9 * * 1")
		require.NoError(t, s.ScheduleWorkflow(schedCtx(), wf))
		next, err := s.GetNextExecution(wf.ID)
		require.NoError(t, err)
		assert.True(t, next.After(t0))
	})
	t.Run("Should reject non-cron workflows", func(t *testing.T) {
		s := NewScheduler(NewStandardParser(), (&recordingTrigger{}).fn, time.Minute)
		wf := cronWorkflow("")
		wf.TriggerType = template.TriggerWebhook
		assert.ErrorIs(t, s.ScheduleWorkflow(schedCtx(), wf), ErrNotCron)
	})
	t.Run("Should reject a missing cron expression", func(t *testing.T) {
		s := NewScheduler(NewStandardParser(), (&recordingTrigger{}).fn, time.Minute)
		assert.ErrorIs(t, s.ScheduleWorkflow(schedCtx(), cronWorkflow("")), ErrNotCron)
	})
	t.Run("Should treat an unparseable expression as terminal", func(t *testing.T) {
		s := NewScheduler(NewStandardParser(), (&recordingTrigger{}).fn, time.Minute)
		err := s.ScheduleWorkflow(schedCtx(), cronWorkflow("not a cron"))
		require.Error(t, err)
		assert.Empty(t, s.GetScheduledWorkflows())
	})
	t.Run("Should reject double scheduling", func(t *testing.T) {
		s := NewScheduler(NewStandardParser(), (&recordingTrigger{}).fn, time.Minute)
		wf := cronWorkflow("* * * * *")
		require.NoError(t, s.ScheduleWorkflow(schedCtx(), wf))
		assert.ErrorIs(t, s.ScheduleWorkflow(schedCtx(), wf), ErrAlreadyExists)
	})
}

func TestScheduler_Tick(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	t.Run("Should fire due jobs and recompute from now", func(t *testing.T) {
		clock := newFakeClock(t0)
		trig := &recordingTrigger{}
		s := NewScheduler(NewStandardParser(), trig.fn, time.Minute, WithClock(clock.Now))
		wf := cronWorkflow("* * * * *")
		require.NoError(t, s.ScheduleWorkflow(schedCtx(), wf))

		firstRun, err := s.GetNextExecution(wf.ID)
		require.NoError(t, err)

		clock.Advance(90 * time.Second)
		s.Tick(schedCtx())
		s.Stop()

		assert.Equal(t, 1, trig.count())
		next, err := s.GetNextExecution(wf.ID)
		require.NoError(t, err)
		assert.True(t, next.After(clock.Now()))
		assert.True(t, next.After(firstRun))
	})
	t.Run("Should coalesce missed instants into one fire", func(t *testing.T) {
		clock := newFakeClock(t0)
		trig := &recordingTrigger{}
		s := NewScheduler(NewStandardParser(), trig.fn, time.Minute, WithClock(clock.Now))
		require.NoError(t, s.ScheduleWorkflow(schedCtx(), cronWorkflow("* * * * *")))

		// Three minutes pass with no tick; the job fires once, not thrice.
		clock.Advance(3 * time.Minute)
		s.Tick(schedCtx())
		s.Stop()
		assert.Equal(t, 1, trig.count())
	})
	t.Run("Should not fire jobs that are not due", func(t *testing.T) {
		clock := newFakeClock(t0)
		trig := &recordingTrigger{}
		s := NewScheduler(NewStandardParser(), trig.fn, time.Minute, WithClock(clock.Now))
		require.NoError(t, s.ScheduleWorkflow(schedCtx(), cronWorkflow("0 9 * * 1")))
		s.Tick(schedCtx())
		s.Stop()
		assert.Zero(t, trig.count())
	})
	t.Run("Should not fire a job whose expression stopped parsing", func(t *testing.T) {
		clock := newFakeClock(t0)
		trig := &recordingTrigger{}
		parser := &decayingParser{good: 1}
		s := NewScheduler(parser, trig.fn, time.Minute, WithClock(clock.Now))
		wf := cronWorkflow("* * * * *")
		require.NoError(t, s.ScheduleWorkflow(schedCtx(), wf))

		// The expression parses at schedule time, then never again. The
		// due instant must not fire repeatedly across ticks.
		clock.Advance(2 * time.Minute)
		s.Tick(schedCtx())
		s.Tick(schedCtx())
		s.Tick(schedCtx())
		s.Stop()
		assert.Zero(t, trig.count())
		// The job is skipped, not removed.
		assert.Len(t, s.GetScheduledWorkflows(), 1)
	})
	t.Run("Should skip disabled jobs", func(t *testing.T) {
		clock := newFakeClock(t0)
		trig := &recordingTrigger{}
		s := NewScheduler(NewStandardParser(), trig.fn, time.Minute, WithClock(clock.Now))
		wf := cronWorkflow("* * * * *")
		require.NoError(t, s.ScheduleWorkflow(schedCtx(), wf))
		require.NoError(t, s.SetWorkflowEnabled(wf.ID, false))

		clock.Advance(2 * time.Minute)
		s.Tick(schedCtx())
		s.Stop()
		assert.Zero(t, trig.count())
	})
}

func TestScheduler_ManualTrigger(t *testing.T) {
	t.Run("Should fire immediately even when disabled", func(t *testing.T) {
		trig := &recordingTrigger{}
		s := NewScheduler(NewStandardParser(), trig.fn, time.Minute)
		wf := cronWorkflow("0 9 * * 1")
		require.NoError(t, s.ScheduleWorkflow(schedCtx(), wf))
		require.NoError(t, s.SetWorkflowEnabled(wf.ID, false))

		execID, err := s.ManualTrigger(schedCtx(), wf.ID)
		require.NoError(t, err)
		assert.False(t, execID.IsZero())
		s.Stop()
		assert.Equal(t, 1, trig.count())
	})
	t.Run("Should fail for unknown workflows", func(t *testing.T) {
		s := NewScheduler(NewStandardParser(), (&recordingTrigger{}).fn, time.Minute)
		_, err := s.ManualTrigger(schedCtx(), core.MustNewID())
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestScheduler_UpdateSchedule(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t.Run("Should replace the expression and recompute", func(t *testing.T) {
		clock := newFakeClock(t0)
		s := NewScheduler(NewStandardParser(), (&recordingTrigger{}).fn, time.Minute, WithClock(clock.Now))
		wf := cronWorkflow("0 9 * * 1")
		require.NoError(t, s.ScheduleWorkflow(schedCtx(), wf))

		require.NoError(t, s.UpdateSchedule(schedCtx(), wf.ID, "30 12 * * *"))
		next, err := s.GetNextExecution(wf.ID)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC), next)
	})
	t.Run("Should keep the old schedule when the new expression is invalid", func(t *testing.T) {
		s := NewScheduler(NewStandardParser(), (&recordingTrigger{}).fn, time.Minute)
		wf := cronWorkflow("0 9 * * 1")
		require.NoError(t, s.ScheduleWorkflow(schedCtx(), wf))
		before, err := s.GetNextExecution(wf.ID)
		require.NoError(t, err)

		require.Error(t, s.UpdateSchedule(schedCtx(), wf.ID, "garbage"))
		after, err := s.GetNextExecution(wf.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
	t.Run("Should fail for unknown workflows", func(t *testing.T) {
		s := NewScheduler(NewStandardParser(), (&recordingTrigger{}).fn, time.Minute)
		assert.ErrorIs(t, s.UpdateSchedule(schedCtx(), core.MustNewID(), "* * * * *"), ErrJobNotFound)
	})
}

func TestScheduler_Unschedule(t *testing.T) {
	t.Run("Should remove the job", func(t *testing.T) {
		s := NewScheduler(NewStandardParser(), (&recordingTrigger{}).fn, time.Minute)
		wf := cronWorkflow("* * * * *")
		require.NoError(t, s.ScheduleWorkflow(schedCtx(), wf))
		require.NoError(t, s.UnscheduleWorkflow(schedCtx(), wf.ID))
		_, err := s.GetNextExecution(wf.ID)
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
	t.Run("Should fail for unknown workflows", func(t *testing.T) {
		s := NewScheduler(NewStandardParser(), (&recordingTrigger{}).fn, time.Minute)
		assert.ErrorIs(t, s.UnscheduleWorkflow(schedCtx(), core.MustNewID()), ErrJobNotFound)
	})
}

func TestScheduler_Upcoming(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t.Run("Should sort enabled jobs by next run and honor the limit", func(t *testing.T) {
		clock := newFakeClock(t0)
		s := NewScheduler(NewStandardParser(), (&recordingTrigger{}).fn, time.Minute, WithClock(clock.Now))

		soon := cronWorkflow("5 12 * * *")
		later := cronWorkflow("0 18 * * *")
		disabled := cronWorkflow("1 12 * * *")
		for _, wf := range []*workflow.Workflow{soon, later, disabled} {
			require.NoError(t, s.ScheduleWorkflow(schedCtx(), wf))
		}
		require.NoError(t, s.SetWorkflowEnabled(disabled.ID, false))

		upcoming := s.GetUpcomingExecutions(10)
		require.Len(t, upcoming, 2)
		assert.Equal(t, soon.ID, upcoming[0].WorkflowID)
		assert.Equal(t, later.ID, upcoming[1].WorkflowID)

		assert.Len(t, s.GetUpcomingExecutions(1), 1)
		assert.Len(t, s.GetScheduledWorkflows(), 3)
	})
}

func TestScheduler_StartStop(t *testing.T) {
	t.Run("Should fire due jobs from the poll loop and stop cleanly", func(t *testing.T) {
		trig := &recordingTrigger{}
		s := NewScheduler(NewStandardParser(), trig.fn, 10*time.Millisecond)
		wf := cronWorkflow("* * * * *")
		require.NoError(t, s.ScheduleWorkflow(schedCtx(), wf))
		// Force the job due immediately instead of waiting a minute.
		s.mu.Lock()
		s.jobs[wf.ID].NextRun = time.Now().Add(-time.Second)
		s.mu.Unlock()

		s.Start(schedCtx())
		assert.Eventually(t, func() bool { return trig.count() >= 1 }, time.Second, 5*time.Millisecond)
		s.Stop()
	})
}

func TestStandardParser(t *testing.T) {
	t.Run("Should evaluate in the requested timezone", func(t *testing.T) {
		p := NewStandardParser()
		after := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		next, err := p.Next("0 9 * * *", after, "America/New_York")
		require.NoError(t, err)
		assert.Equal(t, 9, next.In(mustLoad(t, "America/New_York")).Hour())
	})
	t.Run("Should reject invalid timezones", func(t *testing.T) {
		_, err := NewStandardParser().Next("* * * * *", time.Now(), "Mars/Olympus")
		assert.Error(t, err)
	})
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}
