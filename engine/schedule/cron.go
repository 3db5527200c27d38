package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CronParser evaluates a cron expression against a reference time. The
// engine never touches the cron library directly so the evaluator stays
// swappable and independently testable.
type CronParser interface {
	Next(expr string, after time.Time, timezone string) (time.Time, error)
}

// StandardParser evaluates standard five-field cron expressions.
type StandardParser struct{}

func NewStandardParser() *StandardParser {
	return &StandardParser{}
}

func (p *StandardParser) Next(expr string, after time.Time, timezone string) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	loc := time.UTC
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
	}
	return sched.Next(after.In(loc)), nil
}
