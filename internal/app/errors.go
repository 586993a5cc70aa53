package service

import (
	"fmt"
	"time"

	"github.com/okian/podium/internal/domain/model"
)

// Step names one stage of event aggregation, in execution order.
type Step string

// Aggregation steps.
const (
	StepResolve     Step = "resolve_partitions"
	StepEnsureDay   Step = "ensure_day_partition"
	StepEnsureWeek  Step = "ensure_week_partition"
	StepWeekly      Step = "weekly_leader"
	StepDailyLog    Step = "daily_log"
	StepDailyLeader Step = "daily_leader"
	StepMainBoard   Step = "main_board"
)

// AggregationError reports the step and event at which aggregation stopped.
type AggregationError struct {
	Step  Step
	Event model.ScoreEvent
	Err   error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate %s (user=%s score=%d ts=%s): %v",
		e.Step, e.Event.UserID, e.Event.Score, e.Event.Timestamp.Format(time.RFC3339), e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

func stepError(step Step, event model.ScoreEvent, err error) error {
	return &AggregationError{Step: step, Event: event, Err: err}
}
