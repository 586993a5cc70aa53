package service

import (
	"context"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/partition"
	"github.com/okian/podium/internal/leaderboard"
	"github.com/okian/podium/pkg/logger"
)

// Partitions are the partition ids one event touches.
type Partitions struct {
	Day      partition.ID
	Week     partition.ID
	PrevWeek partition.ID
}

// Engine folds score events into the four leaderboard stores.
type Engine struct {
	calendar partition.Calendar
	registry *leaderboard.Registry
	weekly   *leaderboard.WeeklyLeaderStore
	dailyLog *leaderboard.DailyLogStore
	daily    *leaderboard.DailyLeaderStore
	board    *leaderboard.MainBoardStore

	tally  *tally
	logger logger.Logger
}

// NewEngine builds the stores over backend. Events are bucketed into days and
// weeks of calendar.
func NewEngine(backend repository.Backend, calendar partition.Calendar, opts ...leaderboard.Option) *Engine {
	registry := leaderboard.NewRegistry(backend, opts...)
	return &Engine{
		calendar: calendar,
		registry: registry,
		weekly:   leaderboard.NewWeeklyLeaderStore(backend, registry, opts...),
		dailyLog: leaderboard.NewDailyLogStore(backend, opts...),
		daily:    leaderboard.NewDailyLeaderStore(backend, opts...),
		board:    leaderboard.NewMainBoardStore(backend, opts...),
		logger:   logger.Get().Named("engine"),
	}
}

// Registry returns the partition registry the engine ensures through.
func (e *Engine) Registry() *leaderboard.Registry { return e.registry }

// forRun returns a copy of e that logs through log and counts into t.
func (e *Engine) forRun(log logger.Logger, t *tally) *Engine {
	cp := *e
	cp.logger = log.Named("engine")
	cp.tally = t
	return &cp
}

// Prepare resolves the event's partitions and makes sure they exist.
func (e *Engine) Prepare(ctx context.Context, event model.ScoreEvent) (Partitions, error) {
	if err := event.Validate(); err != nil {
		return Partitions{}, stepError(StepResolve, event, err)
	}
	day, week, prev := e.calendar.Resolve(event.Timestamp)
	parts := Partitions{Day: day, Week: week, PrevWeek: prev}

	if err := e.registry.Ensure(ctx, parts.Day, partition.Day); err != nil {
		return parts, stepError(StepEnsureDay, event, err)
	}
	if err := e.registry.Ensure(ctx, parts.Week, partition.Week); err != nil {
		return parts, stepError(StepEnsureWeek, event, err)
	}
	return parts, nil
}

// ProcessEvent applies event to every store in order: weekly leader, daily
// log, daily leader, main board. The first failing step stops the event;
// writes already made by earlier steps stay.
func (e *Engine) ProcessEvent(ctx context.Context, event model.ScoreEvent) error {
	parts, err := e.Prepare(ctx, event)
	if err != nil {
		return err
	}

	outcome, err := e.weekly.UpsertBest(ctx, parts.Week, parts.PrevWeek, event.UserID, event.Score)
	if err != nil {
		return stepError(StepWeekly, event, err)
	}
	e.record(ctx, leaderboard.StoreWeekly, event, outcome)

	if err := e.dailyLog.Append(ctx, parts.Day, event); err != nil {
		return stepError(StepDailyLog, event, err)
	}
	e.record(ctx, leaderboard.StoreDailyLog, event, model.Appended)

	outcome, err = e.daily.UpsertBest(ctx, parts.Day, event.UserID, event.Score, event.Timestamp)
	if err != nil {
		return stepError(StepDailyLeader, event, err)
	}
	e.record(ctx, leaderboard.StoreDailyLeader, event, outcome)

	outcome, err = e.board.UpsertBest(ctx, event.UserID, event.Score, event.Timestamp)
	if err != nil {
		return stepError(StepMainBoard, event, err)
	}
	e.record(ctx, leaderboard.StoreMainBoard, event, outcome)
	if outcome == model.Inserted {
		e.tally.addUser()
	}
	return nil
}

func (e *Engine) record(ctx context.Context, store string, event model.ScoreEvent, outcome model.Outcome) {
	e.tally.add(store, outcome)
	e.logger.Debug(ctx, "store write",
		logger.String("store", store),
		logger.String("outcome", outcome.String()),
		logger.String("user_id", event.UserID),
		logger.Int64("score", event.Score),
	)
}
