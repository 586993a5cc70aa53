// Package service wires the aggregation engine to a storage backend, an event
// source and the lane dispatcher, and runs batches.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/okian/podium/internal/adapters/mq/worker"
	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/partition"
	"github.com/okian/podium/internal/eventsource"
	"github.com/okian/podium/internal/leaderboard"
	"github.com/okian/podium/pkg/logger"
)

const defaultLaneQueueSize = 1024

// Summary describes one finished run.
type Summary struct {
	RunID uuid.UUID
	// Events counts events handed to the lanes.
	Events int64
	// Outcomes counts store results by store then outcome name.
	Outcomes map[string]map[string]int64
	// Partitions counts the day and week partitions ensured by the engine.
	Partitions int
	// Users counts users first seen on the main board during the run.
	Users    int64
	Duration time.Duration
}

// Service runs batches of score events through the engine.
type Service struct {
	backend repository.Backend
	engine  *Engine

	calendar      partition.Calendar
	storeOpts     []leaderboard.Option
	workerCount   int
	laneQueueSize int
	logger        logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of lanes.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithLaneQueueSize bounds each lane's queue.
func WithLaneQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.laneQueueSize = size
		}
	}
}

// WithCalendar sets the calendar events are bucketed in.
func WithCalendar(c partition.Calendar) Option {
	return func(s *Service) {
		s.calendar = c
	}
}

// WithStoreOptions passes options to every store and the registry.
func WithStoreOptions(opts ...leaderboard.Option) Option {
	return func(s *Service) {
		s.storeOpts = append(s.storeOpts, opts...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service over backend. The Service owns backend and closes
// it in Close.
func New(backend repository.Backend, opts ...Option) *Service {
	s := &Service{
		backend:       backend,
		calendar:      partition.NewCalendar(nil),
		workerCount:   runtime.NumCPU(),
		laneQueueSize: defaultLaneQueueSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.engine = NewEngine(backend, s.calendar, s.storeOpts...)
	return s
}

// Engine returns the engine the service drives.
func (s *Service) Engine() *Engine { return s.engine }

// Backend returns the storage backend.
func (s *Service) Backend() repository.Backend { return s.backend }

// Run drains src through the lanes. Events sharing a timestamp run in
// parallel across users; the next timestamp starts once they all finished.
// Run stops at the first failing event and returns that failure together
// with the summary of what was done up to it.
func (s *Service) Run(ctx context.Context, src eventsource.Source) (Summary, error) {
	runID := uuid.New()
	log := s.logger.With(logger.String("run_id", runID.String()))
	start := time.Now()
	t := newTally()
	engine := s.engine.forRun(log, t)

	pool := worker.NewPool(s.workerCount, engine,
		worker.WithQueueSize(s.laneQueueSize),
		worker.WithLogger(log),
	)
	pool.Start(ctx)
	log.Info(ctx, "run started", logger.Int("lanes", pool.Size()))

	var (
		events  int64
		feedErr error
		tick    time.Time
	)
	for {
		event, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			feedErr = fmt.Errorf("read event: %w", err)
			break
		}
		// Lanes only overlap within one timestamp; a later event waits until
		// every earlier one has committed so a failure stops all later ticks.
		if events > 0 && event.Timestamp.After(tick) {
			if err := pool.Barrier(); err != nil {
				feedErr = err
				break
			}
		}
		tick = event.Timestamp
		if _, err := engine.Prepare(ctx, event); err != nil {
			feedErr = err
			break
		}
		if err := pool.Submit(ctx, event); err != nil {
			feedErr = err
			break
		}
		events++
	}
	laneErr := pool.Wait()

	outcomes, users := t.snapshot()
	summary := Summary{
		RunID:      runID,
		Events:     events,
		Outcomes:   outcomes,
		Partitions: engine.registry.Count(),
		Users:      users,
		Duration:   time.Since(start),
	}

	// A lane failure is the root cause of any submit error that follows it.
	err := laneErr
	if err == nil {
		err = feedErr
	}
	if err != nil {
		fields := []logger.Field{logger.Int64("events", events), logger.Error(err)}
		var aggErr *AggregationError
		if errors.As(err, &aggErr) {
			fields = append(fields,
				logger.String("step", string(aggErr.Step)),
				logger.String("user_id", aggErr.Event.UserID),
				logger.Int64("score", aggErr.Event.Score),
				logger.Time("timestamp", aggErr.Event.Timestamp),
				logger.String("kind", leaderboard.ErrorKind(err)),
			)
		}
		log.Error(ctx, "run aborted", fields...)
		return summary, err
	}

	log.Info(ctx, "run finished",
		logger.Int64("events", events),
		logger.Int64("users", users),
		logger.Int("partitions", summary.Partitions),
		logger.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// Close releases the backend.
func (s *Service) Close() error {
	if err := s.backend.Close(); err != nil {
		return fmt.Errorf("close backend: %w", err)
	}
	return nil
}
