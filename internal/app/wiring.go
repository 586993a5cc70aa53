package service

import (
	"context"
	"fmt"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/adapters/repository/badgerstore"
	"github.com/okian/podium/internal/adapters/repository/postgres"
	"github.com/okian/podium/internal/adapters/repository/postgres/migrations"
	"github.com/okian/podium/internal/config"
	"github.com/okian/podium/internal/domain/partition"
	"github.com/okian/podium/internal/eventsource"
	"github.com/okian/podium/internal/leaderboard"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// OpenBackend opens the storage backend cfg selects. PostgreSQL schemas are
// migrated before the pool is returned.
func OpenBackend(ctx context.Context, cfg *config.Config) (repository.Backend, error) {
	log := logger.Get().Named("storage")
	switch cfg.Backend {
	case config.BackendMemory:
		log.Info(ctx, "using memory backend")
		return repository.NewMemoryBackend(), nil
	case config.BackendBadger:
		log.Info(ctx, "using badger backend",
			logger.String("path", cfg.BadgerPath),
			logger.Any("in_memory", cfg.BadgerInMemory),
		)
		b, err := badgerstore.New(badgerstore.Config{Path: cfg.BadgerPath, InMemory: cfg.BadgerInMemory})
		if err != nil {
			return nil, fmt.Errorf("open badger: %w", err)
		}
		return b, nil
	case config.BackendPostgres:
		if err := migrations.Apply(ctx, cfg.PostgresDSN, log); err != nil {
			return nil, err
		}
		b, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		log.Info(ctx, "using postgres backend")
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}

// NewFromConfig opens the configured backend and builds a Service over it.
func NewFromConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithCalendar(partition.NewCalendar(loc)),
		WithWorkerCount(cfg.WorkerCount),
		WithLaneQueueSize(cfg.LaneQueueSize),
		WithStoreOptions(
			leaderboard.WithOpTimeout(cfg.OpTimeout()),
			leaderboard.WithMaxTries(uint(cfg.RetryMaxTries)),
		),
	}
	return New(backend, append(base, opts...)...), nil
}

// SourceFromConfig returns the event source cfg describes: a replay of
// EventsFile when set, else the generator. The returned close func releases
// any open file.
func SourceFromConfig(cfg *config.Config) (eventsource.Source, func() error, error) {
	noop := func() error { return nil }

	var (
		src     eventsource.Source
		closeFn = noop
	)
	if cfg.EventsFile != "" {
		f, err := eventsource.OpenFile(cfg.EventsFile)
		if err != nil {
			return nil, noop, err
		}
		src, closeFn = f, f.Close
	} else {
		gen, err := GeneratorConfig(cfg)
		if err != nil {
			return nil, noop, err
		}
		g, err := eventsource.NewGenerator(gen)
		if err != nil {
			return nil, noop, err
		}
		src = g
	}
	return eventsource.Throttle(src, cfg.MaxEventsPerSecond), closeFn, nil
}

// GeneratorConfig maps cfg onto generator settings.
func GeneratorConfig(cfg *config.Config) (eventsource.GeneratorConfig, error) {
	start, err := cfg.Start()
	if err != nil {
		return eventsource.GeneratorConfig{}, err
	}
	return eventsource.GeneratorConfig{
		Users:      cfg.Users,
		Start:      start,
		Steps:      eventsource.StepsFor(cfg.Days, cfg.Step()),
		Step:       cfg.Step(),
		MinPerStep: cfg.EventsPerStepMin,
		MaxPerStep: cfg.EventsPerStepMax,
		Seed:       cfg.Seed,
	}, nil
}

// MetricsOptions maps cfg onto collector naming and histogram buckets.
func MetricsOptions(cfg *config.Config) []metrics.Option {
	opts := []metrics.Option{
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
	}
	if len(cfg.MetricsBucketsMS) > 0 {
		opts = append(opts, metrics.WithHistogramBuckets(cfg.MetricsBucketsMS))
	}
	return opts
}
