package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// executor runs store operations against a backend with a per-attempt
// timeout and retries conflicts and timeouts.
type executor struct {
	backend repository.Backend
	store   string
	settings
}

func newExecutor(backend repository.Backend, store string, opts []Option) executor {
	s := newSettings(opts)
	s.logger = s.logger.Named(store)
	return executor{backend: backend, store: store, settings: s}
}

// run executes op until it succeeds, fails permanently or runs out of tries.
func (x *executor) run(ctx context.Context, op func(ctx context.Context) (model.Outcome, error)) (model.Outcome, error) {
	return x.attempt(ctx, x.maxTries, op)
}

func (x *executor) attempt(ctx context.Context, tries uint, op func(ctx context.Context) (model.Outcome, error)) (model.Outcome, error) {
	attempt := 0
	out, err := backoff.Retry(ctx, func() (model.Outcome, error) {
		attempt++
		if attempt > 1 {
			metrics.RecordStoreRetry(x.store)
		}

		opCtx, cancel := context.WithTimeout(ctx, x.opTimeout)
		defer cancel()

		start := time.Now()
		o, err := op(opCtx)
		metrics.RecordStoreLatency(x.store, float64(time.Since(start).Milliseconds()))

		err = classify(ctx, err)
		switch {
		case err == nil:
			return o, nil
		case Retryable(err):
			x.logger.Debug(ctx, "retrying store operation",
				logger.Int("attempt", attempt),
				logger.Error(err),
			)
			return o, err
		default:
			return o, backoff.Permanent(err)
		}
	}, backoff.WithBackOff(x.newBackOff()), backoff.WithMaxTries(tries))
	if err != nil {
		metrics.RecordStoreError(x.store, ErrorKind(err))
		return model.Skipped, fmt.Errorf("%s: %w", x.store, err)
	}

	metrics.RecordStoreOutcome(x.store, out.String())
	return out, nil
}

// upsertBest applies the keep-if-higher state machine to one key.
//
// insert builds the row for an absent key; update builds the replacement for a
// present row whose score is lower than score. A stored score greater than or
// equal to score is left untouched.
func (x *executor) upsertBest(
	ctx context.Context,
	key repository.Key,
	score int64,
	insert func(ctx context.Context) (repository.Row, error),
	update func(current repository.Row) (repository.Row, error),
) (model.Outcome, error) {
	return x.run(ctx, func(ctx context.Context) (model.Outcome, error) {
		current, err := x.backend.Get(ctx, key)
		if errors.Is(err, repository.ErrNotFound) {
			row, err := insert(ctx)
			if err != nil {
				return model.Skipped, err
			}
			n, err := x.backend.Insert(ctx, key, row)
			if err != nil {
				return model.Skipped, err
			}
			if n != 1 {
				return model.Skipped, fmt.Errorf("%w: insert %s affected %d rows", ErrFatalWrite, key, n)
			}
			x.logger.Debug(ctx, "insert", logger.String("key", key.String()), logger.Int64("score", score))
			return model.Inserted, nil
		}
		if err != nil {
			return model.Skipped, err
		}

		if score <= current.Score {
			x.logger.Debug(ctx, "low", logger.String("key", key.String()),
				logger.Int64("score", score), logger.Int64("stored", current.Score))
			return model.Skipped, nil
		}

		row, err := update(current)
		if err != nil {
			return model.Skipped, err
		}
		n, err := x.backend.CompareAndSwap(ctx, key, current.Score, row)
		if err != nil {
			return model.Skipped, err
		}
		if n == 1 {
			x.logger.Debug(ctx, "update", logger.String("key", key.String()),
				logger.Int64("score", score), logger.Int64("previous", current.Score))
			return model.Updated, nil
		}
		return model.Skipped, x.explainMissedSwap(ctx, key, current.Score)
	})
}

// explainMissedSwap decides whether a swap that affected no rows lost a race
// or hit a broken store.
func (x *executor) explainMissedSwap(ctx context.Context, key repository.Key, expected int64) error {
	now, err := x.backend.Get(ctx, key)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s vanished during update", ErrWriteConflict, key)
	case err != nil:
		return err
	case now.Score != expected:
		return fmt.Errorf("%w: %s changed from %d to %d", ErrWriteConflict, key, expected, now.Score)
	default:
		return fmt.Errorf("%w: update of %s affected 0 rows", ErrFatalWrite, key)
	}
}
