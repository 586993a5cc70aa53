package service_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/partition"
	"github.com/okian/podium/internal/leaderboard"
	"github.com/okian/podium/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var errDiskFull = errors.New("disk full")

// brokenBackend fails selected primitives of an otherwise working backend.
type brokenBackend struct {
	repository.Backend
	appendNoRows bool
	failInsertOf string
	failAfter    time.Duration
}

func (b *brokenBackend) Append(ctx context.Context, table repository.Table, id partition.ID, row repository.Row) (int64, error) {
	if b.appendNoRows {
		return 0, nil
	}
	return b.Backend.Append(ctx, table, id, row)
}

func (b *brokenBackend) Insert(ctx context.Context, key repository.Key, row repository.Row) (int64, error) {
	if key.UserID == b.failInsertOf {
		time.Sleep(b.failAfter)
		return 0, errDiskFull
	}
	return b.Backend.Insert(ctx, key, row)
}

func fastRetries() leaderboard.Option {
	return leaderboard.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} })
}

func at(day int, hour int) time.Time {
	return time.Date(2013, time.March, day, hour, 0, 0, 0, time.UTC)
}

func ev(user string, score int64, ts time.Time) model.ScoreEvent {
	return model.ScoreEvent{UserID: user, Score: score, Timestamp: ts}
}
