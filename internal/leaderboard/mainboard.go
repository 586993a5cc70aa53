package leaderboard

import (
	"context"
	"time"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
)

// MainBoardStore keeps each user's all-time best score.
type MainBoardStore struct {
	x executor
}

// NewMainBoardStore constructs a MainBoardStore over backend.
func NewMainBoardStore(backend repository.Backend, opts ...Option) *MainBoardStore {
	return &MainBoardStore{x: newExecutor(backend, StoreMainBoard, opts)}
}

// UpsertBest records score for user if it beats the all-time best.
func (s *MainBoardStore) UpsertBest(ctx context.Context, user string, score int64, ts time.Time) (model.Outcome, error) {
	key := repository.Key{Table: repository.TablePlayers, UserID: user}
	row := func() (repository.Row, error) {
		return encodeRow(score, model.MainBoardRecord{BestScore: score, BestTimestamp: ts})
	}
	return s.x.upsertBest(ctx, key, score,
		func(context.Context) (repository.Row, error) { return row() },
		func(repository.Row) (repository.Row, error) { return row() },
	)
}

// Get returns the record of user or repository.ErrNotFound.
func (s *MainBoardStore) Get(ctx context.Context, user string) (model.MainBoardRecord, error) {
	var rec model.MainBoardRecord
	err := getRecord(ctx, s.x.backend, repository.Key{Table: repository.TablePlayers, UserID: user}, &rec)
	return rec, err
}
