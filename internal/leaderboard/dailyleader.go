package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/partition"
)

// DailyLeaderStore keeps each user's best score per day partition.
type DailyLeaderStore struct {
	x executor
}

// NewDailyLeaderStore constructs a DailyLeaderStore over backend.
func NewDailyLeaderStore(backend repository.Backend, opts ...Option) *DailyLeaderStore {
	return &DailyLeaderStore{x: newExecutor(backend, StoreDailyLeader, opts)}
}

// UpsertBest records score for user in day if it beats the stored score.
func (s *DailyLeaderStore) UpsertBest(ctx context.Context, day partition.ID, user string, score int64, ts time.Time) (model.Outcome, error) {
	key := repository.Key{Table: repository.TableDailyPlayers, Partition: day, UserID: user}
	row := func() (repository.Row, error) {
		return encodeRow(score, model.DailyLeaderRecord{Score: score, Timestamp: ts})
	}
	return s.x.upsertBest(ctx, key, score,
		func(context.Context) (repository.Row, error) { return row() },
		func(repository.Row) (repository.Row, error) { return row() },
	)
}

// Get returns the record of user in day or repository.ErrNotFound.
func (s *DailyLeaderStore) Get(ctx context.Context, day partition.ID, user string) (model.DailyLeaderRecord, error) {
	var rec model.DailyLeaderRecord
	err := getRecord(ctx, s.x.backend, repository.Key{Table: repository.TableDailyPlayers, Partition: day, UserID: user}, &rec)
	return rec, err
}

func encodeRow(score int64, rec any) (repository.Row, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return repository.Row{}, fmt.Errorf("encode record: %w", err)
	}
	return repository.Row{Score: score, Body: body}, nil
}

func getRecord(ctx context.Context, backend repository.Backend, key repository.Key, into any) error {
	row, err := backend.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(row.Body, into); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
