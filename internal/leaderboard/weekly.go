package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/partition"
	"github.com/okian/podium/pkg/logger"
)

// WeeklyLeaderStore keeps each user's best score per week partition together
// with the previous week's best as a baseline.
type WeeklyLeaderStore struct {
	x        executor
	registry *Registry
}

// NewWeeklyLeaderStore constructs a WeeklyLeaderStore over backend. registry
// answers whether the previous week's partition exists.
func NewWeeklyLeaderStore(backend repository.Backend, registry *Registry, opts ...Option) *WeeklyLeaderStore {
	return &WeeklyLeaderStore{x: newExecutor(backend, StoreWeekly, opts), registry: registry}
}

// UpsertBest records score for user in week.
//
// A new record takes its baseline from the user's current high score in
// prevWeek, or 0 when that partition or row is missing, and starts with a zero
// diff. An update keeps the baseline and sets diff to score minus baseline.
func (s *WeeklyLeaderStore) UpsertBest(ctx context.Context, week, prevWeek partition.ID, user string, score int64) (model.Outcome, error) {
	key := repository.Key{Table: repository.TableWeeklyPlayers, Partition: week, UserID: user}

	insert := func(ctx context.Context) (repository.Row, error) {
		baseline, err := s.baseline(ctx, prevWeek, user)
		if err != nil {
			return repository.Row{}, err
		}
		return encodeRow(score, model.WeeklyLeaderRecord{
			PrevHighScore:    baseline,
			PrevPartition:    prevWeek,
			CurrentHighScore: score,
			CurrentPartition: week,
			Diff:             0,
		})
	}

	update := func(current repository.Row) (repository.Row, error) {
		var rec model.WeeklyLeaderRecord
		if err := json.Unmarshal(current.Body, &rec); err != nil {
			return repository.Row{}, fmt.Errorf("%w: decode %s: %w", ErrFatalWrite, key, err)
		}
		rec.CurrentHighScore = score
		rec.Diff = score - rec.PrevHighScore
		return encodeRow(score, rec)
	}

	return s.x.upsertBest(ctx, key, score, insert, update)
}

// baseline returns the user's current high score in prevWeek.
func (s *WeeklyLeaderStore) baseline(ctx context.Context, prevWeek partition.ID, user string) (int64, error) {
	exists, err := s.registry.Exists(ctx, repository.TableWeeklyPlayers, prevWeek)
	if err != nil {
		return 0, err
	}
	if !exists {
		s.x.logger.Debug(ctx, "previous week missing", logger.String("partition", prevWeek.String()))
		return 0, nil
	}

	row, err := s.x.backend.Get(ctx, repository.Key{Table: repository.TableWeeklyPlayers, Partition: prevWeek, UserID: user})
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("baseline %s/%s: %w", prevWeek, user, err)
	}
	return row.Score, nil
}

// Get returns the record of user in week or repository.ErrNotFound.
func (s *WeeklyLeaderStore) Get(ctx context.Context, week partition.ID, user string) (model.WeeklyLeaderRecord, error) {
	var rec model.WeeklyLeaderRecord
	err := getRecord(ctx, s.x.backend, repository.Key{Table: repository.TableWeeklyPlayers, Partition: week, UserID: user}, &rec)
	return rec, err
}
