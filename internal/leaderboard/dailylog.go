package leaderboard

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/partition"
)

// Store names, also used as metric labels.
const (
	StoreDailyLog    = "daily_log"
	StoreDailyLeader = "daily_leader"
	StoreWeekly      = "weekly_leader"
	StoreMainBoard   = "main_board"
)

// DailyLogStore is the append-only log of every event, partitioned by day.
type DailyLogStore struct {
	x executor
}

// NewDailyLogStore constructs a DailyLogStore over backend.
func NewDailyLogStore(backend repository.Backend, opts ...Option) *DailyLogStore {
	return &DailyLogStore{x: newExecutor(backend, StoreDailyLog, opts)}
}

// Append writes one log entry for event into the day partition. A write that
// affects no rows fails with ErrFatalWrite. Appends get a single attempt since
// a timed out append may still have landed.
func (s *DailyLogStore) Append(ctx context.Context, day partition.ID, event model.ScoreEvent) error {
	entry := model.DailyLogEntry{
		Partition: day,
		UserID:    event.UserID,
		Score:     event.Score,
		Timestamp: event.Timestamp,
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%s: encode entry: %w", StoreDailyLog, err)
	}

	_, err = s.x.attempt(ctx, 1, func(ctx context.Context) (model.Outcome, error) {
		n, err := s.x.backend.Append(ctx, repository.TableDailyLog, day, repository.Row{Score: event.Score, Body: body})
		if err != nil {
			return model.Skipped, err
		}
		if n != 1 {
			return model.Skipped, fmt.Errorf("%w: append to %s/%s affected %d rows", ErrFatalWrite, repository.TableDailyLog, day, n)
		}
		return model.Appended, nil
	})
	return err
}

// Entries returns the log of one day partition in append order.
func (s *DailyLogStore) Entries(ctx context.Context, day partition.ID) ([]model.DailyLogEntry, error) {
	var out []model.DailyLogEntry
	err := s.x.backend.Scan(ctx, repository.TableDailyLog, day, func(_ string, row repository.Row) error {
		var e model.DailyLogEntry
		if err := json.Unmarshal(row.Body, &e); err != nil {
			return fmt.Errorf("decode entry: %w", err)
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: scan %s: %w", StoreDailyLog, day, err)
	}
	return out, nil
}
