// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/okian/podium/internal/domain/partition"
)

// ErrInvalidEvent reports a score event that cannot be aggregated.
var ErrInvalidEvent = errors.New("invalid score event")

// ScoreEvent is a single score submission.
type ScoreEvent struct {
	UserID    string    `json:"user_id"`
	Score     int64     `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the fields every store relies on.
func (e ScoreEvent) Validate() error {
	switch {
	case e.UserID == "":
		return fmt.Errorf("%w: empty user id", ErrInvalidEvent)
	case e.Score < 0:
		return fmt.Errorf("%w: negative score %d", ErrInvalidEvent, e.Score)
	case e.Timestamp.IsZero():
		return fmt.Errorf("%w: zero timestamp", ErrInvalidEvent)
	}
	return nil
}

// DailyLogEntry is one row of the append-only daily log.
type DailyLogEntry struct {
	Partition partition.ID `json:"partition_id"`
	UserID    string       `json:"user_id"`
	Score     int64        `json:"score"`
	Timestamp time.Time    `json:"timestamp"`
}

// DailyLeaderRecord is a user's best score inside one day partition.
type DailyLeaderRecord struct {
	Score     int64     `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// WeeklyLeaderRecord is a user's best score inside one week partition together
// with the baseline carried over from the previous week.
//
// PrevHighScore is frozen when the record is created. Diff is the value stored
// by the last update that raised CurrentHighScore.
type WeeklyLeaderRecord struct {
	PrevHighScore    int64        `json:"prev_high_score"`
	PrevPartition    partition.ID `json:"prev_partition_id"`
	CurrentHighScore int64        `json:"current_high_score"`
	CurrentPartition partition.ID `json:"current_partition_id"`
	Diff             int64        `json:"diff"`
}

// MainBoardRecord is a user's all-time best score.
type MainBoardRecord struct {
	BestScore     int64     `json:"best_score"`
	BestTimestamp time.Time `json:"best_timestamp"`
}

// Outcome is the result of a tri-state upsert.
type Outcome int

// Upsert outcomes.
const (
	Skipped Outcome = iota
	Inserted
	Updated
	Appended
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Appended:
		return "appended"
	default:
		return "skipped"
	}
}
