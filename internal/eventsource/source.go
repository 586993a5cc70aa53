// Package eventsource produces the ordered stream of score events a run
// aggregates: a seeded synthetic generator, NDJSON replay and a rate limiter
// that wraps either.
package eventsource

import (
	"context"
	"io"

	"github.com/okian/podium/internal/domain/model"
)

// Source yields score events in non-decreasing timestamp order. Next returns
// io.EOF once the source is exhausted.
type Source interface {
	Next(ctx context.Context) (model.ScoreEvent, error)
}

// Slice replays a fixed list of events.
type Slice struct {
	events []model.ScoreEvent
	pos    int
}

// NewSlice returns a Source over events.
func NewSlice(events ...model.ScoreEvent) *Slice {
	return &Slice{events: events}
}

// Next implements Source.
func (s *Slice) Next(ctx context.Context) (model.ScoreEvent, error) {
	if err := ctx.Err(); err != nil {
		return model.ScoreEvent{}, err
	}
	if s.pos >= len(s.events) {
		return model.ScoreEvent{}, io.EOF
	}
	e := s.events[s.pos]
	s.pos++
	return e, nil
}
