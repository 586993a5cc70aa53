package eventsource

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/okian/podium/internal/domain/model"
)

// Throttled limits how fast events are pulled from a Source.
type Throttled struct {
	src     Source
	limiter *rate.Limiter
}

// Throttle wraps src so that at most perSecond events are emitted per second.
// A non-positive rate returns src unchanged.
func Throttle(src Source, perSecond float64) Source {
	if perSecond <= 0 {
		return src
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &Throttled{src: src, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Next implements Source.
func (t *Throttled) Next(ctx context.Context) (model.ScoreEvent, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return model.ScoreEvent{}, fmt.Errorf("throttle: %w", err)
	}
	return t.src.Next(ctx)
}
