package eventsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/metrics"
)

// Generator defaults reproduce a month of play by ten thousand users.
const (
	DefaultUsers      = 10000
	DefaultDays       = 31
	DefaultStep       = time.Minute
	DefaultMinPerStep = 15
	DefaultMaxPerStep = 30

	userIDPrefix = "10000"
	userIDMin    = 1000000000
	userIDMax    = 2000000000
	scoreDraws   = 4
	scoreDrawMax = 250000

	// pcgStream is the fixed second PCG word; the seed picks the sequence.
	pcgStream = 0x9e3779b97f4a7c15
)

// ErrInvalidGenerator reports an unusable GeneratorConfig.
var ErrInvalidGenerator = errors.New("invalid generator config")

// GeneratorConfig describes a synthetic run.
type GeneratorConfig struct {
	// Users is the roster size.
	Users int
	// Start is the timestamp of the first step.
	Start time.Time
	// Steps is the number of time steps.
	Steps int
	// Step is the time between steps.
	Step time.Duration
	// MinPerStep and MaxPerStep bound the events emitted per step, inclusive.
	MinPerStep int
	MaxPerStep int
	// Seed makes the roster and the event stream reproducible.
	Seed uint64
}

// DefaultGeneratorConfig returns the March 2013 run in loc.
func DefaultGeneratorConfig(loc *time.Location) GeneratorConfig {
	if loc == nil {
		loc = time.UTC
	}
	return GeneratorConfig{
		Users:      DefaultUsers,
		Start:      time.Date(2013, time.March, 1, 0, 0, 0, 0, loc),
		Steps:      StepsFor(DefaultDays, DefaultStep),
		Step:       DefaultStep,
		MinPerStep: DefaultMinPerStep,
		MaxPerStep: DefaultMaxPerStep,
		Seed:       1,
	}
}

// StepsFor returns how many steps of length step cover days.
func StepsFor(days int, step time.Duration) int {
	if step <= 0 {
		return 0
	}
	return int(time.Duration(days) * 24 * time.Hour / step)
}

// Validate checks the config.
func (c GeneratorConfig) Validate() error {
	switch {
	case c.Users < 1:
		return fmt.Errorf("%w: users must be positive, got %d", ErrInvalidGenerator, c.Users)
	case c.Steps < 0:
		return fmt.Errorf("%w: steps must not be negative, got %d", ErrInvalidGenerator, c.Steps)
	case c.Step <= 0:
		return fmt.Errorf("%w: step must be positive, got %s", ErrInvalidGenerator, c.Step)
	case c.MinPerStep < 0 || c.MaxPerStep < c.MinPerStep:
		return fmt.Errorf("%w: events per step range [%d,%d]", ErrInvalidGenerator, c.MinPerStep, c.MaxPerStep)
	case c.Start.IsZero():
		return fmt.Errorf("%w: start time required", ErrInvalidGenerator)
	}
	return nil
}

// Generator emits random score events for a fixed roster, step by step.
// Two generators built from the same config emit identical streams.
type Generator struct {
	cfg    GeneratorConfig
	rng    *rand.Rand
	roster []string

	step      int
	remaining int
	now       time.Time
}

// NewGenerator builds the roster and positions the generator at the first step.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{
		cfg:  cfg,
		rng:  rand.New(rand.NewPCG(cfg.Seed, pcgStream)),
		step: -1,
	}
	g.roster = make([]string, cfg.Users)
	for i := range g.roster {
		g.roster[i] = userIDPrefix + strconv.Itoa(userIDMin+g.rng.IntN(userIDMax-userIDMin+1))
	}
	return g, nil
}

// Roster returns the generated user ids.
func (g *Generator) Roster() []string {
	out := make([]string, len(g.roster))
	copy(out, g.roster)
	return out
}

// Next implements Source.
func (g *Generator) Next(ctx context.Context) (model.ScoreEvent, error) {
	if err := ctx.Err(); err != nil {
		return model.ScoreEvent{}, err
	}
	for g.remaining == 0 {
		g.step++
		if g.step >= g.cfg.Steps {
			return model.ScoreEvent{}, io.EOF
		}
		g.now = g.cfg.Start.Add(time.Duration(g.step) * g.cfg.Step)
		g.remaining = g.cfg.MinPerStep + g.rng.IntN(g.cfg.MaxPerStep-g.cfg.MinPerStep+1)
	}
	g.remaining--

	var score int64
	for i := 0; i < scoreDraws; i++ {
		score += g.rng.Int64N(scoreDrawMax + 1)
	}
	metrics.RecordEventGenerated()
	return model.ScoreEvent{
		UserID:    g.roster[g.rng.IntN(len(g.roster))],
		Score:     score,
		Timestamp: g.now,
	}, nil
}
