package leaderboard

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/podium/pkg/logger"
)

// Default store configuration constants.
const (
	defaultOpTimeout = 5 * time.Second
	defaultMaxTries  = 5
)

// settings is shared by every store built from the same options.
type settings struct {
	opTimeout  time.Duration
	maxTries   uint
	newBackOff func() backoff.BackOff
	logger     logger.Logger
}

func newSettings(opts []Option) settings {
	s := settings{
		opTimeout: defaultOpTimeout,
		maxTries:  defaultMaxTries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			return b
		},
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("leaderboard")
	}
	return s
}

// Option applies a configuration option to a store or the Registry.
type Option func(*settings)

// WithOpTimeout bounds every single storage operation.
func WithOpTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// WithMaxTries sets how many attempts a conflicting or timed out write gets.
func WithMaxTries(n uint) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxTries = n
		}
	}
}

// WithBackOff replaces the retry schedule.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(s *settings) {
		if fn != nil {
			s.newBackOff = fn
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}
