package worker

import (
	"github.com/okian/podium/pkg/logger"
)

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithQueueSize sets the capacity of every lane queue.
func WithQueueSize(size int) Option {
	return func(p *Pool) {
		if size > 0 {
			p.queueSize = size
		}
	}
}

// WithLogger sets a custom logger for the pool and its lanes.
func WithLogger(logger logger.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}
