// Package worker runs score events on per-user lanes.
//
// Every user is pinned to one lane by hashing the user id, and each lane
// processes its events one at a time in arrival order. Operations on one
// user's keys are therefore serialized while distinct users proceed in
// parallel.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sourcegraph/conc"

	"github.com/okian/podium/internal/adapters/mq/queue"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultQueueSize = 1024
)

// ErrStopped reports a submit after the pool stopped or failed.
var ErrStopped = errors.New("worker pool stopped")

// Processor applies one event.
type Processor interface {
	ProcessEvent(ctx context.Context, event model.ScoreEvent) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, event model.ScoreEvent) error

// ProcessEvent implements Processor.
func (f ProcessorFunc) ProcessEvent(ctx context.Context, event model.ScoreEvent) error {
	return f(ctx, event)
}

// lane drains one queue sequentially.
type lane struct {
	name   string
	queue  *queue.InMemoryQueue
	logger logger.Logger
}

// Pool routes events onto lanes and stops at the first lane failure.
//
// A pool with a single lane processes events inline on the caller's
// goroutine.
type Pool struct {
	size      int
	queueSize int
	processor Processor
	logger    logger.Logger

	lanes  []*lane
	wg     conc.WaitGroup
	ctx    context.Context
	cancel context.CancelCauseFunc

	// pending counts events queued on lanes but not yet finished.
	pending sync.WaitGroup

	errOnce sync.Once
	err     error
	started bool
	stopped bool
}

// NewPool creates a pool of size lanes. Sizes below one are treated as one.
func NewPool(size int, processor Processor, opts ...Option) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		size:      size,
		queueSize: defaultQueueSize,
		processor: processor,
		logger:    logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}

	metrics.UpdateWorkerCount(size)
	return p
}

// Size returns the number of lanes.
func (p *Pool) Size() int { return p.size }

// Lane returns the lane index that owns userID.
func (p *Pool) Lane(userID string) int {
	return int(xxhash.Sum64String(userID) % uint64(p.size))
}

// Start launches the lanes. It must be called once before Submit.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancelCause(ctx)
	p.started = true
	if p.size == 1 {
		return
	}

	p.lanes = make([]*lane, p.size)
	for i := range p.lanes {
		name := strconv.Itoa(i)
		l := &lane{
			name:   name,
			queue:  queue.NewInMemoryQueue(queue.WithCapacity(p.queueSize), queue.WithName(name)),
			logger: p.logger.Named("lane-" + name),
		}
		p.lanes[i] = l
		p.wg.Go(func() { p.run(l) })
	}
}

// Submit hands event to the lane that owns its user. It blocks while the lane
// is full and fails once any lane has failed.
func (p *Pool) Submit(ctx context.Context, event model.ScoreEvent) error {
	if !p.started || p.stopped {
		return ErrStopped
	}
	if err := p.ctx.Err(); err != nil {
		return p.failure()
	}

	if p.size == 1 {
		if err := p.process(p.ctx, p.logger, event); err != nil {
			p.fail(err)
			return err
		}
		return nil
	}

	l := p.lanes[p.Lane(event.UserID)]
	submitCtx, cancel := mergeCancel(ctx, p.ctx)
	defer cancel()
	p.pending.Add(1)
	if err := l.queue.Enqueue(submitCtx, event); err != nil {
		p.pending.Done()
		if p.ctx.Err() != nil {
			return p.failure()
		}
		return err
	}
	return nil
}

// Wait closes every lane, waits for queued events to drain and returns the
// first lane failure.
func (p *Pool) Wait() error {
	if !p.started || p.stopped {
		return p.err
	}
	p.stopped = true
	for _, l := range p.lanes {
		_ = l.queue.Close()
	}

	if r := p.wg.WaitAndRecover(); r != nil {
		p.fail(fmt.Errorf("lane panic: %w", r.AsError()))
	}
	p.cancel(nil)
	return p.err
}

// Barrier blocks until every submitted event has finished and returns the
// first lane failure. Events submitted after Barrier returns start only once
// all earlier events are done. Barrier must not run concurrently with Submit.
func (p *Pool) Barrier() error {
	if !p.started || p.stopped {
		return ErrStopped
	}
	p.pending.Wait()
	if p.ctx.Err() != nil {
		return p.failure()
	}
	return nil
}

func (p *Pool) run(l *lane) {
	for event := range l.queue.Dequeue() {
		metrics.UpdateLaneQueueDepth(l.name, l.queue.Len())
		p.handle(l, event)
	}
}

func (p *Pool) handle(l *lane, event model.ScoreEvent) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			p.fail(fmt.Errorf("lane %s panic: %v", l.name, r))
		}
	}()
	if p.ctx.Err() != nil {
		return
	}
	if err := p.process(p.ctx, l.logger, event); err != nil {
		p.fail(err)
	}
}

func (p *Pool) process(ctx context.Context, log logger.Logger, event model.ScoreEvent) error {
	start := time.Now()
	if err := p.processor.ProcessEvent(ctx, event); err != nil {
		metrics.RecordEventFailed()
		log.Error(ctx, "event processing failed",
			logger.String("user_id", event.UserID),
			logger.Int64("score", event.Score),
			logger.Time("timestamp", event.Timestamp),
			logger.Error(err),
		)
		return err
	}
	metrics.RecordEventProcessed(float64(time.Since(start).Microseconds()) / 1000)
	return nil
}

// fail records the first error and cancels the remaining work.
func (p *Pool) fail(err error) {
	p.errOnce.Do(func() {
		p.err = err
		p.cancel(err)
	})
}

func (p *Pool) failure() error {
	if err := context.Cause(p.ctx); err != nil {
		return err
	}
	return ErrStopped
}

// mergeCancel returns a context that is done when either a or b is done.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(a)
	stop := context.AfterFunc(b, func() { cancel(context.Cause(b)) })
	return ctx, func() {
		stop()
		cancel(nil)
	}
}
