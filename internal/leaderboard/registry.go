package leaderboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/partition"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// tablesByKind lists the tables that are partitioned by each kind.
var tablesByKind = map[partition.Kind][]repository.Table{
	partition.Day:  {repository.TableDailyLog, repository.TableDailyPlayers},
	partition.Week: {repository.TableWeeklyPlayers},
}

type ensuredKey struct {
	id   partition.ID
	kind partition.Kind
}

// Registry materializes day and week partitions on first use.
//
// Ensure is idempotent and safe for concurrent use. Successfully ensured
// partitions are cached so repeat calls do not reach the backend.
type Registry struct {
	backend repository.Backend
	opts    settings

	mu      sync.Mutex
	ensured map[ensuredKey]struct{}
}

// NewRegistry constructs a Registry over backend.
func NewRegistry(backend repository.Backend, opts ...Option) *Registry {
	s := newSettings(opts)
	s.logger = s.logger.Named("partitions")
	return &Registry{
		backend: backend,
		opts:    s,
		ensured: make(map[ensuredKey]struct{}),
	}
}

// Ensure materializes every table partition of the given kind for id.
func (r *Registry) Ensure(ctx context.Context, id partition.ID, kind partition.Kind) error {
	k := ensuredKey{id: id, kind: kind}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ensured[k]; ok {
		return nil
	}

	tables, ok := tablesByKind[kind]
	if !ok {
		return fmt.Errorf("%w: unknown partition kind %d", ErrPartitionCreation, kind)
	}
	for _, table := range tables {
		opCtx, cancel := context.WithTimeout(ctx, r.opts.opTimeout)
		err := r.backend.EnsurePartition(opCtx, table, id)
		cancel()
		if err != nil {
			metrics.RecordStoreError(table.String(), KindPartition)
			return fmt.Errorf("%w: %s %s: %w", ErrPartitionCreation, table, id, err)
		}
	}

	r.ensured[k] = struct{}{}
	metrics.RecordPartitionEnsured(kind.String())
	r.opts.logger.Debug(ctx, "partition ensured",
		logger.String("partition", id.String()),
		logger.String("kind", kind.String()),
	)
	return nil
}

// Exists reports whether the partition of table named id has been
// materialized, by this process or an earlier one.
func (r *Registry) Exists(ctx context.Context, table repository.Table, id partition.ID) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, r.opts.opTimeout)
	defer cancel()
	ok, err := r.backend.PartitionExists(opCtx, table, id)
	if err != nil {
		return false, classify(ctx, fmt.Errorf("partition lookup %s %s: %w", table, id, err))
	}
	return ok, nil
}

// Count returns how many partitions this Registry has ensured.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ensured)
}
