package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/podium/internal/domain/partition"
)

// memPartition holds the rows of one partition of one table.
type memPartition struct {
	rows map[string]Row
	log  []Row
}

// MemoryBackend implements Backend with mutex-guarded maps. It is safe for
// concurrent use and is the default backend for tests and dry runs.
type MemoryBackend struct {
	mu         sync.RWMutex
	templates  map[Table]struct{}
	partitions map[Table]map[partition.ID]*memPartition
	closed     bool
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend(opts ...Option) *MemoryBackend {
	b := &MemoryBackend{
		templates:  make(map[Table]struct{}, len(Tables)),
		partitions: make(map[Table]map[partition.ID]*memPartition, len(Tables)),
	}
	for _, t := range Tables {
		b.templates[t] = struct{}{}
	}

	for _, opt := range opts {
		opt(b)
	}

	// The players table is unpartitioned; it lives under the empty id.
	if _, ok := b.templates[TablePlayers]; ok {
		b.partitions[TablePlayers] = map[partition.ID]*memPartition{"": newMemPartition()}
	}
	return b
}

func newMemPartition() *memPartition {
	return &memPartition{rows: make(map[string]Row)}
}

// EnsurePartition implements Backend.EnsurePartition.
func (b *MemoryBackend) EnsurePartition(ctx context.Context, table Table, id partition.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if _, ok := b.templates[table]; !ok {
		return fmt.Errorf("%w: %s", ErrTemplateMissing, table)
	}
	parts, ok := b.partitions[table]
	if !ok {
		parts = make(map[partition.ID]*memPartition)
		b.partitions[table] = parts
	}
	if _, exists := parts[id]; !exists {
		parts[id] = newMemPartition()
	}
	return nil
}

// PartitionExists implements Backend.PartitionExists.
func (b *MemoryBackend) PartitionExists(ctx context.Context, table Table, id partition.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, ErrClosed
	}
	_, ok := b.partitions[table][id]
	return ok, nil
}

// Get implements Backend.Get.
func (b *MemoryBackend) Get(ctx context.Context, key Key) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return Row{}, ErrClosed
	}
	p, ok := b.partitions[key.Table][key.Partition]
	if !ok {
		return Row{}, ErrNotFound
	}
	row, ok := p.rows[key.UserID]
	if !ok {
		return Row{}, ErrNotFound
	}
	return copyRow(row), nil
}

// Insert implements Backend.Insert.
func (b *MemoryBackend) Insert(ctx context.Context, key Key, row Row) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	p, err := b.writable(key.Table, key.Partition)
	if err != nil {
		return 0, err
	}
	if _, exists := p.rows[key.UserID]; exists {
		return 0, ErrKeyExists
	}
	p.rows[key.UserID] = copyRow(row)
	return 1, nil
}

// CompareAndSwap implements Backend.CompareAndSwap.
func (b *MemoryBackend) CompareAndSwap(ctx context.Context, key Key, expected int64, row Row) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	p, err := b.writable(key.Table, key.Partition)
	if err != nil {
		return 0, err
	}
	current, exists := p.rows[key.UserID]
	if !exists || current.Score != expected {
		return 0, nil
	}
	p.rows[key.UserID] = copyRow(row)
	return 1, nil
}

// Append implements Backend.Append.
func (b *MemoryBackend) Append(ctx context.Context, table Table, id partition.ID, row Row) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	p, err := b.writable(table, id)
	if err != nil {
		return 0, err
	}
	p.log = append(p.log, copyRow(row))
	return 1, nil
}

// Scan implements Backend.Scan. Keyed rows are visited in user id order, log
// rows in append order with an empty user id.
func (b *MemoryBackend) Scan(ctx context.Context, table Table, id partition.ID, fn func(string, Row) error) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	p, ok := b.partitions[table][id]
	if !ok {
		b.mu.RUnlock()
		return fmt.Errorf("%w: %s/%s", ErrPartitionMissing, table, id)
	}
	type item struct {
		userID string
		row    Row
	}
	items := make([]item, 0, len(p.rows)+len(p.log))
	for _, row := range p.log {
		items = append(items, item{row: copyRow(row)})
	}
	keyed := make([]item, 0, len(p.rows))
	for userID, row := range p.rows {
		keyed = append(keyed, item{userID: userID, row: copyRow(row)})
	}
	b.mu.RUnlock()

	sort.Slice(keyed, func(i, j int) bool { return keyed[i].userID < keyed[j].userID })
	items = append(items, keyed...)

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(it.userID, it.row); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Backend.Close.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// writable returns the partition a write targets. Callers hold b.mu.
func (b *MemoryBackend) writable(table Table, id partition.ID) (*memPartition, error) {
	if b.closed {
		return nil, ErrClosed
	}
	parts, ok := b.partitions[table]
	if !ok {
		if _, known := b.templates[table]; !known {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
		}
	}
	p, ok := parts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrPartitionMissing, table, id)
	}
	return p, nil
}

func copyRow(r Row) Row {
	body := make([]byte, len(r.Body))
	copy(body, r.Body)
	return Row{Score: r.Score, Body: body}
}
