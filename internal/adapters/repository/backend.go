// Package repository defines the storage primitives the aggregation stores are
// built on, plus an in-memory implementation.
package repository

import (
	"context"
	"fmt"

	"github.com/okian/podium/internal/domain/partition"
)

// Table names one logical record store.
type Table string

// Managed tables.
const (
	TableDailyLog      Table = "daily_log"
	TableDailyPlayers  Table = "daily_players"
	TableWeeklyPlayers Table = "weekly_players"
	TablePlayers       Table = "players"
)

// Tables lists every managed table.
var Tables = []Table{TableDailyLog, TableDailyPlayers, TableWeeklyPlayers, TablePlayers}

// Partitioned reports whether rows of t live inside day or week partitions.
func (t Table) Partitioned() bool {
	return t != TablePlayers
}

func (t Table) String() string { return string(t) }

// Key addresses one keyed row. Partition is empty for unpartitioned tables.
type Key struct {
	Table     Table
	Partition partition.ID
	UserID    string
}

func (k Key) String() string {
	if k.Partition == "" {
		return fmt.Sprintf("%s/%s", k.Table, k.UserID)
	}
	return fmt.Sprintf("%s/%s/%s", k.Table, k.Partition, k.UserID)
}

// Row is a stored record. Score is kept apart from the encoded body so that
// backends can compare-and-swap on it.
type Row struct {
	Score int64
	Body  []byte
}

// Backend exposes the storage primitives used by the aggregation stores.
//
// Writes report the number of rows they affected; a zero count with a nil
// error means the write did not happen.
type Backend interface {
	// EnsurePartition materializes a partition of table from the table's
	// template. It is a no-op when the partition already exists.
	EnsurePartition(ctx context.Context, table Table, id partition.ID) error
	// PartitionExists reports whether EnsurePartition succeeded for table and id.
	PartitionExists(ctx context.Context, table Table, id partition.ID) (bool, error)
	// Get returns the row stored under key or ErrNotFound.
	Get(ctx context.Context, key Key) (Row, error)
	// Insert stores a new row; it fails with ErrKeyExists when key is taken.
	Insert(ctx context.Context, key Key, row Row) (int64, error)
	// CompareAndSwap replaces the row under key only while its score still
	// equals expected.
	CompareAndSwap(ctx context.Context, key Key, expected int64, row Row) (int64, error)
	// Append adds an unkeyed row to a partition of an append-only table.
	Append(ctx context.Context, table Table, id partition.ID, row Row) (int64, error)
	// Scan calls fn for every row of a partition in insertion or key order.
	Scan(ctx context.Context, table Table, id partition.ID, fn func(userID string, row Row) error) error
	// Close releases backend resources.
	Close() error
}
