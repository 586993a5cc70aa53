// Package badgerstore implements repository.Backend on BadgerDB.
//
// Key layout:
//
//	p/<table>/<partition>           partition marker
//	r/<table>/<partition>/<user>    keyed row
//	l/<table>/<partition>/<seq>     log row, seq is a big-endian uint64
//
// Row values are the big-endian score followed by the encoded body.
package badgerstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/partition"
	"github.com/okian/podium/pkg/logger"
)

const (
	scoreSize     = 8
	seqBandwidth  = 1000
	memTableBytes = 16 << 20
)

var (
	prefixPartition = []byte("p/")
	prefixRow       = []byte("r/")
	prefixLog       = []byte("l/")
	sequenceKey     = []byte("seq/log")
)

// Backend implements repository.Backend using BadgerDB.
type Backend struct {
	db  *badger.DB
	seq *badger.Sequence
}

// Config holds BadgerDB configuration.
type Config struct {
	// Path to store database files.
	Path string

	// InMemory mode (for testing).
	InMemory bool
}

// New opens a BadgerDB backend and registers the unpartitioned players table.
func New(cfg Config) (*Backend, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.
		WithLogger(badgerLogger{logger.Get().Named("badger")}).
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableBytes).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableBytes / 2).
		WithIndexCacheSize(memTableBytes / 4).
		WithNumCompactors(2).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	seq, err := db.GetSequence(sequenceKey, seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to lease log sequence: %w", err)
	}

	b := &Backend{db: db, seq: seq}
	if err := b.EnsurePartition(context.Background(), repository.TablePlayers, ""); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

// EnsurePartition implements repository.Backend.EnsurePartition.
func (b *Backend) EnsurePartition(ctx context.Context, table repository.Table, id partition.ID) error {
	if !known(table) {
		return fmt.Errorf("%w: %s", repository.ErrTemplateMissing, table)
	}
	return b.update(ctx, func(txn *badger.Txn) error {
		key := partitionKey(table, id)
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, nil)
	})
}

// PartitionExists implements repository.Backend.PartitionExists.
func (b *Backend) PartitionExists(ctx context.Context, table repository.Table, id partition.ID) (bool, error) {
	var exists bool
	err := b.view(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(partitionKey(table, id))
		switch {
		case err == nil:
			exists = true
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		default:
			return err
		}
	})
	return exists, err
}

// Get implements repository.Backend.Get.
func (b *Backend) Get(ctx context.Context, key repository.Key) (repository.Row, error) {
	var row repository.Row
	err := b.view(ctx, func(txn *badger.Txn) error {
		var err error
		row, err = getRow(txn, rowKey(key))
		return err
	})
	return row, err
}

// Insert implements repository.Backend.Insert.
func (b *Backend) Insert(ctx context.Context, key repository.Key, row repository.Row) (int64, error) {
	var n int64
	err := b.update(ctx, func(txn *badger.Txn) error {
		if err := requirePartition(txn, key.Table, key.Partition); err != nil {
			return err
		}
		k := rowKey(key)
		if _, err := txn.Get(k); err == nil {
			return repository.ErrKeyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(k, encodeRow(row)); err != nil {
			return err
		}
		n = 1
		return nil
	})
	return n, err
}

// CompareAndSwap implements repository.Backend.CompareAndSwap.
func (b *Backend) CompareAndSwap(ctx context.Context, key repository.Key, expected int64, row repository.Row) (int64, error) {
	var n int64
	err := b.update(ctx, func(txn *badger.Txn) error {
		if err := requirePartition(txn, key.Table, key.Partition); err != nil {
			return err
		}
		k := rowKey(key)
		current, err := getRow(txn, k)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if current.Score != expected {
			return nil
		}
		if err := txn.Set(k, encodeRow(row)); err != nil {
			return err
		}
		n = 1
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Append implements repository.Backend.Append.
func (b *Backend) Append(ctx context.Context, table repository.Table, id partition.ID, row repository.Row) (int64, error) {
	seq, err := b.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next log sequence: %w", err)
	}
	var n int64
	err = b.update(ctx, func(txn *badger.Txn) error {
		if err := requirePartition(txn, table, id); err != nil {
			return err
		}
		if err := txn.Set(logKey(table, id, seq), encodeRow(row)); err != nil {
			return err
		}
		n = 1
		return nil
	})
	return n, err
}

// Scan implements repository.Backend.Scan. Log rows come first in append
// order, keyed rows follow in user id order.
func (b *Backend) Scan(ctx context.Context, table repository.Table, id partition.ID, fn func(userID string, row repository.Row) error) error {
	return b.view(ctx, func(txn *badger.Txn) error {
		if err := requirePartition(txn, table, id); err != nil {
			return err
		}
		for _, prefix := range [][]byte{scopedPrefix(prefixLog, table, id), scopedPrefix(prefixRow, table, id)} {
			if err := scanPrefix(ctx, txn, prefix, fn); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the log sequence and shuts down BadgerDB cleanly.
func (b *Backend) Close() error {
	var errs []error
	if b.seq != nil {
		errs = append(errs, b.seq.Release())
	}
	errs = append(errs, b.db.Close())
	return errors.Join(errs...)
}

// RunGC runs BadgerDB's value log garbage collection.
func (b *Backend) RunGC(discardRatio float64) error {
	return b.db.RunValueLogGC(discardRatio)
}

// update runs fn in a read-write transaction bounded by ctx.
func (b *Backend) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return b.withContext(ctx, func() error { return b.db.Update(fn) })
}

// view runs fn in a read-only transaction bounded by ctx.
func (b *Backend) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return b.withContext(ctx, func() error { return b.db.View(fn) })
}

func (b *Backend) withContext(ctx context.Context, op func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- op() }()

	select {
	case err := <-done:
		return translate(err)
	case <-ctx.Done():
		return fmt.Errorf("badger operation cancelled: %w", ctx.Err())
	}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %w", repository.ErrConflict, err)
	case errors.Is(err, badger.ErrDBClosed):
		return fmt.Errorf("%w: %w", repository.ErrClosed, err)
	default:
		return err
	}
}

func scanPrefix(ctx context.Context, txn *badger.Txn, prefix []byte, fn func(string, repository.Row) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	keyed := bytes.HasPrefix(prefix, prefixRow)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		row, err := decodeRow(val)
		if err != nil {
			return err
		}
		var userID string
		if keyed {
			userID = string(item.Key()[len(prefix):])
		}
		if err := fn(userID, row); err != nil {
			return err
		}
	}
	return nil
}

func requirePartition(txn *badger.Txn, table repository.Table, id partition.ID) error {
	_, err := txn.Get(partitionKey(table, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		if !known(table) {
			return fmt.Errorf("%w: %s", repository.ErrUnknownTable, table)
		}
		return fmt.Errorf("%w: %s/%s", repository.ErrPartitionMissing, table, id)
	}
	return err
}

func getRow(txn *badger.Txn, key []byte) (repository.Row, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return repository.Row{}, repository.ErrNotFound
	}
	if err != nil {
		return repository.Row{}, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return repository.Row{}, err
	}
	return decodeRow(val)
}

func known(table repository.Table) bool {
	for _, t := range repository.Tables {
		if t == table {
			return true
		}
	}
	return false
}

func partitionKey(table repository.Table, id partition.ID) []byte {
	return []byte(string(prefixPartition) + string(table) + "/" + string(id))
}

func scopedPrefix(prefix []byte, table repository.Table, id partition.ID) []byte {
	return []byte(string(prefix) + string(table) + "/" + string(id) + "/")
}

func rowKey(key repository.Key) []byte {
	return append(scopedPrefix(prefixRow, key.Table, key.Partition), key.UserID...)
}

func logKey(table repository.Table, id partition.ID, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(scopedPrefix(prefixLog, table, id), seq)
}

func encodeRow(row repository.Row) []byte {
	buf := make([]byte, scoreSize, scoreSize+len(row.Body))
	binary.BigEndian.PutUint64(buf, uint64(row.Score))
	return append(buf, row.Body...)
}

func decodeRow(val []byte) (repository.Row, error) {
	if len(val) < scoreSize {
		return repository.Row{}, fmt.Errorf("corrupt row: %d bytes", len(val))
	}
	body := make([]byte, len(val)-scoreSize)
	copy(body, val[scoreSize:])
	return repository.Row{Score: int64(binary.BigEndian.Uint64(val[:scoreSize])), Body: body}, nil
}

// badgerLogger routes BadgerDB's internal logging through the service logger.
type badgerLogger struct {
	l logger.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.l.Error(context.Background(), fmt.Sprintf(format, args...))
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn(context.Background(), fmt.Sprintf(format, args...))
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.l.Debug(context.Background(), fmt.Sprintf(format, args...))
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.l.Debug(context.Background(), fmt.Sprintf(format, args...))
}
