// Package postgres implements repository.Backend on PostgreSQL.
//
// Each record type lives in one logical table with a partition_id column. A
// partitions table registers every materialized day and week; the foreign key
// from the record tables to it rejects writes into partitions that were never
// ensured.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/partition"
	"github.com/okian/podium/pkg/metrics"
)

// PostgreSQL error codes the backend translates.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeUndefinedTable       = "42P01"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

const (
	partitionEnsureSQL = `
INSERT INTO partitions (table_name, partition_id)
VALUES ($1, $2)
ON CONFLICT (table_name, partition_id) DO NOTHING;
`
	partitionExistsSQL = `SELECT EXISTS (SELECT 1 FROM partitions WHERE table_name = $1 AND partition_id = $2);`
	tableExistsSQL     = `SELECT to_regclass($1) IS NOT NULL;`

	logAppendSQL = `INSERT INTO daily_log (partition_id, score, body) VALUES ($1, $2, $3::jsonb);`
	logScanSQL   = `SELECT score, body FROM daily_log WHERE partition_id = $1 ORDER BY id;`

	playersGetSQL    = `SELECT score, body FROM players WHERE user_id = $1;`
	playersInsertSQL = `INSERT INTO players (user_id, score, body) VALUES ($1, $2, $3::jsonb);`
	playersSwapSQL   = `
UPDATE players SET score = $3, body = $4::jsonb, updated_at = NOW()
WHERE user_id = $1 AND score = $2;
`
	playersScanSQL = `SELECT user_id, score, body FROM players ORDER BY user_id;`
)

// keyedSQL holds the statements of one partitioned keyed table.
type keyedSQL struct {
	get, insert, swap, scan string
}

func newKeyedSQL(table repository.Table) keyedSQL {
	return keyedSQL{
		get: fmt.Sprintf(`SELECT score, body FROM %s WHERE partition_id = $1 AND user_id = $2;`, table),
		insert: fmt.Sprintf(`INSERT INTO %s (partition_id, user_id, score, body) VALUES ($1, $2, $3, $4::jsonb);`,
			table),
		swap: fmt.Sprintf(`
UPDATE %s SET score = $4, body = $5::jsonb, updated_at = NOW()
WHERE partition_id = $1 AND user_id = $2 AND score = $3;
`, table),
		scan: fmt.Sprintf(`SELECT user_id, score, body FROM %s WHERE partition_id = $1 ORDER BY user_id;`, table),
	}
}

var keyedTables = map[repository.Table]keyedSQL{
	repository.TableDailyPlayers:  newKeyedSQL(repository.TableDailyPlayers),
	repository.TableWeeklyPlayers: newKeyedSQL(repository.TableWeeklyPlayers),
}

// Backend persists leaderboard rows in PostgreSQL.
type Backend struct {
	pool *pgxpool.Pool
}

// New connects to dsn. The schema must already be migrated.
func New(ctx context.Context, dsn string) (*Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Backend{pool: pool}, nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool *pgxpool.Pool) *Backend {
	return &Backend{pool: pool}
}

// EnsurePartition implements repository.Backend.EnsurePartition.
func (b *Backend) EnsurePartition(ctx context.Context, table repository.Table, id partition.ID) error {
	var present bool
	if err := b.pool.QueryRow(ctx, tableExistsSQL, string(table)).Scan(&present); err != nil {
		return translate(fmt.Errorf("lookup table %s: %w", table, err))
	}
	if !present {
		return fmt.Errorf("%w: %s", repository.ErrTemplateMissing, table)
	}
	if _, err := b.pool.Exec(ctx, partitionEnsureSQL, string(table), string(id)); err != nil {
		return translate(fmt.Errorf("ensure partition %s/%s: %w", table, id, err))
	}
	return nil
}

// PartitionExists implements repository.Backend.PartitionExists.
func (b *Backend) PartitionExists(ctx context.Context, table repository.Table, id partition.ID) (bool, error) {
	if !table.Partitioned() {
		return true, nil
	}
	var exists bool
	if err := b.pool.QueryRow(ctx, partitionExistsSQL, string(table), string(id)).Scan(&exists); err != nil {
		return false, translate(fmt.Errorf("partition exists %s/%s: %w", table, id, err))
	}
	return exists, nil
}

// Get implements repository.Backend.Get.
func (b *Backend) Get(ctx context.Context, key repository.Key) (repository.Row, error) {
	var row pgx.Row
	switch {
	case key.Table == repository.TablePlayers:
		row = b.pool.QueryRow(ctx, playersGetSQL, key.UserID)
	default:
		stmts, ok := keyedTables[key.Table]
		if !ok {
			return repository.Row{}, fmt.Errorf("%w: %s", repository.ErrUnknownTable, key.Table)
		}
		row = b.pool.QueryRow(ctx, stmts.get, string(key.Partition), key.UserID)
	}

	var out repository.Row
	if err := row.Scan(&out.Score, &out.Body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Row{}, repository.ErrNotFound
		}
		return repository.Row{}, translate(fmt.Errorf("get %s: %w", key, err))
	}
	return out, nil
}

// Insert implements repository.Backend.Insert.
func (b *Backend) Insert(ctx context.Context, key repository.Key, row repository.Row) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	switch {
	case key.Table == repository.TablePlayers:
		tag, err = b.pool.Exec(ctx, playersInsertSQL, key.UserID, row.Score, jsonArg(row.Body))
	default:
		stmts, ok := keyedTables[key.Table]
		if !ok {
			return 0, fmt.Errorf("%w: %s", repository.ErrUnknownTable, key.Table)
		}
		tag, err = b.pool.Exec(ctx, stmts.insert, string(key.Partition), key.UserID, row.Score, jsonArg(row.Body))
	}
	if err != nil {
		return 0, translate(fmt.Errorf("insert %s: %w", key, err))
	}
	return tag.RowsAffected(), nil
}

// CompareAndSwap implements repository.Backend.CompareAndSwap.
func (b *Backend) CompareAndSwap(ctx context.Context, key repository.Key, expected int64, row repository.Row) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	switch {
	case key.Table == repository.TablePlayers:
		tag, err = b.pool.Exec(ctx, playersSwapSQL, key.UserID, expected, row.Score, jsonArg(row.Body))
	default:
		stmts, ok := keyedTables[key.Table]
		if !ok {
			return 0, fmt.Errorf("%w: %s", repository.ErrUnknownTable, key.Table)
		}
		tag, err = b.pool.Exec(ctx, stmts.swap, string(key.Partition), key.UserID, expected, row.Score, jsonArg(row.Body))
	}
	if err != nil {
		return 0, translate(fmt.Errorf("swap %s: %w", key, err))
	}
	return tag.RowsAffected(), nil
}

// Append implements repository.Backend.Append.
func (b *Backend) Append(ctx context.Context, table repository.Table, id partition.ID, row repository.Row) (int64, error) {
	if table != repository.TableDailyLog {
		return 0, fmt.Errorf("%w: %s is not append-only", repository.ErrUnknownTable, table)
	}
	tag, err := b.pool.Exec(ctx, logAppendSQL, string(id), row.Score, jsonArg(row.Body))
	if err != nil {
		return 0, translate(fmt.Errorf("append %s/%s: %w", table, id, err))
	}
	return tag.RowsAffected(), nil
}

// Scan implements repository.Backend.Scan.
func (b *Backend) Scan(ctx context.Context, table repository.Table, id partition.ID, fn func(userID string, row repository.Row) error) error {
	exists, err := b.PartitionExists(ctx, table, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s/%s", repository.ErrPartitionMissing, table, id)
	}

	var rows pgx.Rows
	keyed := true
	switch {
	case table == repository.TableDailyLog:
		keyed = false
		rows, err = b.pool.Query(ctx, logScanSQL, string(id))
	case table == repository.TablePlayers:
		rows, err = b.pool.Query(ctx, playersScanSQL)
	default:
		stmts, ok := keyedTables[table]
		if !ok {
			return fmt.Errorf("%w: %s", repository.ErrUnknownTable, table)
		}
		rows, err = b.pool.Query(ctx, stmts.scan, string(id))
	}
	if err != nil {
		return translate(fmt.Errorf("scan %s/%s: %w", table, id, err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID string
			row    repository.Row
		)
		if keyed {
			err = rows.Scan(&userID, &row.Score, &row.Body)
		} else {
			err = rows.Scan(&row.Score, &row.Body)
		}
		if err != nil {
			return fmt.Errorf("scan %s/%s row: %w", table, id, err)
		}
		if err := fn(userID, row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return translate(fmt.Errorf("scan %s/%s: %w", table, id, err))
	}
	return nil
}

// ReportPoolStats publishes the pool's connection counts.
func (b *Backend) ReportPoolStats() {
	stat := b.pool.Stat()
	metrics.UpdateDBPoolConnections(int(stat.TotalConns()), int(stat.IdleConns()), int(stat.AcquiredConns()))
}

// Close releases the pool.
func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

// translate maps PostgreSQL error codes onto repository errors.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %w", repository.ErrKeyExists, err)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %w", repository.ErrPartitionMissing, err)
	case codeUndefinedTable:
		return fmt.Errorf("%w: %w", repository.ErrTemplateMissing, err)
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %w", repository.ErrConflict, err)
	default:
		return err
	}
}

// jsonArg passes an empty body as SQL NULL.
func jsonArg(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	return string(body)
}
