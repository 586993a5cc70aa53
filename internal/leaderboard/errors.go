package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/podium/internal/adapters/repository"
)

// Sentinel kinds for aggregation failures.
var (
	// ErrPartitionCreation reports a day or week partition that could not be
	// materialized. It is fatal.
	ErrPartitionCreation = errors.New("partition creation failed")
	// ErrWriteConflict reports a concurrent mutation of the same key. It is
	// retried with backoff.
	ErrWriteConflict = errors.New("write conflict")
	// ErrFatalWrite reports a write expected to affect one row that affected
	// none. It is fatal.
	ErrFatalWrite = errors.New("fatal write failure")
	// ErrTransient reports a store operation that ran out of time. It is
	// retried with backoff.
	ErrTransient = errors.New("transient storage failure")
)

// Error kinds used as metric labels.
const (
	KindPartition = "partition_creation"
	KindConflict  = "write_conflict"
	KindFatal     = "fatal_write"
	KindTransient = "transient"
	KindCanceled  = "canceled"
	KindOther     = "other"
)

// ErrorKind maps err to one of the Kind labels.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrPartitionCreation):
		return KindPartition
	case errors.Is(err, ErrWriteConflict):
		return KindConflict
	case errors.Is(err, ErrFatalWrite):
		return KindFatal
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindOther
	}
}

// Retryable reports whether a failed operation may be attempted again.
func Retryable(err error) bool {
	return errors.Is(err, ErrWriteConflict) || errors.Is(err, ErrTransient)
}

// classify translates backend errors into aggregation kinds. parent is the
// caller's context; a deadline on the per-operation context only counts as
// transient while parent is still live.
func classify(parent context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrWriteConflict), errors.Is(err, ErrFatalWrite), errors.Is(err, ErrTransient):
		return err
	case errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil:
		return fmt.Errorf("%w: %w", ErrTransient, err)
	case errors.Is(err, repository.ErrKeyExists), errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", ErrWriteConflict, err)
	case errors.Is(err, repository.ErrPartitionMissing):
		return fmt.Errorf("%w: %w", ErrFatalWrite, err)
	default:
		return err
	}
}
