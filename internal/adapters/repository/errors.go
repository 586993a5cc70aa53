package repository

import "errors"

// Sentinel kinds for backend errors.
var (
	// ErrNotFound reports a missing row; callers take the insert branch.
	ErrNotFound = errors.New("row not found")
	// ErrKeyExists reports an insert that raced with another insert of the same key.
	ErrKeyExists = errors.New("row already exists")
	// ErrPartitionMissing reports a write into a partition that was never ensured.
	ErrPartitionMissing = errors.New("partition does not exist")
	// ErrTemplateMissing reports a table without a schema template to copy from.
	ErrTemplateMissing = errors.New("partition template missing")
	// ErrUnknownTable reports a table name the backend does not manage.
	ErrUnknownTable = errors.New("unknown table")
	// ErrConflict reports a transaction aborted by a concurrent writer.
	ErrConflict = errors.New("concurrent write conflict")
	// ErrClosed reports use of a closed backend.
	ErrClosed = errors.New("backend closed")
)
