// Package migrations exposes the embedded SQL schema of the postgres backend.
package migrations

import "embed"

// Files contains the embedded SQL migrations.
//
//go:embed *.sql
var Files embed.FS
