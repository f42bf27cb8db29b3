package strata

import (
	"context"

	"github.com/strataql/strata/internal/row"
)

// Writer is a dedicated handle for INSERT/UPDATE/DELETE/DDL statements,
// separating the write path from the read path the way the teacher's
// storage interface keeps batch-create/write calls distinct from plain
// reads. Every statement issued through a Writer (or through DB.Query
// directly) still serializes on the timeline's single-writer lock one
// statement at a time; a Writer does not hold that lock open across
// multiple statements and provides no multi-statement rollback (spec.md
// Non-goals: ACID isolation levels beyond single-writer serializability)
// - each statement commits its own timeline entry independently.
type Writer struct {
	db *DB
}

// Writer returns a write-path handle bound to db.
func (db *DB) Writer() *Writer { return &Writer{db: db} }

// Query runs src as a single statement. SELECT statements are accepted
// too, since a writer may need to read back what it just wrote.
func (w *Writer) Query(ctx context.Context, src string) ([]row.Row, error) {
	return w.db.Query(ctx, src)
}
