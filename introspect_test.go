package strata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShowTablesAndIndexes(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedOrders(t, db)

	_, err := db.Query(ctx, "CREATE INDEX idx_id ON orders (id) USING btree UNIQUE")
	require.NoError(t, err)

	rows := mustQuery(t, db, "SHOW TABLES")
	require.Len(t, rows, 1)
	tables, ok := rows[0][0].(ShowResult)
	require.True(t, ok)
	require.Equal(t, "tables", tables.Kind)
	require.Contains(t, tables.Names, "orders")

	rows = mustQuery(t, db, "SHOW INDEXES")
	indexes := rows[0][0].(ShowResult)
	require.Equal(t, []string{"idx_id"}, indexes.Names)

	rows = mustQuery(t, db, "SHOW VIEWS")
	views := rows[0][0].(ShowResult)
	require.Empty(t, views.Names)
}

func TestDescribeReportsColumnsAndIndexes(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedOrders(t, db)

	_, err := db.Query(ctx, "CREATE INDEX idx_id ON orders (id) USING btree UNIQUE")
	require.NoError(t, err)

	rows := mustQuery(t, db, "DESCRIBE orders")
	require.Len(t, rows, 1)
	desc := rows[0][0].(DescribeResult)
	require.Equal(t, "orders", desc.Table)
	require.Len(t, desc.Columns, 3)
	require.Len(t, desc.Indexes, 1)
	require.Equal(t, "idx_id", desc.Indexes[0].Name)
	require.True(t, desc.Indexes[0].Unique)

	require.Contains(t, PrettyPrint(desc), "table orders")
}

func TestAnalyzeReportsRowAndStripeCounts(t *testing.T) {
	db := openTestDB(t)
	seedOrders(t, db)

	rows := mustQuery(t, db, "ANALYZE orders")
	require.Len(t, rows, 1)
	report := rows[0][0].(AnalyzeReport)
	require.Equal(t, "orders", report.Table)
	require.Equal(t, int64(4), report.RowCount)
	require.GreaterOrEqual(t, report.StripeCount, int64(1))
}

func TestAnalyzeUnknownTableErrors(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Query(context.Background(), "ANALYZE nope")
	require.Error(t, err)
}

func TestWriterSerializesStatements(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	w := db.Writer()
	_, err := w.Query(ctx, "CREATE TABLE t (a int)")
	require.NoError(t, err)
	_, err = w.Query(ctx, "INSERT INTO t (a) VALUES (1), (2)")
	require.NoError(t, err)

	rows, err := w.Query(ctx, "SELECT * FROM t")
	require.NoError(t, err)
	require.Len(t, rows, 2)
}
