package strata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdateRewritesMatchingRows(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedOrders(t, db)

	_, err := db.Query(ctx, "UPDATE orders SET amount = 0 WHERE cust_id == 10")
	require.NoError(t, err)

	rows := mustQuery(t, db, "SELECT amount FROM orders WHERE cust_id == 10")
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.Equal(t, int64(0), r[0])
	}

	rows = mustQuery(t, db, "SELECT amount FROM orders WHERE cust_id == 20")
	require.Len(t, rows, 2)
}

func TestDeleteRemovesMatchingRows(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedOrders(t, db)

	_, err := db.Query(ctx, "DELETE FROM orders WHERE amount < 10")
	require.NoError(t, err)

	rows := mustQuery(t, db, "SELECT * FROM orders")
	require.Len(t, rows, 3)
}

func TestInsertRejectsNonNullableNull(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.Query(ctx, "CREATE TABLE t (a int NOT NULL)")
	require.NoError(t, err)

	_, err = db.Query(ctx, "INSERT INTO t (a) VALUES (null)")
	require.Error(t, err)

	_, err = db.Query(ctx, "INSERT INTO t (a) VALUES (1)")
	require.NoError(t, err)

	rows := mustQuery(t, db, "SELECT * FROM t")
	require.Len(t, rows, 1)
}

func TestDropTableRemovesItFromCatalog(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedOrders(t, db)

	_, err := db.Query(ctx, "DROP TABLE orders")
	require.NoError(t, err)

	_, err = db.Query(ctx, "SELECT * FROM orders")
	require.Error(t, err)
}

func TestCreateAndDropIndex(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedOrders(t, db)

	_, err := db.Query(ctx, "CREATE INDEX idx_id ON orders (id) USING btree UNIQUE")
	require.NoError(t, err)

	_, err = db.Query(ctx, "DROP INDEX idx_id")
	require.NoError(t, err)

	table, err := db.reg.GetTable("orders")
	require.NoError(t, err)
	require.Empty(t, table.Indexes)
}

func TestCreateViewAndRefresh(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedOrders(t, db)

	_, err := db.Query(ctx, "CREATE MATERIALIZED VIEW big_orders AS SELECT * FROM orders WHERE amount > 50")
	require.NoError(t, err)

	v, err := db.reg.GetView("big_orders")
	require.NoError(t, err)
	firstRef := v.StripeSetRef
	require.NotEmpty(t, firstRef)

	_, err = db.Query(ctx, "INSERT INTO orders (id, cust_id, amount) VALUES (5, 30, 999)")
	require.NoError(t, err)

	_, err = db.Query(ctx, "REFRESH MATERIALIZED VIEW big_orders")
	require.NoError(t, err)

	v, err = db.reg.GetView("big_orders")
	require.NoError(t, err)
	require.NotEqual(t, firstRef, v.StripeSetRef)
}

func TestGCKeepsStripesStillReachableFromHistory(t *testing.T) {
	// Every past commit's table refs remain in the chain walked from
	// HEAD, so a stripe superseded by an UPDATE stays reachable (and
	// un-collected) as long as the commit that referenced it does -
	// the same history-preserving model that makes Diff/Reset
	// meaningful across older commits.
	ctx := context.Background()
	db := openTestDB(t)
	seedOrders(t, db)

	_, err := db.Query(ctx, "UPDATE orders SET amount = 0 WHERE cust_id == 10")
	require.NoError(t, err)

	report, err := db.GC(ctx)
	require.NoError(t, err)
	require.Empty(t, report.DeletedPaths)

	rows := mustQuery(t, db, "SELECT * FROM orders")
	require.Len(t, rows, 4)
}
