package strata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strataql/strata/internal/row"
)

func mustQuery(t *testing.T, db *DB, src string) []row.Row {
	t.Helper()
	rows, err := db.Query(context.Background(), src)
	require.NoError(t, err)
	return rows
}

func seedOrders(t *testing.T, db *DB) {
	t.Helper()
	_, err := db.Query(context.Background(), "CREATE TABLE orders (id int, cust_id int, amount int)")
	require.NoError(t, err)
	_, err = db.Query(context.Background(), "INSERT INTO orders (id, cust_id, amount) VALUES "+
		"(1, 10, 100), (2, 10, 5), (3, 20, 50), (4, 20, 75)")
	require.NoError(t, err)
}

func TestQueryFilterAndProject(t *testing.T) {
	db := openTestDB(t)
	seedOrders(t, db)

	rows := mustQuery(t, db, "SELECT id FROM orders WHERE amount > 50")
	require.Len(t, rows, 2)
}

func TestQueryGroupByAggregate(t *testing.T) {
	db := openTestDB(t)
	seedOrders(t, db)

	rows := mustQuery(t, db, "SELECT cust_id, SUM(amount) FROM orders GROUP BY cust_id")
	require.Len(t, rows, 2)
	totals := map[int64]int64{}
	for _, r := range rows {
		totals[r[0].(int64)] = r[1].(int64)
	}
	require.Equal(t, int64(105), totals[10])
	require.Equal(t, int64(125), totals[20])
}

func TestQueryOrderByAndLimit(t *testing.T) {
	db := openTestDB(t)
	seedOrders(t, db)

	rows := mustQuery(t, db, "SELECT id FROM orders ORDER BY amount DESC LIMIT 2")
	require.Len(t, rows, 2)
	require.Equal(t, int64(1), rows[0][0])
	require.Equal(t, int64(4), rows[1][0])
}

func TestQueryDistinct(t *testing.T) {
	db := openTestDB(t)
	seedOrders(t, db)

	rows := mustQuery(t, db, "SELECT DISTINCT cust_id FROM orders")
	require.Len(t, rows, 2)
}

func TestQueryJoin(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedOrders(t, db)

	_, err := db.Query(ctx, "CREATE TABLE customers (id int, name string)")
	require.NoError(t, err)
	_, err = db.Query(ctx, "INSERT INTO customers (id, name) VALUES (10, 'acme'), (20, 'globex')")
	require.NoError(t, err)

	rows := mustQuery(t, db, "SELECT name FROM orders JOIN customers ON cust_id == id WHERE amount > 50")
	require.Len(t, rows, 2)
}

func TestQueryEqualityOnUniqueIndexedColumn(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedOrders(t, db)

	_, err := db.Query(ctx, "CREATE INDEX idx_id ON orders (id) USING btree UNIQUE")
	require.NoError(t, err)

	rows := mustQuery(t, db, "SELECT amount FROM orders WHERE id == 3")
	require.Len(t, rows, 1)
	require.Equal(t, int64(50), rows[0][0])
}

func TestQueryRangeOnBtreeIndexedColumn(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedOrders(t, db)

	_, err := db.Query(ctx, "CREATE INDEX idx_amount ON orders (amount) USING btree")
	require.NoError(t, err)

	rows := mustQuery(t, db, "SELECT id FROM orders WHERE amount > 50")
	require.Len(t, rows, 2)
	ids := map[int64]bool{}
	for _, r := range rows {
		ids[r[0].(int64)] = true
	}
	require.True(t, ids[1])
	require.True(t, ids[4])
}

func TestQueryUnknownTable(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Query(context.Background(), "SELECT * FROM nope")
	require.Error(t, err)
}

func TestQueryCacheServesRepeatResultsAndInvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedOrders(t, db)

	first := mustQuery(t, db, "SELECT id FROM orders WHERE amount > 50")
	require.Len(t, first, 2)
	require.Equal(t, 1, db.cache.Len())

	// Same plan text again should hit the cache rather than grow it.
	second := mustQuery(t, db, "SELECT id FROM orders WHERE amount > 50")
	require.ElementsMatch(t, first, second)
	require.Equal(t, 1, db.cache.Len())

	_, err := db.Query(ctx, "INSERT INTO orders (id, cust_id, amount) VALUES (5, 30, 200)")
	require.NoError(t, err)
	require.Equal(t, 0, db.cache.Len())

	third := mustQuery(t, db, "SELECT id FROM orders WHERE amount > 50")
	require.Len(t, third, 3)
}
