package strata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, t.TempDir(), "testdb")
	require.NoError(t, err)
	return db
}

func TestOpenEmptyDatabase(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Close())
}

func TestCreateTableInsertSelectRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.Query(ctx, "CREATE TABLE orders (id int, cust_id int, amount int)")
	require.NoError(t, err)

	_, err = db.Query(ctx, "INSERT INTO orders (id, cust_id, amount) VALUES (1, 10, 100), (2, 10, 5), (3, 20, 50)")
	require.NoError(t, err)

	rows, err := db.Query(ctx, "SELECT * FROM orders WHERE amount > 10")
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestReopenPreservesCommittedData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := Open(ctx, dir, "testdb")
	require.NoError(t, err)
	_, err = db.Query(ctx, "CREATE TABLE t (a int)")
	require.NoError(t, err)
	_, err = db.Query(ctx, "INSERT INTO t (a) VALUES (1), (2), (3)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := Open(ctx, dir, "testdb")
	require.NoError(t, err)
	rows, err := reopened.Query(ctx, "SELECT * FROM t")
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestScriptExpressionEvaluatesDirectly(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	rows, err := db.Query(ctx, "1 + 2")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(3), rows[0][0])
}

func TestVerifyEmptyChainIsOK(t *testing.T) {
	db := openTestDB(t)
	report, err := db.Verify(context.Background())
	require.NoError(t, err)
	require.True(t, report.OK)
	require.Equal(t, 0, report.CommitCount)
}

func TestGCOnEmptyDatabaseRemovesNothing(t *testing.T) {
	db := openTestDB(t)
	report, err := db.GC(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.DeletedPaths)
}
