package testutil

import (
	"context"
	"database/sql/driver"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upsert = "INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload"

func TestStubUpsertsAndQueriesBuckets(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	require.NoError(t, conn.Ping(ctx))

	_, err := conn.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS state (bucket TEXT PRIMARY KEY, payload JSONB NOT NULL)", nil)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "gates"}, {Value: []byte("[]")}})
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "gates"}, {Value: []byte("[1]")}})
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "annotations"}, {Value: []byte("[]")}})
	require.NoError(t, err)
	require.Len(t, conn.State, 2)

	rows, err := conn.QueryContext(ctx, "SELECT bucket, payload FROM state", nil)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()
	assert.Equal(t, []string{"bucket", "payload"}, rows.Columns())
	dest := make([]driver.Value, 2)
	require.NoError(t, rows.Next(dest))
	assert.Equal(t, "annotations", dest[0])
	require.NoError(t, rows.Next(dest))
	assert.Equal(t, "gates", dest[0])
	assert.Equal(t, []byte("[1]"), dest[1])
	assert.Equal(t, io.EOF, rows.Next(dest))
}

func TestStubTransactionsStageUpserts(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	tx, err := conn.BeginTx(ctx, driver.TxOptions{})
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "gates"}, {Value: []byte("[1]")}})
	require.NoError(t, err)
	assert.Empty(t, conn.State, "not visible before commit")
	require.NoError(t, tx.Commit())
	assert.Equal(t, []byte("[1]"), conn.State["gates"])

	tx, err = conn.BeginTx(ctx, driver.TxOptions{})
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "gates"}, {Value: []byte("[2]")}})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	assert.Equal(t, []byte("[1]"), conn.State["gates"])

	conn.FailCommit = true
	tx, err = conn.BeginTx(ctx, driver.TxOptions{})
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "gates"}, {Value: []byte("[3]")}})
	require.NoError(t, err)
	assert.Error(t, tx.Commit())
	assert.Equal(t, []byte("[1]"), conn.State["gates"])
}

func TestStubRejectsUnknownStatements(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	_, err := conn.ExecContext(ctx, "DELETE FROM state WHERE bucket=$1", []driver.NamedValue{{Value: "gates"}})
	assert.Error(t, err)
	_, err = conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "gates"}})
	assert.Error(t, err)
	_, err = conn.QueryContext(ctx, "SELECT * FROM gates", nil)
	assert.Error(t, err)

	conn.FailPing = true
	assert.Error(t, conn.Ping(ctx))
	conn.FailBegin = true
	_, err = conn.BeginTx(ctx, driver.TxOptions{})
	assert.Error(t, err)
}
