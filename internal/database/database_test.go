package database_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"medeasy/rx/internal/database"
)

func TestDriver(t *testing.T) {
	assert.Equal(t, database.DriverPostgres, database.Driver("postgres://u:p@localhost/rx"))
	assert.Equal(t, database.DriverPostgres, database.Driver("postgresql://localhost/rx"))
	assert.Equal(t, database.DriverSQLite, database.Driver("medeasy.db"))
	assert.Equal(t, database.DriverSQLite, database.Driver("file:rx.db?cache=shared"))
}

func open(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Connect(filepath.Join(t.TempDir(), "tx.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE counters (id INTEGER PRIMARY KEY, n INTEGER NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO counters (id, n) VALUES (1, 0)`)
	require.NoError(t, err)
	return db
}

func count(t *testing.T, db *database.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT n FROM counters WHERE id = 1`))
	return n
}

func TestWithTxCommits(t *testing.T) {
	db := open(t)
	err := db.WithTx(context.Background(), func(ctx context.Context) error {
		require.NotNil(t, database.TxFromContext(ctx))
		_, err := db.Conn(ctx).ExecContext(ctx, `UPDATE counters SET n = n + 1 WHERE id = 1`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, db))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := open(t)
	boom := errors.New("boom")
	err := db.WithTx(context.Background(), func(ctx context.Context) error {
		if _, err := db.Conn(ctx).ExecContext(ctx, `UPDATE counters SET n = n + 1 WHERE id = 1`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(t, db))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db := open(t)
	assert.Panics(t, func() {
		_ = db.WithTx(context.Background(), func(ctx context.Context) error {
			_, _ = db.Conn(ctx).ExecContext(ctx, `UPDATE counters SET n = n + 1 WHERE id = 1`)
			panic("half way")
		})
	})
	assert.Equal(t, 0, count(t, db))
}

func TestNestedWithTxJoinsOuter(t *testing.T) {
	db := open(t)
	boom := errors.New("boom")
	err := db.WithTx(context.Background(), func(ctx context.Context) error {
		outer := database.TxFromContext(ctx)
		inner := db.WithTx(ctx, func(ctx context.Context) error {
			assert.Same(t, outer, database.TxFromContext(ctx))
			_, err := db.Conn(ctx).ExecContext(ctx, `UPDATE counters SET n = n + 1 WHERE id = 1`)
			return err
		})
		require.NoError(t, inner)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(t, db), "inner work is undone with the outer transaction")
}
