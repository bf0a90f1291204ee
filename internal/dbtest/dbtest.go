// Package dbtest opens throwaway migrated databases for tests.
package dbtest

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"medeasy/rx/internal/database"
	"medeasy/rx/internal/migrations"
)

// Open returns a migrated SQLite database in a temp dir, closed on cleanup.
func Open(t testing.TB) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rx.db")
	db, err := database.Connect(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(db))
	return db
}

// Pharmacy inserts a pharmacy and returns its id.
func Pharmacy(t testing.TB, db *database.DB, name string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRowx(db.Rebind(`INSERT INTO pharmacies (name, address, location) VALUES (?, '', '') RETURNING id`), name).Scan(&id)
	require.NoError(t, err)
	return id
}

// Medicine inserts a catalog entry and returns its id.
func Medicine(t testing.TB, db *database.DB, name string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRowx(db.Rebind(`INSERT INTO medicines (brand_name, type, generic_name, manufacturer)
        VALUES (?, 'tablet', ?, 'Acme') RETURNING id`), name, fmt.Sprintf("%s generic", name)).Scan(&id)
	require.NoError(t, err)
	return id
}
