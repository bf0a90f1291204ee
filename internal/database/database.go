package database

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// DB wraps the sqlx handle with transaction propagation through context.
type DB struct {
	*sqlx.DB
	logger *zap.Logger
}

// Driver picks the driver from the DSN: postgres URLs go to pgx, anything
// else is treated as a SQLite path.
func Driver(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Connect opens the database named by dsn and verifies it is reachable.
func Connect(dsn string, logger *zap.Logger) (*DB, error) {
	driver := Driver(dsn)
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	switch driver {
	case DriverSQLite:
		// SQLite has a single writer; one connection serialises transactions
		// instead of surfacing SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, err
		}
	default:
		db.SetMaxOpenConns(10)
	}

	logger.Info("database connected", zap.String("driver", driver))
	return &DB{DB: db, logger: logger.Named("database")}, nil
}

func applyPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Conn returns the transaction bound to ctx, or the pool when there is none.
// Repositories call it for every statement so they join an open transaction
// without knowing about it.
func (db *DB) Conn(ctx context.Context) sqlx.ExtContext {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return db.DB
}

// WithTx runs fn inside a transaction carried on the context passed to fn.
// fn's error, or a panic, rolls everything back. A call nested inside an
// existing transaction joins it.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("transaction panic, rolled back", zap.Any("panic", p))
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				db.logger.Warn("rollback failed", zap.Error(rbErr))
			}
			return
		}
		if err = tx.Commit(); err != nil {
			err = fmt.Errorf("failed to commit transaction: %w", err)
		}
	}()

	return fn(withTx(ctx, tx))
}

type txKey struct{}

func withTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the open transaction on ctx, if any.
func TxFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx
}
