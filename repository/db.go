// Package repository opens the account database and applies the
// embedded schema migrations.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	auth "github.com/goliatone/go-courier-auth"
	goerrors "github.com/goliatone/go-errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// MemoryDSN is a private in-memory sqlite database, it lives as long
	// as its single connection
	MemoryDSN = ":memory:"
)

// goose keeps its base FS and dialect in package globals
var gooseMu sync.Mutex

// Open returns a bun DB for driver. In-memory sqlite is pinned to one
// connection so every query sees the same database.
func Open(driver, dsn string) (*bun.DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "sqlite3", "":
		if dsn == "" {
			dsn = MemoryDSN
		}
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite")
		}
		if strings.Contains(dsn, ":memory:") {
			sqldb.SetMaxOpenConns(1)
		}
		db := bun.NewDB(sqldb, sqlitedialect.New())
		if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
			_ = db.Close()
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to enable sqlite foreign keys")
		}
		return db, nil

	case DriverPostgres, "postgresql", "pgx":
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open postgres")
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	}

	return nil, goerrors.New(fmt.Sprintf("unsupported database driver %q", driver), goerrors.CategoryBadInput).
		WithTextCode("UNSUPPORTED_DRIVER")
}

// Migrate applies every pending migration from the auth package
func Migrate(ctx context.Context, db *bun.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(auth.GetMigrationsFS())
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(gooseDialect(db)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set migration dialect")
	}

	if err := goose.UpContext(ctx, db.DB, auth.MigrationsDir); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply migrations")
	}
	return nil
}

func gooseDialect(db *bun.DB) string {
	if db.Dialect().Name().String() == "pg" {
		return "pgx"
	}
	return "sqlite3"
}
