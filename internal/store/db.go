// Package store opens and migrates the relational database backing both
// the user accounts and the student records. Postgres is the production
// backend; sqlite serves local development and the test suite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
)

// Driver names accepted by database/sql.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// DB wraps sql.DB together with the driver it was opened with.
type DB struct {
	SQL    *sql.DB
	Driver string
}

// Open connects to the database named by dsn and runs schema migration.
// A postgres:// or postgresql:// DSN selects the pgx driver; anything else
// is treated as a sqlite path or URI.
func Open(dsn string) (*DB, error) {
	driver := DriverSQLite
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = DriverPostgres
	} else if !strings.Contains(dsn, "memory") && !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	d := &DB{SQL: db, Driver: driver}
	if err := d.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	if d == nil || d.SQL == nil {
		return nil
	}
	return d.SQL.Close()
}

// Healthy verifies database connectivity.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.SQL == nil {
		return false
	}
	return d.SQL.PingContext(ctx) == nil
}

func (d *DB) migrate() error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	ts := "DATETIME"
	if d.Driver == DriverPostgres {
		id = "BIGSERIAL PRIMARY KEY"
		ts = "TIMESTAMPTZ"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            ` + id + `,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL DEFAULT 'user',
			token         TEXT UNIQUE,
			token_expiry  ` + ts + `
		)`,
		`CREATE TABLE IF NOT EXISTS students (
			id                ` + id + `,
			name              TEXT NOT NULL,
			enrollment_number TEXT NOT NULL UNIQUE,
			course            TEXT NOT NULL,
			email             TEXT NOT NULL UNIQUE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := d.SQL.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// IsUniqueViolation reports whether err is a uniqueness-constraint
// violation from either backend. The store, not the application, is the
// arbiter of uniqueness; services call this after an attempted write to
// translate the failure to a conflict.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
