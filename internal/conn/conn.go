// Package conn wraps database/sql behind a minimal connection interface, so
// the core never imports a driver package directly: Query/Exec/
// Begin-Commit-Rollback, plus engine identity.
package conn

import (
	"context"
	"database/sql"

	"dbbackup/internal/schema"
)

// Rows is the subset of *sql.Rows the core consumes.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Err() error
	Close() error
}

// Conn is the connection-handle abstraction the core depends on: Query,
// Exec, Begin/Commit/Rollback, EngineKind, ServerVersion. The concrete
// driver (go-sql-driver/mysql, lib/pq, mattn/go-sqlite3) is not the core's
// concern beyond this interface.
type Conn interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Begin(ctx context.Context) (Tx, error)
	EngineKind() schema.Dialect
	ServerVersion(ctx context.Context) (string, error)
	Close() error
}

// Tx is an in-flight transaction obtained from Conn.Begin.
type Tx interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

// dbConn adapts *sql.DB to Conn. One dbConn wraps one underlying driver
// connection pool for the dialect it was opened with.
type dbConn struct {
	db      *sql.DB
	dialect schema.Dialect
}

// Open opens a connection for dialect using dsn. driverName is the
// database/sql driver name registered for that engine (e.g. "mysql",
// "postgres", "sqlite3").
func Open(dialect schema.Dialect, driverName, dsn string) (Conn, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	return &dbConn{db: db, dialect: dialect}, nil
}

// Wrap adapts an already-opened *sql.DB to Conn. Useful for tests using
// testcontainers, which hand back a ready *sql.DB.
func Wrap(db *sql.DB, dialect schema.Dialect) Conn {
	return &dbConn{db: db, dialect: dialect}
}

func (c *dbConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *dbConn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

func (c *dbConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &dbTx{tx: tx}, nil
}

func (c *dbConn) EngineKind() schema.Dialect { return c.dialect }

func (c *dbConn) ServerVersion(ctx context.Context) (string, error) {
	var version string

	var query string
	switch {
	case c.dialect.IsMySQLFamily():
		query = "SELECT VERSION()"
	case c.dialect == schema.DialectPostgreSQL:
		query = "SHOW server_version"
	case c.dialect == schema.DialectSQLite:
		query = "SELECT sqlite_version()"
	default:
		return "", nil
	}

	row := c.db.QueryRowContext(ctx, query)
	if err := row.Scan(&version); err != nil {
		return "", err
	}
	return version, nil
}

func (c *dbConn) Close() error { return c.db.Close() }

type dbTx struct {
	tx *sql.Tx
}

func (t *dbTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t *dbTx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *dbTx) Commit() error   { return t.tx.Commit() }
func (t *dbTx) Rollback() error { return t.tx.Rollback() }
