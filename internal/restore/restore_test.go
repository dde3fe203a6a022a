package restore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbbackup/internal/conn"
	"dbbackup/internal/dialect"
	_ "dbbackup/internal/dialect/sqlite"
	"dbbackup/internal/schema"
)

func openTestDB(t *testing.T) conn.Conn {
	t.Helper()
	path := filepath.Join(t.TempDir(), "restore.db")
	c, err := conn.Open(schema.DialectSQLite, "sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

const sampleScript = `-- SQLite Database Backup
-- Database: sample

BEGIN;
CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
INSERT INTO widgets (id, name) VALUES (1, 'bolt'), (2, 'nut');
COMMIT;
`

func TestRunAppliesScript(t *testing.T) {
	ctx := context.Background()
	c := openTestDB(t)
	platform, err := dialect.Get(schema.DialectSQLite)
	require.NoError(t, err)

	o := New(c, platform, DefaultOptions())
	res, err := o.Run(ctx, strings.NewReader(sampleScript))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.StatementsFailed)
	assert.Greater(t, res.StatementsExecuted, 0)

	rows, err := c.Query(ctx, "SELECT COUNT(*) FROM widgets")
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var count int
	require.NoError(t, rows.Scan(&count))
	assert.Equal(t, 2, count)
}

func TestRunContinuesPastFailingStatement(t *testing.T) {
	ctx := context.Background()
	c := openTestDB(t)
	platform, err := dialect.Get(schema.DialectSQLite)
	require.NoError(t, err)

	script := `-- SQLite Database Backup
BEGIN;
CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
INSERT INTO nonexistent_table (id) VALUES (1);
INSERT INTO widgets (id, name) VALUES (1, 'bolt');
COMMIT;
`
	opts := DefaultOptions()
	opts.ExecuteInTransaction = false
	o := New(c, platform, opts)
	res, err := o.Run(ctx, strings.NewReader(script))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.StatementsFailed)
	assert.Greater(t, res.StatementsExecuted, 0)
}

func TestRunAbortsWhenContinueOnErrorDisabled(t *testing.T) {
	ctx := context.Background()
	c := openTestDB(t)
	platform, err := dialect.Get(schema.DialectSQLite)
	require.NoError(t, err)

	script := `-- SQLite Database Backup
BEGIN;
INSERT INTO nonexistent_table (id) VALUES (1);
COMMIT;
`
	opts := DefaultOptions()
	opts.ContinueOnError = false
	o := New(c, platform, opts)
	res, err := o.Run(ctx, strings.NewReader(script))
	require.Error(t, err)
	assert.False(t, res.Success)
}

func TestValidateRejectsEmptyScript(t *testing.T) {
	assert.Error(t, Validate(""))
}

func TestValidateRejectsMissingHeader(t *testing.T) {
	assert.Error(t, Validate("CREATE TABLE t (id int);"))
}

func TestValidateAcceptsWellFormedScript(t *testing.T) {
	assert.NoError(t, Validate(sampleScript))
}

func TestValidateRejectsUnwrappedScriptEvenWithoutCreateTable(t *testing.T) {
	script := "-- SQLite Database Backup\n-- Database: sample\nINSERT INTO widgets (id) VALUES (1);\n"
	assert.Error(t, Validate(script), "an empty-database backup is still wrapped in one transaction")
}

func TestValidateAcceptsEmptyDatabaseScript(t *testing.T) {
	script := "-- SQLite Database Backup\n-- Database: sample\n\nBEGIN;\nCOMMIT;\n"
	assert.NoError(t, Validate(script))
}

func TestSessionPragmasDisableForeignKeysForSQLite(t *testing.T) {
	stmts := sessionPragmas(schema.DialectSQLite, Options{DisableConstraints: true})
	assert.Contains(t, stmts, "PRAGMA foreign_keys = OFF")
}

func TestIsCreateTrigger(t *testing.T) {
	assert.True(t, isCreateTrigger("  CREATE TRIGGER t BEFORE INSERT ON x BEGIN END"))
	assert.False(t, isCreateTrigger("CREATE TABLE t (id int)"))
}
