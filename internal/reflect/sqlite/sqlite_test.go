package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbbackup/internal/conn"
	"dbbackup/internal/reflect"
	"dbbackup/internal/schema"
)

func openTestDB(t *testing.T, schemaSQL string) conn.Conn {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reflect.db")
	c, err := conn.Open(schema.DialectSQLite, "sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	_, err = c.Exec(context.Background(), schemaSQL)
	require.NoError(t, err)
	return c
}

func TestWithoutRowidPattern(t *testing.T) {
	assert.True(t, withoutRowidPattern.MatchString("CREATE TABLE t (a INTEGER) WITHOUT ROWID"))
	assert.False(t, withoutRowidPattern.MatchString("CREATE TABLE t (a INTEGER)"))
}

func TestStrictPattern(t *testing.T) {
	assert.True(t, strictPattern.MatchString("CREATE TABLE t (a INTEGER) STRICT"))
	assert.True(t, strictPattern.MatchString("CREATE TABLE t (a INTEGER) WITHOUT ROWID, STRICT"))
	assert.False(t, strictPattern.MatchString("CREATE TABLE t (a INTEGER)"))
}

func TestAutoincrementPattern(t *testing.T) {
	assert.True(t, autoincrementPattern.MatchString("CREATE TABLE t (id INTEGER PRIMARY KEY AUTOINCREMENT)"))
	assert.False(t, autoincrementPattern.MatchString("CREATE TABLE t (id INTEGER PRIMARY KEY)"))
}

func TestClassifyDefault(t *testing.T) {
	assert.Equal(t, schema.DefaultNull, classifyDefault("NULL"))
	assert.Equal(t, schema.DefaultLit, classifyDefault("'active'"))
	assert.Equal(t, schema.DefaultLit, classifyDefault("0"))
	assert.Equal(t, schema.DefaultLit, classifyDefault("-1.5"))
	assert.Equal(t, schema.DefaultExpr, classifyDefault("CURRENT_TIMESTAMP"))
}

func TestIsNumericLiteral(t *testing.T) {
	assert.True(t, isNumericLiteral("123"))
	assert.True(t, isNumericLiteral("-1.5"))
	assert.False(t, isNumericLiteral(""))
	assert.False(t, isNumericLiteral("CURRENT_TIMESTAMP"))
}

func TestStripTripleQuotes(t *testing.T) {
	assert.Equal(t, "'it''s'", stripTripleQuotes("'''it''s'''"))
	assert.Equal(t, "CURRENT_TIMESTAMP", stripTripleQuotes("CURRENT_TIMESTAMP"))
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, "'widgets'", quoteIdent("widgets"))
	assert.Equal(t, "'it''s'", quoteIdent("it's"))
}

func TestRegisteredInReflectRegistry(t *testing.T) {
	r, err := reflect.Get(schema.DialectSQLite)
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestReflectCapturesIntegerPrimaryKey(t *testing.T) {
	c := openTestDB(t, `CREATE TABLE widgets (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`)
	db, err := New().Reflect(context.Background(), c, "main")
	require.NoError(t, err)
	require.Len(t, db.Tables, 1)

	pk := db.Tables[0].PrimaryKey()
	require.NotNil(t, pk, "reflected primary key must not be nil")
	assert.Equal(t, []string{"id"}, pk.Columns)

	idCol := db.Tables[0].Columns[0]
	assert.True(t, idCol.AutoIncrement)
}

func TestReflectCapturesCompositePrimaryKey(t *testing.T) {
	c := openTestDB(t, `CREATE TABLE memberships (org_id INTEGER NOT NULL, user_id INTEGER NOT NULL, role TEXT, PRIMARY KEY (user_id, org_id))`)
	db, err := New().Reflect(context.Background(), c, "main")
	require.NoError(t, err)
	require.Len(t, db.Tables, 1)

	pk := db.Tables[0].PrimaryKey()
	require.NotNil(t, pk)
	// SQLite's table_info pk ordinal preserves declaration order within
	// the key, not column declaration order in the table.
	assert.Equal(t, []string{"user_id", "org_id"}, pk.Columns)

	for _, idx := range db.Tables[0].Indexes {
		assert.NotEqual(t, "sqlite_autoindex_memberships_1", idx.Name, "the PK-backing autoindex must not also be emitted as a plain index")
	}
}

func TestReflectKeepsImplicitUniqueIndex(t *testing.T) {
	c := openTestDB(t, `CREATE TABLE accounts (id INTEGER PRIMARY KEY, email TEXT UNIQUE)`)
	db, err := New().Reflect(context.Background(), c, "main")
	require.NoError(t, err)
	require.Len(t, db.Tables, 1)

	require.Len(t, db.Tables[0].Indexes, 1, "the UNIQUE column's autoindex is the only record of that constraint")
	assert.True(t, db.Tables[0].Indexes[0].Unique)
}
