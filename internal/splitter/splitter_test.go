package splitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbbackup/internal/schema"
)

func texts(stmts []Statement) []string {
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = s.Text
	}
	return out
}

func TestSplitBasicSemicolons(t *testing.T) {
	sql := "CREATE TABLE a (id int);\nINSERT INTO a VALUES (1);"
	got := Split(sql, schema.DialectMySQL, Options{})
	require.Len(t, got, 2)
	assert.Equal(t, "CREATE TABLE a (id int)", got[0].Text)
	assert.Equal(t, "INSERT INTO a VALUES (1)", got[1].Text)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, 1, got[1].Index)
}

func TestSplitIgnoresSemicolonInsideSingleQuotedString(t *testing.T) {
	sql := `INSERT INTO a (note) VALUES ('a;b');SELECT 1;`
	got := texts(Split(sql, schema.DialectMySQL, Options{}))
	require.Len(t, got, 2)
	assert.Equal(t, `INSERT INTO a (note) VALUES ('a;b')`, got[0])
}

func TestSplitHandlesDoubledQuoteEscape(t *testing.T) {
	sql := `INSERT INTO a (note) VALUES ('it''s; fine');`
	got := texts(Split(sql, schema.DialectPostgreSQL, Options{}))
	require.Len(t, got, 1)
	assert.Equal(t, `INSERT INTO a (note) VALUES ('it''s; fine')`, got[0])
}

func TestSplitHandlesMySQLBackslashEscape(t *testing.T) {
	sql := `INSERT INTO a VALUES ('a\'; b');SELECT 2;`
	got := texts(Split(sql, schema.DialectMySQL, Options{}))
	require.Len(t, got, 2)
	assert.Equal(t, `INSERT INTO a VALUES ('a\'; b')`, got[0])
}

func TestSplitIgnoresSemicolonInsideBacktickIdentifier(t *testing.T) {
	sql := "SELECT * FROM `weird;table`;"
	got := texts(Split(sql, schema.DialectMySQL, Options{}))
	require.Len(t, got, 1)
	assert.Equal(t, "SELECT * FROM `weird;table`", got[0])
}

func TestSplitIgnoresSemicolonInsideBracketIdentifierSQLite(t *testing.T) {
	sql := "SELECT * FROM [weird;table];"
	got := texts(Split(sql, schema.DialectSQLite, Options{}))
	require.Len(t, got, 1)
	assert.Equal(t, "SELECT * FROM [weird;table]", got[0])
}

func TestSplitIgnoresSemicolonInsideParens(t *testing.T) {
	sql := "CREATE TABLE a (id int, CHECK (id > 0 AND id < 10));SELECT 1;"
	got := texts(Split(sql, schema.DialectMySQL, Options{}))
	require.Len(t, got, 2)
}

func TestSplitDollarQuotedFunctionBody(t *testing.T) {
	sql := `CREATE FUNCTION f() RETURNS int AS $$ BEGIN RETURN 1; END; $$ LANGUAGE plpgsql;SELECT 1;`
	got := texts(Split(sql, schema.DialectPostgreSQL, Options{}))
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "BEGIN RETURN 1; END;")
}

func TestSplitDollarQuotedWithTag(t *testing.T) {
	sql := `CREATE FUNCTION f() AS $body$ SELECT 1; $body$ LANGUAGE sql;SELECT 2;`
	got := texts(Split(sql, schema.DialectPostgreSQL, Options{}))
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "SELECT 1;")
}

func TestSplitDelimiterDirective(t *testing.T) {
	sql := "DELIMITER $$\nCREATE TRIGGER trg BEFORE INSERT ON a FOR EACH ROW BEGIN SET NEW.x = 1; END$$\nDELIMITER ;\nSELECT 1;"
	got := texts(Split(sql, schema.DialectMySQL, Options{}))
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "BEGIN SET NEW.x = 1; END")
	assert.Equal(t, "SELECT 1", got[1])
}

func TestSplitStripComments(t *testing.T) {
	sql := "-- a comment\nSELECT 1; /* block */ SELECT 2;"
	got := texts(Split(sql, schema.DialectMySQL, Options{StripComments: true}))
	require.Len(t, got, 2)
	assert.NotContains(t, got[0], "a comment")
	assert.NotContains(t, got[1], "block")
}

func TestSplitPreservesCommentsByDefault(t *testing.T) {
	sql := "-- a comment\nSELECT 1;"
	got := texts(Split(sql, schema.DialectMySQL, Options{}))
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "a comment")
}

func TestSplitEmptyInput(t *testing.T) {
	assert.Empty(t, Split("", schema.DialectMySQL, Options{}))
	assert.Empty(t, Split("   \n\t  ", schema.DialectMySQL, Options{}))
}

func TestSplitTrailingStatementWithoutTerminator(t *testing.T) {
	got := texts(Split("SELECT 1", schema.DialectMySQL, Options{}))
	require.Len(t, got, 1)
	assert.Equal(t, "SELECT 1", got[0])
}
