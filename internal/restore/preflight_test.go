package restore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbbackup/internal/schema"
)

func TestDetectDestructiveStatementsFlagsDropAndTruncate(t *testing.T) {
	script := `
CREATE TABLE t (id INT PRIMARY KEY);
DROP TABLE old_t;
TRUNCATE TABLE logs;
DELETE FROM sessions;
DELETE FROM sessions WHERE id = 1;
`
	warnings, err := DetectDestructiveStatements(schema.DialectMySQL, script)
	require.NoError(t, err)
	require.Len(t, warnings, 3)
	assert.Contains(t, warnings[0].Reason, "drops a table")
	assert.Contains(t, warnings[1].Reason, "truncates a table")
	assert.Contains(t, warnings[2].Reason, "no WHERE clause")
}

func TestDetectDestructiveStatementsSkipsNonMySQLDialects(t *testing.T) {
	warnings, err := DetectDestructiveStatements(schema.DialectPostgreSQL, "DROP TABLE t; TRUNCATE TABLE t;")
	require.NoError(t, err)
	assert.Empty(t, warnings)

	warnings, err = DetectDestructiveStatements(schema.DialectSQLite, "DROP TABLE t;")
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestDetectDestructiveStatementsIgnoresUnparseableStatements(t *testing.T) {
	warnings, err := DetectDestructiveStatements(schema.DialectMySQL, "THIS IS NOT SQL;")
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestFormatDestructiveWarnings(t *testing.T) {
	out := FormatDestructiveWarnings([]DestructiveWarning{
		{Index: 2, Statement: "DROP TABLE old_t", Reason: "drops a table and all of its data"},
	})
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "statement #2")
	assert.Contains(t, out[0], "drops a table")
}
