package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbbackup/internal/schema"
	"dbbackup/internal/sqlparse"
)

func TestParseCreateTableBasic(t *testing.T) {
	p := New(schema.DialectMySQL)
	ddl := `CREATE TABLE widgets (
		id INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(100) NOT NULL DEFAULT 'unnamed',
		price DECIMAL(10,2) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_name (name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COMMENT='widgets table';`

	db, warnings, err := p.Parse(ddl, sqlparse.Options{})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, db.Tables, 1)

	table := db.Tables[0]
	assert.Equal(t, "widgets", table.Name)
	assert.Equal(t, "widgets table", table.Comment)
	require.NotNil(t, table.Options.MySQL)
	assert.Equal(t, "InnoDB", table.Options.MySQL.Engine)

	id := table.FindColumn("id")
	require.NotNil(t, id)
	assert.True(t, id.AutoIncrement)

	pk := table.PrimaryKey()
	require.NotNil(t, pk)
	assert.Equal(t, []string{"id"}, pk.Columns)

	name := table.FindColumn("name")
	require.NotNil(t, name)
	assert.Equal(t, schema.DefaultLit, name.Default.Kind)
	assert.Equal(t, "unnamed", name.Default.Value)

	createdAt := table.FindColumn("created_at")
	require.NotNil(t, createdAt)
	assert.Equal(t, "CURRENT_TIMESTAMP", createdAt.Default.Value)

	var uq *schema.Constraint
	for _, c := range table.Constraints {
		if c.Type == schema.ConstraintUnique {
			uq = c
		}
	}
	require.NotNil(t, uq)
	assert.Equal(t, []string{"name"}, uq.Columns)
}

func TestParseCreateTableForeignKey(t *testing.T) {
	p := New(schema.DialectMySQL)
	ddl := `CREATE TABLE orders (
		id INT NOT NULL PRIMARY KEY,
		widget_id INT NOT NULL,
		CONSTRAINT fk_widget FOREIGN KEY (widget_id) REFERENCES widgets(id) ON DELETE CASCADE
	);`

	db, _, err := p.Parse(ddl, sqlparse.Options{})
	require.NoError(t, err)
	require.Len(t, db.Tables, 1)

	var fk *schema.Constraint
	for _, c := range db.Tables[0].Constraints {
		if c.Type == schema.ConstraintForeignKey {
			fk = c
		}
	}
	require.NotNil(t, fk)
	assert.Equal(t, "widgets", fk.ReferencedTable)
	assert.Equal(t, schema.RefActionCascade, fk.OnDelete)
}

func TestParseNonStrictSkipsUnsupportedStatements(t *testing.T) {
	p := New(schema.DialectMySQL)
	sql := `CREATE TABLE a (id INT PRIMARY KEY); INSERT INTO a (id) VALUES (1);`

	db, warnings, err := p.Parse(sql, sqlparse.Options{Strict: false})
	require.NoError(t, err)
	require.Len(t, db.Tables, 1)
	assert.Len(t, warnings, 1)
}

func TestParseStrictRejectsUnsupportedStatements(t *testing.T) {
	p := New(schema.DialectMySQL)
	sql := `CREATE TABLE a (id INT PRIMARY KEY); INSERT INTO a (id) VALUES (1);`

	_, _, err := p.Parse(sql, sqlparse.Options{Strict: true})
	assert.Error(t, err)
}

func TestParseInvalidSQLErrors(t *testing.T) {
	p := New(schema.DialectMySQL)
	_, _, err := p.Parse("NOT VALID SQL !!!", sqlparse.Options{})
	assert.Error(t, err)
}

func TestRegisteredInSQLParseRegistry(t *testing.T) {
	for _, d := range []schema.Dialect{schema.DialectMySQL, schema.DialectMariaDB, schema.DialectTiDB} {
		p, err := sqlparse.Get(d)
		require.NoError(t, err)
		assert.NotNil(t, p)
	}
}
