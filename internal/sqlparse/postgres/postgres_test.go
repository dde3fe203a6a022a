package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbbackup/internal/schema"
	"dbbackup/internal/sqlparse"
)

func TestParseCreateTableBasic(t *testing.T) {
	p := New()
	ddl := `CREATE TABLE widgets (
		id serial PRIMARY KEY,
		name varchar(100) NOT NULL DEFAULT 'unnamed',
		price numeric(10,2) NOT NULL,
		tags text[],
		created_at timestamp NOT NULL DEFAULT now()
	);`

	db, warnings, err := p.Parse(ddl, sqlparse.Options{})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, db.Tables, 1)

	table := db.Tables[0]
	assert.Equal(t, "widgets", table.Name)

	name := table.FindColumn("name")
	require.NotNil(t, name)
	assert.False(t, name.Nullable)
	assert.Equal(t, schema.DefaultLit, name.Default.Kind)
	assert.Equal(t, "unnamed", name.Default.Value)

	price := table.FindColumn("price")
	require.NotNil(t, price)
	assert.Equal(t, 10, price.Precision)
	assert.Equal(t, 2, price.Scale)

	tags := table.FindColumn("tags")
	require.NotNil(t, tags)
	assert.True(t, tags.IsArray)

	createdAt := table.FindColumn("created_at")
	require.NotNil(t, createdAt)
	assert.Equal(t, "CURRENT_TIMESTAMP", createdAt.Default.Value)
}

func TestParseUnloggedTable(t *testing.T) {
	p := New()
	db, _, err := p.Parse(`CREATE UNLOGGED TABLE sessions (id int PRIMARY KEY);`, sqlparse.Options{})
	require.NoError(t, err)
	require.Len(t, db.Tables, 1)
	require.NotNil(t, db.Tables[0].Options.PostgreSQL)
	assert.True(t, db.Tables[0].Options.PostgreSQL.Unlogged)
}

func TestParseForeignKeyConstraint(t *testing.T) {
	p := New()
	ddl := `CREATE TABLE orders (
		id int PRIMARY KEY,
		widget_id int NOT NULL,
		CONSTRAINT fk_widget FOREIGN KEY (widget_id) REFERENCES widgets (id) ON DELETE CASCADE
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

func TestParseCheckConstraint(t *testing.T) {
	p := New()
	ddl := `CREATE TABLE widgets (
		id int PRIMARY KEY,
		price numeric(10,2) NOT NULL,
		CONSTRAINT chk_price CHECK (price > 0)
	);`
	db, _, err := p.Parse(ddl, sqlparse.Options{})
	require.NoError(t, err)

	var chk *schema.Constraint
	for _, c := range db.Tables[0].Constraints {
		if c.Type == schema.ConstraintCheck {
			chk = c
		}
	}
	require.NotNil(t, chk)
	assert.Equal(t, "price > 0", chk.CheckExpression)
}

func TestParseNonStrictSkipsUnsupportedStatements(t *testing.T) {
	p := New()
	sql := `CREATE TABLE a (id int PRIMARY KEY); INSERT INTO a (id) VALUES (1);`
	db, warnings, err := p.Parse(sql, sqlparse.Options{Strict: false})
	require.NoError(t, err)
	require.Len(t, db.Tables, 1)
	assert.Len(t, warnings, 1)
}

func TestParseStrictRejectsUnsupportedStatements(t *testing.T) {
	p := New()
	sql := `CREATE TABLE a (id int PRIMARY KEY); INSERT INTO a (id) VALUES (1);`
	_, _, err := p.Parse(sql, sqlparse.Options{Strict: true})
	assert.Error(t, err)
}

func TestSplitTopLevelCommasRespectsParens(t *testing.T) {
	parts := splitTopLevelCommas("a int, b numeric(10,2), CHECK (a > 0 AND b > 0)")
	assert.Len(t, parts, 3)
}

func TestRegisteredInSQLParseRegistry(t *testing.T) {
	p, err := sqlparse.Get(schema.DialectPostgreSQL)
	require.NoError(t, err)
	assert.NotNil(t, p)
}
