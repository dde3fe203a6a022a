package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mysqldialect "dbbackup/internal/dialect/mysql"
	pgdialect "dbbackup/internal/dialect/postgres"
	sqlitedialect "dbbackup/internal/dialect/sqlite"
	"dbbackup/internal/schema"
)

func widgetsTable() *schema.Table {
	return &schema.Table{
		Name: "widgets",
		Columns: []*schema.Column{
			{Name: "id", Type: schema.DataTypeInt, RawType: "int", AutoIncrement: true, Nullable: false},
			{Name: "name", Type: schema.DataTypeString, RawType: "varchar(255)", Nullable: false},
			{Name: "price", Type: schema.DataTypeFloat, RawType: "decimal(10,2)", Nullable: true},
		},
		Constraints: []*schema.Constraint{
			{Name: "pk_widgets", Type: schema.ConstraintPrimaryKey, Columns: []string{"id"}},
		},
		Indexes: []*schema.Index{
			{Name: "idx_widgets_name", Columns: []schema.ColumnIndex{{Name: "name"}}, Unique: false},
		},
	}
}

func TestTableRenderMySQLInlineAutoIncrementPK(t *testing.T) {
	table := widgetsTable()
	res, err := Table(table, mysqldialect.NewPlatform(schema.DialectMySQL), nil)
	require.NoError(t, err)

	assert.Contains(t, res.CreateSQL, "CREATE TABLE `widgets` (")
	assert.Contains(t, res.CreateSQL, "AUTO_INCREMENT")
	assert.Contains(t, res.CreateSQL, "PRIMARY KEY")
	assert.True(t, res.InlineConstraintNames["pk_widgets"])
	require.Len(t, res.DeferredIndexes, 1, "non-unique indexes are always deferred")
	assert.Equal(t, "idx_widgets_name", res.DeferredIndexes[0].Name)
}

func TestTableRenderPostgresSerialPK(t *testing.T) {
	table := widgetsTable()
	res, err := Table(table, pgdialect.NewPlatform(), nil)
	require.NoError(t, err)
	assert.Contains(t, res.CreateSQL, "serial PRIMARY KEY")
}

func TestTableRenderSQLiteAutoincrement(t *testing.T) {
	table := widgetsTable()
	res, err := Table(table, sqlitedialect.NewPlatform(), nil)
	require.NoError(t, err)
	assert.Contains(t, res.CreateSQL, "AUTOINCREMENT")
}

func TestTableRenderDefersCyclicForeignKey(t *testing.T) {
	table := &schema.Table{
		Name:    "a",
		Columns: []*schema.Column{{Name: "id", Type: schema.DataTypeInt}, {Name: "b_id", Type: schema.DataTypeInt}},
		Constraints: []*schema.Constraint{
			{Name: "pk_a", Type: schema.ConstraintPrimaryKey, Columns: []string{"id"}},
			{Name: "fk_a_b", Type: schema.ConstraintForeignKey, Columns: []string{"b_id"}, ReferencedTable: "b", ReferencedColumns: []string{"id"}},
		},
	}
	isCycle := func(tableName string, fk *schema.Constraint) bool { return fk.Name == "fk_a_b" }

	res, err := Table(table, mysqldialect.NewPlatform(schema.DialectMySQL), isCycle)
	require.NoError(t, err)
	assert.NotContains(t, res.CreateSQL, "FOREIGN KEY")
	require.Len(t, res.DeferredForeignKeys, 1)
	assert.Equal(t, "fk_a_b", res.DeferredForeignKeys[0].Name)
}

func TestTableRenderInlinesNonCyclicForeignKey(t *testing.T) {
	table := &schema.Table{
		Name:    "orders",
		Columns: []*schema.Column{{Name: "id", Type: schema.DataTypeInt}, {Name: "customer_id", Type: schema.DataTypeInt}},
		Constraints: []*schema.Constraint{
			{Name: "pk_orders", Type: schema.ConstraintPrimaryKey, Columns: []string{"id"}},
			{Name: "fk_orders_customer", Type: schema.ConstraintForeignKey, Columns: []string{"customer_id"}, ReferencedTable: "customers", ReferencedColumns: []string{"id"}},
		},
	}
	res, err := Table(table, mysqldialect.NewPlatform(schema.DialectMySQL), nil)
	require.NoError(t, err)
	assert.Contains(t, res.CreateSQL, "FOREIGN KEY")
	assert.Empty(t, res.DeferredForeignKeys)
	assert.True(t, res.InlineConstraintNames["fk_orders_customer"])
}

func TestTableRenderUniqueConstraintAndCheckInline(t *testing.T) {
	table := &schema.Table{
		Name:    "accounts",
		Columns: []*schema.Column{{Name: "id", Type: schema.DataTypeInt}, {Name: "email", Type: schema.DataTypeString, RawType: "text"}},
		Constraints: []*schema.Constraint{
			{Name: "pk_accounts", Type: schema.ConstraintPrimaryKey, Columns: []string{"id"}},
			{Name: "uq_email", Type: schema.ConstraintUnique, Columns: []string{"email"}},
			{Name: "chk_email_nonempty", Type: schema.ConstraintCheck, CheckExpression: "email <> ''"},
		},
	}
	res, err := Table(table, pgdialect.NewPlatform(), nil)
	require.NoError(t, err)
	assert.Contains(t, res.CreateSQL, "CONSTRAINT \"uq_email\" UNIQUE")
	assert.Contains(t, res.CreateSQL, "CONSTRAINT \"chk_email_nonempty\" CHECK (email <> '')")
}

func TestTableRenderMySQLGeneratedColumn(t *testing.T) {
	table := &schema.Table{
		Name: "orders",
		Columns: []*schema.Column{
			{Name: "id", Type: schema.DataTypeInt, RawType: "int", AutoIncrement: true},
			{Name: "price", Type: schema.DataTypeFloat, RawType: "decimal(10,2)"},
			{Name: "qty", Type: schema.DataTypeInt, RawType: "int"},
			{Name: "total", Type: schema.DataTypeFloat, RawType: "decimal(10,2)", GeneratedExpression: "(`price` * `qty`)", GeneratedStored: true},
		},
		Constraints: []*schema.Constraint{
			{Name: "pk_orders", Type: schema.ConstraintPrimaryKey, Columns: []string{"id"}},
		},
	}
	res, err := Table(table, mysqldialect.NewPlatform(schema.DialectMySQL), nil)
	require.NoError(t, err)
	assert.Contains(t, res.CreateSQL, "GENERATED ALWAYS AS ((`price` * `qty`)) STORED")
	assert.NotContains(t, res.CreateSQL, "`total` decimal(10,2) DEFAULT")
}

func TestTableRenderPostgresComments(t *testing.T) {
	table := &schema.Table{
		Name:    "accounts",
		Comment: "user accounts",
		Columns: []*schema.Column{{Name: "id", Type: schema.DataTypeInt, Comment: "primary identifier"}},
	}
	res, err := Table(table, pgdialect.NewPlatform(), nil)
	require.NoError(t, err)
	require.Len(t, res.CommentStatements, 2)
	assert.Contains(t, res.CommentStatements[0], "COMMENT ON TABLE")
	assert.Contains(t, res.CommentStatements[1], "COMMENT ON COLUMN")
}

func TestTableRenderNilTableErrors(t *testing.T) {
	_, err := Table(nil, mysqldialect.NewPlatform(schema.DialectMySQL), nil)
	assert.Error(t, err)
}

func TestDeferredIndexStatement(t *testing.T) {
	table := &schema.Table{Name: "widgets"}
	idx := &schema.Index{Name: "idx_widgets_name", Columns: []schema.ColumnIndex{{Name: "name"}}}
	stmt := DeferredIndexStatement(table, idx, mysqldialect.NewPlatform(schema.DialectMySQL))
	assert.Equal(t, "CREATE INDEX `idx_widgets_name` ON `widgets` (`name`);", stmt)
}

func TestDeferredForeignKeyStatement(t *testing.T) {
	table := &schema.Table{Name: "orders"}
	fk := &schema.Constraint{Name: "fk_orders_customer", Columns: []string{"customer_id"}, ReferencedTable: "customers", ReferencedColumns: []string{"id"}}
	stmt := DeferredForeignKeyStatement(table, fk, mysqldialect.NewPlatform(schema.DialectMySQL))
	assert.Contains(t, stmt, "ALTER TABLE `orders` ADD CONSTRAINT `fk_orders_customer` FOREIGN KEY")
}

func TestQualifiedIdentifierWithSchema(t *testing.T) {
	table := &schema.Table{Name: "widgets", Schema: "public"}
	assert.Equal(t, `"public"."widgets"`, qualifiedIdentifier(table, pgdialect.NewPlatform()))
}
