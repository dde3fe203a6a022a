package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseFindTable(t *testing.T) {
	db := &Database{
		Name: "testdb",
		Tables: []*Table{
			{Name: "users"},
			{Name: "orders"},
		},
	}

	t.Run("find existing table", func(t *testing.T) {
		table := db.FindTable("orders")
		assert.NotNil(t, table)
		assert.Equal(t, "orders", table.Name)
	})

	t.Run("table not found", func(t *testing.T) {
		assert.Nil(t, db.FindTable("nonexistent"))
	})

	t.Run("nil database", func(t *testing.T) {
		var nilDB *Database
		assert.Nil(t, nilDB.FindTable("users"))
	})
}

func TestTableQualifiedName(t *testing.T) {
	unqualified := &Table{Name: "users"}
	assert.Equal(t, "users", unqualified.QualifiedName())

	qualified := &Table{Name: "users", Schema: "public"}
	assert.Equal(t, "public.users", qualified.QualifiedName())
}

func TestTableFindHelpers(t *testing.T) {
	table := &Table{
		Name:    "orders",
		Columns: []*Column{{Name: "id"}, {Name: "customer_id"}},
		Indexes: []*Index{{Name: "PRIMARY"}, {Name: "idx_customer"}},
		Constraints: []*Constraint{
			{Name: "pk_orders", Type: ConstraintPrimaryKey, Columns: []string{"id"}},
			{Name: "fk_orders_customer", Type: ConstraintForeignKey, Columns: []string{"customer_id"}, ReferencedTable: "customers"},
		},
	}

	assert.NotNil(t, table.FindColumn("customer_id"))
	assert.Nil(t, table.FindColumn("missing"))
	assert.NotNil(t, table.FindIndex("idx_customer"))
	assert.NotNil(t, table.FindConstraint("pk_orders"))

	pk := table.PrimaryKey()
	assert.NotNil(t, pk)
	assert.Equal(t, ConstraintPrimaryKey, pk.Type)

	fks := table.ForeignKeys()
	assert.Len(t, fks, 1)
	assert.Equal(t, "customers", fks[0].ReferencedTable)
}

func TestTableValidateAutoIncrementInvariant(t *testing.T) {
	t.Run("auto-increment must be non-nullable integer", func(t *testing.T) {
		table := &Table{
			Name: "widgets",
			Columns: []*Column{
				{Name: "id", Type: DataTypeInt, AutoIncrement: true, Nullable: false},
			},
		}
		assert.NoError(t, table.Validate())
	})

	t.Run("nullable auto-increment rejected", func(t *testing.T) {
		table := &Table{
			Name: "widgets",
			Columns: []*Column{
				{Name: "id", Type: DataTypeInt, AutoIncrement: true, Nullable: true},
			},
		}
		assert.Error(t, table.Validate())
	})

	t.Run("non-integer auto-increment rejected", func(t *testing.T) {
		table := &Table{
			Name: "widgets",
			Columns: []*Column{
				{Name: "id", Type: DataTypeString, AutoIncrement: true, Nullable: false},
			},
		}
		assert.Error(t, table.Validate())
	})

	t.Run("duplicate column names rejected", func(t *testing.T) {
		table := &Table{
			Name: "widgets",
			Columns: []*Column{
				{Name: "id", Type: DataTypeInt},
				{Name: "id", Type: DataTypeString},
			},
		}
		assert.Error(t, table.Validate())
	})
}

func TestNormalizeDataType(t *testing.T) {
	cases := map[string]DataType{
		"VARCHAR(255)":       DataTypeString,
		"INT":                DataTypeInt,
		"BIGINT UNSIGNED":    DataTypeInt,
		"DECIMAL(10,2)":      DataTypeFloat,
		"TINYINT(1)":         DataTypeBoolean,
		"TIMESTAMP":          DataTypeDatetime,
		"JSONB":              DataTypeJSON,
		"uuid":               DataTypeUUID,
		"BYTEA":              DataTypeBinary,
		"ENUM('a','b')":      DataTypeEnum,
		"some_weird_type_xx": DataTypeUnknown,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeDataType(raw), "raw=%s", raw)
	}
}

func TestCanonicalDefaultExpr(t *testing.T) {
	assert.Equal(t, "CURRENT_TIMESTAMP", CanonicalDefaultExpr("datetime('now')"))
	assert.Equal(t, "CURRENT_TIMESTAMP", CanonicalDefaultExpr("now()"))
	assert.Equal(t, "CURRENT_TIMESTAMP", CanonicalDefaultExpr("CURRENT_TIMESTAMP"))
	assert.Equal(t, "CURRENT_DATE", CanonicalDefaultExpr("date('now')"))
	// Preserved verbatim, not collapsed to CURRENT_TIMESTAMP.
	assert.Equal(t, "julianday('now')", CanonicalDefaultExpr("julianday('now')"))
	assert.Equal(t, "unixepoch()", CanonicalDefaultExpr("unixepoch()"))
}

func TestBuildEnumTypeRaw(t *testing.T) {
	assert.Equal(t, "enum('a','b')", BuildEnumTypeRaw([]string{"a", "b"}))
	assert.Equal(t, "enum('it''s')", BuildEnumTypeRaw([]string{"it's"}))
}

func TestValidDialect(t *testing.T) {
	assert.True(t, ValidDialect("mysql"))
	assert.True(t, ValidDialect("PostgreSQL"))
	assert.False(t, ValidDialect("oracle"))
}

func TestIsMySQLFamily(t *testing.T) {
	assert.True(t, DialectMySQL.IsMySQLFamily())
	assert.True(t, DialectMariaDB.IsMySQLFamily())
	assert.True(t, DialectTiDB.IsMySQLFamily())
	assert.False(t, DialectPostgreSQL.IsMySQLFamily())
	assert.False(t, DialectSQLite.IsMySQLFamily())
}
