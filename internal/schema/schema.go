// Package schema contains the single source of truth for a reflected or
// parsed database schema. It provides a structured, dialect-neutral
// representation for databases, tables, columns, indexes, and constraints
// that the rest of the backup/restore toolchain operates on.
package schema

import (
	"fmt"
	"strings"
)

// Dialect identifies a supported SQL dialect.
type Dialect string

const (
	DialectMySQL      Dialect = "mysql"
	DialectMariaDB    Dialect = "mariadb"
	DialectTiDB       Dialect = "tidb"
	DialectPostgreSQL Dialect = "postgresql"
	DialectSQLite     Dialect = "sqlite"
)

// SupportedDialects returns every dialect this module can reflect, parse,
// render, and restore.
func SupportedDialects() []Dialect {
	return []Dialect{DialectMySQL, DialectMariaDB, DialectTiDB, DialectPostgreSQL, DialectSQLite}
}

// ValidDialect reports whether d is a recognized dialect string.
func ValidDialect(d string) bool {
	for _, supported := range SupportedDialects() {
		if strings.EqualFold(string(supported), d) {
			return true
		}
	}
	return false
}

// IsMySQLFamily reports whether d shares MySQL's information_schema and
// wire-syntax surface (MySQL proper, MariaDB, TiDB).
func (d Dialect) IsMySQLFamily() bool {
	switch d {
	case DialectMySQL, DialectMariaDB, DialectTiDB:
		return true
	default:
		return false
	}
}

// Database is the root of a reflected or parsed schema: a named database in
// one dialect, holding all of its user tables.
type Database struct {
	Name    string
	Dialect Dialect
	Tables  []*Table
	// Triggers holds every trigger captured during reflection or parsing,
	// carried as raw CREATE TRIGGER text rather than a structured model:
	// the three engines' trigger grammars diverge too much to normalize
	// usefully, and the backup/restore path only ever replays them
	// verbatim.
	Triggers []*Trigger
}

// Trigger is a database trigger captured as its defining SQL text. Table
// identifies the trigger's owning table so duplicate-suppression can key
// on "table.trigger_name".
type Trigger struct {
	Name       string
	Table      string
	Definition string
}

// Table owns its Columns, Indexes, and Constraints exclusively; their
// lifetime is the table's. Foreign-key constraints reference other tables
// by name only (see Constraint.ReferencedTable) so there is no shared
// ownership graph for the Dependency Sorter to manage.
type Table struct {
	// Name is the unqualified table name.
	Name string
	// Schema is the optional schema/namespace qualifier (e.g. PostgreSQL
	// schema, empty for MySQL/SQLite which have no such concept here).
	Schema string
	// Columns preserves insertion order for DDL emission.
	Columns []*Column
	// Indexes is keyed conceptually by name; at most one may be a primary
	// key index (name "PRIMARY").
	Indexes []*Index
	// Constraints is keyed conceptually by name.
	Constraints []*Constraint
	Comment     string
	Options     TableOptions
}

// QualifiedName returns the table name prefixed with its schema qualifier,
// if any, using dot notation (schema.table).
func (t *Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// TableOptions holds cross-dialect and dialect-specific table options. Only
// Tablespace is meaningful across more than one of the three in-scope
// dialects (MySQL/MariaDB/TiDB, PostgreSQL); the rest live in their
// per-dialect groups.
type TableOptions struct {
	Tablespace string

	MySQL      *MySQLTableOptions
	PostgreSQL *PostgreSQLTableOptions
	SQLite     *SQLiteTableOptions
}

// MySQLTableOptions contains MySQL/MariaDB/TiDB table options captured
// during reflection or parsing and re-emitted verbatim on backup.
type MySQLTableOptions struct {
	Engine        string
	Charset       string
	Collate       string
	AutoIncrement uint64
	RowFormat     string

	// ShowCreateSQL is the verbatim text of SHOW CREATE TABLE, captured
	// during live reflection as an authoritative fallback for table
	// features information_schema cannot represent cleanly. It is not
	// itself re-emitted; the Renderer still builds CREATE TABLE from the
	// structured Table/Column/Index/Constraint fields.
	ShowCreateSQL string
}

// PostgreSQLTableOptions contains PostgreSQL-specific table options.
type PostgreSQLTableOptions struct {
	Unlogged bool
}

// SQLiteTableOptions contains SQLite-specific table options.
type SQLiteTableOptions struct {
	WithoutRowid bool
	Strict       bool
}

// DataType is the dialect-neutral logical type enum a Column's Type is
// drawn from. Dialect-specific syntax lives in RawType / in the Dialect
// Platform's RenderType.
type DataType string

const (
	DataTypeString   DataType = "string"
	DataTypeInt      DataType = "int"
	DataTypeFloat    DataType = "float"
	DataTypeBoolean  DataType = "boolean"
	DataTypeDatetime DataType = "datetime"
	DataTypeJSON     DataType = "json"
	DataTypeUUID     DataType = "uuid"
	DataTypeBinary   DataType = "binary"
	DataTypeEnum     DataType = "enum"
	DataTypeUnknown  DataType = "unknown"
)

// DefaultKind classifies a Column's DefaultValue.
type DefaultKind string

const (
	DefaultAbsent DefaultKind = ""
	DefaultNull   DefaultKind = "null"
	DefaultLit    DefaultKind = "literal"
	DefaultExpr   DefaultKind = "expression"
)

// ColumnDefault is a column's DEFAULT clause: one of absent, NULL, a scalar
// literal, or a raw SQL expression token.
type ColumnDefault struct {
	Kind DefaultKind
	// Value holds the literal text (for DefaultLit, unquoted) or the raw
	// expression token (for DefaultExpr, e.g. "CURRENT_TIMESTAMP").
	Value string
}

// HasDefault reports whether a default of any kind (including NULL) was
// specified.
func (d *ColumnDefault) HasDefault() bool {
	return d != nil && d.Kind != DefaultAbsent
}

// Column represents a single column inside a table.
type Column struct {
	Name string
	// RawType is the originating dialect's type syntax (e.g. "varchar(255)",
	// "jsonb"). Always populated by the Reflector/Parser; the Renderer
	// prefers it and falls back to mapping Type via the target Platform
	// only when rendering into a different dialect than it came from.
	RawType string
	// Type is the normalized portable data type used for cross-dialect
	// classification (NormalizeDataType).
	Type DataType

	// Length/Precision/Scale are type parameters: Length for
	// string/binary types, Precision/Scale for fixed-point numerics.
	Length    int
	Precision int
	Scale     int
	// IsArray marks a PostgreSQL array-typed column (element type is Type).
	IsArray bool
	// EnumValues holds the allowed values when Type is DataTypeEnum.
	EnumValues []string

	Nullable      bool
	AutoIncrement bool
	Default       ColumnDefault
	// OnUpdate is the ON UPDATE expression (MySQL/MariaDB), e.g.
	// "CURRENT_TIMESTAMP".
	OnUpdate string
	Comment  string
	Collate  string
	Charset  string

	// Unsigned and Zerofill are MySQL/MariaDB numeric column attributes.
	Unsigned bool
	Zerofill bool

	// Sequence names the PostgreSQL sequence backing this column's
	// AutoIncrement default (resolved from its "nextval('seq'::regclass)"
	// default expression). Empty for MySQL/SQLite, whose autoincrement
	// counters live with the table itself rather than an independent
	// object.
	Sequence string

	// GeneratedExpression is the expression text for a generated/computed
	// column (MySQL GENERATED ALWAYS AS, PostgreSQL GENERATED ALWAYS AS).
	// Empty for an ordinary column.
	GeneratedExpression string
	// GeneratedStored is true for STORED generated columns, false for
	// VIRTUAL ones. Meaningless when GeneratedExpression is empty.
	GeneratedStored bool
}

// Constraint represents a table-level constraint: PRIMARY KEY, FOREIGN KEY,
// UNIQUE, or CHECK.
type Constraint struct {
	Name    string
	Type    ConstraintType
	Columns []string

	// ReferencedTable is the target table name for a FOREIGN KEY. It may
	// carry a schema qualifier (schema.table) for PostgreSQL. This is a
	// weak, name-only reference, never a *Table pointer.
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          ReferentialAction
	OnUpdate          ReferentialAction
	MatchMode         string
	Deferrable        bool
	InitiallyDeferred bool

	CheckExpression string
}

// ConstraintType is the constraint kind enum.
type ConstraintType string

const (
	ConstraintPrimaryKey ConstraintType = "PRIMARY KEY"
	ConstraintForeignKey ConstraintType = "FOREIGN KEY"
	ConstraintUnique     ConstraintType = "UNIQUE"
	ConstraintCheck      ConstraintType = "CHECK"
)

// ReferentialAction is the FK ON DELETE / ON UPDATE action enum.
type ReferentialAction string

const (
	RefActionNone       ReferentialAction = ""
	RefActionCascade    ReferentialAction = "CASCADE"
	RefActionRestrict   ReferentialAction = "RESTRICT"
	RefActionSetNull    ReferentialAction = "SET NULL"
	RefActionSetDefault ReferentialAction = "SET DEFAULT"
	RefActionNoAction   ReferentialAction = "NO ACTION"
)

// IndexType is the index algorithm/kind enum.
type IndexType string

const (
	IndexTypeBTree    IndexType = "BTREE"
	IndexTypeHash     IndexType = "HASH"
	IndexTypeFullText IndexType = "FULLTEXT"
	IndexTypeSpatial  IndexType = "SPATIAL"
	IndexTypeGIN      IndexType = "GIN"
	IndexTypeGiST     IndexType = "GiST"
)

// SortOrder is a column's sort direction within an index.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// ColumnIndex describes a single column reference within an Index
// definition: name, optional prefix length, optional sort direction.
type ColumnIndex struct {
	Name   string
	Length int
	Order  SortOrder
}

// Index represents a table index.
type Index struct {
	// Name "PRIMARY" is reserved for the primary-key index; a table has at
	// most one.
	Name    string
	Type    IndexType
	Columns []ColumnIndex
	Unique  bool
	// Method is an optional access-method hint (btree/hash/gin/…).
	Method string
	// Predicate is an optional partial-index predicate expression
	// (PostgreSQL/SQLite).
	Predicate string
	Comment   string
}

// Names returns the column names covered by the index, in order.
func (i *Index) Names() []string {
	names := make([]string, len(i.Columns))
	for idx, c := range i.Columns {
		names[idx] = c.Name
	}
	return names
}

// FindTable looks up a table by unqualified name.
func (db *Database) FindTable(name string) *Table {
	if db == nil {
		return nil
	}
	for _, t := range db.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// FindColumn looks up a column by name inside a table.
func (t *Table) FindColumn(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// FindConstraint looks up a constraint by name inside a table.
func (t *Table) FindConstraint(name string) *Constraint {
	for _, c := range t.Constraints {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// FindIndex looks up an index by name inside a table.
func (t *Table) FindIndex(name string) *Index {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx
		}
	}
	return nil
}

// PrimaryKey returns the table's primary-key constraint, or nil.
func (t *Table) PrimaryKey() *Constraint {
	for _, c := range t.Constraints {
		if c.Type == ConstraintPrimaryKey {
			return c
		}
	}
	return nil
}

// ForeignKeys returns the table's foreign-key constraints, in declaration
// order.
func (t *Table) ForeignKeys() []*Constraint {
	var fks []*Constraint
	for _, c := range t.Constraints {
		if c.Type == ConstraintForeignKey {
			fks = append(fks, c)
		}
	}
	return fks
}

// String returns a short human-readable summary of the table.
func (t *Table) String() string {
	return fmt.Sprintf("Table: %s (%d cols, %d constraints, %d indexes)",
		t.Name, len(t.Columns), len(t.Constraints), len(t.Indexes))
}

// Validate checks a table's structural invariants: unique
// column names within a table, at most one primary-key index, and
// auto-increment columns being non-nullable integer-affinity columns.
func (t *Table) Validate() error {
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("table %q: duplicate column %q", t.Name, c.Name)
		}
		seen[c.Name] = struct{}{}

		if c.AutoIncrement {
			if c.Nullable {
				return fmt.Errorf("table %q: auto-increment column %q must be NOT NULL", t.Name, c.Name)
			}
			if c.Type != DataTypeInt {
				return fmt.Errorf("table %q: auto-increment column %q must have integer affinity, has %q", t.Name, c.Name, c.Type)
			}
		}
	}

	pkCount := 0
	for _, idx := range t.Indexes {
		if idx.Name == "PRIMARY" || idx.Type == "" && idx.Name == "PRIMARY" {
			pkCount++
		}
	}
	if pkCount > 1 {
		return fmt.Errorf("table %q: more than one PRIMARY index", t.Name)
	}
	return nil
}

var normalizeDataTypeRules = []struct {
	dataType   DataType
	substrings []string
}{
	{dataType: DataTypeEnum, substrings: []string{"enum"}},
	{dataType: DataTypeBoolean, substrings: []string{"bool", "tinyint(1)"}},
	{dataType: DataTypeJSON, substrings: []string{"json"}},
	{dataType: DataTypeUUID, substrings: []string{"uuid"}},
	{dataType: DataTypeString, substrings: []string{"char", "text", "string", "set", "clob"}},
	{dataType: DataTypeInt, substrings: []string{"int", "serial"}},
	{dataType: DataTypeFloat, substrings: []string{"float", "double", "decimal", "numeric", "real", "money"}},
	{dataType: DataTypeDatetime, substrings: []string{"timestamp", "date", "time"}},
	{dataType: DataTypeBinary, substrings: []string{"blob", "binary", "bytea"}},
}

// NormalizeDataType maps a raw dialect type string (e.g. "VARCHAR(255)") to
// one of the portable DataType constants, case-insensitively, by substring
// containment.
func NormalizeDataType(rawType string) DataType {
	lower := strings.ToLower(strings.TrimSpace(rawType))
	for _, rule := range normalizeDataTypeRules {
		for _, sub := range rule.substrings {
			if strings.Contains(lower, sub) {
				return rule.dataType
			}
		}
	}
	return DataTypeUnknown
}

// CanonicalDefaultExpr maps dialect-specific "now" functions to a single
// canonical token so that round-tripped schemas compare equal regardless of
// origin dialect. It deliberately leaves julianday(...)/unixepoch(...)
// untouched: those are not semantically identical to
// CURRENT_TIMESTAMP/CURRENT_DATE, only superficially similar, so collapsing
// them would lose information.
func CanonicalDefaultExpr(expr string) string {
	trimmed := strings.TrimSpace(expr)
	lower := strings.ToLower(trimmed)
	switch {
	case lower == "current_timestamp" || lower == "current_timestamp()":
		return "CURRENT_TIMESTAMP"
	case lower == "now()":
		return "CURRENT_TIMESTAMP"
	case lower == "datetime('now')":
		return "CURRENT_TIMESTAMP"
	case lower == "current_date" || lower == "current_date()":
		return "CURRENT_DATE"
	case lower == "date('now')":
		return "CURRENT_DATE"
	default:
		return trimmed
	}
}

// BuildEnumTypeRaw renders an ENUM column's allowed values as a MySQL-style
// ENUM('a','b') type literal. Single quotes inside values are doubled.
func BuildEnumTypeRaw(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return "enum(" + strings.Join(quoted, ",") + ")"
}
