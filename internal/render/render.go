// Package render turns a Table plus a dialect.Platform into a CREATE TABLE
// statement, applying an inline-vs-deferred policy for indexes and
// foreign keys.
package render

import (
	"fmt"
	"strings"

	"dbbackup/internal/dbbackuperr"
	"dbbackup/internal/dialect"
	"dbbackup/internal/dialect/postgres"
	"dbbackup/internal/schema"
)

// Result is everything the Renderer produces for one table: the CREATE
// statement itself, plus the deferred pieces the Orchestrator emits later.
type Result struct {
	// CreateSQL is the full CREATE TABLE statement (including trailing ;).
	CreateSQL string

	// InlineConstraintNames is the set of constraint names emitted inline,
	// so the Orchestrator does not re-emit them.
	InlineConstraintNames map[string]bool

	// DeferredIndexes are non-unique indexes, always deferred.
	DeferredIndexes []*schema.Index

	// DeferredForeignKeys are FK constraints omitted from the CREATE
	// because they participate in a Sorter-reported cycle.
	DeferredForeignKeys []*schema.Constraint

	// CommentStatements are separate COMMENT ON statements (Postgres only;
	// MySQL/SQLite fold comments inline or drop them per platform).
	CommentStatements []string
}

// CycleParticipant reports whether a (table, constraint) pair was flagged
// by the Dependency Sorter as part of an unresolved cycle, so its foreign
// key must be deferred rather than inlined.
type CycleParticipant func(tableName string, fk *schema.Constraint) bool

// Table renders table's CREATE TABLE statement under platform.
func Table(table *schema.Table, platform dialect.Platform, isCycleFK CycleParticipant) (*Result, error) {
	if table == nil {
		return nil, dbbackuperr.New(dbbackuperr.UnsupportedFeature, "nil table")
	}
	if isCycleFK == nil {
		isCycleFK = func(string, *schema.Constraint) bool { return false }
	}

	res := &Result{InlineConstraintNames: map[string]bool{}}

	pk := table.PrimaryKey()
	inlineAutoIncCol, pkInlineAsColumnAttr := singleColumnAutoIncrement(table, pk, platform)

	var lines []string
	for _, col := range table.Columns {
		if col == nil {
			continue
		}
		line, err := columnDefinition(col, platform, col == inlineAutoIncCol && pkInlineAsColumnAttr)
		if err != nil {
			return nil, err
		}
		lines = append(lines, "  "+line)
	}

	if pk != nil && !pkInlineAsColumnAttr {
		lines = append(lines, "  "+primaryKeyClause(pk, platform))
		res.InlineConstraintNames[pk.Name] = true
	} else if pk != nil {
		res.InlineConstraintNames[pk.Name] = true
	}

	for _, c := range table.Constraints {
		if c == nil || c.Type == schema.ConstraintPrimaryKey {
			continue
		}
		if c.Type == schema.ConstraintForeignKey {
			if isCycleFK(table.Name, c) {
				res.DeferredForeignKeys = append(res.DeferredForeignKeys, c)
				continue
			}
		}
		line := constraintDefinition(c, platform)
		if line == "" {
			continue
		}
		lines = append(lines, "  "+line)
		res.InlineConstraintNames[c.Name] = true
	}

	for _, idx := range table.Indexes {
		if idx == nil {
			continue
		}
		if idx.Unique {
			line := uniqueIndexInline(idx, platform)
			if line != "" {
				lines = append(lines, "  "+line)
				res.InlineConstraintNames[idx.Name] = true
				continue
			}
		}
		res.DeferredIndexes = append(res.DeferredIndexes, idx)
	}

	options := tableOptions(table, platform)
	name := qualifiedIdentifier(table, platform)
	res.CreateSQL = fmt.Sprintf("CREATE TABLE %s (\n%s\n)%s;", name, strings.Join(lines, ",\n"), options)

	res.CommentStatements = commentStatements(table, platform)

	return res, nil
}

func qualifiedIdentifier(table *schema.Table, platform dialect.Platform) string {
	if table.Schema == "" {
		return platform.QuoteIdentifier(table.Name)
	}
	return platform.QuoteIdentifier(table.Schema) + "." + platform.QuoteIdentifier(table.Name)
}

// singleColumnAutoIncrement identifies the PK's sole auto-increment column
// when the platform supports rendering it as an inline column attribute
// (or pseudo-type substitution).
func singleColumnAutoIncrement(table *schema.Table, pk *schema.Constraint, platform dialect.Platform) (*schema.Column, bool) {
	if pk == nil || len(pk.Columns) != 1 {
		return nil, false
	}
	col := table.FindColumn(pk.Columns[0])
	if col == nil || !col.AutoIncrement {
		return nil, false
	}
	switch platform.AutoincrementPolicy() {
	case dialect.AutoincInlineColumn, dialect.AutoincPseudoType:
		return col, true
	default:
		return nil, false
	}
}

func columnDefinition(col *schema.Column, platform dialect.Platform, asAutoIncPK bool) (string, error) {
	var b strings.Builder
	b.WriteString(platform.QuoteIdentifier(col.Name))
	b.WriteByte(' ')

	if asAutoIncPK && platform.AutoincrementPolicy() == dialect.AutoincPseudoType {
		if _, ok := platform.(*postgres.Platform); ok {
			b.WriteString(postgres.SerialType(col))
			b.WriteString(" PRIMARY KEY")
			return b.String(), nil
		}
	}

	renderedType, err := platform.RenderType(col)
	if err != nil {
		return "", err
	}
	b.WriteString(renderedType)

	if col.GeneratedExpression != "" {
		// A generated column's value is computed, never stored/defaulted
		// by the usual DEFAULT/ON UPDATE clauses; NOT NULL and COMMENT
		// still follow the generation clause, so fall through for those.
		b.WriteString(" GENERATED ALWAYS AS (")
		b.WriteString(col.GeneratedExpression)
		b.WriteByte(')')
		if col.GeneratedStored || !platform.Dialect().IsMySQLFamily() {
			// PostgreSQL only supports STORED generated columns.
			b.WriteString(" STORED")
		} else {
			b.WriteString(" VIRTUAL")
		}
	}

	if !col.Nullable {
		b.WriteString(" NOT NULL")
	}

	if asAutoIncPK && platform.AutoincrementPolicy() == dialect.AutoincInlineColumn {
		if platform.Dialect() == schema.DialectSQLite {
			// SQLite only accepts AUTOINCREMENT directly after PRIMARY KEY.
			b.WriteString(" PRIMARY KEY")
			b.WriteString(autoIncrementKeyword(platform))
		} else {
			b.WriteString(autoIncrementKeyword(platform))
			if col.Type == schema.DataTypeInt {
				b.WriteString(" PRIMARY KEY")
			}
		}
	}

	if col.GeneratedExpression == "" && col.Default.HasDefault() {
		b.WriteString(" DEFAULT ")
		b.WriteString(defaultLiteral(col, platform))
	}

	if col.OnUpdate != "" {
		b.WriteString(" ON UPDATE ")
		b.WriteString(col.OnUpdate)
	}

	if col.Comment != "" && platform.Dialect().IsMySQLFamily() {
		b.WriteString(" COMMENT ")
		b.WriteString(platform.QuoteLiteral(col.Comment, dialect.HintString))
	}

	return b.String(), nil
}

func autoIncrementKeyword(platform dialect.Platform) string {
	switch platform.Dialect() {
	case schema.DialectSQLite:
		return " AUTOINCREMENT"
	default:
		return " AUTO_INCREMENT"
	}
}

func defaultLiteral(col *schema.Column, platform dialect.Platform) string {
	switch col.Default.Kind {
	case schema.DefaultNull:
		return "NULL"
	case schema.DefaultExpr:
		return schema.CanonicalDefaultExpr(col.Default.Value)
	case schema.DefaultLit:
		hint := dialect.HintString
		switch col.Type {
		case schema.DataTypeInt, schema.DataTypeFloat, schema.DataTypeBoolean:
			hint = dialect.HintNumber
		}
		return platform.QuoteLiteral(col.Default.Value, hint)
	default:
		return "NULL"
	}
}

func primaryKeyClause(pk *schema.Constraint, platform dialect.Platform) string {
	cols := quoteAll(pk.Columns, platform)
	return fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(cols, ", "))
}

func uniqueIndexInline(idx *schema.Index, platform dialect.Platform) string {
	names := idx.Names()
	if len(names) == 0 {
		return ""
	}
	return fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", platform.QuoteIdentifier(idx.Name), strings.Join(quoteAll(names, platform), ", "))
}

func constraintDefinition(c *schema.Constraint, platform dialect.Platform) string {
	switch c.Type {
	case schema.ConstraintUnique:
		return fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", platform.QuoteIdentifier(c.Name), strings.Join(quoteAll(c.Columns, platform), ", "))
	case schema.ConstraintCheck:
		if !platform.Features().SupportsCheckConstraints || c.CheckExpression == "" {
			return ""
		}
		return fmt.Sprintf("CONSTRAINT %s CHECK (%s)", platform.QuoteIdentifier(c.Name), c.CheckExpression)
	case schema.ConstraintForeignKey:
		return foreignKeyDefinition(c, platform)
	default:
		return ""
	}
}

func foreignKeyDefinition(c *schema.Constraint, platform dialect.Platform) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		platform.QuoteIdentifier(c.Name),
		strings.Join(quoteAll(c.Columns, platform), ", "),
		platform.QuoteIdentifier(c.ReferencedTable),
		strings.Join(quoteAll(c.ReferencedColumns, platform), ", "))

	if c.OnDelete != "" && c.OnDelete != schema.RefActionNone {
		fmt.Fprintf(&b, " ON DELETE %s", c.OnDelete)
	}
	if c.OnUpdate != "" && c.OnUpdate != schema.RefActionNone {
		fmt.Fprintf(&b, " ON UPDATE %s", c.OnUpdate)
	}
	if c.Deferrable && platform.Features().SupportsDeferrableFKs {
		b.WriteString(" DEFERRABLE")
		if c.InitiallyDeferred {
			b.WriteString(" INITIALLY DEFERRED")
		}
	}
	return b.String()
}

func tableOptions(table *schema.Table, platform dialect.Platform) string {
	switch platform.Dialect() {
	case schema.DialectSQLite:
		var opts []string
		if table.Options.SQLite != nil {
			if table.Options.SQLite.WithoutRowid && platform.Features().SupportsWithoutRowid {
				opts = append(opts, "WITHOUT ROWID")
			}
			if table.Options.SQLite.Strict && platform.Features().SupportsStrictTables {
				opts = append(opts, "STRICT")
			}
		}
		if len(opts) == 0 {
			return ""
		}
		return " " + strings.Join(opts, ", ")
	case schema.DialectMySQL, schema.DialectMariaDB, schema.DialectTiDB:
		if table.Options.MySQL == nil {
			return ""
		}
		var b strings.Builder
		mo := table.Options.MySQL
		if mo.Engine != "" {
			fmt.Fprintf(&b, " ENGINE=%s", mo.Engine)
		}
		if mo.AutoIncrement > 0 {
			fmt.Fprintf(&b, " AUTO_INCREMENT=%d", mo.AutoIncrement)
		}
		if mo.Charset != "" {
			fmt.Fprintf(&b, " DEFAULT CHARSET=%s", mo.Charset)
		}
		if mo.Collate != "" {
			fmt.Fprintf(&b, " COLLATE=%s", mo.Collate)
		}
		if mo.RowFormat != "" {
			fmt.Fprintf(&b, " ROW_FORMAT=%s", mo.RowFormat)
		}
		if table.Comment != "" {
			fmt.Fprintf(&b, " COMMENT=%s", platform.QuoteLiteral(table.Comment, dialect.HintString))
		}
		return b.String()
	case schema.DialectPostgreSQL:
		if table.Options.PostgreSQL != nil && table.Options.PostgreSQL.Unlogged {
			// UNLOGGED is a keyword placed before TABLE, not a suffix;
			// callers needing it must special-case the CREATE prefix.
			return ""
		}
		return ""
	default:
		return ""
	}
}

// commentStatements builds the separate COMMENT ON statements Postgres
// uses for table and column comments. MySQL folds comments inline
// (columnDefinition, tableOptions); SQLite has no comment storage at all,
// so nothing is emitted there.
func commentStatements(table *schema.Table, platform dialect.Platform) []string {
	if platform.Dialect() != schema.DialectPostgreSQL {
		return nil
	}
	var out []string
	name := qualifiedIdentifier(table, platform)
	if table.Comment != "" {
		out = append(out, fmt.Sprintf("COMMENT ON TABLE %s IS %s;", name, platform.QuoteLiteral(table.Comment, dialect.HintString)))
	}
	for _, col := range table.Columns {
		if col == nil || col.Comment == "" {
			continue
		}
		out = append(out, fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s;", name, platform.QuoteIdentifier(col.Name), platform.QuoteLiteral(col.Comment, dialect.HintString)))
	}
	return out
}

func quoteAll(names []string, platform dialect.Platform) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = platform.QuoteIdentifier(n)
	}
	return out
}

// DeferredIndexStatement renders a CREATE INDEX statement for an index the
// Renderer deferred out of the CREATE TABLE body.
func DeferredIndexStatement(table *schema.Table, idx *schema.Index, platform dialect.Platform) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	cols := make([]string, len(idx.Columns))
	for i, ci := range idx.Columns {
		col := platform.QuoteIdentifier(ci.Name)
		if ci.Order == schema.SortDesc {
			col += " DESC"
		}
		cols[i] = col
	}
	name := qualifiedIdentifier(table, platform)
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s);", unique, platform.QuoteIdentifier(idx.Name), name, strings.Join(cols, ", "))
}

// DeferredForeignKeyStatement renders the ALTER TABLE ADD CONSTRAINT
// statement for a foreign key the Renderer deferred due to a cycle.
func DeferredForeignKeyStatement(table *schema.Table, fk *schema.Constraint, platform dialect.Platform) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s;", qualifiedIdentifier(table, platform), foreignKeyDefinition(fk, platform))
}
