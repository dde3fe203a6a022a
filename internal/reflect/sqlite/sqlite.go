// Package sqlite reflects a live SQLite connection into a schema.Database
// via sqlite_master and the PRAGMA introspection functions.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"dbbackup/internal/conn"
	"dbbackup/internal/dbbackuperr"
	"dbbackup/internal/reflect"
	"dbbackup/internal/schema"
)

func init() {
	reflect.Register(schema.DialectSQLite, func() reflect.Reflector { return New() })
}

// Reflector reflects SQLite databases.
type Reflector struct{}

// New initializes a SQLite Reflector.
func New() *Reflector { return &Reflector{} }

func (r *Reflector) Reflect(ctx context.Context, c conn.Conn, databaseName string) (*schema.Database, error) {
	db := &schema.Database{Name: databaseName, Dialect: schema.DialectSQLite}

	rows, err := c.Query(ctx, `
		SELECT name, sql FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "listing tables", err)
	}
	type tableRow struct{ name, createSQL string }
	var tableRows []tableRow
	for rows.Next() {
		var name, createSQL sql.NullString
		if err := rows.Scan(&name, &createSQL); err != nil {
			rows.Close()
			return nil, dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning table list", err)
		}
		tableRows = append(tableRows, tableRow{name.String, createSQL.String})
	}
	rowsErr := rows.Err()
	rows.Close()
	if rowsErr != nil {
		return nil, dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "iterating table list", rowsErr)
	}

	for _, tr := range tableRows {
		t := &schema.Table{Name: tr.name}
		t.Options.SQLite = &schema.SQLiteTableOptions{
			WithoutRowid: withoutRowidPattern.MatchString(tr.createSQL),
			Strict:       strictPattern.MatchString(tr.createSQL),
		}

		if err := r.reflectColumns(ctx, c, t, tr.createSQL); err != nil {
			return nil, err
		}
		if err := r.reflectIndexes(ctx, c, t); err != nil {
			return nil, err
		}
		if err := r.reflectForeignKeys(ctx, c, t); err != nil {
			return nil, err
		}
		db.Tables = append(db.Tables, t)
	}

	if err := r.reflectTriggers(ctx, c, db); err != nil {
		return nil, err
	}
	return db, nil
}

func (r *Reflector) reflectTriggers(ctx context.Context, c conn.Conn, db *schema.Database) error {
	rows, err := c.Query(ctx, `
		SELECT name, tbl_name, sql FROM sqlite_master
		WHERE type = 'trigger' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "listing triggers", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, table, sqlText sql.NullString
		if err := rows.Scan(&name, &table, &sqlText); err != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning trigger", err)
		}
		if !sqlText.Valid || sqlText.String == "" {
			continue
		}
		db.Triggers = append(db.Triggers, &schema.Trigger{
			Name:       name.String,
			Table:      table.String,
			Definition: strings.TrimSpace(sqlText.String),
		})
	}
	return rows.Err()
}

var (
	withoutRowidPattern = regexp.MustCompile(`(?i)\)\s*WITHOUT\s+ROWID`)
	strictPattern       = regexp.MustCompile(`(?i)\)\s*(WITHOUT\s+ROWID\s*,\s*)?STRICT`)
	autoincrementPattern = regexp.MustCompile(`(?i)INTEGER\s+PRIMARY\s+KEY\s+AUTOINCREMENT`)
	tripleQuotedPattern  = regexp.MustCompile(`^'''(.*)'''$`)
)

func (r *Reflector) reflectColumns(ctx context.Context, c conn.Conn, t *schema.Table, createSQL string) error {
	rows, err := c.Query(ctx, `PRAGMA table_info(`+quoteIdent(t.Name)+`)`)
	if err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "reading table_info for "+t.Name, err)
	}
	defer rows.Close()

	autoIncrementPK := autoincrementPattern.MatchString(createSQL)

	// pk is the 1-based position of a column within the table's primary
	// key (0 means not part of it); table_info reports this directly, so
	// the key's column order survives even for composite primary keys.
	var pkCols []string
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var defaultVal sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning table_info for "+t.Name, err)
		}

		col := &schema.Column{
			Name:          name,
			RawType:       colType,
			Type:          schema.NormalizeDataType(colType),
			Nullable:      notNull == 0,
			AutoIncrement: pk == 1 && autoIncrementPK && strings.EqualFold(colType, "INTEGER"),
		}

		if defaultVal.Valid {
			col.Default = schema.ColumnDefault{
				Kind:  classifyDefault(defaultVal.String),
				Value: schema.CanonicalDefaultExpr(stripTripleQuotes(defaultVal.String)),
			}
		}

		t.Columns = append(t.Columns, col)
		if pk > 0 {
			pkCols = growPKCols(pkCols, pk, name)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(pkCols) > 0 {
		t.Constraints = append(t.Constraints, &schema.Constraint{
			Name:    "PRIMARY",
			Type:    schema.ConstraintPrimaryKey,
			Columns: pkCols,
		})
	}
	return nil
}

// growPKCols places name at its 1-based pk position, extending the slice
// with empty placeholders if table_info reports positions out of order.
func growPKCols(pkCols []string, pk int, name string) []string {
	for len(pkCols) < pk {
		pkCols = append(pkCols, "")
	}
	pkCols[pk-1] = name
	return pkCols
}

func classifyDefault(raw string) schema.DefaultKind {
	trimmed := strings.TrimSpace(raw)
	if strings.EqualFold(trimmed, "NULL") {
		return schema.DefaultNull
	}
	if strings.HasPrefix(trimmed, "'") || isNumericLiteral(trimmed) {
		return schema.DefaultLit
	}
	return schema.DefaultExpr
}

func isNumericLiteral(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '-' && i == 0 {
			continue
		}
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// stripTripleQuotes removes SQLite's triple-quoted string default wrapping
// (e.g. '''x''').
func stripTripleQuotes(raw string) string {
	if m := tripleQuotedPattern.FindStringSubmatch(raw); m != nil {
		return "'" + m[1] + "'"
	}
	return raw
}

func (r *Reflector) reflectIndexes(ctx context.Context, c conn.Conn, t *schema.Table) error {
	rows, err := c.Query(ctx, `PRAGMA index_list(`+quoteIdent(t.Name)+`)`)
	if err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "reading index_list for "+t.Name, err)
	}
	type indexRow struct {
		name   string
		unique bool
	}
	var indexRows []indexRow
	for rows.Next() {
		var seq int
		var name string
		var unique int
		var origin, partial sql.NullString
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning index_list for "+t.Name, err)
		}
		// origin distinguishes why this index exists: "pk" backs a composite
		// or non-INTEGER primary key (already captured as a schema.Constraint
		// by reflectColumns), "u" backs an inline UNIQUE column constraint,
		// "c" is an explicit CREATE INDEX. Only "pk" autoindexes are
		// redundant here; "u" autoindexes are the only record of their
		// UNIQUE constraint and must still be emitted as an index.
		if origin.String == "pk" {
			continue
		}
		indexRows = append(indexRows, indexRow{name, unique == 1})
	}
	rowsErr := rows.Err()
	rows.Close()
	if rowsErr != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "iterating index_list for "+t.Name, rowsErr)
	}

	for _, ir := range indexRows {
		idx := &schema.Index{Name: ir.name, Unique: ir.unique, Type: schema.IndexTypeBTree}
		infoRows, err := c.Query(ctx, `PRAGMA index_info(`+quoteIdent(ir.name)+`)`)
		if err != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "reading index_info for "+ir.name, err)
		}
		for infoRows.Next() {
			var seqno, cid int
			var colName sql.NullString
			if err := infoRows.Scan(&seqno, &cid, &colName); err != nil {
				infoRows.Close()
				return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning index_info for "+ir.name, err)
			}
			idx.Columns = append(idx.Columns, schema.ColumnIndex{Name: colName.String})
		}
		infoErr := infoRows.Err()
		infoRows.Close()
		if infoErr != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "iterating index_info for "+ir.name, infoErr)
		}
		t.Indexes = append(t.Indexes, idx)
	}
	return nil
}

func (r *Reflector) reflectForeignKeys(ctx context.Context, c conn.Conn, t *schema.Table) error {
	rows, err := c.Query(ctx, `PRAGMA foreign_key_list(`+quoteIdent(t.Name)+`)`)
	if err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "reading foreign_key_list for "+t.Name, err)
	}
	defer rows.Close()

	byID := map[int]*schema.Constraint{}
	var order []int
	for rows.Next() {
		var id, seq int
		var table, from, to sql.NullString
		var onUpdate, onDelete, match sql.NullString
		if err := rows.Scan(&id, &seq, &table, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning foreign_key_list for "+t.Name, err)
		}
		constraint, ok := byID[id]
		if !ok {
			constraint = &schema.Constraint{
				Type:            schema.ConstraintForeignKey,
				ReferencedTable: table.String,
				OnUpdate:        schema.ReferentialAction(strings.ToUpper(onUpdate.String)),
				OnDelete:        schema.ReferentialAction(strings.ToUpper(onDelete.String)),
				MatchMode:       match.String,
			}
			byID[id] = constraint
			order = append(order, id)
		}
		constraint.Columns = append(constraint.Columns, from.String)
		constraint.ReferencedColumns = append(constraint.ReferencedColumns, to.String)
	}
	if err := rows.Err(); err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "iterating foreign_key_list for "+t.Name, err)
	}

	for _, id := range order {
		c := byID[id]
		c.Name = fmt.Sprintf("fk_%s_%s", t.Name, strings.Join(c.Columns, "_"))
		t.Constraints = append(t.Constraints, c)
	}
	return nil
}

func quoteIdent(name string) string {
	return `'` + strings.ReplaceAll(name, `'`, `''`) + `'`
}
