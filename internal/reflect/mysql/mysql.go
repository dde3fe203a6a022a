// Package mysql reflects a live MySQL/MariaDB/TiDB connection into a
// schema.Database, grounded on information_schema.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dbbackup/internal/conn"
	"dbbackup/internal/dbbackuperr"
	"dbbackup/internal/reflect"
	"dbbackup/internal/schema"
)

func init() {
	reflect.Register(schema.DialectMySQL, func() reflect.Reflector { return New() })
	reflect.Register(schema.DialectMariaDB, func() reflect.Reflector { return New() })
	reflect.Register(schema.DialectTiDB, func() reflect.Reflector { return New() })
}

// Reflector reflects MySQL-family databases.
type Reflector struct{}

// New initializes a MySQL-family Reflector.
func New() *Reflector { return &Reflector{} }

func (r *Reflector) Reflect(ctx context.Context, c conn.Conn, databaseName string) (*schema.Database, error) {
	db := &schema.Database{Name: databaseName, Dialect: c.EngineKind()}

	rows, err := c.Query(ctx, `
		SELECT table_name, table_comment
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`, databaseName)
	if err != nil {
		return nil, dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "listing tables", err)
	}
	var names []struct{ name, comment string }
	for rows.Next() {
		var name, comment sql.NullString
		if err := rows.Scan(&name, &comment); err != nil {
			rows.Close()
			return nil, dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning table list", err)
		}
		names = append(names, struct{ name, comment string }{name.String, comment.String})
	}
	rowsErr := rows.Err()
	rows.Close()
	if rowsErr != nil {
		return nil, dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "iterating table list", rowsErr)
	}

	for _, n := range names {
		t := &schema.Table{Name: n.name, Comment: n.comment}
		if err := r.reflectTableOptions(ctx, c, databaseName, t); err != nil {
			return nil, err
		}
		if err := r.reflectColumns(ctx, c, databaseName, t); err != nil {
			return nil, err
		}
		if err := r.reflectIndexes(ctx, c, databaseName, t); err != nil {
			return nil, err
		}
		if err := r.reflectConstraints(ctx, c, databaseName, t); err != nil {
			return nil, err
		}
		db.Tables = append(db.Tables, t)
	}

	if err := r.reflectTriggers(ctx, c, databaseName, db); err != nil {
		return nil, err
	}

	return db, nil
}

func (r *Reflector) reflectTriggers(ctx context.Context, c conn.Conn, dbName string, db *schema.Database) error {
	rows, err := c.Query(ctx, `
		SELECT trigger_name, event_object_table, action_timing, event_manipulation, action_statement
		FROM information_schema.triggers
		WHERE trigger_schema = ?
		ORDER BY trigger_name
	`, dbName)
	if err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "listing triggers", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, table, timing, event, stmt sql.NullString
		if err := rows.Scan(&name, &table, &timing, &event, &stmt); err != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning trigger", err)
		}
		definition := fmt.Sprintf("CREATE TRIGGER `%s` %s %s ON `%s` FOR EACH ROW %s",
			name.String, timing.String, event.String, table.String, stmt.String)
		db.Triggers = append(db.Triggers, &schema.Trigger{
			Name:       name.String,
			Table:      table.String,
			Definition: definition,
		})
	}
	return rows.Err()
}

func (r *Reflector) reflectTableOptions(ctx context.Context, c conn.Conn, dbName string, t *schema.Table) error {
	rows, err := c.Query(ctx, `
		SELECT engine, table_collation, auto_increment, row_format
		FROM information_schema.tables
		WHERE table_schema = ? AND table_name = ?
	`, dbName, t.Name)
	if err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "reading table options for "+t.Name, err)
	}
	defer rows.Close()

	if rows.Next() {
		var engine, collation, rowFormat sql.NullString
		var autoInc sql.NullInt64
		if err := rows.Scan(&engine, &collation, &autoInc, &rowFormat); err != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning table options for "+t.Name, err)
		}
		opts := &schema.MySQLTableOptions{
			Engine:        engine.String,
			Collate:       collation.String,
			AutoIncrement: uint64(autoInc.Int64),
			RowFormat:     rowFormat.String,
		}
		if idx := strings.Index(collation.String, "_"); idx > 0 {
			opts.Charset = collation.String[:idx]
		}
		t.Options.MySQL = opts
	}
	return rows.Err()
}

func (r *Reflector) reflectColumns(ctx context.Context, c conn.Conn, dbName string, t *schema.Table) error {
	rows, err := c.Query(ctx, `
		SELECT
			column_name, column_type, column_comment, is_nullable, column_default,
			extra, character_set_name, collation_name, on_update_clause,
			generation_expression
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`, dbName, t.Name)
	if err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "listing columns for "+t.Name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, colType, comment, nullable, defaultVal, extra, charset, collation, onUpdate, generated sql.NullString
		if err := rows.Scan(&name, &colType, &comment, &nullable, &defaultVal, &extra, &charset, &collation, &onUpdate, &generated); err != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning column for "+t.Name, err)
		}

		col := &schema.Column{
			Name:          name.String,
			RawType:       colType.String,
			Type:          schema.NormalizeDataType(colType.String),
			Nullable:      nullable.String == "YES",
			AutoIncrement: strings.Contains(extra.String, "auto_increment"),
			Comment:       comment.String,
			Charset:       charset.String,
			Collate:       collation.String,
			OnUpdate:      onUpdate.String,
			Unsigned:      strings.Contains(strings.ToLower(colType.String), "unsigned"),
		}
		if col.Type == schema.DataTypeEnum {
			col.EnumValues = parseEnumValues(colType.String)
		}
		parseLengthPrecisionScale(colType.String, col)

		extraUpper := strings.ToUpper(extra.String)
		if generated.Valid && generated.String != "" {
			col.GeneratedExpression = schema.CanonicalDefaultExpr(generated.String)
			col.GeneratedStored = strings.Contains(extraUpper, "STORED GENERATED")
		}

		if col.GeneratedExpression != "" {
			// A generated column's apparent default is the engine's own
			// bookkeeping, not user data; nothing to capture.
		} else if defaultVal.Valid {
			col.Default = schema.ColumnDefault{Kind: classifyDefault(defaultVal.String), Value: schema.CanonicalDefaultExpr(defaultVal.String)}
		} else if strings.Contains(extraUpper, "DEFAULT_GENERATED") {
			col.Default = schema.ColumnDefault{Kind: schema.DefaultExpr, Value: schema.CanonicalDefaultExpr(defaultVal.String)}
		}

		t.Columns = append(t.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	return r.reflectShowCreateTable(ctx, c, t)
}

// generatedColumnPattern matches one column-definition line of a SHOW
// CREATE TABLE body that declares a generated column. MySQL always
// parenthesizes the whole expression in its own output, so the expression
// group is matched greedily up to the last ")" on the line rather than
// lazily, to keep any parentheses the expression itself contains.
var generatedColumnPattern = regexp.MustCompile(
	`(?im)^\s*` + "`?(\\w+)`?" + `\s+[\w()., ]+?\s+GENERATED ALWAYS AS\s*\((.*)\)\s*(VIRTUAL|STORED)?,?\s*$`,
)

// reflectShowCreateTable captures SHOW CREATE TABLE as the authoritative
// fallback for table features information_schema doesn't expose cleanly
// (older MariaDB's generation_expression support is inconsistent across
// versions). It fills in any column whose GeneratedExpression the
// information_schema pass above left empty but whose SHOW CREATE text
// still shows a generated-column clause; everything else about the table
// keeps coming from the structured reflection above.
func (r *Reflector) reflectShowCreateTable(ctx context.Context, c conn.Conn, t *schema.Table) error {
	rows, err := c.Query(ctx, "SHOW CREATE TABLE `"+strings.ReplaceAll(t.Name, "`", "``")+"`")
	if err != nil {
		return nil
	}
	defer rows.Close()

	if !rows.Next() {
		return rows.Err()
	}
	var name, createSQL sql.NullString
	if err := rows.Scan(&name, &createSQL); err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning SHOW CREATE TABLE for "+t.Name, err)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if t.Options.MySQL != nil {
		t.Options.MySQL.ShowCreateSQL = createSQL.String
	}

	for _, m := range generatedColumnPattern.FindAllStringSubmatch(createSQL.String, -1) {
		colName, expr, kind := m[1], strings.TrimSpace(m[2]), m[3]
		for _, col := range t.Columns {
			if col.Name == colName && col.GeneratedExpression == "" {
				col.GeneratedExpression = schema.CanonicalDefaultExpr(expr)
				col.GeneratedStored = strings.EqualFold(kind, "STORED")
			}
		}
	}
	return nil
}

func classifyDefault(raw string) schema.DefaultKind {
	if strings.EqualFold(strings.TrimSpace(raw), "NULL") {
		return schema.DefaultNull
	}
	return schema.DefaultLit
}

var enumPattern = regexp.MustCompile(`(?i)^(enum|set)\((.*)\)$`)

func parseEnumValues(colType string) []string {
	m := enumPattern.FindStringSubmatch(strings.TrimSpace(colType))
	if m == nil {
		return nil
	}
	var values []string
	for _, part := range splitQuotedCSV(m[2]) {
		values = append(values, strings.ReplaceAll(part, "''", "'"))
	}
	return values
}

// splitQuotedCSV splits a MySQL ENUM/SET member list ('a','b','c') on
// top-level commas, respecting single-quoted member text.
func splitQuotedCSV(s string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' && !inQuote:
			inQuote = true
		case c == '\'' && inQuote:
			if i+1 < len(s) && s[i+1] == '\'' {
				cur.WriteByte('\'')
				i++
				continue
			}
			inQuote = false
		case c == ',' && !inQuote:
			out = append(out, strings.Trim(cur.String(), "'"))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		out = append(out, strings.Trim(cur.String(), "'"))
	}
	return out
}

var lengthPattern = regexp.MustCompile(`\((\d+)(?:,(\d+))?\)`)

func parseLengthPrecisionScale(colType string, col *schema.Column) {
	m := lengthPattern.FindStringSubmatch(colType)
	if m == nil {
		return
	}
	n, _ := strconv.Atoi(m[1])
	switch col.Type {
	case schema.DataTypeFloat:
		col.Precision = n
		if m[2] != "" {
			col.Scale, _ = strconv.Atoi(m[2])
		}
	default:
		col.Length = n
	}
}

func (r *Reflector) reflectIndexes(ctx context.Context, c conn.Conn, dbName string, t *schema.Table) error {
	rows, err := c.Query(ctx, `
		SELECT index_name, non_unique, index_type, comment, column_name, seq_in_index, sub_part, collation
		FROM information_schema.statistics
		WHERE table_schema = ? AND table_name = ?
		ORDER BY index_name, seq_in_index
	`, dbName, t.Name)
	if err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "listing indexes for "+t.Name, err)
	}
	defer rows.Close()

	byName := map[string]*schema.Index{}
	var order []string
	for rows.Next() {
		var name, indexType, comment, column, collation sql.NullString
		var nonUnique, seq, subPart sql.NullInt64
		if err := rows.Scan(&name, &nonUnique, &indexType, &comment, &column, &seq, &subPart, &collation); err != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning index for "+t.Name, err)
		}
		idx, ok := byName[name.String]
		if !ok {
			idx = &schema.Index{
				Name:    name.String,
				Unique:  nonUnique.Int64 == 0,
				Type:    normalizeIndexType(indexType.String),
				Comment: comment.String,
			}
			byName[name.String] = idx
			order = append(order, name.String)
		}
		col := schema.ColumnIndex{Name: column.String}
		if subPart.Valid {
			col.Length = int(subPart.Int64)
		}
		// collation is "A" for ascending, "D" for descending, NULL when the
		// storage engine doesn't sort the column (e.g. a FULLTEXT member).
		switch collation.String {
		case "D":
			col.Order = schema.SortDesc
		case "A":
			col.Order = schema.SortAsc
		}
		idx.Columns = append(idx.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "iterating indexes for "+t.Name, err)
	}

	for _, name := range order {
		if name == "PRIMARY" {
			continue // captured as the PRIMARY KEY constraint, not an index
		}
		t.Indexes = append(t.Indexes, byName[name])
	}
	return nil
}

func normalizeIndexType(raw string) schema.IndexType {
	switch strings.ToUpper(raw) {
	case "HASH":
		return schema.IndexTypeHash
	case "FULLTEXT":
		return schema.IndexTypeFullText
	case "SPATIAL":
		return schema.IndexTypeSpatial
	default:
		return schema.IndexTypeBTree
	}
}

func (r *Reflector) reflectConstraints(ctx context.Context, c conn.Conn, dbName string, t *schema.Table) error {
	rows, err := c.Query(ctx, `
		SELECT
			tc.constraint_name, tc.constraint_type,
			kcu.column_name, kcu.ordinal_position,
			kcu.referenced_table_name, kcu.referenced_column_name,
			rc.update_rule, rc.delete_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_schema = kcu.constraint_schema AND tc.constraint_name = kcu.constraint_name AND tc.table_name = kcu.table_name
		LEFT JOIN information_schema.referential_constraints rc
			ON tc.constraint_schema = rc.constraint_schema AND tc.constraint_name = rc.constraint_name
		WHERE tc.table_schema = ? AND tc.table_name = ?
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`, dbName, t.Name)
	if err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "listing constraints for "+t.Name, err)
	}
	defer rows.Close()

	byName := map[string]*schema.Constraint{}
	var order []string
	for rows.Next() {
		var name, ctype, column, refTable, refColumn, updateRule, deleteRule sql.NullString
		var position sql.NullInt64
		if err := rows.Scan(&name, &ctype, &column, &position, &refTable, &refColumn, &updateRule, &deleteRule); err != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning constraint for "+t.Name, err)
		}
		constraint, ok := byName[name.String]
		if !ok {
			constraint = &schema.Constraint{
				Name:            name.String,
				Type:            mapConstraintType(ctype.String),
				ReferencedTable: refTable.String,
				OnUpdate:        schema.ReferentialAction(strings.ToUpper(updateRule.String)),
				OnDelete:        schema.ReferentialAction(strings.ToUpper(deleteRule.String)),
			}
			byName[name.String] = constraint
			order = append(order, name.String)
		}
		if column.Valid {
			constraint.Columns = append(constraint.Columns, column.String)
		}
		if refColumn.Valid {
			constraint.ReferencedColumns = append(constraint.ReferencedColumns, refColumn.String)
		}
	}
	if err := rows.Err(); err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "iterating constraints for "+t.Name, err)
	}

	if err := r.reflectCheckExpressions(ctx, c, dbName, t.Name, byName); err != nil {
		return err
	}

	for _, name := range order {
		t.Constraints = append(t.Constraints, byName[name])
	}
	return nil
}

// reflectCheckExpressions fills in CheckExpression for constraints already
// discovered via table_constraints. check_constraints carries no table_name
// column of its own (only constraint_schema, constraint_name, check_clause),
// so rows are matched against byName, which is already scoped to this
// table's constraint names, rather than joined in SQL.
func (r *Reflector) reflectCheckExpressions(ctx context.Context, c conn.Conn, dbName, tableName string, byName map[string]*schema.Constraint) error {
	rows, err := c.Query(ctx, `
		SELECT constraint_name, check_clause
		FROM information_schema.check_constraints
		WHERE constraint_schema = ?
	`, dbName)
	if err != nil {
		// MariaDB exposes check_constraints under a different table_name
		// column semantics on some versions, and older MySQL 5.7 has no
		// such view at all; either way, CHECK constraints simply keep no
		// expression rather than failing the whole reflection pass.
		return nil
	}
	defer rows.Close()

	for rows.Next() {
		var name, clause sql.NullString
		if err := rows.Scan(&name, &clause); err != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning check constraint for "+tableName, err)
		}
		if constraint, ok := byName[name.String]; ok {
			constraint.CheckExpression = clause.String
		}
	}
	return rows.Err()
}

func mapConstraintType(raw string) schema.ConstraintType {
	switch strings.ToUpper(raw) {
	case "PRIMARY KEY":
		return schema.ConstraintPrimaryKey
	case "FOREIGN KEY":
		return schema.ConstraintForeignKey
	case "UNIQUE":
		return schema.ConstraintUnique
	case "CHECK":
		return schema.ConstraintCheck
	default:
		return ""
	}
}
