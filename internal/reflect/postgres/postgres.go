// Package postgres reflects a live PostgreSQL connection into a
// schema.Database, grounded on information_schema augmented with
// pg_catalog for array detection, index methods, and comments.
package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"dbbackup/internal/conn"
	"dbbackup/internal/dbbackuperr"
	"dbbackup/internal/reflect"
	"dbbackup/internal/schema"
)

func init() {
	reflect.Register(schema.DialectPostgreSQL, func() reflect.Reflector { return New() })
}

// Reflector reflects PostgreSQL databases.
type Reflector struct{}

// New initializes a PostgreSQL Reflector.
func New() *Reflector { return &Reflector{} }

func (r *Reflector) Reflect(ctx context.Context, c conn.Conn, databaseName string) (*schema.Database, error) {
	db := &schema.Database{Name: databaseName, Dialect: schema.DialectPostgreSQL}

	rows, err := c.Query(ctx, `
		SELECT c.relname, obj_description(c.oid, 'pg_class'), c.relpersistence
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind = 'r' AND n.nspname = 'public'
		ORDER BY c.relname
	`)
	if err != nil {
		return nil, dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "listing tables", err)
	}
	type tableRow struct{ name, comment, persistence string }
	var tableRows []tableRow
	for rows.Next() {
		var name, comment, persistence sql.NullString
		if err := rows.Scan(&name, &comment, &persistence); err != nil {
			rows.Close()
			return nil, dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning table list", err)
		}
		tableRows = append(tableRows, tableRow{name.String, comment.String, persistence.String})
	}
	rowsErr := rows.Err()
	rows.Close()
	if rowsErr != nil {
		return nil, dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "iterating table list", rowsErr)
	}

	for _, tr := range tableRows {
		t := &schema.Table{Name: tr.name, Schema: "public", Comment: tr.comment}
		if tr.persistence == "u" {
			t.Options.PostgreSQL = &schema.PostgreSQLTableOptions{Unlogged: true}
		}
		if err := r.reflectColumns(ctx, c, t); err != nil {
			return nil, err
		}
		if err := r.reflectConstraints(ctx, c, t); err != nil {
			return nil, err
		}
		if err := r.reflectIndexes(ctx, c, t); err != nil {
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
		SELECT t.tgname, c.relname, pg_get_triggerdef(t.oid)
		FROM pg_trigger t
		JOIN pg_class c ON c.oid = t.tgrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE NOT t.tgisinternal AND n.nspname = 'public'
		ORDER BY t.tgname
	`)
	if err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "listing triggers", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, table, def sql.NullString
		if err := rows.Scan(&name, &table, &def); err != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning trigger", err)
		}
		db.Triggers = append(db.Triggers, &schema.Trigger{
			Name:       name.String,
			Table:      table.String,
			Definition: strings.TrimSpace(def.String) + ";",
		})
	}
	return rows.Err()
}

var seqDefaultPattern = regexp.MustCompile(`(?i)^nextval\('([^']+)'(?:::regclass)?\)`)

func (r *Reflector) reflectColumns(ctx context.Context, c conn.Conn, t *schema.Table) error {
	rows, err := c.Query(ctx, `
		SELECT
			col.column_name, col.data_type, col.udt_name, col.character_maximum_length,
			col.numeric_precision, col.numeric_scale, col.is_nullable, col.column_default,
			col_description(('"'||t.relnamespace::regnamespace||'"."'||t.relname||'"')::regclass::oid, col.ordinal_position::int)
		FROM information_schema.columns col
		JOIN pg_class t ON t.relname = col.table_name
		JOIN pg_namespace n ON n.oid = t.relnamespace AND n.nspname = col.table_schema
		WHERE col.table_schema = 'public' AND col.table_name = $1
		ORDER BY col.ordinal_position
	`, t.Name)
	if err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "listing columns for "+t.Name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, dataType, udtName, nullable, defaultVal, comment sql.NullString
		var charLen, numPrecision, numScale sql.NullInt64
		if err := rows.Scan(&name, &dataType, &udtName, &charLen, &numPrecision, &numScale, &nullable, &defaultVal, &comment); err != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning column for "+t.Name, err)
		}

		isArray := dataType.String == "ARRAY"
		rawType := udtName.String
		if isArray {
			rawType = strings.TrimPrefix(udtName.String, "_")
		}

		col := &schema.Column{
			Name:     name.String,
			RawType:  rawType,
			Type:     schema.NormalizeDataType(rawType),
			IsArray:  isArray,
			Nullable: nullable.String == "YES",
			Comment:  comment.String,
		}
		if charLen.Valid {
			col.Length = int(charLen.Int64)
		}
		if numPrecision.Valid {
			col.Precision = int(numPrecision.Int64)
		}
		if numScale.Valid {
			col.Scale = int(numScale.Int64)
		}

		if defaultVal.Valid {
			if m := seqDefaultPattern.FindStringSubmatch(strings.TrimSpace(defaultVal.String)); m != nil {
				col.AutoIncrement = true
				col.Sequence = unqualifySequenceName(m[1])
			} else if isArray {
				// Array defaults keep the catalog's text verbatim, cast included.
				col.Default = schema.ColumnDefault{Kind: schema.DefaultExpr, Value: strings.TrimSpace(defaultVal.String)}
			} else {
				kind := schema.DefaultExpr
				value := schema.CanonicalDefaultExpr(stripPgCast(defaultVal.String))
				if looksLikeLiteral(defaultVal.String) && len(value) >= 2 {
					kind = schema.DefaultLit
					value = strings.ReplaceAll(value[1:len(value)-1], "''", "'")
				}
				col.Default = schema.ColumnDefault{Kind: kind, Value: value}
			}
		}

		t.Columns = append(t.Columns, col)
	}
	return rows.Err()
}

// stripPgCast removes PostgreSQL's trailing ::type cast and leaves any
// literal quotes in place, so e.g. "'active'::text" becomes "'active'".
func stripPgCast(expr string) string {
	expr = strings.TrimSpace(expr)
	if idx := strings.LastIndex(expr, "::"); idx > 0 {
		expr = expr[:idx]
	}
	return expr
}

// unqualifySequenceName strips a schema qualifier and quoting from a
// nextval() argument (e.g. "public.widgets_id_seq" or `"widgets_id_seq"`)
// down to the bare sequence name setval() expects.
func unqualifySequenceName(raw string) string {
	name := raw
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.Trim(name, `"`)
}

func looksLikeLiteral(expr string) bool {
	expr = strings.TrimSpace(stripPgCast(expr))
	return strings.HasPrefix(expr, "'") && strings.HasSuffix(expr, "'")
}

var notNullCheckPattern = regexp.MustCompile(`(?i)IS\s+NOT\s+NULL`)

func (r *Reflector) reflectConstraints(ctx context.Context, c conn.Conn, t *schema.Table) error {
	rows, err := c.Query(ctx, `
		SELECT
			tc.constraint_name, tc.constraint_type,
			kcu.column_name, kcu.ordinal_position,
			ccu.table_name AS referenced_table, ccu.column_name AS referenced_column,
			rc.update_rule, rc.delete_rule,
			rc.match_option, tc.is_deferrable, tc.initially_deferred,
			cc.check_clause
		FROM information_schema.table_constraints tc
		LEFT JOIN information_schema.key_column_usage kcu
			ON tc.constraint_schema = kcu.constraint_schema AND tc.constraint_name = kcu.constraint_name
		LEFT JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_schema = ccu.constraint_schema AND tc.constraint_name = ccu.constraint_name AND tc.constraint_type = 'FOREIGN KEY'
		LEFT JOIN information_schema.referential_constraints rc
			ON tc.constraint_schema = rc.constraint_schema AND tc.constraint_name = rc.constraint_name
		LEFT JOIN information_schema.check_constraints cc
			ON tc.constraint_schema = cc.constraint_schema AND tc.constraint_name = cc.constraint_name
		WHERE tc.table_schema = 'public' AND tc.table_name = $1
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`, t.Name)
	if err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "listing constraints for "+t.Name, err)
	}
	defer rows.Close()

	byName := map[string]*schema.Constraint{}
	var order []string
	for rows.Next() {
		var name, ctype, column, refTable, refColumn, updateRule, deleteRule, matchOption, deferrable, initiallyDeferred, checkClause sql.NullString
		var position sql.NullInt64
		if err := rows.Scan(&name, &ctype, &column, &position, &refTable, &refColumn, &updateRule, &deleteRule, &matchOption, &deferrable, &initiallyDeferred, &checkClause); err != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning constraint for "+t.Name, err)
		}

		if ctype.String == "CHECK" && isNotNullShadow(name.String, checkClause.String) {
			continue
		}

		constraint, ok := byName[name.String]
		if !ok {
			constraint = &schema.Constraint{
				Name:              name.String,
				Type:              mapConstraintType(ctype.String),
				ReferencedTable:   refTable.String,
				OnUpdate:          schema.ReferentialAction(strings.ToUpper(updateRule.String)),
				OnDelete:          schema.ReferentialAction(strings.ToUpper(deleteRule.String)),
				MatchMode:         matchOption.String,
				Deferrable:        deferrable.String == "YES",
				InitiallyDeferred: initiallyDeferred.String == "YES",
				CheckExpression:   checkClause.String,
			}
			byName[name.String] = constraint
			order = append(order, name.String)
		}
		if column.Valid && !containsString(constraint.Columns, column.String) {
			constraint.Columns = append(constraint.Columns, column.String)
		}
		if refColumn.Valid && !containsString(constraint.ReferencedColumns, refColumn.String) {
			constraint.ReferencedColumns = append(constraint.ReferencedColumns, refColumn.String)
		}
	}
	if err := rows.Err(); err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "iterating constraints for "+t.Name, err)
	}

	for _, name := range order {
		t.Constraints = append(t.Constraints, byName[name])
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// isNotNullShadow filters PostgreSQL's auto-generated CHECK constraints
// that merely restate a NOT NULL column attribute.
func isNotNullShadow(name, clause string) bool {
	if strings.HasSuffix(name, "_not_null") {
		return true
	}
	return notNullCheckPattern.MatchString(clause)
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

func (r *Reflector) reflectIndexes(ctx context.Context, c conn.Conn, t *schema.Table) error {
	rows, err := c.Query(ctx, `
		SELECT
			i.relname, ix.indisunique, ix.indisprimary, am.amname,
			pg_get_expr(ix.indpred, ix.indrelid), a.attname, k.n
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_am am ON am.oid = i.relam
		JOIN pg_namespace ns ON ns.oid = t.relnamespace
		CROSS JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, n)
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE ns.nspname = 'public' AND t.relname = $1
		ORDER BY i.relname, k.n
	`, t.Name)
	if err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "listing indexes for "+t.Name, err)
	}
	defer rows.Close()

	byName := map[string]*schema.Index{}
	var order []string
	var primaryNames = map[string]bool{}
	for rows.Next() {
		var name, method, predicate, column sql.NullString
		var unique, isPrimary sql.NullBool
		var n sql.NullInt64
		if err := rows.Scan(&name, &unique, &isPrimary, &method, &predicate, &column, &n); err != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning index for "+t.Name, err)
		}
		if isPrimary.Bool {
			primaryNames[name.String] = true
			continue // excluded: already captured as the PRIMARY KEY constraint
		}
		idx, ok := byName[name.String]
		if !ok {
			idx = &schema.Index{
				Name:      name.String,
				Unique:    unique.Bool,
				Type:      normalizeIndexMethod(method.String),
				Method:    method.String,
				Predicate: predicate.String,
			}
			byName[name.String] = idx
			order = append(order, name.String)
		}
		idx.Columns = append(idx.Columns, schema.ColumnIndex{Name: column.String})
	}
	if err := rows.Err(); err != nil {
		return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "iterating indexes for "+t.Name, err)
	}

	for _, name := range order {
		t.Indexes = append(t.Indexes, byName[name])
	}
	return nil
}

func normalizeIndexMethod(method string) schema.IndexType {
	switch strings.ToLower(method) {
	case "gin":
		return schema.IndexTypeGIN
	case "gist":
		return schema.IndexTypeGiST
	case "hash":
		return schema.IndexTypeHash
	default:
		return schema.IndexTypeBTree
	}
}
