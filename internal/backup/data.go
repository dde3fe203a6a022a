package backup

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dbbackup/internal/dbbackuperr"
	"dbbackup/internal/dialect"
	"dbbackup/internal/schema"
)

// backupTableData pages through table's rows in ORDER BY 1 order, so
// successive runs diff cleanly, writing each chunk as one multi-row
// INSERT. It never buffers more than one chunk in memory.
func (o *Orchestrator) backupTableData(ctx context.Context, w *statementWriter, table *schema.Table) error {
	if len(table.Columns) == 0 {
		return nil
	}

	cols := make([]string, len(table.Columns))
	quotedCols := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		cols[i] = col.Name
		quotedCols[i] = o.platform.QuoteIdentifier(col.Name)
	}

	name := o.platform.QuoteIdentifier(table.Name)
	if table.Schema != "" {
		name = o.platform.QuoteIdentifier(table.Schema) + "." + name
	}

	selectCols := strings.Join(quotedCols, ", ")
	chunkSize := o.options.ChunkSize

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT %d OFFSET %d",
			selectCols, name, quotedCols[0], chunkSize, offset)
		rows, err := o.conn.Query(ctx, query)
		if err != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "reading data for "+table.Name, err)
		}

		var values []string
		n := 0
		for rows.Next() {
			dest := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range dest {
				ptrs[i] = &dest[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				rows.Close()
				return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning row for "+table.Name, err)
			}
			values = append(values, o.renderRowTuple(table, dest))
			n++
		}
		rowsErr := rows.Err()
		rows.Close()
		if rowsErr != nil {
			return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "iterating rows for "+table.Name, rowsErr)
		}

		if n > 0 {
			stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES\n%s", name, selectCols, strings.Join(values, ",\n"))
			w.writeStatement(stmt)
		}

		if n < chunkSize {
			return nil
		}
		offset += chunkSize
	}
}

// renderRowTuple formats one row's scanned values as a parenthesized SQL
// value list, inferring each value's literal hint from the column's
// logical type first and from the value's runtime type as a fallback (the
// database/sql driver's native representation for untyped scans).
func (o *Orchestrator) renderRowTuple(table *schema.Table, values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		col := table.Columns[i]
		parts[i] = o.platform.QuoteLiteral(valueAsString(v), literalHint(col, v))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func literalHint(col *schema.Column, v any) dialect.TypeHint {
	if v == nil {
		return dialect.HintNull
	}
	switch col.Type {
	case schema.DataTypeBinary:
		return dialect.HintBytes
	case schema.DataTypeInt, schema.DataTypeFloat:
		return dialect.HintNumber
	case schema.DataTypeBoolean:
		return dialect.HintBool
	}
	switch v.(type) {
	case int64, float64:
		return dialect.HintNumber
	case bool:
		return dialect.HintBool
	case []byte:
		if col.Type == schema.DataTypeUnknown {
			return dialect.HintBytes
		}
	}
	return dialect.HintString
}

func valueAsString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", val)
	}
}
