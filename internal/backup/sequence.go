package backup

import (
	"context"
	"database/sql"
	"fmt"

	"dbbackup/internal/dbbackuperr"
	"dbbackup/internal/schema"
)

// writeSequenceResync emits a setval() call for each PostgreSQL sequence
// backing an auto-increment column.
func (o *Orchestrator) writeSequenceResync(ctx context.Context, w *statementWriter, order []*schema.Table) error {
	for _, table := range order {
		for _, col := range table.Columns {
			if col.Sequence == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			name := o.platform.QuoteIdentifier(table.Name)
			if table.Schema != "" {
				name = o.platform.QuoteIdentifier(table.Schema) + "." + name
			}

			query := fmt.Sprintf("SELECT MAX(%s) FROM %s", o.platform.QuoteIdentifier(col.Name), name)
			rows, err := o.conn.Query(ctx, query)
			if err != nil {
				return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "reading max value for sequence resync on "+table.Name, err)
			}

			var max sql.NullInt64
			if rows.Next() {
				if err := rows.Scan(&max); err != nil {
					rows.Close()
					return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "scanning max value for sequence resync on "+table.Name, err)
				}
			}
			rowsErr := rows.Err()
			rows.Close()
			if rowsErr != nil {
				return dbbackuperr.Wrap(dbbackuperr.ConnectionFailed, "iterating max value for sequence resync on "+table.Name, rowsErr)
			}

			if max.Valid {
				w.writeStatement(fmt.Sprintf("SELECT setval('%s', %d, false)", col.Sequence, max.Int64+1))
			} else {
				w.writeStatement(fmt.Sprintf("SELECT setval('%s', 1, false)", col.Sequence))
			}
		}
	}
	return nil
}
