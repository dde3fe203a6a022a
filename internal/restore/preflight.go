package restore

import (
	"fmt"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"dbbackup/internal/schema"
	"dbbackup/internal/splitter"
)

// DestructiveWarning flags one statement a restore run would execute that
// can discard data beyond what restoring into a fresh target implies.
// Validate checks script structure, not statement intent; this is its
// statement-level complement for MySQL-family scripts, where the TiDB AST
// parser can classify each statement.
type DestructiveWarning struct {
	Index     int
	Statement string
	Reason    string
}

// DetectDestructiveStatements parses each statement in script with the
// TiDB AST parser and flags DROP TABLE/DATABASE, TRUNCATE, and bare DELETE
// (no WHERE clause) - the operations that discard more than the restore
// target's own prior contents. Non-MySQL-family scripts return no
// warnings; the three engines don't share one AST, and SQLite/PostgreSQL
// scripts only ever emit the DROP TABLE ... this restore already expects.
func DetectDestructiveStatements(d schema.Dialect, script string) ([]DestructiveWarning, error) {
	if !d.IsMySQLFamily() {
		return nil, nil
	}

	statements := splitter.Split(script, d, splitter.Options{})
	p := parser.New()

	var warnings []DestructiveWarning
	for _, stmt := range statements {
		nodes, _, err := p.Parse(stmt.Text, "", "")
		if err != nil {
			// Unparseable statements (trigger bodies recovered from a
			// DELIMITER block, vendor-specific syntax) are not this
			// check's concern; Run's own execution will surface real
			// failures.
			continue
		}
		if len(nodes) == 0 {
			continue
		}
		if reason, destructive := classify(nodes[0]); destructive {
			warnings = append(warnings, DestructiveWarning{
				Index:     stmt.Index,
				Statement: truncateStatement(stmt.Text, 200),
				Reason:    reason,
			})
		}
	}
	return warnings, nil
}

func truncateStatement(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func classify(node ast.StmtNode) (reason string, destructive bool) {
	switch stmt := node.(type) {
	case *ast.DropTableStmt:
		return "drops a table and all of its data", true
	case *ast.DropDatabaseStmt:
		return "drops an entire database", true
	case *ast.TruncateTableStmt:
		return "truncates a table, discarding all of its rows", true
	case *ast.DeleteStmt:
		if stmt.Where == nil {
			return "deletes every row in the table (no WHERE clause)", true
		}
		return "", false
	default:
		return "", false
	}
}

// FormatDestructiveWarnings renders a summary line for each warning, for
// display before a restore runs.
func FormatDestructiveWarnings(warnings []DestructiveWarning) []string {
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = fmt.Sprintf("statement #%d %s: %s", w.Index, w.Reason, w.Statement)
	}
	return out
}
