// Package sqlite is a hand-written recursive-descent parser for SQLite
// CREATE TABLE statements: plain helper-function-per-production style
// instead of a parser-combinator or PEG library (see
// internal/sqlparse/postgres, built the same way).
package sqlite

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dbbackup/internal/schema"
	"dbbackup/internal/splitter"
	"dbbackup/internal/sqlparse"
)

func init() {
	sqlparse.Register(schema.DialectSQLite, func() sqlparse.Parser { return New() })
}

// Parser parses SQLite CREATE TABLE statements.
type Parser struct{}

// New constructs a SQLite Parser.
func New() *Parser { return &Parser{} }

var createTablePattern = regexp.MustCompile(`(?is)^CREATE\s+TABLE\s+(IF\s+NOT\s+EXISTS\s+)?("?[\w.]+"?|\[\w+\])\s*\((.*)\)\s*(WITHOUT\s+ROWID)?\s*,?\s*(STRICT)?\s*;?$`)

func (p *Parser) Parse(sql string, opts sqlparse.Options) (*schema.Database, []sqlparse.Warning, error) {
	stmts := splitter.Split(sql, schema.DialectSQLite, splitter.Options{StripComments: true})

	db := &schema.Database{Dialect: schema.DialectSQLite}
	var warnings []sqlparse.Warning
	for _, stmt := range stmts {
		text := strings.TrimSpace(stmt.Text)
		if text == "" {
			continue
		}
		upper := strings.ToUpper(text)
		if !strings.HasPrefix(upper, "CREATE TABLE") {
			// CREATE INDEX / TRIGGER / VIEW are reflected separately by
			// internal/reflect/sqlite; the parser's job here is limited to
			// the CREATE TABLE surface.
			if opts.Strict {
				return nil, nil, fmt.Errorf("sqlite parse error: unsupported statement at index %d", stmt.Index)
			}
			warnings = append(warnings, sqlparse.Warning{Statement: text, Reason: "unsupported statement, skipped"})
			continue
		}

		m := createTablePattern.FindStringSubmatch(text)
		if m == nil {
			if opts.Strict {
				return nil, nil, fmt.Errorf("sqlite parse error: malformed CREATE TABLE at index %d", stmt.Index)
			}
			warnings = append(warnings, sqlparse.Warning{Statement: text, Reason: "malformed CREATE TABLE, skipped"})
			continue
		}

		name := unquoteIdent(m[2])
		table, err := parseTableBody(name, m[3])
		if err != nil {
			return nil, nil, err
		}
		withoutRowid := strings.TrimSpace(m[4]) != ""
		strict := strings.TrimSpace(m[5]) != ""
		if withoutRowid || strict {
			table.Options.SQLite = &schema.SQLiteTableOptions{WithoutRowid: withoutRowid, Strict: strict}
		}
		db.Tables = append(db.Tables, table)
	}
	return db, warnings, nil
}

func unquoteIdent(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	if len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		return s[1 : len(s)-1]
	}
	return s
}

func parseTableBody(name, body string) (*schema.Table, error) {
	table := &schema.Table{Name: name}
	for _, def := range splitTopLevelCommas(body) {
		def = strings.TrimSpace(def)
		if def == "" {
			continue
		}
		upper := strings.ToUpper(def)
		switch {
		case strings.HasPrefix(upper, "CONSTRAINT "), strings.HasPrefix(upper, "PRIMARY KEY"),
			strings.HasPrefix(upper, "UNIQUE"), strings.HasPrefix(upper, "FOREIGN KEY"),
			strings.HasPrefix(upper, "CHECK"):
			c, err := parseTableConstraint(def)
			if err != nil {
				return nil, err
			}
			table.Constraints = append(table.Constraints, c)
		default:
			col, err := parseColumnDefinition(table, def)
			if err != nil {
				return nil, err
			}
			table.Columns = append(table.Columns, col)
		}
	}
	return table, nil
}

func splitTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	var cur strings.Builder
	inSingle, inDouble := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '\'' && !inDouble:
			inSingle = !inSingle
		case ch == '"' && !inSingle:
			inDouble = !inDouble
		case ch == '(' && !inSingle && !inDouble:
			depth++
		case ch == ')' && !inSingle && !inDouble:
			depth--
		}
		if ch == ',' && depth == 0 && !inSingle && !inDouble {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(ch)
	}
	if strings.TrimSpace(cur.String()) != "" {
		parts = append(parts, cur.String())
	}
	return parts
}

var columnHeadPattern = regexp.MustCompile(`(?is)^("?[\w]+"?|\[\w+\])\s*([\w]+(?:\s*\([^)]*\))?)?\s*(.*)$`)

func parseColumnDefinition(table *schema.Table, def string) (*schema.Column, error) {
	m := columnHeadPattern.FindStringSubmatch(strings.TrimSpace(def))
	if m == nil {
		return nil, fmt.Errorf("sqlite parse error: cannot parse column definition %q", def)
	}
	name := unquoteIdent(m[1])
	rawType := strings.TrimSpace(m[2])
	if rawType == "" {
		// SQLite allows a column with no declared type (affinity BLOB).
		rawType = "BLOB"
	}
	rest := strings.TrimSpace(m[3])

	col := &schema.Column{Name: name, RawType: rawType, Type: schema.NormalizeDataType(rawType), Nullable: true}
	parseLengthPrecisionScale(rawType, col)

	restUpper := strings.ToUpper(rest)
	if strings.Contains(restUpper, "NOT NULL") {
		col.Nullable = false
	}
	if strings.Contains(restUpper, "PRIMARY KEY") {
		col.Nullable = false
		if table.PrimaryKey() == nil {
			table.Constraints = append(table.Constraints, &schema.Constraint{
				Name: "PRIMARY", Type: schema.ConstraintPrimaryKey, Columns: []string{name},
			})
		}
		if strings.Contains(restUpper, "AUTOINCREMENT") && strings.EqualFold(rawType, "INTEGER") {
			col.AutoIncrement = true
		}
	}
	if raw, ok := extractDefault(rest); ok {
		// SQLite requires non-literal defaults to be wrapped in an extra
		// pair of parens (e.g. DEFAULT (datetime('now'))); unwrap that
		// shell so CanonicalDefaultExpr sees the bare expression.
		for strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") && balancedInner(raw) {
			raw = strings.TrimSpace(raw[1 : len(raw)-1])
		}
		kind := classifyDefaultKind(raw)
		var value string
		if kind == schema.DefaultLit {
			value = unquoteLiteral(raw)
		} else {
			value = schema.CanonicalDefaultExpr(raw)
		}
		col.Default = schema.ColumnDefault{Kind: kind, Value: value}
	}

	return col, nil
}

var defaultKeywordPattern = regexp.MustCompile(`(?i)DEFAULT\s+`)

// extractDefault finds the DEFAULT clause's expression text in rest,
// respecting quotes and paren nesting so a parenthesized or nested-call
// default (e.g. "(datetime('now'))") is captured whole rather than cut off
// at the first ')'.
func extractDefault(rest string) (string, bool) {
	loc := defaultKeywordPattern.FindStringIndex(rest)
	if loc == nil {
		return "", false
	}
	s := rest[loc[1]:]
	if s == "" {
		return "", false
	}

	if s[0] == '\'' {
		for i := 1; i < len(s); i++ {
			if s[i] != '\'' {
				continue
			}
			if i+1 < len(s) && s[i+1] == '\'' {
				i++
				continue
			}
			return s[:i+1], true
		}
		return s, true
	}

	if s[0] == '(' {
		depth := 0
		inQuote := false
		for i := 0; i < len(s); i++ {
			switch {
			case s[i] == '\'':
				inQuote = !inQuote
			case s[i] == '(' && !inQuote:
				depth++
			case s[i] == ')' && !inQuote:
				depth--
				if depth == 0 {
					return s[:i+1], true
				}
			}
		}
		return s, true
	}

	// Bare token (CURRENT_TIMESTAMP, a number, a function call with no
	// surrounding parens, NULL) up to the next comma or whitespace run
	// that starts a new clause.
	end := len(s)
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				end = i
				i = len(s)
				continue
			}
			depth--
		case ',':
			if depth == 0 {
				end = i
				i = len(s)
			}
		}
	}
	return strings.TrimSpace(s[:end]), true
}

// balancedInner reports whether raw's outermost '(' ... ')' pair is the
// only thing wrapping the whole string (so stripping it is safe), as
// opposed to two separate parenthesized groups concatenated.
func balancedInner(raw string) bool {
	depth := 0
	inQuote := false
	for i, r := range raw {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case r == '(' && !inQuote:
			depth++
		case r == ')' && !inQuote:
			depth--
			if depth == 0 {
				return i == len(raw)-1
			}
		}
	}
	return false
}

func unquoteLiteral(raw string) string {
	trimmed := strings.TrimSpace(raw)
	// SQLite sometimes stores a string default triple-quoted ('''x'''); the
	// Reflector strips that, but a dump file may carry it verbatim too.
	if len(trimmed) >= 6 && strings.HasPrefix(trimmed, "'''") && strings.HasSuffix(trimmed, "'''") {
		trimmed = "'" + trimmed[3:len(trimmed)-3] + "'"
	}
	if len(trimmed) >= 2 && trimmed[0] == '\'' && trimmed[len(trimmed)-1] == '\'' {
		return strings.ReplaceAll(trimmed[1:len(trimmed)-1], "''", "'")
	}
	return trimmed
}

func classifyDefaultKind(expr string) schema.DefaultKind {
	trimmed := strings.TrimSpace(expr)
	if strings.EqualFold(trimmed, "NULL") {
		return schema.DefaultNull
	}
	if strings.HasPrefix(trimmed, "'") {
		return schema.DefaultLit
	}
	if _, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return schema.DefaultLit
	}
	return schema.DefaultExpr
}

var lengthPattern = regexp.MustCompile(`\((\d+)(?:,\s*(\d+))?\)`)

func parseLengthPrecisionScale(rawType string, col *schema.Column) {
	m := lengthPattern.FindStringSubmatch(rawType)
	if m == nil {
		return
	}
	n, _ := strconv.Atoi(m[1])
	switch col.Type {
	case schema.DataTypeFloat:
		col.Precision = n
		if m[2] != "" {
			scale, _ := strconv.Atoi(m[2])
			col.Scale = scale
		}
	default:
		col.Length = n
	}
}

func parseTableConstraint(def string) (*schema.Constraint, error) {
	def = strings.TrimSpace(def)
	var name string
	if strings.HasPrefix(strings.ToUpper(def), "CONSTRAINT ") {
		rest := strings.TrimSpace(def[len("CONSTRAINT "):])
		sp := strings.IndexAny(rest, " \t")
		if sp < 0 {
			return nil, fmt.Errorf("sqlite parse error: malformed CONSTRAINT clause %q", def)
		}
		name = unquoteIdent(rest[:sp])
		def = strings.TrimSpace(rest[sp+1:])
	}

	upper := strings.ToUpper(def)
	switch {
	case strings.HasPrefix(upper, "PRIMARY KEY"):
		cols := parseParenColumnList(def, "PRIMARY KEY")
		return &schema.Constraint{Name: orDefault(name, "PRIMARY"), Type: schema.ConstraintPrimaryKey, Columns: cols}, nil

	case strings.HasPrefix(upper, "UNIQUE"):
		cols := parseParenColumnList(def, "UNIQUE")
		return &schema.Constraint{Name: name, Type: schema.ConstraintUnique, Columns: cols}, nil

	case strings.HasPrefix(upper, "CHECK"):
		start := strings.Index(def, "(")
		end := strings.LastIndex(def, ")")
		expr := ""
		if start >= 0 && end > start {
			expr = strings.TrimSpace(def[start+1 : end])
		}
		return &schema.Constraint{Name: name, Type: schema.ConstraintCheck, CheckExpression: expr}, nil

	case strings.HasPrefix(upper, "FOREIGN KEY"):
		return parseForeignKeyConstraint(name, def)
	}
	return nil, fmt.Errorf("sqlite parse error: unrecognized table constraint %q", def)
}

func orDefault(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func parseParenColumnList(def, keyword string) []string {
	rest := strings.TrimSpace(def[len(keyword):])
	start := strings.Index(rest, "(")
	end := strings.Index(rest, ")")
	if start < 0 || end < 0 {
		return nil
	}
	inner := rest[start+1 : end]
	var cols []string
	for _, c := range strings.Split(inner, ",") {
		cols = append(cols, unquoteIdent(strings.TrimSpace(c)))
	}
	return cols
}

var fkPattern = regexp.MustCompile(`(?is)FOREIGN\s+KEY\s*\(([^)]*)\)\s*REFERENCES\s+("?[\w.]+"?|\[\w+\])\s*\(([^)]*)\)\s*(.*)$`)

func parseForeignKeyConstraint(name, def string) (*schema.Constraint, error) {
	m := fkPattern.FindStringSubmatch(def)
	if m == nil {
		return nil, fmt.Errorf("sqlite parse error: malformed FOREIGN KEY clause %q", def)
	}
	c := &schema.Constraint{
		Name:              orDefault(name, fmt.Sprintf("fk_%s", strings.Join(splitIdentList(m[1]), "_"))),
		Type:              schema.ConstraintForeignKey,
		Columns:           splitIdentList(m[1]),
		ReferencedTable:   unquoteIdent(m[2]),
		ReferencedColumns: splitIdentList(m[3]),
	}
	tail := strings.ToUpper(m[4])
	if idx := strings.Index(tail, "ON DELETE"); idx >= 0 {
		c.OnDelete = schema.ReferentialAction(extractAction(tail[idx+len("ON DELETE"):]))
	}
	if idx := strings.Index(tail, "ON UPDATE"); idx >= 0 {
		c.OnUpdate = schema.ReferentialAction(extractAction(tail[idx+len("ON UPDATE"):]))
	}
	return c, nil
}

func splitIdentList(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		out = append(out, unquoteIdent(strings.TrimSpace(c)))
	}
	return out
}

func extractAction(s string) string {
	s = strings.TrimSpace(s)
	for _, action := range []string{"CASCADE", "RESTRICT", "SET NULL", "SET DEFAULT", "NO ACTION"} {
		if strings.HasPrefix(s, action) {
			return action
		}
	}
	return ""
}
