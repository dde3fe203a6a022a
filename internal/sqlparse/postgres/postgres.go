// Package postgres is a hand-written recursive-descent parser for
// PostgreSQL CREATE TABLE statements: plain helper-function-per-production
// style instead of a parser-combinator or PEG library.
package postgres

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
	sqlparse.Register(schema.DialectPostgreSQL, func() sqlparse.Parser { return New() })
}

// Parser parses PostgreSQL CREATE TABLE statements.
type Parser struct{}

// New constructs a PostgreSQL Parser.
func New() *Parser { return &Parser{} }

var createTablePattern = regexp.MustCompile(`(?is)^CREATE\s+(UNLOGGED\s+)?TABLE\s+(IF\s+NOT\s+EXISTS\s+)?("?[\w.]+"?)\s*\((.*)\)\s*(.*?);?$`)

func (p *Parser) Parse(sql string, opts sqlparse.Options) (*schema.Database, []sqlparse.Warning, error) {
	stmts := splitter.Split(sql, schema.DialectPostgreSQL, splitter.Options{StripComments: true})

	db := &schema.Database{Dialect: schema.DialectPostgreSQL}
	var warnings []sqlparse.Warning
	for _, stmt := range stmts {
		text := strings.TrimSpace(stmt.Text)
		if text == "" {
			continue
		}
		m := createTablePattern.FindStringSubmatch(text)
		if m == nil {
			if opts.Strict {
				return nil, nil, fmt.Errorf("postgres parse error: unsupported statement at index %d", stmt.Index)
			}
			warnings = append(warnings, sqlparse.Warning{Statement: text, Reason: "unsupported statement, skipped"})
			continue
		}
		unlogged := strings.TrimSpace(m[1]) != ""
		name := unquoteIdent(m[3])
		table, err := parseTableBody(name, m[4])
		if err != nil {
			return nil, nil, err
		}
		if unlogged {
			table.Options.PostgreSQL = &schema.PostgreSQLTableOptions{Unlogged: true}
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
			col, err := parseColumnDefinition(def)
			if err != nil {
				return nil, err
			}
			table.Columns = append(table.Columns, col)
		}
	}
	return table, nil
}

// splitTopLevelCommas splits on commas that are not nested inside
// parentheses or quotes.
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

var columnHeadPattern = regexp.MustCompile(`(?is)^("?[\w]+"?)\s+([\w]+(?:\s*\([^)]*\))?(?:\s*\[\s*\])?)\s*(.*)$`)

func parseColumnDefinition(def string) (*schema.Column, error) {
	m := columnHeadPattern.FindStringSubmatch(strings.TrimSpace(def))
	if m == nil {
		return nil, fmt.Errorf("postgres parse error: cannot parse column definition %q", def)
	}
	name := unquoteIdent(m[1])
	rawType := strings.TrimSpace(m[2])
	rest := strings.TrimSpace(m[3])

	col := &schema.Column{Name: name, RawType: rawType, Nullable: true}
	if strings.HasSuffix(rawType, "[]") {
		col.IsArray = true
		col.Type = schema.NormalizeDataType(strings.TrimSpace(strings.TrimSuffix(rawType, "[]")))
	} else {
		col.Type = schema.NormalizeDataType(rawType)
	}
	parseLengthPrecisionScale(rawType, col)
	if strings.Contains(strings.ToLower(rawType), "serial") {
		col.AutoIncrement = true
	}

	restUpper := strings.ToUpper(rest)
	if strings.Contains(restUpper, "NOT NULL") {
		col.Nullable = false
	}
	if strings.Contains(restUpper, "PRIMARY KEY") {
		col.Nullable = false
	}
	if m := defaultPattern.FindStringSubmatch(rest); m != nil {
		raw := strings.TrimSpace(m[1])
		if seq := nextvalPattern.FindStringSubmatch(raw); seq != nil {
			col.AutoIncrement = true
			col.Sequence = unqualifySequenceName(seq[1])
		} else {
			kind := classifyDefaultKind(raw)
			var value string
			if kind == schema.DefaultLit {
				value = unquoteLiteral(stripCast(raw))
			} else {
				value = schema.CanonicalDefaultExpr(stripCast(raw))
			}
			col.Default = schema.ColumnDefault{Kind: kind, Value: value}
		}
	}

	return col, nil
}

var nextvalPattern = regexp.MustCompile(`(?i)^nextval\('([^']+)'(?:::regclass)?\)`)

// unqualifySequenceName strips a schema qualifier and quoting from a
// nextval() argument down to the bare sequence name setval() expects.
func unqualifySequenceName(raw string) string {
	name := raw
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.Trim(name, `"`)
}

var defaultPattern = regexp.MustCompile(`(?is)DEFAULT\s+('(?:[^']|'')*'(?:::\w+)?|\([^)]*\)|[\w.]+\([^)]*\)|[^\s,]+)`)

func stripCast(expr string) string {
	if idx := strings.LastIndex(expr, "::"); idx >= 0 {
		return expr[:idx]
	}
	return expr
}

func unquoteLiteral(raw string) string {
	trimmed := strings.TrimSpace(stripCast(raw))
	if len(trimmed) >= 2 && trimmed[0] == '\'' && trimmed[len(trimmed)-1] == '\'' {
		return strings.ReplaceAll(trimmed[1:len(trimmed)-1], "''", "'")
	}
	return trimmed
}

func classifyDefaultKind(expr string) schema.DefaultKind {
	trimmed := strings.TrimSpace(stripCast(expr))
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
			return nil, fmt.Errorf("postgres parse error: malformed CONSTRAINT clause %q", def)
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
	return nil, fmt.Errorf("postgres parse error: unrecognized table constraint %q", def)
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

var fkPattern = regexp.MustCompile(`(?is)FOREIGN\s+KEY\s*\(([^)]*)\)\s*REFERENCES\s+("?[\w.]+"?)\s*\(([^)]*)\)\s*(.*)$`)

func parseForeignKeyConstraint(name, def string) (*schema.Constraint, error) {
	m := fkPattern.FindStringSubmatch(def)
	if m == nil {
		return nil, fmt.Errorf("postgres parse error: malformed FOREIGN KEY clause %q", def)
	}
	c := &schema.Constraint{
		Name:              name,
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
	if strings.Contains(tail, "DEFERRABLE") {
		c.Deferrable = true
		c.InitiallyDeferred = strings.Contains(tail, "INITIALLY DEFERRED")
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
