// Package mysql parses MySQL/MariaDB/TiDB schema dumps using the TiDB SQL
// parser, so the same dialect surface TiDB itself accepts is understood
// without a hand-written grammar.
package mysql

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/format"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"dbbackup/internal/schema"
	"dbbackup/internal/sqlparse"
)

func init() {
	for _, d := range []schema.Dialect{schema.DialectMySQL, schema.DialectMariaDB, schema.DialectTiDB} {
		dialect := d
		sqlparse.Register(dialect, func() sqlparse.Parser { return New(dialect) })
	}
}

// Parser parses MySQL-family CREATE TABLE statements via the TiDB parser.
type Parser struct {
	dialect schema.Dialect
	p       *parser.Parser
}

// New constructs a Parser for the given MySQL-family dialect.
func New(dialect schema.Dialect) *Parser {
	return &Parser{dialect: dialect, p: parser.New()}
}

func (p *Parser) Parse(sql string, opts sqlparse.Options) (*schema.Database, []sqlparse.Warning, error) {
	stmtNodes, _, err := p.p.Parse(sql, "", "")
	if err != nil {
		return nil, nil, fmt.Errorf("mysql parse error: %w", err)
	}

	db := &schema.Database{Dialect: p.dialect}
	var warnings []sqlparse.Warning
	for _, stmt := range stmtNodes {
		create, ok := stmt.(*ast.CreateTableStmt)
		if !ok {
			if opts.Strict {
				return nil, nil, fmt.Errorf("mysql parse error: unsupported statement %T", stmt)
			}
			warnings = append(warnings, sqlparse.Warning{
				Statement: restoreStmt(stmt),
				Reason:    fmt.Sprintf("unsupported statement type %T, skipped", stmt),
			})
			continue
		}
		table, err := p.convertCreateTable(create)
		if err != nil {
			return nil, nil, err
		}
		db.Tables = append(db.Tables, table)
	}
	return db, warnings, nil
}

func restoreStmt(stmt ast.StmtNode) string {
	var sb strings.Builder
	ctx := format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)
	if err := stmt.Restore(ctx); err != nil {
		return ""
	}
	return sb.String()
}

func (p *Parser) convertCreateTable(stmt *ast.CreateTableStmt) (*schema.Table, error) {
	table := &schema.Table{Name: stmt.Table.Name.O}

	p.parseTableOptions(stmt.Options, table)
	p.parseColumns(stmt.Cols, table)
	p.parseConstraints(stmt.Constraints, table)

	return table, nil
}

func (p *Parser) parseTableOptions(opts []*ast.TableOption, table *schema.Table) {
	var mysqlOpts schema.MySQLTableOptions
	for _, opt := range opts {
		switch opt.Tp {
		case ast.TableOptionComment:
			table.Comment = opt.StrValue
		case ast.TableOptionCharset:
			mysqlOpts.Charset = opt.StrValue
		case ast.TableOptionCollate:
			mysqlOpts.Collate = opt.StrValue
		case ast.TableOptionEngine:
			mysqlOpts.Engine = opt.StrValue
		case ast.TableOptionAutoIncrement:
			mysqlOpts.AutoIncrement = opt.UintValue
		case ast.TableOptionRowFormat:
			mysqlOpts.RowFormat = rowFormatToString(opt.UintValue)
		}
	}
	if mysqlOpts != (schema.MySQLTableOptions{}) {
		table.Options.MySQL = &mysqlOpts
	}
}

func rowFormatToString(v uint64) string {
	switch v {
	case ast.RowFormatFixed:
		return "FIXED"
	case ast.RowFormatDynamic:
		return "DYNAMIC"
	case ast.RowFormatCompressed:
		return "COMPRESSED"
	case ast.RowFormatRedundant:
		return "REDUNDANT"
	case ast.RowFormatCompact:
		return "COMPACT"
	case ast.RowFormatDefault:
		return "DEFAULT"
	default:
		return ""
	}
}

func (p *Parser) parseColumns(cols []*ast.ColumnDef, table *schema.Table) {
	for _, colDef := range cols {
		rawType := colDef.Tp.String()
		col := &schema.Column{
			Name:     colDef.Name.Name.O,
			RawType:  rawType,
			Type:     schema.NormalizeDataType(rawType),
			Nullable: true,
			Collate:  colDef.Tp.GetCollate(),
			Charset:  colDef.Tp.GetCharset(),
		}
		if col.Type == schema.DataTypeEnum {
			col.EnumValues = colDef.Tp.GetElems()
		}
		if flen := colDef.Tp.GetFlen(); flen > 0 {
			col.Length = flen
		}
		if decimal := colDef.Tp.GetDecimal(); decimal > 0 {
			col.Scale = decimal
			col.Precision = colDef.Tp.GetFlen()
		}

		var pkInline bool
		for _, opt := range colDef.Options {
			switch opt.Tp {
			case ast.ColumnOptionNotNull:
				col.Nullable = false
			case ast.ColumnOptionNull:
				col.Nullable = true
			case ast.ColumnOptionPrimaryKey:
				pkInline = true
				col.Nullable = false
			case ast.ColumnOptionAutoIncrement:
				col.AutoIncrement = true
			case ast.ColumnOptionDefaultValue:
				if s := exprToString(opt.Expr); s != nil {
					col.Default = schema.ColumnDefault{
						Kind:  classifyDefaultKind(*s),
						Value: schema.CanonicalDefaultExpr(*s),
					}
				}
			case ast.ColumnOptionOnUpdate:
				if s := exprToString(opt.Expr); s != nil {
					col.OnUpdate = *s
				}
			case ast.ColumnOptionUniqKey:
				table.Constraints = append(table.Constraints, &schema.Constraint{
					Type:    schema.ConstraintUnique,
					Columns: []string{col.Name},
				})
			case ast.ColumnOptionComment:
				if s := exprToString(opt.Expr); s != nil {
					col.Comment = *s
				}
			case ast.ColumnOptionCheck:
				if s := exprToString(opt.Expr); s != nil {
					table.Constraints = append(table.Constraints, &schema.Constraint{
						Type:            schema.ConstraintCheck,
						Columns:         []string{col.Name},
						CheckExpression: *s,
					})
				}
			case ast.ColumnOptionReference:
				c := &schema.Constraint{
					Type:            schema.ConstraintForeignKey,
					Columns:         []string{col.Name},
					ReferencedTable: opt.Refer.Table.Name.O,
				}
				for _, spec := range opt.Refer.IndexPartSpecifications {
					if spec.Column != nil {
						c.ReferencedColumns = append(c.ReferencedColumns, spec.Column.Name.O)
					}
				}
				if opt.Refer.OnDelete != nil {
					c.OnDelete = schema.ReferentialAction(opt.Refer.OnDelete.ReferOpt.String())
				}
				if opt.Refer.OnUpdate != nil {
					c.OnUpdate = schema.ReferentialAction(opt.Refer.OnUpdate.ReferOpt.String())
				}
				table.Constraints = append(table.Constraints, c)
			}
		}
		table.Columns = append(table.Columns, col)
		if pkInline {
			ensurePrimaryKeyColumn(table, col.Name)
		}
	}
}

func classifyDefaultKind(expr string) schema.DefaultKind {
	if strings.EqualFold(strings.TrimSpace(expr), "NULL") {
		return schema.DefaultNull
	}
	if strings.HasPrefix(expr, "'") {
		return schema.DefaultLit
	}
	if _, ok := parseNumericLiteral(expr); ok {
		return schema.DefaultLit
	}
	return schema.DefaultExpr
}

func parseNumericLiteral(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	for i, r := range s {
		if (r == '-' || r == '+') && i == 0 {
			continue
		}
		if (r < '0' || r > '9') && r != '.' {
			return "", false
		}
	}
	return s, true
}

func ensurePrimaryKeyColumn(table *schema.Table, colName string) {
	colName = strings.TrimSpace(colName)
	if colName == "" {
		return
	}
	pk := table.PrimaryKey()
	if pk == nil {
		pk = &schema.Constraint{Name: "PRIMARY", Type: schema.ConstraintPrimaryKey}
		table.Constraints = append(table.Constraints, pk)
	}
	for _, existing := range pk.Columns {
		if strings.EqualFold(existing, colName) {
			return
		}
	}
	pk.Columns = append(pk.Columns, colName)
}

func (p *Parser) parseConstraints(constraints []*ast.Constraint, table *schema.Table) {
	for _, constraint := range constraints {
		columns := make([]string, 0, len(constraint.Keys))
		indexCols := make([]schema.ColumnIndex, 0, len(constraint.Keys))
		for _, key := range constraint.Keys {
			columns = append(columns, key.Column.Name.O)
			indexCols = append(indexCols, schema.ColumnIndex{Name: key.Column.Name.O, Length: key.Length})
		}

		switch constraint.Tp {
		case ast.ConstraintPrimaryKey:
			for _, colName := range columns {
				ensurePrimaryKeyColumn(table, colName)
			}
			if pk := table.PrimaryKey(); pk != nil {
				pk.Name = "PRIMARY"
				pk.Columns = columns
			}

		case ast.ConstraintUniq, ast.ConstraintUniqKey, ast.ConstraintUniqIndex:
			table.Constraints = append(table.Constraints, &schema.Constraint{
				Name:    constraint.Name,
				Type:    schema.ConstraintUnique,
				Columns: columns,
			})

		case ast.ConstraintForeignKey:
			c := &schema.Constraint{
				Name:            constraint.Name,
				Type:            schema.ConstraintForeignKey,
				Columns:         columns,
				ReferencedTable: constraint.Refer.Table.Name.O,
			}
			for _, spec := range constraint.Refer.IndexPartSpecifications {
				if spec.Column != nil {
					c.ReferencedColumns = append(c.ReferencedColumns, spec.Column.Name.O)
				}
			}
			if constraint.Refer.OnDelete != nil {
				c.OnDelete = schema.ReferentialAction(constraint.Refer.OnDelete.ReferOpt.String())
			}
			if constraint.Refer.OnUpdate != nil {
				c.OnUpdate = schema.ReferentialAction(constraint.Refer.OnUpdate.ReferOpt.String())
			}
			table.Constraints = append(table.Constraints, c)

		case ast.ConstraintIndex, ast.ConstraintKey:
			table.Indexes = append(table.Indexes, &schema.Index{
				Name: constraint.Name, Columns: indexCols, Type: schema.IndexTypeBTree,
			})

		case ast.ConstraintFulltext:
			table.Indexes = append(table.Indexes, &schema.Index{
				Name: constraint.Name, Columns: indexCols, Type: schema.IndexTypeFullText,
			})

		case ast.ConstraintCheck:
			c := &schema.Constraint{Name: constraint.Name, Type: schema.ConstraintCheck, Columns: columns}
			if constraint.Expr != nil {
				if s := exprToString(constraint.Expr); s != nil {
					c.CheckExpression = *s
				}
			}
			table.Constraints = append(table.Constraints, c)
		}
	}
}

func exprToString(expr ast.ExprNode) *string {
	if expr == nil {
		return nil
	}
	var sb strings.Builder
	ctx := format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)
	if err := expr.Restore(ctx); err != nil {
		return nil
	}
	s := strings.TrimSpace(sb.String())
	if unquoted, ok := tryUnquoteSQLStringLiteral(s); ok {
		return &unquoted
	}
	return &s
}

func tryUnquoteSQLStringLiteral(s string) (string, bool) {
	if len(s) < 2 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return "", false
	}
	return strings.ReplaceAll(s[1:len(s)-1], "''", "'"), true
}
