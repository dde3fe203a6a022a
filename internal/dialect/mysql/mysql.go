// Package mysql provides the MySQL/MariaDB/TiDB dialect.Platform:
// identifier/literal quoting, type rendering, and feature flags.
package mysql

import (
	"encoding/hex"
	"strconv"
	"strings"

	"dbbackup/internal/dbbackuperr"
	"dbbackup/internal/dialect"
	"dbbackup/internal/schema"
)

func init() {
	dialect.Register(schema.DialectMySQL, func() dialect.Platform { return NewPlatform(schema.DialectMySQL) })
	dialect.Register(schema.DialectMariaDB, func() dialect.Platform { return NewPlatform(schema.DialectMariaDB) })
	dialect.Register(schema.DialectTiDB, func() dialect.Platform { return NewPlatform(schema.DialectTiDB) })
}

// Platform is the MySQL-family dialect.Platform. MariaDB and TiDB share it
// since all three speak the same DDL surface this module renders.
type Platform struct {
	dialect schema.Dialect
}

// NewPlatform initializes a MySQL-family Platform for the given dialect.
func NewPlatform(d schema.Dialect) *Platform {
	return &Platform{dialect: d}
}

func (p *Platform) Dialect() schema.Dialect { return p.dialect }

// QuoteIdentifier backtick-quotes name, doubling any embedded backtick.
func (p *Platform) QuoteIdentifier(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "`", "``")
	return "`" + name + "`"
}

// QuoteLiteral renders value per MySQL's backslash-escape string rules.
func (p *Platform) QuoteLiteral(value string, hint dialect.TypeHint) string {
	if hint == dialect.HintNull {
		return "NULL"
	}
	if hint == dialect.HintNumber || hint == dialect.HintBool {
		return value
	}
	if hint == dialect.HintBytes {
		return "0x" + strings.ToUpper(hex.EncodeToString([]byte(value)))
	}

	var b strings.Builder
	b.Grow(len(value) + len(value)/10 + 2)

	b.WriteByte('\'')
	for _, char := range value {
		switch char {
		case '\'':
			b.WriteString("''")
		case '\\':
			b.WriteString(`\\`)
		case '\x00':
			b.WriteString(`\0`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\x1A':
			b.WriteString(`\Z`)
		default:
			b.WriteRune(char)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// RenderType prefers the reflected/parsed RawType verbatim (it already
// carries the engine's own spelling), falling back to a canonical mapping
// from the logical DataType when RawType is empty (columns built
// programmatically rather than reflected).
func (p *Platform) RenderType(col *schema.Column) (string, error) {
	if col == nil {
		return "", dbbackuperr.New(dbbackuperr.UnsupportedFeature, "nil column")
	}
	if strings.TrimSpace(col.RawType) != "" {
		return sanitizeRaw(col.RawType), nil
	}

	switch col.Type {
	case schema.DataTypeInt:
		t := "int"
		if col.Length > 0 {
			t += "(" + strconv.Itoa(col.Length) + ")"
		}
		if col.Unsigned {
			t += " unsigned"
		}
		return t, nil
	case schema.DataTypeFloat:
		if col.Precision > 0 {
			return "decimal(" + strconv.Itoa(col.Precision) + "," + strconv.Itoa(col.Scale) + ")", nil
		}
		return "double", nil
	case schema.DataTypeBoolean:
		return "tinyint(1)", nil
	case schema.DataTypeString:
		if col.Length > 0 {
			return "varchar(" + strconv.Itoa(col.Length) + ")", nil
		}
		return "text", nil
	case schema.DataTypeDatetime:
		return "datetime", nil
	case schema.DataTypeJSON:
		return "json", nil
	case schema.DataTypeUUID:
		return "char(36)", nil
	case schema.DataTypeBinary:
		return "blob", nil
	case schema.DataTypeEnum:
		return schema.BuildEnumTypeRaw(col.EnumValues), nil
	default:
		return "", dbbackuperr.New(dbbackuperr.UnsupportedFeature, "no MySQL rendering for column "+col.Name)
	}
}

func sanitizeRaw(raw string) string {
	return strings.TrimSpace(raw)
}

func (p *Platform) Features() dialect.FeatureFlags {
	return dialect.FeatureFlags{
		SupportsCheckConstraints: true,
		SupportsDeferrableFKs:    false,
		SupportsPartialIndexes:   false,
		SupportsArrayTypes:       false,
		SupportsStrictTables:     false,
		SupportsWithoutRowid:     false,
		SupportsInlineAutoIncPK:  true,
	}
}

func (p *Platform) AutoincrementPolicy() dialect.AutoincrementStyle {
	return dialect.AutoincInlineColumn
}
