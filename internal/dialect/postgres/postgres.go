// Package postgres provides the PostgreSQL dialect.Platform.
package postgres

import (
	"encoding/hex"
	"strconv"
	"strings"

	"dbbackup/internal/dbbackuperr"
	"dbbackup/internal/dialect"
	"dbbackup/internal/schema"
)

func init() {
	dialect.Register(schema.DialectPostgreSQL, func() dialect.Platform { return NewPlatform() })
}

// Platform is the PostgreSQL dialect.Platform.
type Platform struct{}

// NewPlatform initializes a PostgreSQL Platform.
func NewPlatform() *Platform { return &Platform{} }

func (p *Platform) Dialect() schema.Dialect { return schema.DialectPostgreSQL }

// QuoteIdentifier double-quotes name, doubling any embedded double-quote.
func (p *Platform) QuoteIdentifier(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, `"`, `""`)
	return `"` + name + `"`
}

// QuoteLiteral renders value using PostgreSQL's standard_conforming_strings
// quoting: a single-quoted literal with only the quote character escaped by
// doubling. Unlike MySQL, backslashes are not special.
func (p *Platform) QuoteLiteral(value string, hint dialect.TypeHint) string {
	if hint == dialect.HintNull {
		return "NULL"
	}
	if hint == dialect.HintNumber || hint == dialect.HintBool {
		return value
	}
	if hint == dialect.HintBytes {
		return "'\\x" + hex.EncodeToString([]byte(value)) + "'"
	}
	if hint == dialect.HintArray {
		// value carries the already-quoted, comma-separated element list;
		// arrays are a PostgreSQL-only literal form.
		return "ARRAY[" + value + "]"
	}
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// RenderType prefers the reflected/parsed RawType verbatim, falling back to
// a canonical mapping from the logical DataType.
func (p *Platform) RenderType(col *schema.Column) (string, error) {
	if col == nil {
		return "", dbbackuperr.New(dbbackuperr.UnsupportedFeature, "nil column")
	}
	if strings.TrimSpace(col.RawType) != "" {
		t := strings.TrimSpace(col.RawType)
		if col.IsArray && !strings.HasSuffix(t, "[]") {
			t += "[]"
		}
		return t, nil
	}

	base, err := baseType(col)
	if err != nil {
		return "", err
	}
	if col.IsArray {
		return base + "[]", nil
	}
	return base, nil
}

func baseType(col *schema.Column) (string, error) {
	switch col.Type {
	case schema.DataTypeInt:
		if col.Length > 0 && col.Length <= 16 {
			return "smallint", nil
		}
		if col.Length > 32 {
			return "bigint", nil
		}
		return "integer", nil
	case schema.DataTypeFloat:
		if col.Precision > 0 {
			return "numeric(" + strconv.Itoa(col.Precision) + "," + strconv.Itoa(col.Scale) + ")", nil
		}
		return "double precision", nil
	case schema.DataTypeBoolean:
		return "boolean", nil
	case schema.DataTypeString:
		if col.Length > 0 {
			return "varchar(" + strconv.Itoa(col.Length) + ")", nil
		}
		return "text", nil
	case schema.DataTypeDatetime:
		return "timestamp", nil
	case schema.DataTypeJSON:
		return "jsonb", nil
	case schema.DataTypeUUID:
		return "uuid", nil
	case schema.DataTypeBinary:
		return "bytea", nil
	case schema.DataTypeEnum:
		// PostgreSQL has no inline ENUM literal type; the caller is
		// expected to have materialized a named enum type separately
		// via a preceding CREATE TYPE.
		return "", dbbackuperr.New(dbbackuperr.UnsupportedFeature, "PostgreSQL enum columns require a named CREATE TYPE, not an inline type")
	default:
		return "", dbbackuperr.New(dbbackuperr.UnsupportedFeature, "no PostgreSQL rendering for column "+col.Name)
	}
}

func (p *Platform) Features() dialect.FeatureFlags {
	return dialect.FeatureFlags{
		SupportsCheckConstraints: true,
		SupportsDeferrableFKs:    true,
		SupportsPartialIndexes:   true,
		SupportsArrayTypes:       true,
		SupportsStrictTables:     false,
		SupportsWithoutRowid:     false,
		SupportsInlineAutoIncPK:  false,
	}
}

func (p *Platform) AutoincrementPolicy() dialect.AutoincrementStyle {
	return dialect.AutoincPseudoType
}

// SerialType maps an integer column width to the SERIAL pseudo-type used
// when AutoincrementPolicy reports AutoincPseudoType.
func SerialType(col *schema.Column) string {
	if col.Length > 32 {
		return "bigserial"
	}
	if col.Length > 0 && col.Length <= 16 {
		return "smallserial"
	}
	return "serial"
}
