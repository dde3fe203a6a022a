// Package sqlite provides the SQLite dialect.Platform.
package sqlite

import (
	"encoding/hex"
	"strings"

	"dbbackup/internal/dbbackuperr"
	"dbbackup/internal/dialect"
	"dbbackup/internal/schema"
)

func init() {
	dialect.Register(schema.DialectSQLite, func() dialect.Platform { return NewPlatform() })
}

// Platform is the SQLite dialect.Platform.
type Platform struct{}

// NewPlatform initializes a SQLite Platform.
func NewPlatform() *Platform { return &Platform{} }

func (p *Platform) Dialect() schema.Dialect { return schema.DialectSQLite }

// QuoteIdentifier double-quotes name, doubling any embedded double-quote.
// SQLite also accepts backticks and brackets, but double quotes are the
// ANSI-compatible form this module always emits.
func (p *Platform) QuoteIdentifier(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, `"`, `""`)
	return `"` + name + `"`
}

// QuoteLiteral renders value as a single-quoted SQLite literal; only the
// quote character is escaped, by doubling.
func (p *Platform) QuoteLiteral(value string, hint dialect.TypeHint) string {
	if hint == dialect.HintNull {
		return "NULL"
	}
	if hint == dialect.HintNumber || hint == dialect.HintBool {
		return value
	}
	if hint == dialect.HintBytes {
		return "X'" + strings.ToUpper(hex.EncodeToString([]byte(value))) + "'"
	}
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// RenderType prefers the reflected/parsed RawType verbatim (SQLite's type
// affinity rules mean the declared type is largely advisory, so round-trip
// fidelity means preserving it byte-for-byte), falling back to SQLite's
// storage-class names derived from the logical DataType.
func (p *Platform) RenderType(col *schema.Column) (string, error) {
	if col == nil {
		return "", dbbackuperr.New(dbbackuperr.UnsupportedFeature, "nil column")
	}
	if strings.TrimSpace(col.RawType) != "" {
		return strings.TrimSpace(col.RawType), nil
	}

	switch col.Type {
	case schema.DataTypeInt:
		return "INTEGER", nil
	case schema.DataTypeFloat:
		return "REAL", nil
	case schema.DataTypeBoolean:
		return "BOOLEAN", nil
	case schema.DataTypeString:
		return "TEXT", nil
	case schema.DataTypeDatetime:
		return "TEXT", nil
	case schema.DataTypeJSON:
		return "TEXT", nil
	case schema.DataTypeUUID:
		return "TEXT", nil
	case schema.DataTypeBinary:
		return "BLOB", nil
	case schema.DataTypeEnum:
		// SQLite has no native enum type; callers render a CHECK
		// constraint alongside a TEXT column instead.
		return "TEXT", nil
	default:
		return "", dbbackuperr.New(dbbackuperr.UnsupportedFeature, "no SQLite rendering for column "+col.Name)
	}
}

func (p *Platform) Features() dialect.FeatureFlags {
	return dialect.FeatureFlags{
		SupportsCheckConstraints: true,
		SupportsDeferrableFKs:    true,
		SupportsPartialIndexes:   true,
		SupportsArrayTypes:       false,
		SupportsStrictTables:     true,
		SupportsWithoutRowid:     true,
		SupportsInlineAutoIncPK:  true,
	}
}

func (p *Platform) AutoincrementPolicy() dialect.AutoincrementStyle {
	return dialect.AutoincInlineColumn
}
