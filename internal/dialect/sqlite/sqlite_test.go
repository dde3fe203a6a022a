package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbbackup/internal/dialect"
	"dbbackup/internal/schema"
)

func TestQuoteIdentifier(t *testing.T) {
	p := NewPlatform()
	assert.Equal(t, `"widgets"`, p.QuoteIdentifier("widgets"))
	assert.Equal(t, `"a""b"`, p.QuoteIdentifier(`a"b`))
}

func TestQuoteLiteral(t *testing.T) {
	p := NewPlatform()
	assert.Equal(t, "NULL", p.QuoteLiteral("", dialect.HintNull))
	assert.Equal(t, `'it''s'`, p.QuoteLiteral("it's", dialect.HintString))
}

func TestQuoteLiteralBytes(t *testing.T) {
	p := NewPlatform()
	assert.Equal(t, "X'00FF'", p.QuoteLiteral("\x00\xff", dialect.HintBytes))
}

func TestRenderTypePrefersRawType(t *testing.T) {
	p := NewPlatform()
	got, err := p.RenderType(&schema.Column{RawType: "VARCHAR(32)"})
	require.NoError(t, err)
	assert.Equal(t, "VARCHAR(32)", got)
}

func TestRenderTypeFallback(t *testing.T) {
	p := NewPlatform()
	cases := []struct {
		name string
		in   schema.DataType
		want string
	}{
		{"int", schema.DataTypeInt, "INTEGER"},
		{"float", schema.DataTypeFloat, "REAL"},
		{"bool", schema.DataTypeBoolean, "BOOLEAN"},
		{"string", schema.DataTypeString, "TEXT"},
		{"datetime", schema.DataTypeDatetime, "TEXT"},
		{"binary", schema.DataTypeBinary, "BLOB"},
		{"enum", schema.DataTypeEnum, "TEXT"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.RenderType(&schema.Column{Type: tt.in})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFeaturesAndAutoincrementPolicy(t *testing.T) {
	p := NewPlatform()
	assert.True(t, p.Features().SupportsWithoutRowid)
	assert.True(t, p.Features().SupportsStrictTables)
	assert.False(t, p.Features().SupportsArrayTypes)
	assert.Equal(t, dialect.AutoincInlineColumn, p.AutoincrementPolicy())
}

func TestRegisteredInDialectRegistry(t *testing.T) {
	p, err := dialect.Get(schema.DialectSQLite)
	require.NoError(t, err)
	assert.Equal(t, schema.DialectSQLite, p.Dialect())
}
