package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbbackup/internal/reflect"
	"dbbackup/internal/schema"
)

func TestStripPgCast(t *testing.T) {
	assert.Equal(t, "'active'", stripPgCast("'active'::text"))
	assert.Equal(t, "now()", stripPgCast("now()"))
}

func TestLooksLikeLiteral(t *testing.T) {
	assert.True(t, looksLikeLiteral("'active'::text"))
	assert.False(t, looksLikeLiteral("now()"))
}

func TestIsNotNullShadow(t *testing.T) {
	assert.True(t, isNotNullShadow("widgets_name_not_null", "name IS NOT NULL"))
	assert.True(t, isNotNullShadow("some_check", "name IS NOT NULL"))
	assert.False(t, isNotNullShadow("chk_positive_price", "price > 0"))
}

func TestMapConstraintType(t *testing.T) {
	assert.Equal(t, schema.ConstraintPrimaryKey, mapConstraintType("PRIMARY KEY"))
	assert.Equal(t, schema.ConstraintForeignKey, mapConstraintType("FOREIGN KEY"))
}

func TestNormalizeIndexMethod(t *testing.T) {
	assert.Equal(t, schema.IndexTypeGIN, normalizeIndexMethod("gin"))
	assert.Equal(t, schema.IndexTypeGiST, normalizeIndexMethod("gist"))
	assert.Equal(t, schema.IndexTypeBTree, normalizeIndexMethod("btree"))
}

func TestContainsString(t *testing.T) {
	assert.True(t, containsString([]string{"a", "b"}, "b"))
	assert.False(t, containsString([]string{"a", "b"}, "c"))
}

func TestRegisteredInReflectRegistry(t *testing.T) {
	r, err := reflect.Get(schema.DialectPostgreSQL)
	require.NoError(t, err)
	assert.NotNil(t, r)
}
