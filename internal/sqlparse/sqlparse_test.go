package sqlparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbbackup/internal/schema"
)

type mockParser struct{}

func (mockParser) Parse(sql string, opts Options) (*schema.Database, []Warning, error) {
	return &schema.Database{Name: "mock"}, nil, nil
}

func TestRegisterAndGet(t *testing.T) {
	Register(schema.Dialect("mock-dialect"), func() Parser { return mockParser{} })

	p, err := Get(schema.Dialect("mock-dialect"))
	require.NoError(t, err)
	db, warnings, err := p.Parse("SELECT 1", Options{})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "mock", db.Name)
}

func TestGetUnregisteredDialectErrors(t *testing.T) {
	_, err := Get(schema.Dialect("does-not-exist"))
	assert.Error(t, err)
}
