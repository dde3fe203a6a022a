// Package dialect provides a unified interface for all database dialects. It is used to
// make sure all SQL dialects are handled in the same way, and we provide complete
// support for all features spec'd per engine.
package dialect

import (
	"fmt"
	"maps"
	"sync"

	"dbbackup/internal/schema"
)

// TypeHint tells QuoteLiteral how to render a value it otherwise has no
// static type information for (e.g. a reflected default-value string).
type TypeHint string

const (
	HintNone   TypeHint = ""
	HintNull   TypeHint = "null"
	HintBool   TypeHint = "bool"
	HintNumber TypeHint = "number"
	HintString TypeHint = "string"
	HintBytes  TypeHint = "bytes"
	HintArray  TypeHint = "array"
)

// FeatureFlags enumerates the dialect-specific capability switches the
// Renderer and Parser consult.
type FeatureFlags struct {
	SupportsCheckConstraints bool
	SupportsDeferrableFKs    bool
	SupportsPartialIndexes   bool
	SupportsArrayTypes       bool
	SupportsStrictTables     bool
	SupportsWithoutRowid     bool
	SupportsInlineAutoIncPK  bool
}

// AutoincrementStyle describes how a single-column integer primary key with
// auto-increment is emitted.
type AutoincrementStyle string

const (
	// AutoincInlineColumn emits it as a column attribute (MySQL
	// AUTO_INCREMENT, SQLite INTEGER PRIMARY KEY AUTOINCREMENT).
	AutoincInlineColumn AutoincrementStyle = "inline_column"
	// AutoincPseudoType emits it via a pseudo-type substitution
	// (PostgreSQL SERIAL/BIGSERIAL).
	AutoincPseudoType AutoincrementStyle = "pseudo_type"
)

// Platform is the main abstraction for a SQL dialect: identifier quoting,
// literal formatting, type rendering, feature flags, and autoincrement
// policy. Every engine-specific package registers one from its own init().
// NOTE: this interface can be extended later if a new engine needs more.
type Platform interface {
	// Dialect names the engine this Platform renders for.
	Dialect() schema.Dialect

	// QuoteIdentifier quotes a single identifier (table, column, index,
	// constraint name) for safe inclusion in generated SQL.
	QuoteIdentifier(name string) string

	// QuoteLiteral renders value as a SQL literal appropriate for hint.
	// An empty value with hint == HintNull always yields "NULL".
	QuoteLiteral(value string, hint TypeHint) string

	// RenderType maps a column's logical type + parameters to this
	// dialect's declared-type syntax. Returns a *dbbackuperr.Error of
	// kind UnsupportedFeature when the logical type has no mapping.
	RenderType(col *schema.Column) (string, error)

	// Features returns this dialect's capability flags.
	Features() FeatureFlags

	// AutoincrementPolicy returns how a single-column integer
	// auto-increment primary key should be emitted.
	AutoincrementPolicy() AutoincrementStyle
}

var (
	registryMu sync.RWMutex
	registry   = map[schema.Dialect]func() Platform{}
)

// Register adds a Platform constructor to the registry. Intended to be
// called from each engine package's init().
func Register(d schema.Dialect, ctor func() Platform) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d] = ctor
}

// Get constructs the Platform registered for d. It never silently falls
// back to another engine: a wrong dialect for a rendering or parsing call
// is always a hard error.
func Get(d schema.Dialect) (Platform, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ctor, ok := registry[d]
	if !ok {
		return nil, fmt.Errorf("dialect %q is not registered", d)
	}
	return ctor(), nil
}

// resetRegistry replaces the registry with the given map. Intended for testing only.
func resetRegistry(r map[schema.Dialect]func() Platform) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = r
}

// snapshotRegistry returns a shallow copy of the current registry. Intended for testing only.
func snapshotRegistry() map[schema.Dialect]func() Platform {
	registryMu.RLock()
	defer registryMu.RUnlock()
	snap := make(map[schema.Dialect]func() Platform, len(registry))
	maps.Copy(snap, registry)
	return snap
}
