// Package reflect turns a live database connection into a populated
// schema.Database. Each engine registers its own implementation from its
// own package's init(), mirroring the dialect.Platform registry pattern.
package reflect

import (
	"context"
	"fmt"
	"sync"

	"dbbackup/internal/conn"
	"dbbackup/internal/schema"
)

// Reflector introspects a live connection into a schema.Database.
type Reflector interface {
	Reflect(ctx context.Context, c conn.Conn, databaseName string) (*schema.Database, error)
}

var (
	mu       sync.RWMutex
	registry = map[schema.Dialect]func() Reflector{}
)

// Register adds a Reflector constructor to the registry.
func Register(d schema.Dialect, ctor func() Reflector) {
	mu.Lock()
	defer mu.Unlock()
	registry[d] = ctor
}

// Get constructs the Reflector registered for d.
func Get(d schema.Dialect) (Reflector, error) {
	mu.RLock()
	ctor, ok := registry[d]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no reflector registered for dialect %q", d)
	}
	return ctor(), nil
}
