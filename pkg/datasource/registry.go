package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MertBaran/QA-API-sub001/pkg/ids"
)

// Config describes how to reach a backend.
type Config struct {
	Kind ids.Kind
	// URI is the MongoDB connection string or the PostgreSQL DSN.
	URI string
	// Database is the MongoDB database name.
	Database        string
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	Timeout         time.Duration
}

// DefaultConfig returns defaults for a local PostgreSQL backend.
func DefaultConfig() Config {
	return Config{
		Kind:            ids.KindRelational,
		Database:        "qa",
		MaxConns:        20,
		MinConns:        5,
		ConnMaxLifetime: 30 * time.Minute,
		Timeout:         10 * time.Second,
	}
}

// Opener connects to a backend.
type Opener func(ctx context.Context, cfg Config) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[ids.Kind]Opener)
)

// Register makes a backend available under kind. Adapters call it from
// init; registering the same kind twice panics.
func Register(kind ids.Kind, opener Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if opener == nil {
		panic("datasource: Register opener is nil")
	}
	if _, dup := registry[kind]; dup {
		panic(fmt.Sprintf("datasource: Register called twice for %s", kind))
	}
	registry[kind] = opener
}

// Open connects to the backend selected by cfg.Kind.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	registryMu.RLock()
	opener, ok := registry[cfg.Kind]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("datasource: no backend registered for %q (registered: %v)", cfg.Kind, Kinds())
	}
	backend, err := opener(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Kind, err)
	}
	return backend, nil
}

// Kinds lists the registered backend kinds.
func Kinds() []ids.Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]ids.Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
