package pluginloader

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Registry is a Loader over libraries registered at compile time, used where
// loading machine code at runtime is unavailable or unwanted. The backend
// package registers itself from init, the same way a shared object would
// export its entry symbol.
type Registry struct {
	mu   sync.RWMutex
	libs map[string]map[string]any
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		libs: make(map[string]map[string]any),
	}
}

// DefaultRegistry is populated by backend packages from their init functions.
//
//nolint:gochecknoglobals // Compile-time plugin registration needs a shared registry.
var DefaultRegistry = NewRegistry()

// Register exports value as symbol of the library at path. Registering the
// same path and symbol twice replaces the earlier value.
func (r *Registry) Register(path, symbol string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lib, ok := r.libs[path]
	if !ok {
		lib = make(map[string]any)
		r.libs[path] = lib
	}

	lib[symbol] = value
}

// Paths lists the registered library paths in sorted order.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.libs))
}

// Open returns a snapshot of the symbols registered under path.
func (r *Registry) Open(path string) (Library, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lib, ok := r.libs[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s (registered: %v)", ErrLibraryNotFound, path, slices.Sorted(maps.Keys(r.libs)))
	}

	return &registeredLibrary{
		symbols: maps.Clone(lib),
	}, nil
}

// registeredLibrary is a Library backed by a symbol map.
type registeredLibrary struct {
	mu      sync.Mutex
	symbols map[string]any
}

func (l *registeredLibrary) Lookup(symbol string) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sym, ok := l.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	return sym, nil
}

// Close forgets the symbols. It is idempotent.
func (l *registeredLibrary) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.symbols = nil

	return nil
}
