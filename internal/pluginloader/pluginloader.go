// Package pluginloader obtains a backend from a library by path and entry symbol.
//
// Two loaders share the Loader interface: SharedObjectLoader opens Go plugins
// built with -buildmode=plugin, and Registry serves libraries registered at
// compile time. Load resolves the entry symbol and calls it, turning every
// failure into a *PluginLoadError.
package pluginloader

import (
	"errors"
	"fmt"

	"github.com/LeoXDXp/ACS/internal/backend"
)

// Library is an opened plugin library.
type Library interface {
	// Lookup resolves an exported symbol.
	Lookup(symbol string) (any, error)
	// Close releases the library handle.
	Close() error
}

// Loader opens libraries by path.
type Loader interface {
	Open(path string) (Library, error)
}

var (
	// ErrSymbolNotFound is returned when a library does not export the symbol.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrLibraryNotFound is returned when nothing is registered under a path.
	ErrLibraryNotFound = errors.New("library not found")
	// ErrBadEntryPoint is returned when the symbol is not a backend entry point.
	ErrBadEntryPoint = errors.New("symbol is not a backend entry point")
	// ErrNilBackend is returned when the entry point yields no backend.
	ErrNilBackend = errors.New("entry point returned a nil backend")
)

// PluginLoadError reports why a backend could not be obtained from a library.
type PluginLoadError struct {
	// Path is the library path given to the loader.
	Path string
	// Symbol is the entry symbol that was resolved.
	Symbol string
	// Err is the loader diagnostic.
	Err error
}

// Error implements error.
func (e *PluginLoadError) Error() string {
	return fmt.Sprintf("load plugin %s (symbol %s): %v", e.Path, e.Symbol, e.Err)
}

// Unwrap returns the loader diagnostic.
func (e *PluginLoadError) Unwrap() error {
	return e.Err
}

// Load opens path, resolves symbol and calls it to obtain a backend.
// On success the caller owns the returned library and must Close it after
// the backend is shut down. On failure the library is already closed.
func Load(loader Loader, path, symbol string) (backend.Backend, Library, error) {
	lib, err := loader.Open(path)
	if err != nil {
		return nil, nil, &PluginLoadError{Path: path, Symbol: symbol, Err: err}
	}

	b, err := resolve(lib, symbol)
	if err != nil {
		//nolint:errcheck // The load error is what matters to the caller.
		_ = lib.Close()

		return nil, nil, &PluginLoadError{Path: path, Symbol: symbol, Err: err}
	}

	return b, lib, nil
}

// resolve looks up symbol and invokes it. Go plugins export variables as
// pointers, so both the value and pointer forms are accepted.
func resolve(lib Library, symbol string) (b backend.Backend, err error) {
	sym, err := lib.Lookup(symbol)
	if err != nil {
		return nil, err
	}

	var entry backend.EntryPoint

	switch fn := sym.(type) {
	case backend.EntryPoint:
		entry = fn
	case func() backend.Backend:
		entry = fn
	case *backend.EntryPoint:
		if fn != nil {
			entry = *fn
		}
	case *func() backend.Backend:
		if fn != nil {
			entry = *fn
		}
	}

	if entry == nil {
		return nil, fmt.Errorf("%w: %T", ErrBadEntryPoint, sym)
	}

	defer func() {
		if r := recover(); r != nil {
			b, err = nil, fmt.Errorf("entry point panicked: %v", r)
		}
	}()

	b = entry()
	if b == nil {
		return nil, ErrNilBackend
	}

	return b, nil
}
