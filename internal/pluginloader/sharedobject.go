package pluginloader

import (
	"fmt"
	"plugin"
)

// SharedObjectLoader opens Go plugins built with -buildmode=plugin.
type SharedObjectLoader struct{}

// Open loads the shared object at path.
func (SharedObjectLoader) Open(path string) (Library, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shared object: %w", err)
	}

	return &sharedObject{p: p}, nil
}

// sharedObject adapts *plugin.Plugin to Library.
type sharedObject struct {
	p *plugin.Plugin
}

func (s *sharedObject) Lookup(symbol string) (any, error) {
	if s.p == nil {
		return nil, fmt.Errorf("%w: %s: library closed", ErrSymbolNotFound, symbol)
	}

	sym, err := s.p.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSymbolNotFound, err)
	}

	return sym, nil
}

// Close drops the handle. The Go runtime cannot unload a plugin, so the
// code stays mapped until the process exits.
func (s *sharedObject) Close() error {
	s.p = nil

	return nil
}
