package factory

import "sync"

//nolint:gochecknoglobals // Process-wide factory registry.
var (
	defaultMu      sync.Mutex
	defaultFactory *Factory
)

// Default returns the process-wide factory, creating it with default options
// on first use.
func Default() *Factory {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultFactory == nil {
		defaultFactory = New()
	}

	return defaultFactory
}

// SetDefault installs f as the process-wide factory and returns the previous
// one, which may be nil. Hosts call it before Init when they need options.
func SetDefault(f *Factory) *Factory {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	prev := defaultFactory
	defaultFactory = f

	return prev
}
