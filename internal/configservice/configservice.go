// Package configservice reads alarm-system properties from a configuration
// service.
//
// The factory asks exactly one question at bootstrap, the value of the
// "Implementation" property, and must survive any failure to answer it.
// Lookup therefore returns a Result instead of panicking or hiding errors,
// so the caller branches on success and failure explicitly.
package configservice

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/LeoXDXp/ACS/internal/config"
)

// Handle is a connection to a configuration service.
type Handle interface {
	// GetProperty returns the value of the named property.
	GetProperty(ctx context.Context, name string) (string, error)
}

var (
	// ErrPropertyNotFound is returned when the property is not defined.
	ErrPropertyNotFound = errors.New("property not found")
	// errNilHandle is returned by Lookup for a nil handle.
	errNilHandle = errors.New("configuration handle is nil")
	// errUnknownKind is returned by Open for an unsupported kind.
	errUnknownKind = errors.New("unknown configuration service kind")
)

// Result is the outcome of one property lookup.
type Result struct {
	// Value is the property value when Err is nil.
	Value string
	// Err is the lookup failure, if any.
	Err error
}

// OK reports whether the lookup succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Lookup queries h for name and captures the outcome, including panics
// raised by a misbehaving handle.
func Lookup(ctx context.Context, h Handle, name string) (res Result) {
	if h == nil {
		return Result{Err: errNilHandle}
	}

	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("lookup %q panicked: %v", name, r)}
		}
	}()

	value, err := h.GetProperty(ctx, name)
	if err != nil {
		return Result{Err: fmt.Errorf("lookup %q: %w", name, err)}
	}

	return Result{Value: value}
}

// StaticHandle serves properties from memory.
type StaticHandle struct {
	props map[string]string
}

// NewStaticHandle returns a handle serving a copy of props.
func NewStaticHandle(props map[string]string) *StaticHandle {
	return &StaticHandle{
		props: maps.Clone(props),
	}
}

// GetProperty returns the stored value or ErrPropertyNotFound.
func (h *StaticHandle) GetProperty(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	value, ok := h.props[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPropertyNotFound, name)
	}

	return value, nil
}

// Open builds the handle described by settings. The none kind yields a nil
// handle, which makes the factory pick the native backend without a lookup.
func Open(settings config.ConfigService) (Handle, error) {
	switch settings.Kind {
	case config.ConfigServiceNone, "":
		return nil, nil //nolint:nilnil // A nil handle is a valid "no configuration service".
	case config.ConfigServiceStatic:
		return NewStaticHandle(settings.Properties), nil
	case config.ConfigServiceFile:
		h, err := NewFileHandle(settings.File)
		if err != nil {
			return nil, err
		}

		return h, nil
	case config.ConfigServiceConsul:
		h, err := NewConsulHandle(settings.Address, settings.KeyPrefix)
		if err != nil {
			return nil, err
		}

		return h, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownKind, settings.Kind)
	}
}
