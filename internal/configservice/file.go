package configservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables that override file properties,
// e.g. ACSALARM_IMPLEMENTATION.
const EnvPrefix = "ACSALARM"

// FileHandle reads properties from a YAML, JSON or TOML file through viper.
// Environment variables with EnvPrefix override file values.
type FileHandle struct {
	v *viper.Viper
}

// NewFileHandle reads path once and serves its keys.
func NewFileHandle(path string) (*FileHandle, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read property file: %w", err)
	}

	return &FileHandle{
		v: v,
	}, nil
}

// GetProperty returns the property value. Keys are case-insensitive, as in viper.
func (h *FileHandle) GetProperty(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if !h.v.IsSet(name) {
		return "", fmt.Errorf("%w: %s", ErrPropertyNotFound, name)
	}

	return h.v.GetString(name), nil
}
