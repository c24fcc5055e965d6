package configservice

import (
	"context"
	"fmt"
	"path"

	"github.com/hashicorp/consul/api"
)

// ConsulHandle reads properties from the Consul KV store. A property named
// N is stored under <prefix>/N.
type ConsulHandle struct {
	kv     *api.KV
	prefix string
}

// NewConsulHandle creates a handle for the agent at address.
// No request is made until the first GetProperty.
func NewConsulHandle(address, prefix string) (*ConsulHandle, error) {
	cfg := api.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}

	return &ConsulHandle{
		kv:     client.KV(),
		prefix: prefix,
	}, nil
}

// Key returns the KV key holding the property.
func (h *ConsulHandle) Key(name string) string {
	if h.prefix == "" {
		return name
	}

	return path.Join(h.prefix, name)
}

// GetProperty fetches the raw value stored under Key(name).
func (h *ConsulHandle) GetProperty(ctx context.Context, name string) (string, error) {
	opts := new(api.QueryOptions).WithContext(ctx)

	pair, _, err := h.kv.Get(h.Key(name), opts)
	if err != nil {
		return "", fmt.Errorf("consul get %s: %w", h.Key(name), err)
	}

	if pair == nil {
		return "", fmt.Errorf("%w: %s", ErrPropertyNotFound, h.Key(name))
	}

	return string(pair.Value), nil
}
