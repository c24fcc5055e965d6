package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the alarm binaries.
type Config struct {
	// LogLevel is the minimum level written by the process logger.
	LogLevel string `yaml:"log_level"`
	// Factory selects how the external backend library is loaded.
	Factory Factory `yaml:"factory"`
	// ConfigService describes where the "Implementation" property is read from.
	ConfigService ConfigService `yaml:"config_service"`
	// Collector holds the fault collector endpoint used by the external backend.
	Collector Collector `yaml:"collector"`
	// Metrics configures the Prometheus endpoint.
	Metrics Metrics `yaml:"metrics"`
}

// Factory configures plugin loading.
type Factory struct {
	// Loader is LoaderRegistry or LoaderSharedObject.
	Loader string `yaml:"loader"`
	// LibraryPath is the path handed to the loader.
	LibraryPath string `yaml:"library_path"`
	// EntrySymbol is the symbol resolved in the library.
	EntrySymbol string `yaml:"entry_symbol"`
}

// ConfigService configures the configuration lookup used at bootstrap.
type ConfigService struct {
	// Kind is one of the ConfigService* kinds.
	Kind string `yaml:"kind"`
	// Address is the Consul agent address.
	Address string `yaml:"address"`
	// KeyPrefix is prepended to property names in Consul KV.
	KeyPrefix string `yaml:"key_prefix"`
	// File is the property file read by the file kind.
	File string `yaml:"file"`
	// Timeout bounds the lookup performed during bootstrap.
	Timeout time.Duration `yaml:"timeout"`
	// Properties are served by the static kind.
	Properties map[string]string `yaml:"properties"`
}

// Collector configures the fault collector endpoint.
type Collector struct {
	// Address is the gRPC address of the collector.
	Address string `yaml:"address"`
	// Timeout is the per-push RPC timeout.
	Timeout time.Duration `yaml:"timeout"`
	// PushRate limits pushes per second per source; zero means unlimited.
	PushRate float64 `yaml:"push_rate"`
	// StateFile is where the collector persists received fault states.
	StateFile string `yaml:"state_file"`
}

// Metrics configures the Prometheus HTTP endpoint.
type Metrics struct {
	// ListenAddress enables /metrics when not empty.
	ListenAddress string `yaml:"listen_address"`
}

// Loader kinds.
const (
	LoaderRegistry     = "registry"
	LoaderSharedObject = "shared-object"
)

// Configuration service kinds.
const (
	ConfigServiceNone   = "none"
	ConfigServiceStatic = "static"
	ConfigServiceFile   = "file"
	ConfigServiceConsul = "consul"
)

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "acs-alarm-settings.yaml"

	// DefaultStateFilename is the default collector journal filename.
	DefaultStateFilename = "acs-fault-states.json"

	// DefaultCollectorAddress is where the collector listens by default.
	DefaultCollectorAddress = "127.0.0.1:50061"

	// DefaultConsulAddress is the local Consul agent.
	DefaultConsulAddress = "127.0.0.1:8500"

	// DefaultKeyPrefix is the Consul KV folder holding alarm properties.
	DefaultKeyPrefix = "alarms/acs"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultFilePermissions is the default file permission for written files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownLoader is returned for an unsupported factory loader.
	errUnknownLoader = errors.New("unknown plugin loader")
	// errUnknownConfigService is returned for an unsupported configuration service kind.
	errUnknownConfigService = errors.New("unknown configuration service kind")
	// errFileRequired is returned when the file kind has no file.
	errFileRequired = errors.New("configuration service file must be provided")
	// errNegativeRate is returned for a negative push rate.
	errNegativeRate = errors.New("push rate must not be negative")
)

// Default returns settings with every default applied.
func Default() *Config {
	cfg := new(Config)
	//nolint:errcheck // Defaults always validate.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the settings and fills in defaults for empty fields.
//
//nolint:cyclop // Flat list of per-field defaults.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.LogLevel == "" {
		settings.LogLevel = "info"
	}

	switch settings.Factory.Loader {
	case "":
		settings.Factory.Loader = LoaderRegistry
	case LoaderRegistry, LoaderSharedObject:
	default:
		return fmt.Errorf("%w: %q", errUnknownLoader, settings.Factory.Loader)
	}

	cs := &settings.ConfigService
	switch cs.Kind {
	case "":
		cs.Kind = ConfigServiceNone
	case ConfigServiceNone, ConfigServiceStatic:
	case ConfigServiceFile:
		if cs.File == "" {
			return errFileRequired
		}
	case ConfigServiceConsul:
		if cs.Address == "" {
			cs.Address = DefaultConsulAddress
		}

		if cs.KeyPrefix == "" {
			cs.KeyPrefix = DefaultKeyPrefix
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownConfigService, cs.Kind)
	}

	if cs.Timeout <= 0 {
		cs.Timeout = DefaultTimeout
	}

	col := &settings.Collector
	if col.Address == "" {
		col.Address = DefaultCollectorAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", col.Address); err != nil {
		return fmt.Errorf("invalid collector address: %w", err)
	}

	if col.Timeout <= 0 {
		col.Timeout = DefaultTimeout
	}

	if col.PushRate < 0 {
		return errNegativeRate
	}

	if col.StateFile == "" {
		col.StateFile = DefaultStateFilename
	}

	return nil
}
