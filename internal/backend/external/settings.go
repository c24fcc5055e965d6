package external

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/LeoXDXp/ACS/internal/config"
)

// Environment variables read by NewBackend. A plugin entry point takes no
// arguments, so the host exports the collector settings before loading it.
const (
	EnvCollectorAddress  = "ACSALARM_COLLECTOR_ADDRESS"
	EnvCollectorTimeout  = "ACSALARM_COLLECTOR_TIMEOUT"
	EnvCollectorPushRate = "ACSALARM_COLLECTOR_PUSH_RATE"
)

var errNegativePushRate = errors.New("push rate must not be negative")

// Settings configures the connection to the fault collector.
type Settings struct {
	// Address is the collector gRPC address.
	Address string
	// Timeout bounds each RPC and the startup health probe.
	Timeout time.Duration
	// PushRate is the per-source push limit in pushes per second. Zero disables it.
	PushRate float64
}

// DefaultSettings returns the settings used when nothing is exported.
func DefaultSettings() Settings {
	return Settings{
		Address: config.DefaultCollectorAddress,
		Timeout: config.DefaultTimeout,
	}
}

// SettingsFromCollector converts the collector section of the settings file.
func SettingsFromCollector(c config.Collector) Settings {
	s := Settings{
		Address:  c.Address,
		Timeout:  c.Timeout,
		PushRate: c.PushRate,
	}

	d := DefaultSettings()
	if s.Address == "" {
		s.Address = d.Address
	}

	if s.Timeout <= 0 {
		s.Timeout = d.Timeout
	}

	return s
}

// Environ returns the settings as KEY=value pairs understood by SettingsFromEnv.
func (s Settings) Environ() map[string]string {
	return map[string]string{
		EnvCollectorAddress:  s.Address,
		EnvCollectorTimeout:  s.Timeout.String(),
		EnvCollectorPushRate: strconv.FormatFloat(s.PushRate, 'f', -1, 64),
	}
}

// SettingsFromEnv reads the collector settings from the environment, keeping
// defaults for unset variables.
func SettingsFromEnv() (Settings, error) {
	return settingsFromLookup(os.LookupEnv)
}

func settingsFromLookup(lookup func(string) (string, bool)) (Settings, error) {
	s := DefaultSettings()

	if v, ok := lookup(EnvCollectorAddress); ok && v != "" {
		s.Address = v
	}

	if v, ok := lookup(EnvCollectorTimeout); ok && v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return s, fmt.Errorf("parse %s: %w", EnvCollectorTimeout, err)
		}

		if timeout > 0 {
			s.Timeout = timeout
		}
	}

	if v, ok := lookup(EnvCollectorPushRate); ok && v != "" {
		pushRate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return s, fmt.Errorf("parse %s: %w", EnvCollectorPushRate, err)
		}

		if pushRate < 0 {
			return s, fmt.Errorf("%s: %w", EnvCollectorPushRate, errNegativePushRate)
		}

		s.PushRate = pushRate
	}

	return s, nil
}
