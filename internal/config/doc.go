// Package config defines the settings shared by the alarm binaries and
// provides helpers to load, validate and save them in YAML format.
//
// The settings select the plugin loader, the configuration service queried
// at bootstrap, the fault collector endpoint and the metrics listener.
package config
