// Package config loads engine configuration from TOML with environment
// overrides.
package config
