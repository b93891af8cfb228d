// Package config loads, normalizes, and validates shellac configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and centralizes every knob the daemon and
// CLI need: data/log/library directories, the scanner extension allow-list,
// checkpoint cadence, migration worker counts, and log output settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized absolute paths, canonical log formats, and clear validation
// errors.
package config
