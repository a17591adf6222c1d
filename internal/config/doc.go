// Package config loads, defaults, normalizes, and validates the tagflow
// configuration file.
package config
