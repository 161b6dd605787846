// Package config loads and validates the server YAML configuration and
// watches it for changes at runtime.
package config
