// Package config loads and validates the muster-gateway YAML
// configuration, with environment variable expansion and duration
// parsing.
package config
