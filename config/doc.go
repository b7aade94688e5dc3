// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the recognized option surface of the
// proxy: listen port, backend pool, retry and health-check thresholds, and
// strategy selection. Unknown options are ignored with a warning.
package config
