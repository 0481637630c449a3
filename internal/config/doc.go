// Package config loads veil configuration from global and project YAML
// files, a .env file and VEIL_* environment variables. CLI code applies flag
// values on top.
package config
