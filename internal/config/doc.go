// ABOUTME: Package documentation for config
// ABOUTME: Describes the YAML configuration format

// Package config loads and validates the dmgate YAML configuration.
//
// Values of the form ${VAR_NAME} are expanded from the environment before
// parsing; durations are written as Go duration strings ("5m", "10s").
package config
