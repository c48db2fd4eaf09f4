// Package config defines the updater settings and provides helpers to load,
// validate and save them in YAML format.
//
// Every field has a default, so a missing settings file is not an error.
package config
