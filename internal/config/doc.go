// Package config provides configuration loading and validation for the
// ladiocast broadcaster. It reads a YAML file on top of built-in defaults and
// validates every section before the service starts.
package config
