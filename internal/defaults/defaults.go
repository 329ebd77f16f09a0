// Package defaults provides embedded copies of the example config and
// persona files for use by the init subcommand.
package defaults

import _ "embed"

// ConfigYAML is the example configuration file.
//
//go:embed config.example.yaml
var ConfigYAML []byte

// PersonaTxt is the example persona file.
//
//go:embed persona.example.txt
var PersonaTxt []byte
