// Package editorcord provides embedded assets for the editorcord daemon.
//
// The root package exists solely to embed [config.default.toml] via
// [DefaultConfigTOML], which the daemon writes to the data directory on
// first run.
package editorcord

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml, generated by
// cmd/genconfig from the documented example config.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
