// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package config

import (
	"os"
	"path/filepath"
)

const appName = "nomadiqe"

// Dir returns the per-user config directory. XDG_CONFIG_HOME wins, then
// $HOME/.config.
func Dir(getenv func(string) string) string {
	base := getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultPath is the file read when no --config is given.
func DefaultPath(getenv func(string) string) string {
	return filepath.Join(Dir(getenv), "config.yaml")
}

// ResolvePath picks the config file to load. An explicit path is returned
// as is, so a missing file fails loudly. Otherwise DefaultPath is used when
// it exists and "" (defaults only) when it does not.
func ResolvePath(explicit string, getenv func(string) string) string {
	if explicit != "" {
		return explicit
	}
	path := DefaultPath(getenv)
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path
	}
	return ""
}
