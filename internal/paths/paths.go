// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth,
// including the per-editor state files that editor plugins write.
package paths

import (
	"path/filepath"
	"strings"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile        = "daemon.pid"
	ConfigFile     = "config.toml"
	LogFile        = "daemon.log"
	IconsCacheFile = "icons-cache.json"
	BinaryName     = "editorcord"
	DataDirRel     = ".editorcord" // relative to $HOME
)

// State file naming. Each editor writes its own state.<editor>.json.
const (
	statePrefix = "state."
	stateSuffix = ".json"
)

// Remote-fetched file paths (relative to repo root).
const (
	LanguagesDataPath = "data/languages.json"
	ReleaseManifest   = ".release-manifest.json"
)

// StateFileForEditor returns the per-editor state file name.
// For example, StateFileForEditor("vscode") returns "state.vscode.json".
func StateFileForEditor(editor string) string {
	return statePrefix + editor + stateSuffix
}

// IsStateFile reports whether name (a path or base name) is a per-editor
// state file.
func IsStateFile(name string) bool {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, statePrefix) || !strings.HasSuffix(base, stateSuffix) {
		return false
	}
	return len(base) > len(statePrefix)+len(stateSuffix)
}

// StateGlob is the filepath.Glob pattern matching every state file.
const StateGlob = statePrefix + "*" + stateSuffix

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// IconsCache returns the full path to the language icon cache.
func (d DataDir) IconsCache() string { return filepath.Join(d.Root, IconsCacheFile) }

// StateForEditor returns the full path to an editor's state file.
func (d DataDir) StateForEditor(editor string) string {
	return filepath.Join(d.Root, StateFileForEditor(editor))
}
