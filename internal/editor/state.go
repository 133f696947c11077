// Package editor reads the editor state that plugins publish into the data
// directory.
//
// Each supported editor runs a small plugin (or calls `editorcord report`)
// that writes state.<editor>.json whenever focus, the active document, the
// selection or the debug session changes. The daemon treats these files as
// the read-only view of the host editor: the active document and its
// language, the cursor position, whether a debug session is running, and
// the open workspace folders.
package editor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tools.zach/dev/editorcord/internal/atomicfile"
	"tools.zach/dev/editorcord/internal/migrate"
	"tools.zach/dev/editorcord/internal/paths"
)

// CurrentVersion is the latest state file schema version.
var CurrentVersion = migrate.State.CurrentVersion

// workspaceSuffix is appended by VS Code-family editors to the names of
// multi-root workspaces.
const workspaceSuffix = " (Workspace)"

// ///////////////////////////////////////////////
// State Types
// ///////////////////////////////////////////////

// State is the editor state file schema.
type State struct {
	// Version is the schema version. See [CurrentVersion].
	Version int `json:"$version"`
	// Editor identifies the editor that wrote the file (e.g. "vscode").
	Editor string `json:"editor"`
	// AppName is the editor's product name (e.g. "Visual Studio Code").
	AppName string `json:"appName,omitempty"`
	// Document is the active text document, nil when no editor tab is focused.
	Document *Document `json:"document,omitempty"`
	// Selection is the active cursor position in Document.
	Selection *Position `json:"selection,omitempty"`
	// Debugging is true while a debug session is active.
	Debugging bool `json:"debugging"`
	// Workspace describes the open workspace and its folders.
	Workspace Workspace `json:"workspace"`
	// Focused is false while the editor window is in the background.
	Focused bool `json:"focused"`
	// LastActivity is the Unix timestamp of the last state change.
	LastActivity int64 `json:"lastActivity"`
	// Stopped is set by the plugin when the editor shuts down.
	Stopped bool `json:"stopped"`
}

// Document describes the active text document.
type Document struct {
	// FileName is the absolute path of the document on disk.
	FileName string `json:"fileName"`
	// LanguageID is the editor's language identifier (e.g. "typescriptreact").
	LanguageID string `json:"languageId"`
	// LineCount is the number of lines in the document.
	LineCount int `json:"lineCount"`
}

// Position is a zero-based line/character location.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Folder is one root of the open workspace.
type Folder struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Workspace is the set of folders open in the editor.
type Workspace struct {
	// Name is the workspace name; empty when only a folder (or nothing) is open.
	Name string `json:"name,omitempty"`
	// Folders are the workspace roots in editor order.
	Folders []Folder `json:"folders,omitempty"`
}

// ///////////////////////////////////////////////
// Workspace Lookups
// ///////////////////////////////////////////////

// DisplayName returns the workspace name without the editor's
// " (Workspace)" decoration, or "" when no workspace is named.
func (w Workspace) DisplayName() string {
	return strings.TrimSuffix(w.Name, workspaceSuffix)
}

// FolderFor returns the workspace folder containing path. When folders nest,
// the deepest one wins.
func (w Workspace) FolderFor(path string) (Folder, bool) {
	var best Folder
	found := false
	for _, f := range w.Folders {
		if f.Path == "" || !within(f.Path, path) {
			continue
		}
		if !found || len(f.Path) > len(best.Path) {
			best = f
			found = true
		}
	}
	return best, found
}

// RelativePath returns path relative to its workspace folder, or path
// unchanged when it lies outside every folder.
func (w Workspace) RelativePath(path string) string {
	f, ok := w.FolderFor(path)
	if !ok {
		return path
	}
	rel, err := filepath.Rel(f.Path, path)
	if err != nil {
		return path
	}
	return rel
}

// within reports whether path equals root or lies beneath it.
func within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ///////////////////////////////////////////////
// State I/O
// ///////////////////////////////////////////////

// ReadState reads and parses the state file at path. A corrupted file is
// backed up to path+".corrupted" and replaced by a fresh state, which is
// returned together with an error describing the corruption.
func ReadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return recoverCorrupted(path, data, err)
	}
	if s.Version == 0 {
		s.Version = 1
	}
	switch {
	case s.Version > CurrentVersion:
		slog.Warn("state file from a newer plugin, reading known fields", "path", path, "version", s.Version)
	case migrate.State.NeedsMigration(s.Version, false):
		upgraded, _, err := migrate.State.Run(data, s.Version)
		if err != nil {
			return nil, fmt.Errorf("migrating state file: %w", err)
		}
		s = State{}
		if err := json.Unmarshal(upgraded, &s); err != nil {
			return nil, fmt.Errorf("parsing migrated state file: %w", err)
		}
		s.Version = CurrentVersion
	}
	if s.Editor == "" {
		s.Editor = editorFromFileName(path)
	}
	return &s, nil
}

// WriteState atomically writes s to path, stamping the current schema version.
func WriteState(path string, s *State) error {
	s.Version = CurrentVersion
	return atomicfile.WriteJSON(path, s, 0o600)
}

// recoverCorrupted backs up an unparseable state file and writes a fresh one.
func recoverCorrupted(path string, data []byte, parseErr error) (*State, error) {
	slog.Warn("corrupted state file, backing up", "path", path, "error", parseErr)

	backup := path + ".corrupted"
	if err := os.WriteFile(backup, data, 0o600); err != nil {
		slog.Warn("failed to write backup", "path", backup, "error", err)
	}

	s := &State{Version: CurrentVersion, Editor: editorFromFileName(path)}
	if err := WriteState(path, s); err != nil {
		slog.Warn("failed to save fresh state", "path", path, "error", err)
	}
	return s, fmt.Errorf("corrupted state file (backed up to %s): %w", backup, parseErr)
}

// editorFromFileName extracts "vscode" from ".../state.vscode.json".
func editorFromFileName(path string) string {
	base := filepath.Base(path)
	if !paths.IsStateFile(base) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(base, "state."), ".json")
}

// FindLatest scans dataDir for state.<editor>.json files and returns the one
// with the most recent LastActivity. Unreadable files are skipped; a
// corrupted file still competes with its recovered state.
func FindLatest(dataDir string) (*State, error) {
	matches, err := filepath.Glob(filepath.Join(dataDir, paths.StateGlob))
	if err != nil {
		return nil, fmt.Errorf("glob state files: %w", err)
	}

	var best *State
	for _, path := range matches {
		s, readErr := ReadState(path)
		if s == nil {
			slog.Debug("skipping unreadable state file", "path", path, "error", readErr)
			continue
		}
		if best == nil || s.LastActivity > best.LastActivity {
			best = s
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no editor state in %s", dataDir)
	}
	return best, nil
}
