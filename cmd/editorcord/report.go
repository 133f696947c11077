package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"tools.zach/dev/editorcord/internal/config"
	"tools.zach/dev/editorcord/internal/editor"
)

// reportOptions are the flags of the report command.
type reportOptions struct {
	editor    string
	appName   string
	file      string
	language  string
	lines     int
	line      int
	column    int
	debugging bool
	focused   bool
	stopped   bool
	workspace string
	folders   []string
	stdin     bool
}

// newReportCmd returns the command editor plugins call to publish their
// state. The daemon picks the file up through its watcher.
func newReportCmd(dir func() DataPaths) *cobra.Command {
	var opts reportOptions
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write an editor state file",
		Long: "Write the state file for an editor. Plugins call this on focus, document,\n" +
			"selection and debug session changes. Line and column are one-based.\n" +
			"With --stdin the state is read as JSON instead of from flags.",
		Example: "  editorcord report --editor vscode --file /src/app/main.go --language go \\\n" +
			"    --lines 120 --line 10 --column 4 --folder app=/src/app",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dp := dir()
			if err := os.MkdirAll(dp.Root, 0o755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
			var s *editor.State
			var err error
			if opts.stdin {
				s, err = stateFromJSON(cmd.InOrStdin())
				if err == nil && opts.editor != "" {
					s.Editor = opts.editor
				}
			} else {
				s, err = opts.state()
			}
			if err != nil {
				return err
			}
			if err := validateState(s); err != nil {
				return err
			}
			if s.LastActivity == 0 {
				s.LastActivity = time.Now().Unix()
			}
			return editor.WriteState(dp.StateForEditor(s.Editor), s)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.editor, "editor", "", "Editor id, e.g. vscode, cursor, windsurf")
	f.StringVar(&opts.appName, "app-name", "", "Editor product name shown for {app_name}")
	f.StringVar(&opts.file, "file", "", "Absolute path of the active document")
	f.StringVar(&opts.language, "language", "", "Language id of the active document")
	f.IntVar(&opts.lines, "lines", 0, "Line count of the active document")
	f.IntVar(&opts.line, "line", 1, "Cursor line (one-based)")
	f.IntVar(&opts.column, "column", 1, "Cursor column (one-based)")
	f.BoolVar(&opts.debugging, "debugging", false, "A debug session is active")
	f.BoolVar(&opts.focused, "focused", true, "The editor window has focus")
	f.BoolVar(&opts.stopped, "stopped", false, "The editor is shutting down")
	f.StringVar(&opts.workspace, "workspace", "", "Workspace name")
	f.StringArrayVar(&opts.folders, "folder", nil, "Workspace folder as PATH or NAME=PATH (repeatable)")
	f.BoolVar(&opts.stdin, "stdin", false, "Read the state as JSON from stdin")
	return cmd
}

// state builds an editor state from the flags.
func (o reportOptions) state() (*editor.State, error) {
	if o.editor == "" {
		return nil, fmt.Errorf("--editor is required")
	}
	s := &editor.State{
		Editor:    o.editor,
		AppName:   o.appName,
		Debugging: o.debugging,
		Focused:   o.focused,
		Stopped:   o.stopped,
		Workspace: editor.Workspace{Name: o.workspace},
	}
	for _, spec := range o.folders {
		folder, err := parseFolder(spec)
		if err != nil {
			return nil, err
		}
		s.Workspace.Folders = append(s.Workspace.Folders, folder)
	}
	if o.file != "" {
		if !filepath.IsAbs(o.file) {
			return nil, fmt.Errorf("--file must be absolute: %s", o.file)
		}
		if o.line < 1 || o.column < 1 {
			return nil, fmt.Errorf("--line and --column are one-based")
		}
		s.Document = &editor.Document{FileName: o.file, LanguageID: o.language, LineCount: o.lines}
		s.Selection = &editor.Position{Line: o.line - 1, Character: o.column - 1}
	}
	return s, nil
}

// parseFolder parses PATH or NAME=PATH. The name defaults to the base name.
func parseFolder(spec string) (editor.Folder, error) {
	name, path, ok := strings.Cut(spec, "=")
	if !ok {
		path = spec
		name = filepath.Base(spec)
	}
	if path == "" || name == "" {
		return editor.Folder{}, fmt.Errorf("invalid --folder %q", spec)
	}
	return editor.Folder{Name: name, Path: path}, nil
}

// validateState rejects states the daemon could not render sensibly,
// whichever way they were reported.
func validateState(s *editor.State) error {
	if !config.ValidateEditorID(s.Editor) {
		return fmt.Errorf("invalid editor id %q", s.Editor)
	}
	if d := s.Document; d != nil {
		if !filepath.IsAbs(d.FileName) {
			return fmt.Errorf("document path must be absolute: %q", d.FileName)
		}
		if d.LineCount < 0 {
			return fmt.Errorf("negative line count %d", d.LineCount)
		}
	}
	if p := s.Selection; p != nil && (p.Line < 0 || p.Character < 0) {
		return fmt.Errorf("negative selection %d:%d", p.Line, p.Character)
	}
	for _, f := range s.Workspace.Folders {
		if !filepath.IsAbs(f.Path) {
			return fmt.Errorf("workspace folder path must be absolute: %q", f.Path)
		}
	}
	return nil
}

// stateFromJSON decodes a state file body.
func stateFromJSON(r io.Reader) (*editor.State, error) {
	var s editor.State
	if err := json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing state from stdin: %w", err)
	}
	return &s, nil
}
