// Package presence turns editor state into a Rich Presence payload.
//
// Building a payload happens in two layers. The [Substituter] fills the
// placeholder tokens that need live document, selection, file system or git
// values. The [Builder] picks the template for the current [Mode], folds in
// the file and workspace tokens it resolves itself, and assembles the image,
// timestamp and button fields.
package presence

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"tools.zach/dev/editorcord/internal/editor"
	"tools.zach/dev/editorcord/internal/git"
)

// FakeEmpty renders as blank in Discord while still counting as text.
const FakeEmpty = "\u200b\u200b"

// Sentinels used when git information is unavailable.
const (
	UnknownBranch   = "Unknown"
	UnknownRepoName = "Unknown"
)

// Tokens filled by the [Substituter].
const (
	TokenEmpty         = "{empty}"
	TokenTotalLines    = "{total_lines}"
	TokenCurrentLine   = "{current_line}"
	TokenCurrentColumn = "{current_column}"
	TokenFileSize      = "{file_size}"
	TokenGitBranch     = "{git_branch_name}"
	TokenGitRepoName   = "{git_repo_name}"
	TokenLangLower     = "{lang}"
	TokenLangTitle     = "{Lang}"
	TokenLangUpper     = "{LANG}"
)

// Tokens filled by the [Builder].
const (
	TokenFileName           = "{file_name}"
	TokenDirName            = "{dir_name}"
	TokenFullDirName        = "{full_dir_name}"
	TokenWorkspace          = "{workspace}"
	TokenWorkspaceFolder    = "{workspace_folder}"
	TokenWorkspaceAndFolder = "{workspace_and_folder}"
	TokenAppName            = "{app_name}"
)

// DefaultFileSizeUnits are the suffixes for bytes, KB, MB, GB and TB.
var DefaultFileSizeUnits = []string{"", "KB", "MB", "GB", "TB"}

// ///////////////////////////////////////////////
// Substituter
// ///////////////////////////////////////////////

// Values are the live inputs of a substitution.
type Values struct {
	// Document is the active document; nil leaves document tokens untouched.
	Document *editor.Document
	// Selection is the active cursor position.
	Selection *editor.Position
	// Icon is the resolved language icon key used by the {lang} tokens.
	Icon string
	// Repos is the git integration's view. A nil or empty slice means no
	// integration or no repository.
	Repos []git.Repository
}

// Substituter replaces the value tokens of a template.
type Substituter struct {
	Stat    editor.Stater
	Printer *message.Printer
	// Units are the file size suffixes indexed by the number of divisions
	// by 1000. Defaults to [DefaultFileSizeUnits].
	Units []string
}

// Substitute returns raw with every recognized token replaced. Unrecognized
// tokens are left in place. The document is stat'ed only when raw contains
// {file_size}; a stat error is returned with an empty string.
func (s *Substituter) Substitute(ctx context.Context, raw string, v Values) (string, error) {
	out := raw
	if !strings.Contains(out, "{") {
		return out, nil
	}
	p := s.printer()

	out = strings.ReplaceAll(out, TokenEmpty, FakeEmpty)

	if v.Document != nil {
		if strings.Contains(out, TokenTotalLines) {
			out = strings.ReplaceAll(out, TokenTotalLines, p.Sprintf("%d", v.Document.LineCount))
		}
		if v.Selection != nil {
			if strings.Contains(out, TokenCurrentLine) {
				out = strings.ReplaceAll(out, TokenCurrentLine, p.Sprintf("%d", v.Selection.Line+1))
			}
			if strings.Contains(out, TokenCurrentColumn) {
				out = strings.ReplaceAll(out, TokenCurrentColumn, p.Sprintf("%d", v.Selection.Character+1))
			}
		}
		if strings.Contains(out, TokenFileSize) {
			size, err := s.stater().Size(ctx, v.Document.FileName)
			if err != nil {
				return "", err
			}
			out = strings.ReplaceAll(out, TokenFileSize, FormatFileSize(p, size, s.units()))
		}
	}

	if strings.Contains(out, TokenGitBranch) || strings.Contains(out, TokenGitRepoName) {
		branch, repo := gitNames(v.Repos)
		out = strings.ReplaceAll(out, TokenGitBranch, branch)
		out = strings.ReplaceAll(out, TokenGitRepoName, repo)
	}

	if v.Icon != "" {
		out = strings.ReplaceAll(out, TokenLangLower, ToLower(v.Icon))
		out = strings.ReplaceAll(out, TokenLangTitle, ToTitle(v.Icon))
		out = strings.ReplaceAll(out, TokenLangUpper, ToUpper(v.Icon))
	}
	return out, nil
}

func (s *Substituter) printer() *message.Printer {
	if s.Printer != nil {
		return s.Printer
	}
	return message.NewPrinter(language.AmericanEnglish)
}

func (s *Substituter) stater() editor.Stater {
	if s.Stat != nil {
		return s.Stat
	}
	return editor.FileStater{}
}

func (s *Substituter) units() []string {
	if len(s.Units) > 0 {
		return s.Units
	}
	return DefaultFileSizeUnits
}

// gitNames returns the branch and repository name of the selected
// repository. Without one both are the unknown sentinels; a detached HEAD
// or missing remote yields FakeEmpty.
func gitNames(repos []git.Repository) (branch, repo string) {
	sel, ok := git.Selected(repos)
	if !ok {
		return UnknownBranch, UnknownRepoName
	}
	branch, repo = sel.Head, git.RepoName(sel.FetchURL())
	if branch == "" {
		branch = FakeEmpty
	}
	if repo == "" {
		repo = FakeEmpty
	}
	return branch, repo
}

// ///////////////////////////////////////////////
// Formatting Helpers
// ///////////////////////////////////////////////

// FormatFileSize scales size by 1000 while it exceeds 1000 and there is a
// larger unit. A scaled value is printed with two decimals, an unscaled one
// as an integer. Both use the printer's locale.
func FormatFileSize(p *message.Printer, size int64, units []string) string {
	value := float64(size)
	divisions := 0
	for value > 1000 && divisions < len(units)-1 {
		value /= 1000
		divisions++
	}
	suffix := ""
	if divisions < len(units) {
		suffix = units[divisions]
	}
	if divisions == 0 {
		return p.Sprintf("%d", size) + suffix
	}
	return p.Sprintf("%.2f", value) + suffix
}

// ToLower lowercases s.
func ToLower(s string) string { return strings.ToLower(s) }

// ToUpper uppercases s.
func ToUpper(s string) string { return strings.ToUpper(s) }

// ToTitle lowercases s and uppercases its first letter.
func ToTitle(s string) string {
	s = strings.ToLower(s)
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

// pad extends non-empty text shorter than two characters with FakeEmpty.
// Discord rejects one-character text fields.
func pad(s string) string {
	if s == "" || utf8.RuneCountInString(s) >= 2 {
		return s
	}
	return s + FakeEmpty
}
