package presence

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"tools.zach/dev/editorcord/internal/config"
	"tools.zach/dev/editorcord/internal/editor"
	"tools.zach/dev/editorcord/internal/git"
	"tools.zach/dev/editorcord/internal/icons"
)

// ///////////////////////////////////////////////
// Mode
// ///////////////////////////////////////////////

// Mode selects the template set for a payload.
type Mode int

const (
	ModeIdle Mode = iota
	ModeEditing
	ModeDebugging
)

func (m Mode) String() string {
	switch m {
	case ModeEditing:
		return "editing"
	case ModeDebugging:
		return "debugging"
	default:
		return "idle"
	}
}

// ModeOf derives the mode from editor state. Without an active document the
// mode is idle, even while a debug session runs.
func ModeOf(s *editor.State) Mode {
	switch {
	case s == nil || s.Document == nil:
		return ModeIdle
	case s.Debugging:
		return ModeDebugging
	default:
		return ModeEditing
	}
}

// ///////////////////////////////////////////////
// Payload
// ///////////////////////////////////////////////

// Payload is the presence record handed to the transport. Empty fields are
// omitted on the wire.
type Payload struct {
	Details        string   `json:"details,omitempty"`
	State          string   `json:"state,omitempty"`
	StartTimestamp int64    `json:"startTimestamp,omitempty"`
	EndTimestamp   int64    `json:"endTimestamp,omitempty"`
	LargeImageKey  string   `json:"largeImageKey,omitempty"`
	LargeImageText string   `json:"largeImageText,omitempty"`
	SmallImageKey  string   `json:"smallImageKey,omitempty"`
	SmallImageText string   `json:"smallImageText,omitempty"`
	PartyID        string   `json:"partyId,omitempty"`
	PartySize      int      `json:"partySize,omitempty"`
	PartyMax       int      `json:"partyMax,omitempty"`
	JoinSecret     string   `json:"joinSecret,omitempty"`
	MatchSecret    string   `json:"matchSecret,omitempty"`
	SpectateSecret string   `json:"spectateSecret,omitempty"`
	Instance       bool     `json:"instance,omitempty"`
	Buttons        []Button `json:"buttons,omitempty"`
}

// Button is a clickable link on the presence card.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Hash returns a SHA-256 hex digest of the payload for duplicate
// suppression. Returns an empty string for nil payloads.
func (p *Payload) Hash() string {
	if p == nil {
		return ""
	}
	data, err := json.Marshal(p)
	if err != nil {
		slog.Warn("failed to hash payload", "error", err)
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// ///////////////////////////////////////////////
// Builder
// ///////////////////////////////////////////////

// Builder assembles payloads. Host lookups are explicit collaborators so
// every input of a payload can be substituted in tests.
type Builder struct {
	Config *config.Config
	// Icons resolves the language icon; defaults to the embedded table.
	Icons icons.Resolver
	// Git is the optional git integration. Nil behaves as not installed.
	Git git.Integration
	// Stat sizes documents for {file_size}; defaults to [editor.FileStater].
	Stat editor.Stater
	// Now defaults to time.Now.
	Now func() time.Time
	// Printer formats numbers; defaults to the configured locale.
	Printer *message.Printer
	// OnRenderError, when set, is called for each substitution that fell
	// back to the raw template.
	OnRenderError func(err error)
}

// NewBuilder returns a Builder for cfg with a printer for the configured
// locale. An unparseable locale falls back to American English.
func NewBuilder(cfg *config.Config, res icons.Resolver, integ git.Integration) *Builder {
	tag, err := language.Parse(cfg.Display.Locale)
	if err != nil {
		slog.Warn("invalid locale, using en-US", "locale", cfg.Display.Locale, "error", err)
		tag = language.AmericanEnglish
	}
	return &Builder{
		Config:  cfg,
		Icons:   res,
		Git:     integ,
		Stat:    editor.FileStater{},
		Now:     time.Now,
		Printer: message.NewPrinter(tag),
	}
}

// Build returns the payload for s. It never fails: every lookup falls back
// to a sentinel or empty value. previous carries the start timestamp of the
// ongoing session.
func (b *Builder) Build(ctx context.Context, s *editor.State, previous *Payload) *Payload {
	if s == nil {
		s = &editor.State{}
	}
	cfg := b.config()
	d := cfg.Display
	profile := cfg.Editor(s.Editor)
	appName := s.AppName
	if appName == "" {
		appName = profile.Name
	}
	mode := ModeOf(s)

	p := &Payload{}
	if !d.RemoveTimestamp {
		if previous != nil && previous.StartTimestamp != 0 {
			p.StartTimestamp = previous.StartTimestamp
		} else {
			p.StartTimestamp = b.now().Unix()
		}
	}

	r := &render{b: b, s: s, appName: appName}
	if mode != ModeIdle {
		r.icon = b.icons().Resolve(s.Document.FileName, s.Document.LanguageID)
		r.repos = b.repositories(ctx, s)
	}

	details, state := b.templates(mode, profile)
	if !d.RemoveDetails {
		p.Details = pad(r.text(ctx, details))
	}
	if !d.RemoveState {
		p.State = pad(r.text(ctx, state))
	}

	// Images.
	p.SmallImageKey = profile.SmallImage
	if s.Debugging {
		p.SmallImageKey = d.Assets.DebugImage
	}
	p.SmallImageText = pad(r.fold(profile.SmallText))
	if mode == ModeIdle {
		p.LargeImageKey = d.Assets.IdleImage
		p.LargeImageText = pad(r.fold(d.Assets.LargeImageIdlingText))
	} else {
		p.LargeImageKey = r.icon
		text, _ := (&Substituter{Printer: b.printer()}).Substitute(ctx, d.Assets.LargeImageText, Values{Icon: r.icon})
		p.LargeImageText = padTo2(r.fold(text))
	}
	if d.Assets.SwapImages {
		p.LargeImageKey, p.SmallImageKey = p.SmallImageKey, p.LargeImageKey
		p.LargeImageText, p.SmallImageText = p.SmallImageText, p.LargeImageText
	}

	if d.Buttons.ShowRepoButton && mode != ModeIdle {
		if sel, ok := git.Selected(r.repos); ok {
			if u := git.WebURL(sel.FetchURL()); u != "" {
				p.Buttons = []Button{{Label: d.Buttons.RepoButtonLabel, URL: u}}
			}
		}
	}
	return p
}

// templates returns the details and state templates for mode.
func (b *Builder) templates(mode Mode, profile config.EditorProfile) (details, state string) {
	d := b.config().Display
	switch mode {
	case ModeDebugging:
		return d.DetailsDebugging, d.StateDebugging
	case ModeEditing:
		return profile.DetailsEditing, profile.StateEditing
	default:
		return d.DetailsIdling, d.StateIdling
	}
}

// repositories queries the git integration, treating errors as no
// repositories.
func (b *Builder) repositories(ctx context.Context, s *editor.State) []git.Repository {
	if b.Git == nil || !b.config().Git.Enabled {
		return nil
	}
	repos, err := b.Git.Repositories(ctx, s)
	if err != nil {
		slog.Debug("git lookup failed", "error", err)
		return nil
	}
	return repos
}

func (b *Builder) config() *config.Config {
	if b.Config != nil {
		return b.Config
	}
	return config.DefaultConfig()
}

func (b *Builder) icons() icons.Resolver {
	if b.Icons != nil {
		return b.Icons
	}
	return icons.Embedded()
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *Builder) printer() *message.Printer {
	if b.Printer != nil {
		return b.Printer
	}
	return message.NewPrinter(language.AmericanEnglish)
}

// ///////////////////////////////////////////////
// Rendering
// ///////////////////////////////////////////////

// render holds the per-build lookups shared by all text fields.
type render struct {
	b       *Builder
	s       *editor.State
	appName string
	icon    string
	repos   []git.Repository
}

// text renders a details or state template. With a document the
// substitution engine runs first; a failure there is logged and the raw
// template continues without its substitutions.
func (r *render) text(ctx context.Context, raw string) string {
	out := raw
	if r.s.Document != nil {
		sub := &Substituter{Stat: r.b.Stat, Printer: r.b.printer(), Units: r.b.config().Display.FileSizeUnits}
		res, err := sub.Substitute(ctx, raw, Values{
			Document:  r.s.Document,
			Selection: r.s.Selection,
			Icon:      r.icon,
			Repos:     r.repos,
		})
		if err != nil {
			slog.Warn("template substitution failed", "template", raw, "error", err)
			if r.b.OnRenderError != nil {
				r.b.OnRenderError(err)
			}
		} else {
			out = res
		}
	}
	return r.fold(out)
}

// fold replaces the file, workspace and app tokens.
func (r *render) fold(raw string) string {
	if !strings.Contains(raw, "{") {
		return raw
	}
	cfg := r.b.config()
	noWorkspace := cfg.Display.NoWorkspaceText
	ws := r.s.Workspace

	workspaceName := ws.DisplayName()
	var folder editor.Folder
	var inFolder bool
	if r.s.Document != nil {
		folder, inFolder = ws.FolderFor(r.s.Document.FileName)
	} else if len(ws.Folders) > 0 {
		folder, inFolder = ws.Folders[0], true
	}
	if workspaceName == "" {
		if inFolder {
			workspaceName = folder.Name
		} else if len(ws.Folders) > 0 {
			workspaceName = ws.Folders[0].Name
		}
	}

	folderName := noWorkspace
	if inFolder {
		folderName = folder.Name
	}

	pairs := []string{
		TokenEmpty, FakeEmpty,
		TokenAppName, r.appName,
		TokenWorkspace, orDefault(workspaceName, noWorkspace),
		TokenWorkspaceFolder, folderName,
		TokenWorkspaceAndFolder, orDefault(workspaceAndFolder(ws.DisplayName(), folder.Name), noWorkspace),
	}

	if doc := r.s.Document; doc != nil {
		fileName := filepath.Base(doc.FileName)
		dirName := filepath.Base(filepath.Dir(doc.FileName))
		fullDirName := noWorkspace
		if inFolder {
			fullDirName = folder.Name
			if relDir := filepath.Dir(ws.RelativePath(doc.FileName)); relDir != "." {
				fullDirName = filepath.Join(folder.Name, relDir)
			}
		}
		if cfg.Privacy.HideFileNames {
			fileName, dirName, fullDirName = cfg.Privacy.HiddenText, cfg.Privacy.HiddenText, cfg.Privacy.HiddenText
		}
		pairs = append(pairs,
			TokenFileName, fileName,
			TokenDirName, dirName,
			TokenFullDirName, fullDirName,
		)
	}
	return strings.NewReplacer(pairs...).Replace(raw)
}

// workspaceAndFolder joins a workspace and folder name, collapsing
// duplicates and empty parts.
func workspaceAndFolder(workspace, folder string) string {
	switch {
	case workspace == "" || workspace == folder:
		return folder
	case folder == "":
		return workspace
	default:
		return workspace + " - " + folder
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// padTo2 pads text to the two characters Discord requires, using FakeEmpty
// so that an empty tooltip still renders blank.
func padTo2(s string) string {
	if s == "" {
		return FakeEmpty
	}
	return pad(s)
}
