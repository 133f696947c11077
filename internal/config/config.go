// Package config provides configuration loading and defaults for the
// editorcord daemon.
//
// Configuration is loaded from a TOML file in the user's data directory. It
// holds the presence templates for each mode (idle, editing, debugging), the
// display toggles, privacy controls, per-editor overrides, and daemon
// behavior with sensible defaults.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
	"tools.zach/dev/editorcord/internal/atomicfile"
	"tools.zach/dev/editorcord/internal/logger"
	"tools.zach/dev/editorcord/internal/migrate"
	"tools.zach/dev/editorcord/internal/paths"
)

// DefaultDiscordAppID is the Discord application that owns the default
// language and editor images.
const DefaultDiscordAppID = "383226320970055681"

// maxButtonLabel is Discord's limit for a button label.
const maxButtonLabel = 32

// EditorDefaults holds the built-in display defaults for a known editor.
type EditorDefaults struct {
	// DisplayName is the product name used for {app_name}.
	DisplayName string
	// Icon is the Discord asset key of the editor logo.
	Icon string
}

// knownEditors maps editor IDs to their built-in defaults. Unknown editors
// still work: the ID is title-cased for the name and "app" is the icon.
var knownEditors = map[string]EditorDefaults{
	"vscode":          {DisplayName: "Visual Studio Code", Icon: "vscode"},
	"vscode-insiders": {DisplayName: "Visual Studio Code - Insiders", Icon: "vscode-insiders"},
	"vscodium":        {DisplayName: "VSCodium", Icon: "vscodium"},
	"cursor":          {DisplayName: "Cursor", Icon: "cursor"},
	"windsurf":        {DisplayName: "Windsurf", Icon: "windsurf"},
}

// editorIDRegex validates editor identifiers: lowercase alphanumeric with hyphens.
var editorIDRegex = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)

// ValidateEditorID reports whether id is a valid editor identifier.
func ValidateEditorID(id string) bool {
	return len(id) <= 48 && editorIDRegex.MatchString(id)
}

// EditorDisplayName returns the product name for an editor ID.
// Unknown editors are title-cased: "my-editor" -> "My Editor".
func EditorDisplayName(id string) string {
	if d, ok := knownEditors[id]; ok {
		return d.DisplayName
	}
	parts := strings.Split(id, "-")
	for i, p := range parts {
		if len(p) > 0 {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// EditorIcon returns the Discord asset key of an editor's logo, "app" for
// unknown editors.
func EditorIcon(id string) string {
	if d, ok := knownEditors[id]; ok {
		return d.Icon
	}
	return "app"
}

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Discord holds Discord connection settings.
	Discord DiscordConfig `toml:"discord"`
	// Display holds the presence templates and display toggles.
	Display DisplayConfig `toml:"display"`
	// Privacy holds privacy settings.
	Privacy PrivacyConfig `toml:"privacy"`
	// Behavior holds daemon behavior and idle settings.
	Behavior BehaviorConfig `toml:"behavior"`
	// Git holds git integration settings.
	Git GitConfig `toml:"git"`
	// Icons holds the language icon table source.
	Icons IconsConfig `toml:"icons"`
	// Metrics holds the Prometheus endpoint settings.
	Metrics MetricsConfig `toml:"metrics"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
	// Editors holds per-editor overrides keyed by editor ID (e.g. "cursor").
	Editors map[string]EditorConfig `toml:"editors,omitempty"`
}

// DiscordConfig holds Discord connection settings.
type DiscordConfig struct {
	// AppID is the Discord application ID for Rich Presence.
	AppID string `toml:"app_id"`
}

// DisplayConfig holds the presence templates and display toggles.
type DisplayConfig struct {
	DetailsIdling    string `toml:"details_idling"`
	DetailsEditing   string `toml:"details_editing"`
	DetailsDebugging string `toml:"details_debugging"`
	StateIdling      string `toml:"state_idling"`
	StateEditing     string `toml:"state_editing"`
	StateDebugging   string `toml:"state_debugging"`
	// NoWorkspaceText replaces workspace tokens when no workspace is open.
	NoWorkspaceText string `toml:"no_workspace_text"`
	// RemoveDetails omits the top line.
	RemoveDetails bool `toml:"remove_details"`
	// RemoveState omits the bottom line.
	RemoveState bool `toml:"remove_state"`
	// RemoveTimestamp omits the elapsed timer.
	RemoveTimestamp bool `toml:"remove_timestamp"`
	// Locale is the BCP 47 tag used to format numbers.
	Locale string `toml:"locale"`
	// FileSizeUnits are the {file_size} suffixes for bytes, KB, MB, GB, TB.
	FileSizeUnits []string `toml:"file_size_units"`
	// Assets holds image keys and hover text.
	Assets AssetsConfig `toml:"assets"`
	// Buttons holds button settings.
	Buttons ButtonsConfig `toml:"buttons"`
}

// AssetsConfig holds Discord Rich Presence asset settings.
type AssetsConfig struct {
	// IdleImage is the large image key shown when no document is active.
	IdleImage string `toml:"idle_image"`
	// DebugImage is the small image key shown while debugging.
	DebugImage string `toml:"debug_image"`
	// LargeImageIdlingText is the large image tooltip when idle.
	LargeImageIdlingText string `toml:"large_image_idling_text"`
	// LargeImageText is the language icon tooltip (supports {lang}, {Lang}, {LANG}).
	LargeImageText string `toml:"large_image_text"`
	// SmallImageText is the editor logo tooltip (supports {app_name}).
	SmallImageText string `toml:"small_image_text"`
	// SwapImages shows the editor logo large and the language icon small.
	SwapImages bool `toml:"swap_images"`
}

// ButtonsConfig holds Discord Rich Presence button settings.
type ButtonsConfig struct {
	// ShowRepoButton enables the repository button for the selected git repository.
	ShowRepoButton bool `toml:"show_repo_button"`
	// RepoButtonLabel is the label text for the repository button.
	RepoButtonLabel string `toml:"repo_button_label"`
}

// PrivacyConfig holds privacy settings.
type PrivacyConfig struct {
	// Ignore lists glob patterns; presence is suppressed when a workspace
	// folder or the active document matches.
	Ignore []string `toml:"ignore"`
	// HideFileNames replaces file and directory tokens with HiddenText.
	HideFileNames bool `toml:"hide_file_names"`
	// HiddenText is shown instead of hidden names.
	HiddenText string `toml:"hidden_text"`
}

// BehaviorConfig holds daemon behavior settings.
type BehaviorConfig struct {
	// IdleTimeoutSeconds is how long an unfocused editor stays active. 0 disables.
	IdleTimeoutSeconds int `toml:"idle_timeout_seconds"`
	// IdleMode controls idle behavior: "clear" or "idle_text".
	IdleMode string `toml:"idle_mode"`
	// DaemonIdleMinutes is the inactivity duration before the daemon exits. 0 disables.
	DaemonIdleMinutes int `toml:"daemon_idle_minutes"`
	// PollIntervalSeconds is the fallback polling interval for state changes.
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	// ReconnectIntervalSeconds is the Discord reconnect interval.
	ReconnectIntervalSeconds int `toml:"reconnect_interval_seconds"`
	// RefreshSchedule is the cron spec for icon table refresh and update checks.
	RefreshSchedule string `toml:"refresh_schedule"`
}

// GitConfig holds git integration settings.
type GitConfig struct {
	// Enabled turns on branch/repository tokens and the repository button.
	Enabled bool `toml:"enabled"`
}

// IconsConfig selects where the language icon table is loaded from.
type IconsConfig struct {
	// Source is "embedded", "url", or "file".
	Source string `toml:"source"`
	// URL overrides the default table URL for source "url".
	URL string `toml:"url,omitempty"`
	// File is the local table path for source "file".
	File string `toml:"file,omitempty"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	// Listen is the address serving /metrics (e.g. "127.0.0.1:9477"). Empty disables.
	Listen string `toml:"listen"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fail).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// EditorConfig holds per-editor overrides.
type EditorConfig struct {
	// AppID overrides the Discord application ID for this editor.
	AppID string `toml:"app_id,omitempty"`
	// SmallImage overrides the editor logo asset key.
	SmallImage string `toml:"small_image,omitempty"`
	// SmallText overrides the editor logo tooltip.
	SmallText string `toml:"small_text,omitempty"`
	// DetailsEditing overrides display.details_editing for this editor.
	DetailsEditing string `toml:"details_editing,omitempty"`
	// StateEditing overrides display.state_editing for this editor.
	StateEditing string `toml:"state_editing,omitempty"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Discord: DiscordConfig{
			AppID: DefaultDiscordAppID,
		},
		Display: DisplayConfig{
			DetailsIdling:    "Idling",
			DetailsEditing:   "Editing {file_name}",
			DetailsDebugging: "Debugging {file_name}",
			StateIdling:      "Idling",
			StateEditing:     "Workspace: {workspace}",
			StateDebugging:   "Debugging: {workspace}",
			NoWorkspaceText:  "No workspace.",
			Locale:           "en-US",
			FileSizeUnits:    []string{"", "KB", "MB", "GB", "TB"},
			Assets: AssetsConfig{
				IdleImage:            "idle",
				DebugImage:           "debug",
				LargeImageIdlingText: "Idling",
				LargeImageText:       "Editing a {LANG} file",
				SmallImageText:       "{app_name}",
			},
			Buttons: ButtonsConfig{
				ShowRepoButton:  true,
				RepoButtonLabel: "View Repository",
			},
		},
		Privacy: PrivacyConfig{
			Ignore:     []string{},
			HiddenText: "a file",
		},
		Behavior: BehaviorConfig{
			IdleTimeoutSeconds:       300,
			IdleMode:                 "clear",
			DaemonIdleMinutes:        60,
			PollIntervalSeconds:      5,
			ReconnectIntervalSeconds: 15,
			RefreshSchedule:          "@daily",
		},
		Git: GitConfig{
			Enabled: true,
		},
		Icons: IconsConfig{
			Source: "embedded",
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ExampleConfig returns a Config suitable for generating config.default.toml.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil || v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses the configuration file from dataDir/config.toml.
// If the file doesn't exist, returns DefaultConfig.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, paths.ConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version := PeekVersion(data)
	migrated := migrate.Config.NeedsMigration(version, false)
	if migrated {
		if backupErr := os.WriteFile(path+".bak", data, 0o644); backupErr != nil {
			slog.Warn("failed to write config backup", "error", backupErr)
		}
		data, _, err = migrate.Config.Run(data, version)
		if err != nil {
			return nil, fmt.Errorf("migrate config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if migrated {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}
	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	switch c.Behavior.IdleMode {
	case "clear", "idle_text":
	default:
		return fmt.Errorf("invalid idle_mode %q: must be clear or idle_text", c.Behavior.IdleMode)
	}

	if !logger.ValidLevel(c.Log.Level) {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, error, or fail", c.Log.Level)
	}

	if c.Behavior.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll_interval_seconds must be > 0, got %d", c.Behavior.PollIntervalSeconds)
	}
	if c.Behavior.ReconnectIntervalSeconds <= 0 {
		return fmt.Errorf("reconnect_interval_seconds must be > 0, got %d", c.Behavior.ReconnectIntervalSeconds)
	}
	if c.Behavior.DaemonIdleMinutes < 0 {
		return fmt.Errorf("daemon_idle_minutes must be >= 0, got %d", c.Behavior.DaemonIdleMinutes)
	}
	if c.Behavior.IdleTimeoutSeconds < 0 {
		return fmt.Errorf("idle_timeout_seconds must be >= 0, got %d", c.Behavior.IdleTimeoutSeconds)
	}

	if c.Behavior.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.Behavior.RefreshSchedule); err != nil {
			return fmt.Errorf("invalid refresh_schedule %q: %w", c.Behavior.RefreshSchedule, err)
		}
	}

	if _, err := language.Parse(c.Display.Locale); err != nil {
		return fmt.Errorf("invalid display.locale %q: %w", c.Display.Locale, err)
	}
	if len(c.Display.FileSizeUnits) == 0 {
		return fmt.Errorf("display.file_size_units must not be empty")
	}

	if c.Display.Buttons.ShowRepoButton {
		if n := len([]rune(c.Display.Buttons.RepoButtonLabel)); n == 0 || n > maxButtonLabel {
			return fmt.Errorf("repo_button_label must be 1-%d characters, got %d", maxButtonLabel, n)
		}
	}

	switch c.Icons.Source {
	case "embedded":
	case "url":
		if c.Icons.URL != "" {
			u, err := url.Parse(c.Icons.URL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("invalid icons.url %q: must be an http(s) URL", c.Icons.URL)
			}
		}
	case "file":
		if c.Icons.File == "" {
			return fmt.Errorf("icons.file is required when icons.source is \"file\"")
		}
	default:
		return fmt.Errorf("invalid icons.source %q: must be embedded, url, or file", c.Icons.Source)
	}

	for _, pattern := range c.Privacy.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid privacy.ignore pattern %q", pattern)
		}
	}

	for id := range c.Editors {
		if !ValidateEditorID(id) {
			return fmt.Errorf("invalid editor id %q: must be lowercase alphanumeric with hyphens", id)
		}
	}
	return nil
}

// ///////////////////////////////////////////////
// Editor Profiles
// ///////////////////////////////////////////////

// EditorProfile is the effective per-editor configuration with built-in
// defaults and [EditorConfig] overrides applied.
type EditorProfile struct {
	ID         string
	Name       string
	AppID      string
	SmallImage string
	SmallText  string
	// DetailsEditing and StateEditing are the editing-mode templates.
	DetailsEditing string
	StateEditing   string
}

// Editor returns the effective profile for an editor ID.
func (c *Config) Editor(id string) EditorProfile {
	p := EditorProfile{
		ID:             id,
		Name:           EditorDisplayName(id),
		AppID:          c.Discord.AppID,
		SmallImage:     EditorIcon(id),
		SmallText:      c.Display.Assets.SmallImageText,
		DetailsEditing: c.Display.DetailsEditing,
		StateEditing:   c.Display.StateEditing,
	}
	ec, ok := c.Editors[id]
	if !ok {
		return p
	}
	if ec.AppID != "" {
		p.AppID = ec.AppID
	}
	if ec.SmallImage != "" {
		p.SmallImage = ec.SmallImage
	}
	if ec.SmallText != "" {
		p.SmallText = ec.SmallText
	}
	if ec.DetailsEditing != "" {
		p.DetailsEditing = ec.DetailsEditing
	}
	if ec.StateEditing != "" {
		p.StateEditing = ec.StateEditing
	}
	return p
}

// ///////////////////////////////////////////////
// Privacy Helpers
// ///////////////////////////////////////////////

// IsIgnored reports whether any of the given paths matches a configured
// ignore pattern. Paths are matched with forward slashes on every platform.
func (c *Config) IsIgnored(paths ...string) bool {
	for _, p := range paths {
		if p == "" {
			continue
		}
		p = filepath.ToSlash(p)
		for _, pattern := range c.Privacy.Ignore {
			matched, err := doublestar.Match(pattern, p)
			if err != nil {
				slog.Warn("invalid glob pattern", "pattern", pattern, "error", err)
				continue
			}
			if matched {
				return true
			}
		}
	}
	return false
}
