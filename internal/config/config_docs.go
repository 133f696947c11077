package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// tokenHelp lists the placeholders accepted by the display templates.
const tokenHelp = `Available tokens:
  {file_name} {dir_name} {full_dir_name}
  {workspace} {workspace_folder} {workspace_and_folder}
  {lang} {Lang} {LANG}               language icon key in three casings
  {total_lines} {current_line} {current_column} {file_size}
  {git_branch_name} {git_repo_name}  "Unknown" without a repository
  {app_name} {empty}`

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "display.assets.idle_image")
// to their [FieldDoc] entries.
var ConfigDocs = map[string]FieldDoc{
	// ── Root ──────────────────────────────────────────────────────
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// ── Discord ──────────────────────────────────────────────────
	"discord.app_id": {
		Comment: "Application ID for Discord Rich Presence.\nOverride with your own Discord app to upload custom images.",
	},

	// ── Display ──────────────────────────────────────────────────
	"display.details_idling": {
		Comment: "Templates for the presence card, per mode.\ndetails = top line, state = bottom line.\nIdling applies when no document is active, debugging while a debug session runs.\n" + tokenHelp,
	},
	"display.details_editing":   {},
	"display.details_debugging": {},
	"display.state_idling":      {},
	"display.state_editing":     {},
	"display.state_debugging":   {},
	"display.no_workspace_text": {
		Comment: "Replaces workspace tokens when no folder is open.",
	},
	"display.remove_details": {
		Comment: "Omit parts of the card.",
	},
	"display.remove_state":     {},
	"display.remove_timestamp": {},
	"display.locale": {
		Comment: "Locale (BCP 47) for number formatting in {total_lines} and {file_size}.",
		Alternatives: []string{
			`locale = "de-DE"`,
		},
	},
	"display.file_size_units": {
		Comment: "Suffixes for {file_size}, indexed by the number of divisions by 1000.",
		Alternatives: []string{
			`file_size_units = [" bytes", " kB", " MB", " GB", " TB"]`,
		},
	},

	// ── Assets ───────────────────────────────────────────────────
	"display.assets.idle_image": {
		Comment: "Discord image keys (must match assets uploaded to your Discord app).\nThe large image is the language icon; the small one is the editor logo,\nor debug_image while debugging.",
	},
	"display.assets.debug_image": {},
	"display.assets.large_image_idling_text": {
		Comment: "Hover text for the images. large_image_text supports {lang}, {Lang}, {LANG};\nsmall_image_text supports {app_name}.",
	},
	"display.assets.large_image_text": {},
	"display.assets.small_image_text": {},
	"display.assets.swap_images": {
		Comment: "Show the editor logo as the large image and the language icon small.",
	},

	// ── Buttons ──────────────────────────────────────────────────
	"display.buttons.show_repo_button": {
		Comment: "Show a button linking to the selected git repository's first remote.\nSSH remotes are converted to https.",
	},
	"display.buttons.repo_button_label": {},

	// ── Privacy ──────────────────────────────────────────────────
	"privacy.ignore": {
		Comment: "Paths where no presence is shown. Glob patterns are matched against\nworkspace folders and the active document, with forward slashes.",
		Alternatives: []string{
			`# ignore = [`,
			`#   "/home/me/work/secret-project/**",`,
			`#   "C:/Users/me/company/**",`,
			`# ]`,
		},
	},
	"privacy.hide_file_names": {
		Comment: "Replace {file_name}, {dir_name} and {full_dir_name} with hidden_text.",
	},
	"privacy.hidden_text": {},

	// ── Behavior ─────────────────────────────────────────────────
	"behavior.idle_timeout_seconds": {
		Comment: "Seconds an unfocused editor keeps its presence. 0 = never go idle.",
	},
	"behavior.idle_mode": {
		Comment: "What to show when idle. Options: \"clear\", \"idle_text\"\n  clear: hide presence entirely (default)\n  idle_text: show the idling templates",
		Alternatives: []string{
			`idle_mode = "idle_text"`,
		},
	},
	"behavior.daemon_idle_minutes": {
		Comment: "Minutes without editor activity before the daemon exits. 0 = never.",
	},
	"behavior.poll_interval_seconds": {
		Comment: "How often to poll for state changes (seconds). fsnotify is primary,\nthis is the fallback interval.",
	},
	"behavior.reconnect_interval_seconds": {
		Comment: "Discord reconnect interval (seconds)",
	},
	"behavior.refresh_schedule": {
		Comment: "Cron schedule for refreshing the icon table and checking for updates.\nEmpty disables.",
		Alternatives: []string{
			`refresh_schedule = "0 */6 * * *"`,
		},
	},

	// ── Git ──────────────────────────────────────────────────────
	"git.enabled": {
		Comment: "Read branch and remote information from local repositories.\nWhen disabled, {git_branch_name} and {git_repo_name} show \"Unknown\".",
	},

	// ── Icons ────────────────────────────────────────────────────
	"icons.source": {
		Comment: "Where the language icon table comes from. Options: \"embedded\", \"url\", \"file\"\n  embedded: the table built into the binary (default)\n  url: fetch from url (or the project repository), cached on disk\n  file: read from a local JSON file",
		Alternatives: []string{
			`source = "url"`,
			`source = "file"`,
		},
	},
	"icons.url": {
		Alternatives: []string{
			`# url = "https://example.com/languages.json"`,
		},
	},
	"icons.file": {
		Alternatives: []string{
			`# file = "/home/me/.editorcord/languages.json"`,
		},
	},

	// ── Metrics ──────────────────────────────────────────────────
	"metrics.listen": {
		Comment: "Serve Prometheus metrics on this address. Empty disables.",
		Alternatives: []string{
			`# listen = "127.0.0.1:9477"`,
		},
	},

	// ── Log ──────────────────────────────────────────────────────
	"log.level": {
		Comment: "Log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\", \"fail\"",
	},
	"log.max_size_mb": {
		Comment: "Rotate the log file after this many megabytes.",
	},

	// ── Editors ──────────────────────────────────────────────────
	"editors": {
		Comment: "Per-editor overrides keyed by editor id (vscode, vscode-insiders, vscodium, cursor, windsurf, ...).\n# [editors.cursor]\n# app_id = \"123456789012345678\"\n# small_image = \"cursor\"\n# small_text = \"Cursor\"\n# details_editing = \"Vibing on {file_name}\"\n# state_editing = \"{workspace}\"",
	},
}
