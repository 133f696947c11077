package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"tools.zach/dev/editorcord/internal/editor"
	"tools.zach/dev/editorcord/internal/presence"
)

// newPreviewCmd returns the command that renders the payload for the latest
// editor state without talking to Discord.
func newPreviewCmd(dir func() DataPaths) *cobra.Command {
	var asJSON bool
	var editorID string

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the presence the daemon would publish",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dp := dir()
			cfg, err := loadConfig(dp)
			if err != nil {
				return err
			}

			var s *editor.State
			if editorID != "" {
				s, err = editor.ReadState(dp.StateForEditor(editorID))
			} else {
				s, err = editor.FindLatest(dp.Root)
			}
			if s == nil {
				return fmt.Errorf("no editor state: %w", err)
			}

			b := newBuilder(cfg, loadIcons(cmd.Context(), cfg, dp), nil)
			p := b.Build(cmd.Context(), s, nil)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			}
			printPayload(out, s, p)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the payload as JSON")
	cmd.Flags().StringVar(&editorID, "editor", "", "Preview this editor instead of the most recent one")
	return cmd
}

// printPayload writes a human-readable rendering of p.
func printPayload(w io.Writer, s *editor.State, p *presence.Payload) {
	label := color.New(color.FgCyan).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(w, "%s %s (%s)\n", label("editor:"), s.Editor, presence.ModeOf(s))
	fmt.Fprintf(w, "%s %s\n", label("details:"), orDash(p.Details))
	fmt.Fprintf(w, "%s %s\n", label("state:"), orDash(p.State))
	if p.StartTimestamp != 0 {
		fmt.Fprintf(w, "%s %s\n", label("since:"), time.Unix(p.StartTimestamp, 0).Format(time.Kitchen))
	}
	fmt.Fprintf(w, "%s %s %s\n", label("large image:"), color.GreenString(orDash(p.LargeImageKey)), dim(p.LargeImageText))
	fmt.Fprintf(w, "%s %s %s\n", label("small image:"), color.GreenString(orDash(p.SmallImageKey)), dim(p.SmallImageText))
	for _, btn := range p.Buttons {
		fmt.Fprintf(w, "%s [%s] %s\n", label("button:"), btn.Label, color.BlueString(btn.URL))
	}
}

func orDash(s string) string {
	if s == "" {
		return color.YellowString("-")
	}
	return s
}
