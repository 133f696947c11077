// Package main implements editorcord, a daemon that reads the state files
// written by editor plugins and publishes Discord Rich Presence updates.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/cobra"
	"tools.zach/dev/editorcord/internal/paths"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is stamped by cmd/buildver through -ldflags "-X main.version=...".
// Plain go build leaves it at "dev" and [resolveVersion] falls back to the
// VCS settings the toolchain embeds.
var version = "dev"

func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	return devVersion(info.Settings)
}

// devVersion renders "dev+<short hash>[.dirty]" from embedded build
// settings, or plain "dev" when they carry no revision.
func devVersion(settings []debug.BuildSetting) string {
	vcs := map[string]string{}
	for _, s := range settings {
		vcs[s.Key] = s.Value
	}
	rev := vcs["vcs.revision"]
	if rev == "" {
		return "dev"
	}
	v := "dev+" + rev[:min(7, len(rev))]
	if vcs["vcs.modified"] == "true" {
		v += ".dirty"
	}
	return v
}

// ///////////////////////////////////////////////
// Default Data Directory
// ///////////////////////////////////////////////

// defaultDataDir returns ~/.editorcord, or ./.editorcord when the home
// directory cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

// ///////////////////////////////////////////////
// Commands
// ///////////////////////////////////////////////

// newRootCmd builds the command tree. Without a subcommand the daemon runs.
func newRootCmd() *cobra.Command {
	var dataDir string

	root := &cobra.Command{
		Use:           paths.BinaryName,
		Short:         "Discord Rich Presence for your editor",
		Long:          "editorcord reads the state files written by editor plugins and publishes\nDiscord Rich Presence for the most recently active editor.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       resolveVersion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), DataPaths{Root: dataDir}, cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "Data directory for config, state, and logs")

	dirFn := func() DataPaths { return DataPaths{Root: dataDir} }
	root.AddCommand(
		newRunCmd(dirFn),
		newReportCmd(dirFn),
		newPreviewCmd(dirFn),
		newLogsCmd(dirFn),
		newVersionCmd(),
	)
	return root
}

func newRunCmd(dir func() DataPaths) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the presence daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), dir(), cmd.ErrOrStderr())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), paths.BinaryName, resolveVersion())
		},
	}
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
