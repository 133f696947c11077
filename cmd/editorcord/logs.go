package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"tools.zach/dev/editorcord/internal/logger"
)

// newLogsCmd returns the command printing the end of the daemon log.
func newLogsCmd(dir func() DataPaths) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the last lines of the daemon log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tail, err := logger.ReadTail(dir().Log(), lines)
			if err != nil {
				return fmt.Errorf("reading log: %w", err)
			}
			if tail != "" {
				fmt.Fprintln(cmd.OutOrStdout(), tail)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to print")
	return cmd
}
