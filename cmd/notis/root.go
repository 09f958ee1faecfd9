// notis is the command-line client for the notisd notification daemon.
package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "notis",
		Short:         "Control the notisd notification daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newSendCommand(ctx))
	rootCmd.AddCommand(newActiveCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newDismissCommand(ctx))
	rootCmd.AddCommand(newActionCommand(ctx))
	rootCmd.AddCommand(newDNDCommand(ctx))
	rootCmd.AddCommand(newPanelCommand(ctx))
	rootCmd.AddCommand(newWatchersCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newEventsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newDaemonCommand(ctx))

	return rootCmd
}
