package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"notisd/internal/ipc"
)

func newDismissCommand(ctx *commandContext) *cobra.Command {
	var allFlag bool

	cmd := &cobra.Command{
		Use:   "dismiss [ID]",
		Short: "Dismiss a notification, or all with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if allFlag {
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := client.DismissAll()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Dismissed %d notifications\n", resp.Dismissed)
					return nil
				})
			}
			if len(args) == 0 {
				return errors.New("notification id required (or use --all)")
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				return client.Dismiss(id)
			})
		},
	}

	cmd.Flags().BoolVar(&allFlag, "all", false, "Dismiss every open notification")
	return cmd
}

func newActionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "action ID KEY",
		Short: "Invoke a notification action",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				return client.InvokeAction(id, args[1])
			})
		},
	}
}

func parseID(arg string) (uint32, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid notification id %q", arg)
	}
	return uint32(id), nil
}
