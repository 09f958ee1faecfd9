package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"notisd/internal/ipc"
)

func newDNDCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dnd",
		Short: "Control do-not-disturb",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return dndStatus(cmd, ctx)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "on",
		Short: "Enable do-not-disturb",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetDND(true)
				if err != nil {
					return err
				}
				printDND(cmd, resp)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "off",
		Short: "Disable do-not-disturb",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetDND(false)
				if err != nil {
					return err
				}
				printDND(cmd, resp)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "toggle",
		Short: "Flip do-not-disturb",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ToggleDND()
				if err != nil {
					return err
				}
				printDND(cmd, resp)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show do-not-disturb state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return dndStatus(cmd, ctx)
		},
	})

	return cmd
}

func dndStatus(cmd *cobra.Command, ctx *commandContext) error {
	return ctx.withClient(func(client *ipc.Client) error {
		resp, err := client.DNDStatus()
		if err != nil {
			return err
		}
		printDND(cmd, resp)
		return nil
	})
}

func printDND(cmd *cobra.Command, resp *ipc.DNDResponse) {
	state := "off"
	if resp.Active {
		state = "on"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Do-not-disturb: %s (mode: %s)\n", state, resp.Mode)
}

func newPanelCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "panel",
		Short: "Report panel visibility to the daemon",
	}

	report := func(cmd *cobra.Command, visible bool) {
		if visible {
			fmt.Fprintln(cmd.OutOrStdout(), "Panel: visible")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Panel: hidden")
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Mark the panel visible and resume watchers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetPanel(true)
				if err != nil {
					return err
				}
				report(cmd, resp.Visible)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "hide",
		Short: "Mark the panel hidden and suspend watchers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetPanel(false)
				if err != nil {
					return err
				}
				report(cmd, resp.Visible)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "toggle",
		Short: "Flip panel visibility",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TogglePanel()
				if err != nil {
					return err
				}
				report(cmd, resp.Visible)
				return nil
			})
		},
	})

	return cmd
}
