package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"notisd/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}

				dnd := "off"
				if resp.DNDActive {
					dnd = fmt.Sprintf("on (%s)", resp.DNDMode)
				}
				panel := "hidden"
				if resp.PanelVisible {
					panel = "visible"
				}
				watchers := "running"
				if resp.WatchersPaused {
					watchers = "paused"
				}
				persistence := resp.DatabasePath
				if persistence == "" {
					persistence = "disabled"
				}

				rows := [][]string{
					{"PID", strconv.Itoa(resp.PID)},
					{"Uptime", (time.Duration(resp.UptimeSeconds) * time.Second).String()},
					{"Config", resp.ConfigPath},
					{"Socket", resp.SocketPath},
					{"Events", resp.EventSocketPath},
					{"Persistence", persistence},
					{"Do-not-disturb", dnd},
					{"Panel", panel},
					{"Watchers", watchers},
					{"Open", strconv.Itoa(resp.Counts.Open)},
					{"Critical open", strconv.Itoa(resp.Counts.CriticalOpen)},
					{"Stored", strconv.Itoa(resp.Counts.Total)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Field", "Value"},
					rows,
					[]columnAlignment{alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}
