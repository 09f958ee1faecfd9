package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"notisd/internal/ipc"
)

func newActiveCommand(ctx *commandContext) *cobra.Command {
	var fullFlag bool

	cmd := &cobra.Command{
		Use:   "active",
		Short: "List open notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Active()
				if err != nil {
					return err
				}
				if len(resp.Notifications) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No open notifications")
					return nil
				}

				headers := []string{"ID", "App", "Urgency", "Summary", "Age"}
				aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight}
				if fullFlag {
					headers = []string{"ID", "App", "Urgency", "Summary", "Body", "Category", "Actions", "Age"}
					aligns = []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight}
				}

				rows := make([][]string, 0, len(resp.Notifications))
				for _, n := range resp.Notifications {
					row := []string{
						strconv.FormatUint(uint64(n.ID), 10),
						n.App,
						n.Urgency,
						summaryCell(n),
					}
					if fullFlag {
						keys := make([]string, 0, len(n.Actions))
						for _, a := range n.Actions {
							keys = append(keys, a.Key)
						}
						row = append(row, n.Body, n.Category, strings.Join(keys, ", "))
					}
					row = append(row, formatAge(n.CreatedAt))
					rows = append(rows, row)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&fullFlag, "full", false, "Show body, category, and action keys")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limitFlag int
	var clearFlag bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored notifications, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if clearFlag {
					resp, err := client.ClearHistory()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", resp.Removed)
					return nil
				}

				resp, err := client.History(limitFlag)
				if err != nil {
					return err
				}
				if len(resp.Entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "History is empty")
					return nil
				}
				rows := make([][]string, 0, len(resp.Entries))
				for _, e := range resp.Entries {
					state := "open"
					if e.Closed {
						state = e.Reason
					}
					rows = append(rows, []string{
						strconv.FormatUint(uint64(e.Notification.ID), 10),
						e.Notification.App,
						e.Notification.Urgency,
						summaryCell(e.Notification),
						state,
						formatAge(e.Notification.CreatedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "App", "Urgency", "Summary", "State", "Age"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limitFlag, "limit", "n", 50, "Maximum entries to show (0 for all)")
	cmd.Flags().BoolVar(&clearFlag, "clear", false, "Remove closed entries instead of listing")
	return cmd
}

func newWatchersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watchers",
		Short: "Show panel watcher values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Watchers()
				if err != nil {
					return err
				}
				if len(resp.Results) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No watchers configured")
					return nil
				}
				rows := make([][]string, 0, len(resp.Results))
				for _, r := range resp.Results {
					state := "ok"
					if r.Stale {
						state = "stale"
					}
					rows = append(rows, []string{
						r.Name,
						r.Value,
						state,
						formatAge(r.UpdatedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Name", "Value", "State", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func summaryCell(n ipc.NotificationSummary) string {
	s := n.Summary
	if n.Count > 1 {
		s = fmt.Sprintf("%s (x%d)", s, n.Count)
	}
	const max = 60
	if len(s) > max {
		s = strings.TrimSpace(s[:max-1]) + "…"
	}
	return s
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
