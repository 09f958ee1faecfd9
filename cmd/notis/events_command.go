package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"notisd/internal/events"
	"notisd/internal/ipc"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream daemon events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			socket, err := ctx.eventSocketPath()
			if err != nil {
				return err
			}

			streamCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			out := cmd.OutOrStdout()
			encoder := json.NewEncoder(out)
			err = ipc.StreamEvents(streamCtx, socket, func(evt events.Event) error {
				if jsonFlag {
					return encoder.Encode(evt)
				}
				fmt.Fprintln(out, formatEvent(evt))
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				return wrapDialError(err, socket)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Emit raw JSON events")
	return cmd
}

func formatEvent(evt events.Event) string {
	ts := evt.Timestamp.Local().Format("15:04:05")
	var detail string
	switch evt.Type {
	case events.TypeNotificationPosted:
		detail = fmt.Sprintf("id=%d", evt.NotificationID)
	case events.TypeNotificationClosed:
		detail = fmt.Sprintf("id=%d reason=%s", evt.NotificationID, evt.Reason)
	case events.TypeActionInvoked:
		detail = fmt.Sprintf("id=%d key=%s", evt.NotificationID, evt.ActionKey)
	case events.TypeDNDChanged:
		detail = fmt.Sprintf("active=%t mode=%s", evt.DNDActive, evt.DNDMode)
	case events.TypeWatcherUpdated:
		detail = fmt.Sprintf("watcher=%s value=%q stale=%t", evt.Watcher, evt.Value, evt.Stale)
	case events.TypePanelVisibility:
		detail = fmt.Sprintf("visible=%t", evt.Visible)
	}
	return strings.TrimSpace(fmt.Sprintf("%s %-20s %s", ts, evt.Type, detail))
}
