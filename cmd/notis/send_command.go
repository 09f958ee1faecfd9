package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"notisd/internal/ipc"
)

func newSendCommand(ctx *commandContext) *cobra.Command {
	var (
		appFlag      string
		iconFlag     string
		urgencyFlag  string
		categoryFlag string
		timeoutFlag  int32
		replacesFlag uint32
		transient    bool
		actionFlags  []string
	)

	cmd := &cobra.Command{
		Use:   "send SUMMARY [BODY]",
		Short: "Post a notification",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := ""
			if len(args) > 1 {
				body = args[1]
			}

			hints := map[string]any{}
			switch strings.ToLower(strings.TrimSpace(urgencyFlag)) {
			case "", "normal":
			case "low":
				hints["urgency"] = 0
			case "critical":
				hints["urgency"] = 2
			default:
				return fmt.Errorf("invalid urgency %q (low, normal, critical)", urgencyFlag)
			}
			if categoryFlag != "" {
				hints["category"] = categoryFlag
			}
			if transient {
				hints["transient"] = true
			}

			var actions []string
			for _, spec := range actionFlags {
				key, label, found := strings.Cut(spec, "=")
				if !found || strings.TrimSpace(key) == "" {
					return fmt.Errorf("invalid action %q, expected key=label", spec)
				}
				actions = append(actions, key, label)
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Notify(ipc.NotifyRequest{
					App:        appFlag,
					ReplacesID: replacesFlag,
					Icon:       iconFlag,
					Summary:    args[0],
					Body:       body,
					Actions:    actions,
					Hints:      hints,
					TimeoutMs:  timeoutFlag,
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&appFlag, "app", "a", "notis", "Application name")
	cmd.Flags().StringVar(&iconFlag, "icon", "", "Icon name or path")
	cmd.Flags().StringVarP(&urgencyFlag, "urgency", "u", "normal", "Urgency (low, normal, critical)")
	cmd.Flags().StringVar(&categoryFlag, "category", "", "Notification category")
	cmd.Flags().Int32VarP(&timeoutFlag, "timeout", "t", -1, "Timeout in milliseconds (-1 uses the server default, 0 never expires)")
	cmd.Flags().Uint32VarP(&replacesFlag, "replaces", "r", 0, "Replace the notification with this id")
	cmd.Flags().BoolVar(&transient, "transient", false, "Skip history after closure")
	cmd.Flags().StringArrayVar(&actionFlags, "action", nil, "Action as key=label (repeatable)")

	return cmd
}
