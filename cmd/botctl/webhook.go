package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newWebhookCmd(newBot botFactory) *cobra.Command {
	webhookCmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook",
	}

	var secret string
	setCmd := &cobra.Command{
		Use:   "set <url>",
		Short: "Register the webhook URL with Telegram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := newBot()
			if err != nil {
				return err
			}
			defer b.Shutdown()

			if err := b.SetWebhook(args[0], secret); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Webhook set to %s\n", args[0])
			return nil
		},
	}
	setCmd.Flags().StringVar(&secret, "secret", os.Getenv("TELEGRAM_WEBHOOK_SECRET"), "secret token Telegram sends with every delivery")

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show the current webhook status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := newBot()
			if err != nil {
				return err
			}
			defer b.Shutdown()

			info, err := b.WebhookInfo()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if info.URL == "" {
				fmt.Fprintln(out, "No webhook set")
			} else {
				fmt.Fprintf(out, "URL: %s\n", info.URL)
			}
			fmt.Fprintf(out, "Pending updates: %d\n", info.PendingUpdateCount)
			if info.LastErrorMessage != "" {
				at := time.Unix(int64(info.LastErrorDate), 0).UTC().Format(time.RFC3339)
				fmt.Fprintf(out, "Last error: %s (%s)\n", info.LastErrorMessage, at)
			}
			return nil
		},
	}

	var dropPending bool
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := newBot()
			if err != nil {
				return err
			}
			defer b.Shutdown()

			if err := b.DeleteWebhook(dropPending); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Webhook deleted")
			return nil
		},
	}
	deleteCmd.Flags().BoolVar(&dropPending, "drop-pending", false, "drop updates queued on Telegram's side")

	webhookCmd.AddCommand(setCmd, infoCmd, deleteCmd)
	return webhookCmd
}
