package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	unreadOnly bool
	markRead   bool
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List notifications",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		notes, err := a.service.Notifications(cmd.Context(), unreadOnly)
		if err != nil {
			return err
		}

		for _, n := range notes {
			marker := " "
			if !n.Read {
				marker = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %-8s %s\n", marker, n.Kind, n.Message)

			if markRead && !n.Read {
				if _, err := a.service.MarkNotificationRead(cmd.Context(), n.ID); err != nil {
					return err
				}
			}
		}
		return nil
	},
}

func init() {
	notificationsCmd.Flags().BoolVar(&unreadOnly, "unread", false, "only unread notifications")
	notificationsCmd.Flags().BoolVar(&markRead, "mark-read", false, "mark listed notifications as read")

	rootCmd.AddCommand(notificationsCmd)
}
