package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func notificationsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"n"},
		Short:   "List and acknowledge notifications",
	}

	cmd.AddCommand(
		notificationsListCmd(flags),
		notificationsReadCmd(flags),
		notificationsReadAllCmd(flags),
	)
	return cmd
}

func notificationsListCmd(flags *globalFlags) *cobra.Command {
	var unreadOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := requireSession(client); err != nil {
				return err
			}

			if err := client.Notifications.FetchAll(cmd.Context()); err != nil {
				return err
			}
			for _, n := range client.Notifications.List() {
				if unreadOnly && n.IsRead {
					continue
				}
				mark := " "
				if !n.IsRead {
					mark = "\033[33m●\033[0m"
				}
				fmt.Printf("%s %s  %-14s %s\n", mark, n.ID, n.Type, n.Title)
				if n.Message != "" {
					info("   %s", n.Message)
				}
			}

			c := client.Notifications.Counts()
			fmt.Println()
			info("%d unread, %d read", c.Unread, c.Read)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&unreadOnly, "unread", "u", false, "Only show unread notifications")
	return cmd
}

func notificationsReadCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>...",
		Short: "Mark notifications as read",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := requireSession(client); err != nil {
				return err
			}

			if err := client.Notifications.FetchAll(cmd.Context()); err != nil {
				return err
			}
			for _, id := range args {
				if err := client.Notifications.MarkAsRead(cmd.Context(), id); err != nil {
					return fmt.Errorf("mark %s: %w", id, err)
				}
				success("Marked %s as read", id)
			}
			return nil
		},
	}
}

func notificationsReadAllCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := requireSession(client); err != nil {
				return err
			}

			if err := client.Notifications.MarkAllAsRead(cmd.Context()); err != nil {
				return err
			}
			success("All notifications marked as read")
			return nil
		},
	}
}
