package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"chatrelay/internal/service"
)

var topicCmd = &cobra.Command{
	Use:   "topic",
	Short: "Manage conversation topics",
}

var topicResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Archive the current topic of a user and start a new one",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		key, err := keyFromFlag(userID)
		if err != nil {
			return err
		}

		return withChatService(cmd.Context(), func(svc *service.ChatService) error {
			id, err := svc.ResetTopic(cmd.Context(), key)
			if err != nil {
				return err
			}
			if id == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "no active topic")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archived as %s\n", id)
			return nil
		})
	},
}

func init() {
	topicResetCmd.Flags().String("user", "", "platform user id")
	topicCmd.AddCommand(topicResetCmd)
	rootCmd.AddCommand(topicCmd)
}
