package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"chatrelay/internal/model"
	"chatrelay/internal/service"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect conversation history",
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the recent turns of the current topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")
		key, err := keyFromFlag(userID)
		if err != nil {
			return err
		}

		return withChatService(cmd.Context(), func(svc *service.ChatService) error {
			turns, err := svc.History(cmd.Context(), key, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user key: %s\n", key)
			for _, t := range turns {
				fmt.Fprintf(out, "[%s] %s\n", t.Role, describeTurn(t))
			}
			return nil
		})
	},
}

// describeTurn 文本原样输出，图片输出其 URL
func describeTurn(t model.Turn) string {
	var s string
	for _, c := range t.Content {
		switch c.Type {
		case model.ContentTypeImageURL:
			s += "<image " + c.ImageURL + ">"
		default:
			s += c.Text
		}
	}
	return s
}

func init() {
	historyShowCmd.Flags().String("user", "", "platform user id")
	historyShowCmd.Flags().Int("limit", 3, "number of recent question/answer pairs")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}
