package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"chatrelay/internal/service"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect or change the model selected by a user",
}

var modelShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the model currently used by a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		key, err := keyFromFlag(userID)
		if err != nil {
			return err
		}

		return withChatService(cmd.Context(), func(svc *service.ChatService) error {
			m, err := svc.CurrentModel(cmd.Context(), key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m)
			return nil
		})
	},
}

var modelSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Switch the model of a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		name, _ := cmd.Flags().GetString("model")
		key, err := keyFromFlag(userID)
		if err != nil {
			return err
		}
		if !GetConfig().KnownModel(name) {
			log.Warn().Str("model", name).Msg("model is not configured, the default model will be stored")
		}

		return withChatService(cmd.Context(), func(svc *service.ChatService) error {
			m, err := svc.SetModel(cmd.Context(), key, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "switched to %s\n", m)
			return nil
		})
	},
}

func init() {
	modelShowCmd.Flags().String("user", "", "platform user id")
	modelSetCmd.Flags().String("user", "", "platform user id")
	modelSetCmd.Flags().String("model", "", "model name")
	modelCmd.AddCommand(modelShowCmd, modelSetCmd)
	rootCmd.AddCommand(modelCmd)
}
