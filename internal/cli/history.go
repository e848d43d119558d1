package cli

import (
	"github.com/spf13/cobra"

	"adwatcher/internal/app"
)

var historyCmd = &cobra.Command{
	Use:   "history <key>",
	Short: "Display one listing's price history and projection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.HistoryOptions{
			Key: args[0],
		}

		return getApp().History(cmd.Context(), opts)
	},
}
