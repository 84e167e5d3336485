package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/pennh4i/tentacool/internal/journal"
)

var flagHistoryLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent commits from the local journal",
	Long: `Show the most recent commits recorded in the local journal, newest first,
with the prompt and response ids the backend assigned. Outputs JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if a.journal == nil {
				return errors.New("the local journal is disabled or unavailable (see the journal setting)")
			}
			entries, err := a.journal.Recent(ctx, flagHistoryLimit)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []journal.Entry{}
			}
			return printJSON(entries)
		})
	},
}

func init() {
	historyCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 20, "number of entries")
	rootCmd.AddCommand(historyCmd)
}
