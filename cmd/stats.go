package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/pennh4i/tentacool/internal/analysis"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize jailbreak rates across logged prompts and models",
	Long: `Compute totals, the overall jailbreak rate, and the five most and least
jailbreaking prompts and models from up to 1000 logged prompts and
responses. Outputs JSON; rates are percentages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			st, err := analysis.Load(ctx, a.client)
			if err != nil {
				return userError(err)
			}
			return printJSON(st)
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
