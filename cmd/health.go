package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backend is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			payload, err := a.client.Health(ctx)
			if err != nil {
				return userError(err)
			}
			return printJSON(struct {
				URL    string          `json:"url"`
				Health json.RawMessage `json:"health"`
			}{URL: a.client.URL("/health"), Health: payload})
		})
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
