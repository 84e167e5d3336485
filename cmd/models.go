package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/pennh4i/tentacool/internal/catalog"
	"github.com/pennh4i/tentacool/internal/model"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models every provider offers",
	Long: `List the providers known to the backend and the models each one offers.

Providers whose model listing fails are reported under "omitted" instead of
failing the whole listing. Outputs JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			cat := catalog.New(a.client, catalog.Options{
				Parallel: a.cfg.Parallel,
				Logger:   a.logger,
				Metrics:  a.metrics,
			})
			listing, err := cat.ListModels(ctx)
			if err != nil {
				return userError(err)
			}

			type omitted struct {
				Provider string `json:"provider"`
				Error    string `json:"error"`
			}
			out := struct {
				Providers []string         `json:"providers"`
				Models    []model.ModelRef `json:"models"`
				Omitted   []omitted        `json:"omitted,omitempty"`
			}{
				Providers: listing.Providers,
				Models:    listing.All(),
			}
			for _, o := range listing.Omitted {
				out.Omitted = append(out.Omitted, omitted{Provider: o.Provider, Error: o.Err.Error()})
			}
			return printJSON(out)
		})
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
