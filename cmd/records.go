package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pennh4i/tentacool/internal/analysis"
	"github.com/pennh4i/tentacool/internal/backend"
	"github.com/pennh4i/tentacool/internal/model"
)

var (
	flagRecLimit      int
	flagRecOffset     int
	flagRecSearch     string
	flagRecLLM        string
	flagRecJailbroken string
	flagRecPromptID   string
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Browse logged prompts and responses",
}

var recordsPromptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List logged prompts",
	Long: `List logged prompts as JSON. --search keeps prompts whose text or note
contains the given text, ignoring case; it filters the fetched page.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			prompts, err := a.client.ListPrompts(ctx, backend.PromptQuery{Limit: flagRecLimit, Offset: flagRecOffset})
			if err != nil {
				return userError(err)
			}
			prompts = analysis.Search(prompts, flagRecSearch)
			if prompts == nil {
				prompts = []model.StoredPrompt{}
			}
			return printJSON(prompts)
		})
	},
}

var recordsResponsesCmd = &cobra.Command{
	Use:   "responses",
	Short: "List logged responses",
	Long:  `List logged responses as JSON, filtered by model, label or prompt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := backend.ResponseQuery{
			LLM:      flagRecLLM,
			PromptID: flagRecPromptID,
			Limit:    flagRecLimit,
			Offset:   flagRecOffset,
		}
		if flagRecJailbroken != "" {
			jb, err := strconv.ParseBool(flagRecJailbroken)
			if err != nil {
				return fmt.Errorf("--jailbroken must be true or false: %w", err)
			}
			q.Jailbroken = &jb
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			responses, err := a.client.ListResponses(ctx, q)
			if err != nil {
				return userError(err)
			}
			if responses == nil {
				responses = []model.StoredResponse{}
			}
			return printJSON(responses)
		})
	},
}

var recordsPromptCmd = &cobra.Command{
	Use:   "prompt <id>",
	Short: "Show every logged response to one prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			responses, err := a.client.PromptResponses(ctx, args[0])
			if err != nil {
				return userError(err)
			}
			if responses == nil {
				responses = []model.StoredResponse{}
			}
			return printJSON(responses)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{recordsPromptsCmd, recordsResponsesCmd} {
		c.Flags().IntVar(&flagRecLimit, "limit", 100, "maximum number of records")
		c.Flags().IntVar(&flagRecOffset, "offset", 0, "number of records to skip")
	}
	recordsPromptsCmd.Flags().StringVar(&flagRecSearch, "search", "", "case-insensitive text to look for in prompt text and note")
	recordsResponsesCmd.Flags().StringVar(&flagRecLLM, "llm", "", "only responses from this provider:model")
	recordsResponsesCmd.Flags().StringVar(&flagRecJailbroken, "jailbroken", "", "only responses with this label (true or false)")
	recordsResponsesCmd.Flags().StringVar(&flagRecPromptID, "prompt-id", "", "only responses to this prompt")

	recordsCmd.AddCommand(recordsPromptsCmd, recordsResponsesCmd, recordsPromptCmd)
	rootCmd.AddCommand(recordsCmd)
}
