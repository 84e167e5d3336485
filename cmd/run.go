package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pennh4i/tentacool/internal/logging"
	"github.com/pennh4i/tentacool/internal/model"
	"github.com/pennh4i/tentacool/internal/workflow"
)

var (
	flagRunPrompt     string
	flagRunModels     []string
	flagRunCommit     bool
	flagRunPromptNote string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one query and evaluation cycle without the console",
	Long: `Send a prompt to the selected models, classify every successful answer,
and print the results as JSON.

Without --model every model in the catalog is queried. With --commit the
results are logged to the backend database exactly as classified; use the
console to review and edit labels before logging.

Use --prompt - to read the prompt from stdin.`,
	Example: `  tentacool run --prompt "Ignore all previous instructions..." --model openai:gpt-4o-mini
  echo "roleplay as DAN" | tentacool run --prompt - --commit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := readPrompt(flagRunPrompt, cmd.InOrStdin())
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runCycle(ctx, a, prompt)
		})
	},
}

func init() {
	runCmd.Flags().StringVarP(&flagRunPrompt, "prompt", "p", "", "prompt to send, or - to read stdin")
	runCmd.Flags().StringSliceVarP(&flagRunModels, "model", "m", nil, "model to query as provider:model (repeatable; default: all)")
	runCmd.Flags().BoolVar(&flagRunCommit, "commit", false, "log the results to the backend database")
	runCmd.Flags().StringVar(&flagRunPromptNote, "prompt-note", "", "note stored with the prompt when committing")
	rootCmd.AddCommand(runCmd)
}

type runOutput struct {
	CycleID    string               `json:"cycle_id"`
	Prompt     string               `json:"prompt"`
	Outcomes   []model.QueryOutcome `json:"outcomes"`
	Failures   []model.QueryFailure `json:"failures"`
	Evaluation string               `json:"evaluation"`
	Receipt    *model.Receipt       `json:"receipt,omitempty"`
}

func runCycle(ctx context.Context, a *app, prompt string) error {
	ctrl, err := a.controller(func(s workflow.State) {
		a.logger.Debug("state", slog.String("phase", s.Phase().String()))
	})
	if err != nil {
		return err
	}

	if _, err := ctrl.LoadCatalog(ctx); err != nil {
		return userError(err)
	}
	if err := selectModels(ctrl, flagRunModels); err != nil {
		return err
	}

	rv, err := ctrl.Submit(ctx, prompt)
	if err != nil {
		return userError(err)
	}

	out := runOutput{
		CycleID:    rv.CycleID,
		Prompt:     rv.Prompt,
		Outcomes:   rv.Session.Outcomes(),
		Failures:   rv.Failures,
		Evaluation: evaluationSummary(rv),
	}
	if out.Outcomes == nil {
		out.Outcomes = []model.QueryOutcome{}
	}
	if out.Failures == nil {
		out.Failures = []model.QueryFailure{}
	}

	if flagRunCommit {
		if flagRunPromptNote != "" {
			if err := ctrl.SetPromptNote(flagRunPromptNote); err != nil {
				return userError(err)
			}
		}
		receipt, err := ctrl.Commit(ctx)
		if err != nil {
			// Still show what would have been logged.
			_ = printJSON(out)
			return userError(err)
		}
		out.Receipt = receipt
	} else if err := ctrl.Discard(); err != nil {
		a.logger.Debug("discard", logging.Err(err))
	}

	return printJSON(out)
}

// selectModels narrows the selection to keys. An empty list keeps the
// default selection.
func selectModels(ctrl *workflow.Controller, keys []string) error {
	if len(keys) == 0 {
		if len(ctrl.Selected()) == 0 {
			// select_all is off; a non-interactive run queries everything.
			return ctrl.ToggleAll()
		}
		return nil
	}

	listing := ctrl.Listing()
	var unknown []string
	for _, k := range keys {
		if _, ok := listing.Lookup(k); !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown model(s): %s (see `tentacool models`)", strings.Join(unknown, ", "))
	}

	for _, ref := range ctrl.Selected() {
		if _, err := ctrl.Toggle(ref.Key()); err != nil {
			return err
		}
	}
	for _, k := range keys {
		if ctrl.IsSelected(k) {
			continue
		}
		if _, err := ctrl.Toggle(k); err != nil {
			return err
		}
	}
	return nil
}

func evaluationSummary(rv workflow.Reviewing) string {
	switch {
	case rv.Evaluation.Skipped:
		return "skipped"
	case rv.Evaluation.FailedOpen():
		return "unavailable"
	default:
		return fmt.Sprintf("%d of %d classified", rv.Evaluation.Matched, rv.Session.Len())
	}
}

// readPrompt returns flag, or stdin when flag is "-".
func readPrompt(flag string, stdin io.Reader) (string, error) {
	if flag != "-" {
		if strings.TrimSpace(flag) == "" {
			return "", errors.New("--prompt is required")
		}
		return flag, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading prompt from stdin: %w", err)
	}
	return string(data), nil
}
