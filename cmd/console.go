package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pennh4i/tentacool/internal/console"
)

var (
	flagTheme   string
	flagLogFile string
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive console to query, review and log jailbreak attempts",
	Long: `Launch the interactive console.

Pick models (space toggles one, a toggles all), type a prompt and press
Enter. Every selected model is queried in one batch and each answer is
classified. In the review screen, space flips the jailbroken label, n edits
a response note, p edits the prompt note, c logs everything to the
database and x discards the results.

Logs are written to --log-file so they do not disturb the screen.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole(cmd)
	},
}

func init() {
	consoleCmd.Flags().StringVar(&flagTheme, "theme", envOrDefault("TENTACOOL_THEME", "dark"), "color theme: dark, light")
	consoleCmd.Flags().StringVar(&flagLogFile, "log-file", envOrDefault("TENTACOOL_LOG_FILE", filepath.Join(os.TempDir(), "tentacool-console.log")), "file receiving console logs")
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel() // cancels in-flight requests when the console exits

	logFile, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	a, err := newApp(ctx, logFile)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	ctrl, err := a.controller(nil)
	if err != nil {
		return err
	}

	tui := &console.TUI{
		Workflow: ctrl,
		Theme:    console.ThemeByName(flagTheme),
	}
	return tui.Run(ctx)
}
