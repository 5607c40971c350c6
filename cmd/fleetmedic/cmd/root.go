// Package cmd wires the fleetmedic CLI: config loading, the action catalog,
// and the dispatch, batch, health-loop, and menu subcommands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fleetmedic/fleetmedic/internal/aggregate"
	"github.com/fleetmedic/fleetmedic/internal/config"
	"github.com/fleetmedic/fleetmedic/internal/ui/summary"
)

var (
	configFile string
	jsonOutput bool
	noColor    bool

	// Loaded configuration, available to every subcommand.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "fleetmedic",
	Short: "Fleet health monitoring and remediation",
	Long: `Fleetmedic keeps a fleet of machines healthy: it dispatches maintenance
actions from a built-in catalog across target hosts over SSH, runs ordered
action batches on the local machine, and drives a periodic health-check loop
that remediates problems as it finds them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configFile != "" {
			cfg, err = config.Load(configFile)
		} else {
			cfg, err = config.LoadDefault()
		}
		if err != nil {
			return err
		}
		if cfg.Defaults.Output == "json" {
			jsonOutput = true
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/fleetmedic/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output results as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newDispatchCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newActionsCmd())
	rootCmd.AddCommand(newHealthLoopCmd())
	rootCmd.AddCommand(newMenuCmd())
}

// newFormatter builds a summary formatter honoring the output flags.
func newFormatter() *summary.Formatter {
	color := !noColor && term.IsTerminal(int(os.Stdout.Fd()))
	return summary.NewFormatter(jsonOutput, color)
}

// printSummary renders a summary to stdout in the selected format and turns
// a run with failures into a non-zero exit.
func printSummary(f *summary.Formatter, s *aggregate.Summary) error {
	if f.JSON {
		out, err := f.FormatJSON(s)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		fmt.Print(f.Format(s))
	}

	if s.Err != nil {
		return s.Err
	}
	if s.Failed > 0 {
		return fmt.Errorf("%d of %d units failed", s.Failed, s.Total)
	}
	return nil
}

// promptPassword reads a password from the terminal without echo.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
