package cmd

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fleetmedic/fleetmedic/internal/batch"
	"github.com/fleetmedic/fleetmedic/internal/catalog"
	"github.com/fleetmedic/fleetmedic/internal/notify"
	"github.com/fleetmedic/fleetmedic/internal/shell"
)

func newBatchCmd() *cobra.Command {
	var (
		stepList        string
		elevated        bool
		askPass         bool
		continueOnError bool
	)

	cmd := &cobra.Command{
		Use:   "batch [name]",
		Short: "Run a batch of actions on the local machine",
		Long: `Batch runs an ordered list of catalog actions one at a time on the local
machine: either a batch predefined in the config by name, or an ad-hoc
list given as --steps action1,action2,... By default a failed step aborts
the remainder; --continue-on-error keeps going. With no name and no
--steps, the configured batches are listed.`,
		Example: `  fleetmedic batch nightly-maintenance
  fleetmedic batch --steps dns-flush,disk-cleanup --continue-on-error`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				steps      []batch.Step
				contOnFail bool
			)
			switch {
			case stepList != "":
				if len(args) > 0 {
					return fmt.Errorf("use a batch name or --steps, not both")
				}
				var err error
				steps, err = parseSteps(stepList)
				if err != nil {
					return err
				}
			case len(args) == 1:
				b, ok := cfg.Batches[args[0]]
				if !ok {
					return fmt.Errorf("batch %q not found", args[0])
				}
				steps = make([]batch.Step, len(b.Steps))
				for i, s := range b.Steps {
					steps[i] = batch.Step{Action: s.Action, Params: s.Params}
				}
				contOnFail = b.ContinueOnError
			default:
				return listBatches(cmd)
			}

			sudoPassword := ""
			if askPass {
				var err error
				sudoPassword, err = promptPassword("sudo password: ")
				if err != nil {
					return err
				}
				elevated = true
			}

			if cmd.Flags().Changed("continue-on-error") {
				contOnFail = continueOnError
			}

			r := batch.New(catalog.Builtin(), shell.NewRunner(sudoPassword),
				batch.WithNotifier(notify.FromConfig(cfg.Notify)),
				batch.WithElevation(elevated),
				batch.WithContinueOnError(contOnFail),
			)

			return printSummary(newFormatter(), r.Run(cmd.Context(), steps))
		},
	}

	cmd.Flags().StringVar(&stepList, "steps", "", "comma-separated action ids to run as an ad-hoc batch")
	cmd.Flags().BoolVar(&elevated, "elevated", false, "allow actions that require elevation (sudo)")
	cmd.Flags().BoolVar(&askPass, "ask-pass", false, "prompt for the sudo password (implies --elevated)")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "keep running after a failed step")

	return cmd
}

// parseSteps splits a comma-separated action id list into batch steps.
func parseSteps(list string) ([]batch.Step, error) {
	var steps []batch.Step
	for _, id := range strings.Split(list, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		steps = append(steps, batch.Step{Action: id})
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("--steps names no actions")
	}
	return steps, nil
}

func listBatches(cmd *cobra.Command) error {
	if len(cfg.Batches) == 0 {
		fmt.Println("No batches configured.")
		return nil
	}

	names := make([]string, 0, len(cfg.Batches))
	for name := range cfg.Batches {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTEPS\tDESCRIPTION")
	for _, name := range names {
		b := cfg.Batches[name]
		fmt.Fprintf(w, "%s\t%d\t%s\n", name, len(b.Steps), b.Description)
	}
	return w.Flush()
}
