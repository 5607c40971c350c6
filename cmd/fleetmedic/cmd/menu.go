package cmd

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fleetmedic/fleetmedic/internal/aggregate"
	"github.com/fleetmedic/fleetmedic/internal/batch"
	"github.com/fleetmedic/fleetmedic/internal/catalog"
	"github.com/fleetmedic/fleetmedic/internal/config"
	"github.com/fleetmedic/fleetmedic/internal/dispatch"
	"github.com/fleetmedic/fleetmedic/internal/notify"
	"github.com/fleetmedic/fleetmedic/internal/shell"
	"github.com/fleetmedic/fleetmedic/internal/ui/summary"
)

func newMenuCmd() *cobra.Command {
	var elevated bool

	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Interactively pick an action or batch to run",
		Long: `Menu lists the action catalog and the configured batches and reads
selections from stdin. Pick an action by number or id (batches by number
or name); actions that take parameters are prompted for. Actions target
the local machine until :group selects a configured host group.

Commands:
  :actions       reprint the action and batch listing
  :group [name]  target the named group; with no name, back to local
  :last          reprint the last run's summary
  :quit          exit (q also works)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMenu(cmd, elevated)
		},
	}

	cmd.Flags().BoolVar(&elevated, "elevated", false, "allow actions that require elevation (sudo)")
	return cmd
}

func runMenu(cmd *cobra.Command, elevated bool) error {
	cat := catalog.Builtin()
	actions := cat.All()

	batchNames := make([]string, 0, len(cfg.Batches))
	for name := range cfg.Batches {
		batchNames = append(batchNames, name)
	}
	sort.Strings(batchNames)

	in := bufio.NewScanner(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	f := newFormatter()
	notifier := notify.FromConfig(cfg.Notify)

	var (
		group string
		last  *aggregate.Summary
	)

	printListing(out, actions, batchNames)
	for {
		if group == "" {
			fmt.Fprint(out, "fleetmedic> ")
		} else {
			fmt.Fprintf(out, "fleetmedic (%s)> ", group)
		}
		if !in.Scan() {
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())

		switch {
		case line == "":
			continue
		case line == "q" || line == ":quit":
			return nil
		case line == ":actions":
			printListing(out, actions, batchNames)
			continue
		case line == ":last":
			if last == nil {
				fmt.Fprintln(out, "no runs yet")
				continue
			}
			if err := printMenuSummary(out, f, last); err != nil {
				return err
			}
			continue
		case line == ":group" || strings.HasPrefix(line, ":group "):
			group = selectGroup(out, strings.TrimSpace(strings.TrimPrefix(line, ":group")), group)
			continue
		case strings.HasPrefix(line, ":"):
			fmt.Fprintf(out, "unknown command %q (:actions, :group, :last, :quit)\n", line)
			continue
		}

		s, err := runSelection(cmd, line, actions, batchNames, in, out, notifier, elevated, group)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		last = s
		if err := printMenuSummary(out, f, s); err != nil {
			return err
		}
	}
}

func printListing(out io.Writer, actions []catalog.Action, batchNames []string) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Actions:")
	for i, a := range actions {
		marker := " "
		if a.RequiresElevation {
			marker = "*"
		}
		fmt.Fprintf(out, "  %2d%s %-16s %s\n", i+1, marker, a.ID, a.Name)
	}
	if len(batchNames) > 0 {
		fmt.Fprintln(out, "Batches:")
		for i, name := range batchNames {
			fmt.Fprintf(out, "  %2d  %s\n", len(actions)+i+1, name)
		}
	}
}

// selectGroup validates and applies a :group command, returning the new
// target group. An empty name goes back to the local machine.
func selectGroup(out io.Writer, name, current string) string {
	if name == "" {
		fmt.Fprintln(out, "targeting the local machine")
		return ""
	}
	if _, ok := cfg.Groups[name]; !ok {
		names := make([]string, 0, len(cfg.Groups))
		for n := range cfg.Groups {
			names = append(names, n)
		}
		sort.Strings(names)
		fmt.Fprintf(out, "unknown group %q, configured: %s\n", name, strings.Join(names, ", "))
		return current
	}
	fmt.Fprintf(out, "targeting group %q\n", name)
	return name
}

// runSelection resolves a menu choice (number, action id, or batch name) and
// runs it. Batches always run locally; actions run against the selected
// group, or the local machine when none is set.
func runSelection(cmd *cobra.Command, choice string, actions []catalog.Action, batchNames []string,
	in *bufio.Scanner, out io.Writer,
	notifier notify.Notifier, elevated bool, group string,
) (*aggregate.Summary, error) {
	ctx := cmd.Context()

	actIdx, batchName, err := resolveChoice(choice, actions, batchNames)
	if err != nil {
		return nil, err
	}

	if batchName != "" {
		b := cfg.Batches[batchName]
		steps := make([]batch.Step, len(b.Steps))
		for i, s := range b.Steps {
			steps[i] = batch.Step{Action: s.Action, Params: s.Params}
		}
		r := batch.New(catalog.Builtin(), shell.NewRunner(""),
			batch.WithNotifier(notifier),
			batch.WithElevation(elevated),
			batch.WithContinueOnError(b.ContinueOnError),
		)
		return r.Run(ctx, steps), nil
	}

	act := actions[actIdx]
	params := promptParams(in, out, act)

	cliHosts := []string{"localhost"}
	if group != "" {
		cliHosts = nil
	}
	hosts, err := config.ResolveHosts(cfg, group, cliHosts)
	if err != nil {
		return nil, err
	}
	targets := make([]string, len(hosts))
	for i, h := range hosts {
		targets[i] = h.Name
	}

	runner, fetcher, closer := buildRunner(hosts, "", false)
	if closer != nil {
		defer closer()
	}

	d := dispatch.New(catalog.Builtin(), newProber(runner), runner,
		dispatch.WithFetcher(fetcher),
		dispatch.WithNotifier(notifier),
		dispatch.WithElevation(elevated),
	)
	return d.Dispatch(ctx, act.ID, targets, params), nil
}

// resolveChoice maps user input to an action index or a batch name. Numbers
// index the printed listing, actions first; names match action ids then
// batch names.
func resolveChoice(choice string, actions []catalog.Action, batchNames []string) (int, string, error) {
	if n, err := strconv.Atoi(choice); err == nil {
		switch {
		case n >= 1 && n <= len(actions):
			return n - 1, "", nil
		case n > len(actions) && n <= len(actions)+len(batchNames):
			return 0, batchNames[n-len(actions)-1], nil
		default:
			return 0, "", fmt.Errorf("invalid selection %q", choice)
		}
	}
	for i, a := range actions {
		if a.ID == choice {
			return i, "", nil
		}
	}
	for _, name := range batchNames {
		if name == choice {
			return 0, name, nil
		}
	}
	return 0, "", fmt.Errorf("no action or batch named %q", choice)
}

func printMenuSummary(out io.Writer, f *summary.Formatter, s *aggregate.Summary) error {
	if f.JSON {
		data, err := f.FormatJSON(s)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	fmt.Fprint(out, f.Format(s))
	return nil
}

// promptParams asks for each declared parameter, showing the default.
func promptParams(in *bufio.Scanner, out io.Writer, act catalog.Action) map[string]string {
	if len(act.Params) == 0 {
		return nil
	}
	params := make(map[string]string, len(act.Params))
	for _, p := range act.Params {
		if p.Default != "" {
			fmt.Fprintf(out, "%s [%s]: ", p.Name, p.Default)
		} else {
			fmt.Fprintf(out, "%s: ", p.Name)
		}
		if !in.Scan() {
			return params
		}
		if v := strings.TrimSpace(in.Text()); v != "" {
			params[p.Name] = v
		}
	}
	return params
}
