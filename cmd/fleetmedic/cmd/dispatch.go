package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetmedic/fleetmedic/internal/catalog"
	"github.com/fleetmedic/fleetmedic/internal/config"
	"github.com/fleetmedic/fleetmedic/internal/dispatch"
	"github.com/fleetmedic/fleetmedic/internal/notify"
	"github.com/fleetmedic/fleetmedic/internal/probe"
	"github.com/fleetmedic/fleetmedic/internal/shell"
	"github.com/fleetmedic/fleetmedic/internal/ssh"
)

func newDispatchCmd() *cobra.Command {
	var (
		action       string
		group        string
		targetList   string
		params       []string
		async        bool
		elevated     bool
		askPass      bool
		acceptHosts  bool
		concurrency  int
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "dispatch [host...]",
		Short: "Run a catalog action across target hosts",
		Long: `Dispatch runs one catalog action against a set of targets. Targets come
from positional host names (user@host supported), a --targets comma list,
a configured group, or any mix; duplicates are merged. Each target is
probed before execution; unreachable targets are skipped and the rest
proceed.`,
		Example: `  fleetmedic dispatch -a uptime web1 web2
  fleetmedic dispatch -a uptime --targets web1,web2,db1
  fleetmedic dispatch -a service-restart -p service=nginx -g web --elevated --async
  fleetmedic dispatch -a sys-report -g fleet --timeout 5m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if action == "" {
				return fmt.Errorf("an action is required (-a)")
			}
			paramMap, err := parseParams(params)
			if err != nil {
				return err
			}

			hosts, err := config.ResolveHosts(cfg, group, append(args, parseTargets(targetList)...))
			if err != nil {
				return err
			}

			sudoPassword := ""
			if askPass {
				sudoPassword, err = promptPassword("sudo password: ")
				if err != nil {
					return err
				}
				elevated = true
			}

			targets := make([]string, len(hosts))
			for i, h := range hosts {
				targets[i] = h.Name
			}

			runner, fetcher, closer := buildRunner(hosts, sudoPassword, acceptHosts)
			if closer != nil {
				defer closer()
			}

			if concurrency == 0 {
				concurrency = cfg.Defaults.Concurrency
			}
			if timeout == 0 {
				timeout = cfg.Defaults.Timeout.Duration
			}

			d := dispatch.New(catalog.Builtin(), newProber(runner), runner,
				dispatch.WithFetcher(fetcher),
				dispatch.WithNotifier(notify.FromConfig(cfg.Notify)),
				dispatch.WithElevation(elevated),
				dispatch.WithConcurrency(concurrency),
				dispatch.WithTimeout(timeout),
			)

			ctx := cmd.Context()
			f := newFormatter()

			if async {
				h := d.DispatchAsync(ctx, action, targets, paramMap)
				s, err := h.Wait(ctx)
				if err != nil {
					fmt.Print(f.Format(s))
					return err
				}
				return printSummary(f, s)
			}

			return printSummary(f, d.Dispatch(ctx, action, targets, paramMap))
		},
	}

	cmd.Flags().StringVarP(&action, "action", "a", "", "catalog action id to run (required)")
	cmd.Flags().StringVarP(&group, "group", "g", "", "target group from config")
	cmd.Flags().StringVar(&targetList, "targets", "", "comma-separated target hosts, merged with positional hosts")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "action parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&async, "async", false, "run targets concurrently")
	cmd.Flags().BoolVar(&elevated, "elevated", false, "allow actions that require elevation (sudo)")
	cmd.Flags().BoolVar(&askPass, "ask-pass", false, "prompt for the sudo password (implies --elevated)")
	cmd.Flags().BoolVar(&acceptHosts, "accept-unknown-hosts", false, "accept SSH host keys not present in known_hosts")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "max concurrent targets in async mode (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall deadline for the dispatch (default from config)")

	return cmd
}

// runner is the execution surface the dispatcher needs from a transport.
type runner interface {
	dispatch.Runner
	dispatch.Fetcher
	probe.Transport
}

// buildRunner picks the transport: the local shell when every target is the
// local machine, pooled SSH otherwise.
func buildRunner(hosts []config.Host, sudoPassword string, acceptHosts bool) (runner, dispatch.Fetcher, func() error) {
	if allLocal(hosts) {
		r := newLocalRunner(sudoPassword)
		return r, r, nil
	}

	hostConfs := make(map[string]ssh.HostConfig, len(hosts))
	for _, h := range hosts {
		hostConfs[h.Name] = ssh.HostConfig{
			Hostname:     h.Hostname,
			User:         h.User,
			Port:         h.Port,
			IdentityFile: h.IdentityFile,
		}
	}
	pool := ssh.NewPool(ssh.ClientConfig{AcceptUnknownHosts: acceptHosts}, hostConfs)
	r := ssh.NewRunner(pool, sudoPassword)
	return r, r, r.Close
}

func newProber(t probe.Transport) *probe.Prober {
	return probe.New(t)
}

func allLocal(hosts []config.Host) bool {
	hostname, _ := os.Hostname()
	for _, h := range hosts {
		switch h.Hostname {
		case "localhost", "127.0.0.1", "::1", hostname:
		default:
			return false
		}
	}
	return true
}

// localRunner adapts the shell runner to the probe transport: the local
// machine is always reachable and its transport always available.
type localRunner struct {
	*shell.Runner
}

func newLocalRunner(sudoPassword string) localRunner {
	return localRunner{Runner: shell.NewRunner(sudoPassword)}
}

func (localRunner) Ping(context.Context, string, time.Duration) bool          { return true }
func (localRunner) TestTransport(context.Context, string, time.Duration) bool { return true }

// parseTargets splits a comma-separated host list, dropping empty entries.
func parseTargets(list string) []string {
	if list == "" {
		return nil
	}
	var out []string
	for _, h := range strings.Split(list, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// parseParams converts key=value pairs into a parameter map.
func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
