package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetmedic/fleetmedic/internal/health"
	"github.com/fleetmedic/fleetmedic/internal/loop"
	"github.com/fleetmedic/fleetmedic/internal/notify"
)

func newHealthLoopCmd() *cobra.Command {
	var (
		interval    time.Duration
		runOnce     bool
		doNotify    bool
		tickLogPath string
	)

	cmd := &cobra.Command{
		Use:   "healthloop",
		Short: "Run the health check and remediation loop",
		Long: `Healthloop probes the configured health checks on a fixed interval and
remediates the ones that report unhealthy. It runs until interrupted;
--run-once executes a single tick and exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := health.FromConfig(cfg.Health)
			if err != nil {
				return err
			}

			opts := []loop.Option{}
			if interval > 0 {
				opts = append(opts, loop.WithInterval(interval))
			} else if cfg.Health.Interval.Duration > 0 {
				opts = append(opts, loop.WithInterval(cfg.Health.Interval.Duration))
			}
			if doNotify {
				opts = append(opts, loop.WithNotifier(notify.FromConfig(cfg.Notify)))
			}

			if tickLogPath == "" {
				tickLogPath = cfg.Health.TickLog
			}
			if tickLogPath != "" {
				tl, err := loop.OpenTickLog(tickLogPath)
				if err != nil {
					return err
				}
				defer tl.Close()
				opts = append(opts, loop.WithTickLog(tl))
			}

			l := loop.New(reg, opts...)
			lc := &loop.LoopContext{}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if runOnce {
				rec, err := l.RunOnce(ctx, lc)
				if err != nil {
					return err
				}
				printTick(rec)
				return nil
			}

			log.Printf("[INFO] health loop started: %d checks", reg.Len())
			err = l.Run(ctx, lc)
			if errors.Is(err, context.Canceled) {
				log.Printf("[INFO] health loop stopped: %d remediations applied", lc.ActionsToday)
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "tick interval (default from config, 15m)")
	cmd.Flags().BoolVar(&runOnce, "run-once", false, "execute a single tick and exit")
	cmd.Flags().BoolVar(&doNotify, "notify", false, "send remediation notifications to configured channels")
	cmd.Flags().StringVar(&tickLogPath, "ticklog", "", "append tick records to this file as JSON lines")

	return cmd
}

func printTick(rec *loop.TickRecord) {
	for _, r := range rec.Results {
		state := "healthy"
		if !r.Outcome.Healthy {
			state = "unhealthy"
		}
		fmt.Printf("%-16s %-10s %s\n", r.CheckName, state, r.Outcome.Detail)
		if r.Remediation != nil {
			switch {
			case r.Remediation.Err != nil:
				fmt.Printf("%-16s %-10s %v\n", "", "remediate", r.Remediation.Err)
			case r.Remediation.Applied:
				fmt.Printf("%-16s %-10s %s\n", "", "remediate", r.Remediation.Detail)
			}
		}
	}
	fmt.Printf("%d checks, %d remediations applied\n", len(rec.Results), rec.ActionsApplied)
}
