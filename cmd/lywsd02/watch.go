package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/lywsd02/internal/clocksync"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [Celsius | C | Fahrenheit | F]",
		Short: "Keep the clock in sync on a schedule",
		Long: `Sync the clock now and then again on every tick of a schedule until
interrupted. The schedule is a cron expression ("0 4 * * *"), a descriptor
("@daily", "@every 6h") or a plain duration ("12h").

A tick that fires while the previous sync is still running is skipped.`,
		Args: unitsArg,
		RunE: runWatch,
	}

	cmd.Flags().String("every", "", "Sync schedule (default from config, @daily)")
	cmd.Flags().Bool("now", true, "Sync once immediately before waiting for the schedule")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	app, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	if len(args) == 1 {
		app.cfg.Units = args[0]
	}
	schedule := app.cfg.Schedule
	if every, _ := cmd.Flags().GetString("every"); every != "" {
		schedule = every
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	printer := newSyncPrinter(out, cmd.ErrOrStderr())

	syncJob := func(ctx context.Context) error {
		report := app.sync(ctx, printer)
		if !report.OK() {
			return fmt.Errorf("sync finished with errors")
		}
		return nil
	}

	sched := clocksync.NewScheduler(app.logger)
	if err := sched.Every(schedule, "clock-sync", syncJob); err != nil {
		return usageError{err}
	}

	if now, _ := cmd.Flags().GetBool("now"); now {
		_ = syncJob(ctx)
	}

	fmt.Fprintf(out, "Next sync at %s\n", sched.Next().Format(time.RFC3339))
	sched.Run(ctx)

	fmt.Fprintln(out, "Stopped.")
	return nil
}
