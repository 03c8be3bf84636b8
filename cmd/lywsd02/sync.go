package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/lywsd02/internal/clocksync"
	"github.com/srg/lywsd02/internal/device"
	goble "github.com/srg/lywsd02/internal/device/go-ble"
	"github.com/srg/lywsd02/internal/session"
	"github.com/srg/lywsd02/internal/telemetry"
	"github.com/srg/lywsd02/pkg/config"
)

// newRadio opens the host BLE adapter (can be overridden in tests)
var newRadio = func(cfg *config.Config, logger *logrus.Logger) device.Radio {
	return goble.NewRadio(logger, cfg.WriteInterval)
}

// runSync is the root command: set the time and, if given, the units.
// BLE failures are printed, not returned; the exit code stays 0.
func runSync(cmd *cobra.Command, args []string) error {
	app, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	if len(args) == 1 {
		app.cfg.Units = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.sync(ctx, newSyncPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr()))
	return nil
}

// app is the per-invocation wiring shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	radio    device.Radio
	shutdown func(context.Context) error
}

func setupApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	// All arguments validated - runtime failures are not usage errors
	shutdown, err := telemetry.Setup(cfg.Trace, cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		radio:    newRadio(cfg, logger),
		shutdown: shutdown,
	}, nil
}

func (a *app) close() {
	if err := a.shutdown(context.Background()); err != nil {
		a.logger.WithError(err).Warn("Failed to flush traces")
	}
}

// newSession creates a session manager for one connection. Callers Close it.
func (a *app) newSession() *session.Manager {
	return session.New(a.radio, a.cfg.SessionOptions(), a.logger)
}

// sync runs one full connect, set time, set units, disconnect sequence.
func (a *app) sync(ctx context.Context, observer clocksync.Observer) clocksync.Report {
	mgr := a.newSession()
	defer mgr.Close()

	return clocksync.NewRunner(a.logger, observer).Run(ctx, mgr, a.cfg.Plan())
}

// syncPrinter reports sync progress to the user.
type syncPrinter struct {
	out    io.Writer
	errOut io.Writer
	colors palette

	progress *ProgressPrinter
}

func newSyncPrinter(out, errOut io.Writer) *syncPrinter {
	return &syncPrinter{
		out:    out,
		errOut: errOut,
		colors: palette{enabled: isTerminal(out)},
	}
}

func (p *syncPrinter) StepStarted(step clocksync.Step, plan clocksync.Plan) {
	switch step {
	case clocksync.StepConnect:
		fmt.Fprintln(p.out, "Attempting to connect to LYWSD02 device...")
		if p.colors.enabled {
			p.progress = NewProgressPrinter(p.out, "Connecting", "Scanning")
			p.progress.Start()
		}
	case clocksync.StepSetTime:
		fmt.Fprintln(p.out, "Updating time...")
	case clocksync.StepSetUnits:
		fmt.Fprintf(p.out, "Setting temperature units to %s...\n", plan.Units)
	case clocksync.StepDisconnect:
		fmt.Fprintln(p.out, "Disconnecting...")
	}
}

func (p *syncPrinter) StepFinished(res clocksync.StepResult) {
	switch {
	case res.Step == clocksync.StepConnect:
		if p.progress != nil {
			p.progress.Stop()
			p.progress = nil
		}
		if res.Err != nil {
			p.colors.fail().Fprintln(p.errOut, "error: Failed to connect to LYWSD02 device.")
			return
		}
		p.colors.ok().Fprintln(p.out, "LYWSD02 device connected!")
	case res.Err == nil:
		return
	case res.Step == clocksync.StepDisconnect:
		p.colors.fail().Fprintf(p.errOut, "error: Failed to disconnect: %s\n", FormatUserError(res.Err))
	case res.ConnectionLost():
		p.colors.warn().Fprintln(p.out, "BLE connection lost!")
	default:
		p.colors.fail().Fprintf(p.out, "BLE transmit returned error: %d (%s)\n", int(res.Code), res.Code)
	}
}
