package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/lywsd02/internal/device"
	"github.com/srg/lywsd02/internal/lywsd02"
	"github.com/srg/lywsd02/internal/session"
)

const deviceTimeLayout = "2006-01-02 15:04:05 -07:00"

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Read temperature, humidity, battery, units and time",
		Long: `Connect to a LYWSD02 clock and print its current temperature and humidity
reading, battery level, display units and clock time.

A reading that cannot be obtained is reported in place; the command fails only
when the clock cannot be reached or the connection drops.`,
		Args: cobra.NoArgs,
		RunE: runRead,
	}
}

func runRead(cmd *cobra.Command, _ []string) error {
	app, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := app.newSession()
	defer mgr.Close()

	if err := mgr.Connect(ctx, app.cfg.DeviceName); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if err := mgr.Disconnect(context.WithoutCancel(ctx)); err != nil {
			app.logger.WithError(err).Warn("Disconnect failed")
		}
	}()

	format := app.cfg.Plan().TimeFormat
	r := reader{ctx: ctx, mgr: mgr}

	units := lywsd02.Celsius
	unitsErr := r.send(lywsd02.ReadUnits(), func(v any) { units = v.(lywsd02.Units) })

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 1, ' ', 0)
	fmt.Fprintf(w, "Device:\t%s\n", mgr.Address())

	err = r.send(lywsd02.ReadSensor(), func(v any) {
		reading := v.(lywsd02.SensorReading)
		fmt.Fprintf(w, "Temperature:\t%.2f %s\n", units.ToDisplay(reading.Temperature), units.Symbol())
		fmt.Fprintf(w, "Humidity:\t%d %%\n", reading.Humidity)
	})
	printFailure(w, "Sensor", err)

	err = r.send(lywsd02.ReadBattery(), func(v any) {
		fmt.Fprintf(w, "Battery:\t%d %%\n", v.(int))
	})
	printFailure(w, "Battery", err)

	if unitsErr == nil {
		fmt.Fprintf(w, "Units:\t%s\n", units)
	}
	printFailure(w, "Units", unitsErr)

	err = r.send(lywsd02.ReadTime(format), func(v any) {
		fmt.Fprintf(w, "Time:\t%s\n", v.(lywsd02.DeviceTime).Wall().Format(deviceTimeLayout))
	})
	printFailure(w, "Time", err)

	if err := w.Flush(); err != nil {
		return err
	}
	if r.lost != nil {
		return fmt.Errorf("%w: %w", ErrConnectionLost, r.lost)
	}
	return nil
}

// reader sends read commands until the link is lost, then fails the rest.
type reader struct {
	ctx  context.Context
	mgr  *session.Manager
	lost error
}

func (r *reader) send(cmd session.Command, onValue func(any)) error {
	if r.lost != nil {
		return r.lost
	}
	reply, err := r.mgr.Send(r.ctx, cmd)
	if err != nil {
		if errors.Is(err, device.ErrNotConnected) {
			r.lost = err
		}
		return err
	}
	onValue(reply.Value)
	return nil
}

func printFailure(w io.Writer, what string, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s:\terror: %s\n", what, FormatUserError(err))
}
