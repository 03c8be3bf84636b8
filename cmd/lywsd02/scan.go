package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/lywsd02/internal/device"
	"github.com/srg/lywsd02/internal/groutine"
	"github.com/srg/lywsd02/scanner"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List nearby LYWSD02 clocks",
		Long: `Scan for LYWSD02 clocks in the vicinity and display their names, addresses
and signal strength. Use --all to list every advertising BLE device.`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}

	cmd.Flags().DurationP("duration", "d", 0, "Scan duration (default from config, 10s)")
	cmd.Flags().Bool("json", false, "Print results as JSON keyed by address")
	cmd.Flags().Bool("all", false, "Show every device, not just LYWSD02 clocks")
	cmd.Flags().StringSlice("services", nil, "Only show devices advertising these service UUIDs")
	cmd.Flags().StringSlice("allow", nil, "Only show devices with these addresses")
	cmd.Flags().StringSlice("block", nil, "Hide devices with these addresses")
	cmd.Flags().Bool("live", false, "Report each device on stderr as soon as it is discovered")

	return cmd
}

func runScan(cmd *cobra.Command, _ []string) error {
	app, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	flags := cmd.Flags()
	opts := scanner.DefaultOptions()
	opts.Duration = app.cfg.ScanDuration
	if d, _ := flags.GetDuration("duration"); d > 0 {
		opts.Duration = d
	}
	if all, _ := flags.GetBool("all"); all {
		opts.Filter = device.Filter{}
	}
	if services, _ := flags.GetStringSlice("services"); len(services) > 0 {
		opts.Filter.Services = device.NormalizeUUIDs(services)
	}
	opts.AllowList, _ = flags.GetStringSlice("allow")
	opts.BlockList, _ = flags.GetStringSlice("block")
	asJSON, _ := flags.GetBool("json")
	live, _ := flags.GetBool("live")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := scanner.NewScanner(app.radio, app.logger)

	out := cmd.OutOrStdout()
	progress := func(string) {}
	discovered := func(int64) {}
	if isTerminal(out) && !asJSON {
		p := NewCountdownProgressPrinter(out, "Scanning for LYWSD02 devices", "Scanning", opts.Duration)
		p.Start()
		defer p.Stop()
		var scanning atomic.Bool
		scanning.Store(true)
		progress = func(phase string) {
			if phase == "Processing results" {
				scanning.Store(false)
				p.Stop()
			}
			p.Callback()(phase)
		}
		discovered = func(n int64) {
			if scanning.Load() {
				p.Callback()(fmt.Sprintf("Scanning, %d found", n))
			}
		}
	}

	var liveOut io.Writer
	if live {
		liveOut = cmd.ErrOrStderr()
	}
	drained := groutine.Go(ctx, "scan-events", func(context.Context) {
		reportDiscoveries(s.Events(), liveOut, discovered)
	})

	found, err := s.Scan(ctx, opts, progress)
	s.Close()
	<-drained
	if err != nil && !errors.Is(err, context.Canceled) {
		app.logger.WithError(err).Error("scan failed")
		return err
	}

	if asJSON {
		return displayPeripheralsJSON(out, found)
	}
	return displayPeripheralsTable(out, found)
}

// reportDiscoveries consumes scan events until the stream closes. Each newly
// discovered device is counted and, when w is set, printed on its own line.
func reportDiscoveries(events <-chan scanner.Event, w io.Writer, discovered func(n int64)) {
	var n int64
	for ev := range events {
		if ev.Type != scanner.EventNew {
			continue
		}
		n++
		if w != nil {
			fmt.Fprintf(w, "+ %s %s (%d dBm)\n", displayName(ev.Peripheral.Name), ev.Peripheral.Address, ev.Peripheral.RSSI)
		}
		discovered(n)
	}
}

func displayName(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	return name
}

func displayPeripheralsTable(out io.Writer, found *orderedmap.OrderedMap[string, scanner.Peripheral]) error {
	if found == nil || found.Len() == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSEEN\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 64))

	for pair := found.Oldest(); pair != nil; pair = pair.Next() {
		p := pair.Value
		name := displayName(p.Name)
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		lastSeen := time.Since(p.LastSeen).Truncate(time.Second)
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%d\t%s ago\n", name, p.Address, p.RSSI, p.Seen, lastSeen)
	}

	return w.Flush()
}

func displayPeripheralsJSON(out io.Writer, found *orderedmap.OrderedMap[string, scanner.Peripheral]) error {
	if found == nil {
		found = orderedmap.New[string, scanner.Peripheral]()
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(found)
}
