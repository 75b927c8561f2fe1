package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/bleprint/internal/device"
	"github.com/srg/bleprint/internal/events"
	"github.com/srg/bleprint/internal/store"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE printers",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Devices advertising neither a name nor a local name are not listed. The
remembered printer, if any, is marked with '*'.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanQuiet    bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for until Ctrl+C)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVarP(&scanQuiet, "quiet", "q", false, "Do not show scan progress")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("format") {
		cfg.OutputFormat = scanFormat
	}
	if cmd.Flags().Changed("duration") {
		cfg.ScanTimeout = scanDuration
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := configureLogger(cmd, cfg)

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context(), func() {
		fmt.Fprintln(cmd.ErrOrStderr(), "\nCtrl+C pressed, cancelling scan...")
	})
	defer cancel()

	s := newSession(cfg, logger)
	defer shutdown(s, logger)

	var progress *ProgressPrinter
	if !scanQuiet {
		progress = NewProgressPrinter(cmd.ErrOrStderr(), "Scanning for BLE devices", "Scanning", cfg.ScanTimeout)
		s.Hub().Listen(events.ScanResultsChanged, func(e events.Event) {
			progress.SetStatus(fmt.Sprintf("%d found", len(e.Devices)))
		})
	}

	if err := s.Initialize(ctx, false); err != nil {
		return err
	}

	scanCtx := ctx
	if cfg.ScanTimeout > 0 {
		var scanCancel context.CancelFunc
		scanCtx, scanCancel = context.WithTimeout(ctx, cfg.ScanTimeout)
		defer scanCancel()
	}

	if progress != nil {
		progress.Start()
	}
	if err := s.Scan(scanCtx); err != nil {
		if progress != nil {
			progress.Stop()
		}
		return err
	}
	<-scanCtx.Done()
	if progress != nil {
		progress.Stop()
	}
	if err := s.StopScan(); err != nil {
		logger.WithField("error", err).Warn("Failed to stop scan")
	}

	remembered, _, err := store.NewLastDevice(newStore(cfg, logger)).Load()
	if err != nil {
		logger.WithField("error", err).Debug("Failed to load remembered printer")
	}
	return displayDevices(cmd.OutOrStdout(), s.Devices(), remembered.DeviceID, cfg.OutputFormat)
}

func displayDevices(w io.Writer, devices []device.DeviceInfo, rememberedID, format string) error {
	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(devices)
	}

	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices discovered")
		return nil
	}

	highlight := color.New(color.FgGreen, color.Bold)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, " \tNAME\tADDRESS\tRSSI\tSERVICES")
	fmt.Fprintln(tw, strings.Repeat("-", 72))

	for _, d := range devices {
		name := d.DisplayName()
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		services := strings.Join(d.AdvertisServiceUUIDs, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		marker := " "
		if rememberedID != "" && d.DeviceID == rememberedID {
			marker = "*"
			name = highlight.Sprint(name)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d dBm\t%s\n", marker, name, d.DeviceID, d.RSSI, services)
	}
	return tw.Flush()
}
