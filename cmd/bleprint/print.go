package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/bleprint/internal/device"
	"github.com/srg/bleprint/internal/events"
	"github.com/srg/bleprint/internal/session"
)

// printCmd represents the print command
var printCmd = &cobra.Command{
	Use:   "print [device-address]",
	Short: "Print a label",
	Long: `Compose a CPCL label and send it to a BLE printer.

The printer is chosen in this order:
  1. the device address argument
  2. the first discovered device whose name contains --name
  3. the remembered printer from the last successful print

Examples:
  bleprint print AA:BB:CC:DD:EE:FF --text "HELLO"
  bleprint print --name P21 --template label.yaml
  bleprint print --text "Order 42" --barcode 0042 --copies 2`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPrint,
}

var (
	printLabel   labelFlags
	printName    string
	printTimeout time.Duration
)

func init() {
	printLabel.register(printCmd)
	printCmd.Flags().StringVarP(&printName, "name", "n", "", "Scan for a printer whose name contains this text")
	printCmd.Flags().DurationVar(&printTimeout, "timeout", time.Minute, "Maximum time to wait for the label to be sent")
}

func runPrint(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	label, err := printLabel.build()
	if err != nil {
		return err
	}
	buf, err := label.Buffer()
	if err != nil {
		return err
	}
	logger := configureLogger(cmd, cfg)

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context(), func() {
		fmt.Fprintln(cmd.ErrOrStderr(), "\nCtrl+C pressed, cancelling print...")
	})
	defer cancel()

	s := newSession(cfg, logger)
	defer shutdown(s, logger)

	if err := connectPrinter(ctx, s, args, cfg.AutoConnect, cfg.ScanTimeout, logger); err != nil {
		return err
	}

	job, err := s.Write(buf)
	if err != nil {
		return err
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, printTimeout)
	defer waitCancel()
	if err := job.Wait(waitCtx); err != nil {
		return fmt.Errorf("label not fully sent: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sent %d bytes in %d chunks to %s\n", len(buf), len(job.Chunks), describe(s.ConnectDeviceInfo()))
	if failed := job.Failed(); failed > 0 {
		fmt.Fprintf(out, "Warning: %d of %d chunks were rejected by the printer\n", failed, len(job.Chunks))
	}
	return nil
}

func connectPrinter(ctx context.Context, s *session.Session, args []string, autoConnect bool, scanTimeout time.Duration, logger *logrus.Logger) error {
	switch {
	case len(args) == 1:
		if err := s.Initialize(ctx, false); err != nil {
			return err
		}
		return s.Connect(ctx, device.DeviceInfo{DeviceID: args[0]})

	case printName != "":
		if err := s.Initialize(ctx, false); err != nil {
			return err
		}
		d, err := findByName(ctx, s, printName, scanTimeout)
		if err != nil {
			return err
		}
		logger.WithField("device", describe(d)).Info("Found printer")
		return s.Connect(ctx, d)

	default:
		if err := s.Initialize(ctx, autoConnect); err != nil {
			return err
		}
		if !s.Connected() {
			return ErrNoPrinter
		}
		return nil
	}
}

// findByName scans until a device whose display name contains name appears.
func findByName(ctx context.Context, s *session.Session, name string, timeout time.Duration) (device.DeviceInfo, error) {
	found := make(chan device.DeviceInfo, 1)
	needle := strings.ToLower(name)
	s.Hub().Listen(events.ScanResultsChanged, func(e events.Event) {
		for _, d := range e.Devices {
			if strings.Contains(strings.ToLower(d.DisplayName()), needle) {
				select {
				case found <- d:
				default:
				}
				return
			}
		}
	})
	defer s.Hub().RemoveListen(events.ScanResultsChanged)

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.Scan(scanCtx); err != nil {
		return device.DeviceInfo{}, err
	}
	defer func() { _ = s.StopScan() }()

	select {
	case d := <-found:
		return d, nil
	case <-scanCtx.Done():
		if err := ctx.Err(); err != nil {
			return device.DeviceInfo{}, err
		}
		return device.DeviceInfo{}, fmt.Errorf("%w: no device named %q within %s", ErrPrinterNotFound, name, timeout)
	}
}
