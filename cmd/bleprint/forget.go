package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srg/bleprint/internal/store"
)

// forgetCmd represents the forget command
var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Forget the remembered printer",
	Long:  `Remove the printer remembered for automatic reconnection.`,
	Args:  cobra.NoArgs,
	RunE:  runForget,
}

func runForget(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := configureLogger(cmd, cfg)
	cmd.SilenceUsage = true

	last := store.NewLastDevice(newStore(cfg, logger))
	d, ok, err := last.Load()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "No printer remembered")
		return nil
	}
	if err := last.Clear(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", describe(d))
	return nil
}
