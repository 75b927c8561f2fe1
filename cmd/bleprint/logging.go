package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/bleprint/pkg/config"
)

// loadConfig reads --config (defaults when unset) and applies --log-level and
// --verbose on top, with --log-level taking precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	if logLevelStr != "" {
		switch logLevelStr {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = logLevelStr
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", logLevelStr)
		}
	} else if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = logrus.DebugLevel.String()
	}
	return cfg, nil
}

// configureLogger creates the command logger. Without --log-level, --verbose
// or a config file, only warnings and errors are shown so they do not
// interleave with command output.
func configureLogger(cmd *cobra.Command, cfg *config.Config) *logrus.Logger {
	logger := cfg.NewLogger()
	explicit := cmd.Flags().Changed("log-level") || cmd.Flags().Changed("verbose") || cmd.Flags().Changed("config")
	if !explicit && logger.Level > logrus.WarnLevel {
		logger.SetLevel(logrus.WarnLevel)
	}
	logger.SetOutput(cmd.ErrOrStderr())
	return logger
}
