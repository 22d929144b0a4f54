// Package cliutil holds flag handling shared by the command-line tools.
package cliutil

import (
	"fmt"
	"os"
	"runtime"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// AddLogFlags registers --log-level, --log-format and --debug on cmd's
// persistent flags.
func AddLogFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("log-level", "", "Set the logging level [trace, debug, info, warn, error]")
	cmd.PersistentFlags().String("log-format", "text", "Set the logging format [text, json]")
	cmd.PersistentFlags().Bool("debug", false, "Debug mode")
}

// ProcessLogFlags configures logger from the flags added by AddLogFlags.
// --log-level overrides --debug.
func ProcessLogFlags(cmd *cobra.Command, logger *logrus.Logger) error {
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	if l, _ := cmd.Flags().GetString("log-level"); l != "" {
		lvl, err := logrus.ParseLevel(l)
		if err != nil {
			return err
		}
		logger.SetLevel(lvl)
	}

	logFormat, _ := cmd.Flags().GetString("log-format")
	switch logFormat {
	case "json":
		logger.SetFormatter(new(logrus.JSONFormatter))
	case "text":
		if runtime.GOOS == "windows" && isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			// the default setting does not recognize cygwin on windows
			logger.SetFormatter(&logrus.TextFormatter{ForceColors: true})
		}
	default:
		return fmt.Errorf("unsupported log-format: %q", logFormat)
	}
	return nil
}
