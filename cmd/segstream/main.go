// Command segstream inspects and follows a repository of rotating
// segment files.
//
// Logging:
//   - Base logger is created here with output level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"segstream/internal/logging"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "segstream",
		Short:   "Segment repository tools",
		Long:    "Inspect, follow and produce rotating segment files in a repository directory.",
		Version: version,
	}
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newListCmd(),
		newInfoCmd(),
		newFollowCmd(),
		newProduceCmd(),
		newConfigureCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loggerFromCmd builds the base logger from the persistent log-level flag.
func loggerFromCmd(cmd *cobra.Command) (*slog.Logger, error) {
	name, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return logging.New(os.Stderr, level), nil
}
