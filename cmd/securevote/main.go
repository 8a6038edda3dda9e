package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const programName = "securevote"

var globalFlags = struct {
	debug bool
}{}

// commonRun configures the process-wide logger shared by subcommands.
func commonRun() *slog.Logger {
	logLevel := slog.LevelInfo
	if globalFlags.debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		}),
	)
	slog.SetDefault(logger)
	return logger
}

func main() {
	rootCmd := &cobra.Command{
		Use:   programName,
		Short: "Tamper-evident ballot ledger",
	}
	rootCmd.PersistentFlags().BoolVarP(
		&globalFlags.debug,
		"debug", "D", false,
		"enable debug logging",
	)
	rootCmd.AddCommand(
		serveCommand(),
		issueCommand(),
	)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
