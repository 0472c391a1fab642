// Package cli wires the cohort simulator's commands: simulate runs a
// cohort, validate checks a world manifest, export-fhir re-derives FHIR
// bundles from a stored run.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
}

// Logger builds the process logger: text to stderr, debug level when
// verbose.
func (o *RootOptions) Logger() *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewRootCommand creates the root command for the cohort CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "cohort",
		Short:         "cohort - deterministic clinical cohort simulator",
		Long:          "Simulates patient cohorts with a continuous-time hazard kernel or a month-stepped module runtime, from a seeded world manifest.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewExportFHIRCommand(opts))

	return cmd
}
