package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/careforge/cohort/internal/fhir"
	"github.com/careforge/cohort/internal/store"
)

// NewExportFHIRCommand creates the export-fhir command.
func NewExportFHIRCommand(opts *RootOptions) *cobra.Command {
	var (
		dbPath    string
		runName   string
		out       string
		birthYear int
	)

	cmd := &cobra.Command{
		Use:   "export-fhir",
		Short: "Re-derive FHIR bundles from a stored run",
		Long:  "Reads a run's event logs from a SQLite export and writes one FHIR bundle per patient. Demographics are not stored with the log, so the birth year is supplied as a flag.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				return NewExitError(ExitConfig, "--db is required")
			}
			if runName == "" {
				return NewExitError(ExitConfig, "--run is required")
			}
			return runExportFHIR(cmd, opts, dbPath, runName, out, birthYear)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite event-log file")
	cmd.Flags().StringVar(&runName, "run", "", "run id to export")
	cmd.Flags().StringVar(&out, "out", "out", "output directory")
	cmd.Flags().IntVar(&birthYear, "birth-year", 1970, "birth year anchoring exported dates")

	return cmd
}

func runExportFHIR(cmd *cobra.Command, opts *RootOptions, dbPath, runName, out string, birthYear int) error {
	log := opts.Logger()
	ctx := context.Background()

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitInternal, "opening event store", err)
	}
	defer st.Close()

	pids, err := st.Patients(ctx, runName)
	if err != nil {
		return WrapExitError(ExitInternal, "listing patients", err)
	}
	if len(pids) == 0 {
		return NewExitError(ExitConfig, fmt.Sprintf("run %q has no events", runName))
	}

	for _, pid := range pids {
		events, err := st.ReadEvents(ctx, runName, pid)
		if err != nil {
			return WrapExitError(ExitInternal, "reading events", err)
		}
		if err := writeBundle(out, pid, fhir.FromEvents(pid, birthYear, "", events)); err != nil {
			return err
		}
	}

	log.Info("export complete", "run", runName, "patients", len(pids), "out", out)
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d bundles to %s/fhir\n", len(pids), out)
	return nil
}
