package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/careforge/cohort/internal/clinical"
	"github.com/careforge/cohort/internal/fhir"
	"github.com/careforge/cohort/internal/kernel"
	"github.com/careforge/cohort/internal/model"
	"github.com/careforge/cohort/internal/modules"
	"github.com/careforge/cohort/internal/report"
	"github.com/careforge/cohort/internal/rng"
	"github.com/careforge/cohort/internal/store"
)

// patientSeedStride matches the module runtime's per-patient seed spacing so
// both runtimes derive the same patient seeds from a world seed.
const patientSeedStride = 7919

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(opts *RootOptions) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a cohort simulation",
		Long:  "Simulates a seeded patient cohort and writes a run summary, optionally exporting the event log to SQLite and FHIR bundles to disk.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadRunConfig(configPath)
			if err != nil {
				return err
			}
			applyFlagOverrides(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runSimulate(cfg, opts.Logger(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file")
	cmd.Flags().String("world", "", "world manifest JSON (default: builtin content)")
	cmd.Flags().IntP("n", "n", 10, "number of patients")
	cmd.Flags().String("out", "out", "output directory")
	cmd.Flags().Uint32("seed", 42, "world seed")
	cmd.Flags().String("runtime", RuntimeModules, "runtime (modules|kernel)")
	cmd.Flags().Float64("horizonYears", 35, "module-runtime horizon in years")
	cmd.Flags().Float64("horizonDays", 1825, "kernel horizon in days")
	cmd.Flags().String("db", "", "export event log to this SQLite file (kernel runtime)")
	cmd.Flags().Bool("fhir", false, "write FHIR bundles under <out>/fhir")
	cmd.Flags().Bool("explain", false, "print hazard explanations as transitions fire")

	return cmd
}

// applyFlagOverrides copies explicitly set flags over the config. Flags the
// user did not touch leave env/file values alone.
func applyFlagOverrides(cmd *cobra.Command, cfg *RunConfig) {
	f := cmd.Flags()
	if f.Changed("world") {
		cfg.World, _ = f.GetString("world")
	}
	if f.Changed("n") {
		cfg.N, _ = f.GetInt("n")
	}
	if f.Changed("out") {
		cfg.Out, _ = f.GetString("out")
	}
	if f.Changed("seed") {
		cfg.Seed, _ = f.GetUint32("seed")
	}
	if f.Changed("runtime") {
		cfg.Runtime, _ = f.GetString("runtime")
	}
	if f.Changed("horizonYears") {
		cfg.HorizonYears, _ = f.GetFloat64("horizonYears")
	}
	if f.Changed("horizonDays") {
		cfg.HorizonDays, _ = f.GetFloat64("horizonDays")
	}
	if f.Changed("db") {
		cfg.DB, _ = f.GetString("db")
	}
	if f.Changed("fhir") {
		cfg.FHIR, _ = f.GetBool("fhir")
	}
	if f.Changed("explain") {
		cfg.Explain, _ = f.GetBool("explain")
	}
}

func runSimulate(cfg *RunConfig, log *slog.Logger, stdout io.Writer) error {
	c, err := resolveContent(cfg.World, log)
	if err != nil {
		return err
	}

	log.Info("starting simulation",
		"runtime", cfg.Runtime, "patients", cfg.N, "seed", cfg.Seed, "world", c.version)

	var summary report.Summary
	switch cfg.Runtime {
	case RuntimeModules:
		summary, err = simulateModules(cfg, c, log)
	case RuntimeKernel:
		summary, err = simulateKernel(cfg, c, log)
	}
	if err != nil {
		return err
	}

	// The summary lands in <out>/sim/summary.json and on stdout.
	reporter := report.MultiReporter{
		report.FileReporter{Dir: cfg.Out},
		report.WriterReporter{W: stdout},
	}
	if err := reporter.Report(summary); err != nil {
		return WrapExitError(ExitInternal, "writing summary", err)
	}
	log.Info("simulation complete",
		"patients", summary.Patients,
		"events", summary.TotalEvents,
		"conditionOnsets", summary.ConditionOnsets)
	return nil
}

// patientLog pairs a kernel patient with its event log for the patients
// array.
type patientLog struct {
	PID    string        `json:"pid"`
	Events []model.Event `json:"events"`
}

// writePatients writes the per-patient JSON array to <out>/patients.json.
func writePatients(out string, v any) error {
	if err := os.MkdirAll(out, 0o755); err != nil {
		return WrapExitError(ExitInternal, "creating output directory", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return WrapExitError(ExitInternal, "encoding patients", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(out, "patients.json"), data, 0o644); err != nil {
		return WrapExitError(ExitInternal, "writing patients", err)
	}
	return nil
}

func simulateModules(cfg *RunConfig, c *content, log *slog.Logger) (report.Summary, error) {
	if cfg.DB != "" {
		log.Warn("event-log export requires the kernel runtime, skipping", "db", cfg.DB)
	}

	runner := &modules.Runner{
		Attributes:   c.attrs,
		Diseases:     c.diseases,
		Limits:       c.limits,
		Seed:         cfg.Seed,
		HorizonYears: cfg.HorizonYears,
		Logger:       log,
	}
	patients := runner.Run(cfg.N)

	if err := writePatients(cfg.Out, patients); err != nil {
		return report.Summary{}, err
	}
	if cfg.FHIR {
		for _, p := range patients {
			if err := writeBundle(cfg.Out, p.ID, fhir.FromPatient(p)); err != nil {
				return report.Summary{}, err
			}
		}
	}
	return report.Summarize(patients), nil
}

func simulateKernel(cfg *RunConfig, c *content, log *slog.Logger) (report.Summary, error) {
	var st *store.Store
	if cfg.DB != "" {
		var err error
		st, err = store.Open(cfg.DB)
		if err != nil {
			return report.Summary{}, WrapExitError(ExitInternal, "opening event store", err)
		}
		defer st.Close()

		run := store.Run{
			ID:           runID(cfg),
			Seed:         cfg.Seed,
			WorldVersion: c.version,
			Patients:     cfg.N,
			HorizonDays:  cfg.HorizonDays,
		}
		if err := st.WriteRun(context.Background(), run); err != nil {
			return report.Summary{}, WrapExitError(ExitInternal, "recording run", err)
		}
	}

	logs := make([][]model.Event, cfg.N)
	plogs := make([]patientLog, cfg.N)
	for i := 0; i < cfg.N; i++ {
		pid := fmt.Sprintf("p%d", i)
		src := rng.New(cfg.Seed + uint32(i)*patientSeedStride)
		snap, birthYear := clinical.BaselineSnapshot(src)

		k := kernel.New(kernel.Config{
			PID:      pid,
			Machines: c.machines,
			Initial:  snap,
			RNG:      src,
			Horizon:  cfg.HorizonDays,
			Explain:  cfg.Explain,
			Logger:   log,
			Limits:   c.limits,
		})
		events := k.Run()
		logs[i] = events
		plogs[i] = patientLog{PID: pid, Events: events}

		if st != nil {
			if err := st.WriteEvents(context.Background(), runID(cfg), events); err != nil {
				return report.Summary{}, WrapExitError(ExitInternal, "exporting events", err)
			}
		}
		if cfg.FHIR {
			sex := snap.Str("sex", "")
			if err := writeBundle(cfg.Out, pid, fhir.FromEvents(pid, birthYear, sex, events)); err != nil {
				return report.Summary{}, err
			}
		}
	}

	if err := writePatients(cfg.Out, plogs); err != nil {
		return report.Summary{}, err
	}
	return report.SummarizeEvents(logs), nil
}

// runID names a run by its reproducibility inputs.
func runID(cfg *RunConfig) string {
	return fmt.Sprintf("seed%d-n%d", cfg.Seed, cfg.N)
}

func writeBundle(out, pid string, b fhir.Bundle) error {
	dir := filepath.Join(out, "fhir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return WrapExitError(ExitInternal, "creating fhir directory", err)
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return WrapExitError(ExitInternal, "encoding bundle", err)
	}
	data = append(data, '\n')
	path := filepath.Join(dir, pid+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return WrapExitError(ExitInternal, "writing bundle", err)
	}
	return nil
}
