// Package report summarizes finished simulation runs.
//
// The summary math is separated from where the summary goes: a Reporter
// receives the computed summary and decides whether it lands on disk, on
// stdout, or in a test buffer.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/careforge/cohort/internal/model"
	"github.com/careforge/cohort/internal/modules"
)

// Summary aggregates one run.
type Summary struct {
	Patients            int     `json:"patients"`
	TotalEvents         int     `json:"totalEvents"`
	AvgEventsPerPatient float64 `json:"avgEventsPerPatient"`
	ConditionOnsets     int     `json:"conditionOnsets"`
	DeathFraction       float64 `json:"deathFraction"`
}

// Reporter delivers a computed summary somewhere.
type Reporter interface {
	Report(s Summary) error
}

// Summarize aggregates module-runtime patients.
func Summarize(patients []*modules.Patient) Summary {
	s := Summary{Patients: len(patients)}
	deaths := 0
	for _, p := range patients {
		s.TotalEvents += len(p.Events)
		for _, rec := range p.Events {
			switch rec.Type {
			case model.RecDiagnosis:
				s.ConditionOnsets++
			case model.RecDeath:
				deaths++
			}
		}
	}
	if s.Patients > 0 {
		s.AvgEventsPerPatient = float64(s.TotalEvents) / float64(s.Patients)
		s.DeathFraction = float64(deaths) / float64(s.Patients)
	}
	return s
}

// SummarizeEvents aggregates kernel event logs, one log per patient.
func SummarizeEvents(logs [][]model.Event) Summary {
	s := Summary{Patients: len(logs)}
	deaths := 0
	for _, events := range logs {
		s.TotalEvents += len(events)
		for _, e := range events {
			switch e.Kind {
			case model.ConditionOnset:
				s.ConditionOnsets++
			case model.Death:
				deaths++
			}
		}
	}
	if s.Patients > 0 {
		s.AvgEventsPerPatient = float64(s.TotalEvents) / float64(s.Patients)
		s.DeathFraction = float64(deaths) / float64(s.Patients)
	}
	return s
}

// FileReporter writes the summary to <dir>/sim/summary.json.
type FileReporter struct {
	Dir string
}

// Report writes the summary, creating the sim directory if needed.
func (r FileReporter) Report(s Summary) error {
	dir := filepath.Join(r.Dir, "sim")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	data = append(data, '\n')
	path := filepath.Join(dir, "summary.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// WriterReporter streams the summary as JSON to an io.Writer.
type WriterReporter struct {
	W io.Writer
}

// Report encodes the summary onto the writer.
func (r WriterReporter) Report(s Summary) error {
	enc := json.NewEncoder(r.W)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// MultiReporter fans a summary out to several reporters, stopping on the
// first failure.
type MultiReporter []Reporter

// Report delivers to each reporter in order.
func (m MultiReporter) Report(s Summary) error {
	for _, r := range m {
		if err := r.Report(s); err != nil {
			return err
		}
	}
	return nil
}
