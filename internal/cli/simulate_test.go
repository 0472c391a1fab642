package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careforge/cohort/internal/report"
	"github.com/careforge/cohort/internal/store"
)

// execute runs the CLI with args and returns combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func readSummary(t *testing.T, out string) report.Summary {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(out, "sim", "summary.json"))
	require.NoError(t, err)
	var s report.Summary
	require.NoError(t, json.Unmarshal(data, &s))
	return s
}

func TestSimulate_ModulesRuntime(t *testing.T) {
	out := t.TempDir()

	stdout, err := execute(t, "simulate", "--n", "5", "--seed", "123", "--out", out)
	require.NoError(t, err)

	s := readSummary(t, out)
	assert.Equal(t, 5, s.Patients)
	assert.Greater(t, s.TotalEvents, 0)

	// The summary is also printed to stdout.
	var printed report.Summary
	require.NoError(t, json.Unmarshal([]byte(stdout), &printed))
	assert.Equal(t, s, printed)
}

func TestSimulate_WritesPatientsArray(t *testing.T) {
	out := t.TempDir()

	_, err := execute(t, "simulate", "--n", "3", "--seed", "123", "--out", out)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(out, "patients.json"))
	require.NoError(t, err)

	var patients []struct {
		ID     string `json:"id"`
		Events []struct {
			T    float64 `json:"t"`
			Type string  `json:"type"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(data, &patients))
	require.Len(t, patients, 3)
	for i, p := range patients {
		assert.Equal(t, fmt.Sprintf("p%d", i), p.ID)
		assert.NotEmpty(t, p.Events)
	}
}

func TestSimulate_KernelRuntimeWithExports(t *testing.T) {
	out := t.TempDir()
	db := filepath.Join(t.TempDir(), "events.db")

	_, err := execute(t, "simulate",
		"--runtime", "kernel",
		"--n", "2",
		"--seed", "1",
		"--horizonDays", "1825",
		"--out", out,
		"--db", db,
		"--fhir")
	require.NoError(t, err)

	s := readSummary(t, out)
	assert.Equal(t, 2, s.Patients)

	// FHIR bundles landed per patient.
	for _, pid := range []string{"p0", "p1"} {
		_, err := os.Stat(filepath.Join(out, "fhir", pid+".json"))
		assert.NoError(t, err, "missing bundle for %s", pid)
	}

	// The kernel path writes a patients array of pid-tagged event logs.
	data, err := os.ReadFile(filepath.Join(out, "patients.json"))
	require.NoError(t, err)
	var plogs []struct {
		PID    string            `json:"pid"`
		Events []json.RawMessage `json:"events"`
	}
	require.NoError(t, json.Unmarshal(data, &plogs))
	require.Len(t, plogs, 2)
	assert.Equal(t, "p0", plogs[0].PID)
	assert.Equal(t, "p1", plogs[1].PID)

	// The event log is queryable from the export.
	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	pids, err := st.Patients(context.Background(), "seed1-n2")
	require.NoError(t, err)
	assert.Equal(t, []string{"p0", "p1"}, pids)
}

func TestSimulate_Deterministic(t *testing.T) {
	outA := t.TempDir()
	outB := t.TempDir()

	_, err := execute(t, "simulate", "--n", "3", "--seed", "9", "--out", outA)
	require.NoError(t, err)
	_, err = execute(t, "simulate", "--n", "3", "--seed", "9", "--out", outB)
	require.NoError(t, err)

	a, err := os.ReadFile(filepath.Join(outA, "sim", "summary.json"))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(outB, "sim", "summary.json"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSimulate_RejectsBadRuntime(t *testing.T) {
	_, err := execute(t, "simulate", "--runtime", "threads", "--out", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitConfig, GetExitCode(err))
}

func TestSimulate_RejectsZeroPatients(t *testing.T) {
	_, err := execute(t, "simulate", "--n", "0", "--out", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitConfig, GetExitCode(err))
}

func TestSimulate_ConfigFile(t *testing.T) {
	out := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("n: 4\nseed: 11\n"), 0o644))

	_, err := execute(t, "simulate", "--config", cfgPath, "--out", out)
	require.NoError(t, err)

	s := readSummary(t, out)
	assert.Equal(t, 4, s.Patients)
}

func TestSimulate_UnknownWorldModule(t *testing.T) {
	dir := t.TempDir()
	manifest := `{
  "version": "1.0",
  "seed": 1,
  "model": "builtin",
  "categories": [],
  "attributeModules": [{"id": "astrology", "path": "x", "category": "y", "declaredCount": 1}],
  "diseaseModules": [],
  "acceptance": {"attributesAccepted": 1, "attributesAttempted": 1, "diseasesAccepted": 0, "diseasesAttempted": 0}
}`
	path := filepath.Join(dir, "world.json")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))

	_, err := execute(t, "simulate", "--world", path, "--out", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitConfig, GetExitCode(err))
	assert.Contains(t, err.Error(), "astrology")
}
