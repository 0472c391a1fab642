package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careforge/cohort/internal/model"
	"github.com/careforge/cohort/internal/modules"
)

func testPatients() []*modules.Patient {
	return []*modules.Patient{
		{
			ID: "p0",
			Events: []model.Record{
				{T: 40, Type: model.RecEncounter, Payload: model.EncounterPayload{Kind: "PCP"}},
				{T: 42, Type: model.RecDiagnosis, Payload: model.DiagnosisPayload{Code: "E66", Name: "Obesity"}},
				{T: 80, Type: model.RecDeath, Payload: model.DeathPayload{}},
			},
		},
		{
			ID: "p1",
			Events: []model.Record{
				{T: 30, Type: model.RecEncounter, Payload: model.EncounterPayload{Kind: "PCP"}},
			},
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(testPatients())

	assert.Equal(t, 2, s.Patients)
	assert.Equal(t, 4, s.TotalEvents)
	assert.Equal(t, 2.0, s.AvgEventsPerPatient)
	assert.Equal(t, 1, s.ConditionOnsets)
	assert.Equal(t, 0.5, s.DeathFraction)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)

	assert.Equal(t, 0, s.Patients)
	assert.Equal(t, 0.0, s.AvgEventsPerPatient)
	assert.Equal(t, 0.0, s.DeathFraction)
}

func TestSummarizeEvents(t *testing.T) {
	logs := [][]model.Event{
		{
			{Kind: model.EncounterStarted},
			{Kind: model.ConditionOnset},
			{Kind: model.Death},
		},
		{
			{Kind: model.EncounterStarted},
		},
	}

	s := SummarizeEvents(logs)

	assert.Equal(t, 2, s.Patients)
	assert.Equal(t, 4, s.TotalEvents)
	assert.Equal(t, 1, s.ConditionOnsets)
	assert.Equal(t, 0.5, s.DeathFraction)
}

func TestFileReporter_WritesSummaryJSON(t *testing.T) {
	dir := t.TempDir()
	s := Summarize(testPatients())

	require.NoError(t, FileReporter{Dir: dir}.Report(s))

	data, err := os.ReadFile(filepath.Join(dir, "sim", "summary.json"))
	require.NoError(t, err)

	var got Summary
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, s, got)
}

func TestWriterReporter(t *testing.T) {
	var buf bytes.Buffer
	s := Summary{Patients: 3, TotalEvents: 9, AvgEventsPerPatient: 3}

	require.NoError(t, WriterReporter{W: &buf}.Report(s))

	var got Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, s, got)
}

func TestMultiReporter_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	m := MultiReporter{WriterReporter{W: &a}, WriterReporter{W: &b}}

	require.NoError(t, m.Report(Summary{Patients: 1}))

	assert.NotEmpty(t, a.Bytes())
	assert.Equal(t, a.Bytes(), b.Bytes())
}
