package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careforge/cohort/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cohort.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEvents(pid string) []model.Event {
	return []model.Event{
		{
			ID:   model.EventID(pid, 0),
			PID:  pid,
			Time: 12.5,
			Kind: model.EncounterStarted,
			Meta: model.Attributes{"kind": model.String("PCP")},
		},
		{
			ID:        model.EventID(pid, 1),
			PID:       pid,
			Time:      12.5,
			Kind:      model.ObservationOrdered,
			RelatesTo: model.EventID(pid, 0),
			Meta:      model.Attributes{"loinc": model.String("4548-4")},
		},
		{
			ID:   model.EventID(pid, 2),
			PID:  pid,
			Time: 13.5,
			Kind: model.ObservationResulted,
			Meta: model.Attributes{
				"loinc": model.String("4548-4"),
				"value": model.Number(6.8),
			},
		},
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := openTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
}

func TestOpen_Idempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cohort.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestWriteEvents_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := Run{ID: "run-1", Seed: 42, WorldVersion: "1.0", Patients: 1, HorizonDays: 1825}
	require.NoError(t, s.WriteRun(ctx, run))

	in := sampleEvents("p0")
	require.NoError(t, s.WriteEvents(ctx, run.ID, in))

	out, err := s.ReadEvents(ctx, run.ID, "p0")
	require.NoError(t, err)
	require.Len(t, out, len(in))

	for i := range in {
		assert.Equal(t, in[i].ID, out[i].ID)
		assert.Equal(t, in[i].Time, out[i].Time)
		assert.Equal(t, in[i].Kind, out[i].Kind)
		assert.Equal(t, in[i].RelatesTo, out[i].RelatesTo)
		assert.Equal(t, in[i].Meta, out[i].Meta)
	}
}

func TestWriteEvents_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteRun(ctx, Run{ID: "run-1", Seed: 1, WorldVersion: "1.0", Patients: 1, HorizonDays: 30}))

	in := sampleEvents("p0")
	require.NoError(t, s.WriteEvents(ctx, "run-1", in))
	require.NoError(t, s.WriteEvents(ctx, "run-1", in))

	out, err := s.ReadEvents(ctx, "run-1", "p0")
	require.NoError(t, err)
	assert.Len(t, out, len(in))
}

func TestWriteRun_DuplicateIgnored(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := Run{ID: "run-1", Seed: 7, WorldVersion: "1.0", Patients: 10, HorizonDays: 365}
	require.NoError(t, s.WriteRun(ctx, run))

	run.Seed = 8
	require.NoError(t, s.WriteRun(ctx, run))

	var seed int64
	require.NoError(t, s.DB().QueryRow("SELECT seed FROM runs WHERE id = ?", run.ID).Scan(&seed))
	assert.Equal(t, int64(7), seed, "first write wins")
}

func TestPatients_SortedByteOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteRun(ctx, Run{ID: "run-1", Seed: 1, WorldVersion: "1.0", Patients: 2, HorizonDays: 30}))
	require.NoError(t, s.WriteEvents(ctx, "run-1", sampleEvents("p1")))
	require.NoError(t, s.WriteEvents(ctx, "run-1", sampleEvents("p0")))

	pids, err := s.Patients(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p0", "p1"}, pids)
}

func TestCountByKind(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteRun(ctx, Run{ID: "run-1", Seed: 1, WorldVersion: "1.0", Patients: 1, HorizonDays: 30}))
	require.NoError(t, s.WriteEvents(ctx, "run-1", sampleEvents("p0")))

	counts, err := s.CountByKind(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.EncounterStarted])
	assert.Equal(t, 1, counts[model.ObservationOrdered])
	assert.Equal(t, 1, counts[model.ObservationResulted])
}

func TestReadEvents_EmptyRun(t *testing.T) {
	s := openTestStore(t)

	out, err := s.ReadEvents(context.Background(), "absent", "p0")
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}
