package store

import (
	"context"
	"fmt"

	"github.com/careforge/cohort/internal/model"
)

// Run records the provenance of one simulation run.
type Run struct {
	ID           string
	Seed         uint32
	WorldVersion string
	Patients     int
	HorizonDays  float64
}

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency. Duplicate run IDs are
// silently ignored so a re-export never duplicates provenance.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, seed, world_version, patients, horizon_days)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		int64(run.Seed),
		run.WorldVersion,
		run.Patients,
		run.HorizonDays,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteEvents appends one patient's event log to a run inside a single
// transaction. The seq column is the event's position in the log, so the
// insert is idempotent under the (run_id, pid, seq) primary key.
//
// Meta is serialized to canonical JSON so stored logs compare byte-for-byte
// across runs of the same seed.
func (s *Store) WriteEvents(ctx context.Context, runID string, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events
		(run_id, pid, seq, event_id, t, kind, relates_to, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, pid, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	for seq, e := range events {
		meta := e.Meta
		if meta == nil {
			meta = model.Attributes{}
		}
		metaJSON, err := model.MarshalCanonical(meta)
		if err != nil {
			return fmt.Errorf("write events: marshal meta for %s: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			runID,
			e.PID,
			seq,
			e.ID,
			e.Time,
			string(e.Kind),
			e.RelatesTo,
			string(metaJSON),
		); err != nil {
			return fmt.Errorf("write events: insert %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: commit: %w", err)
	}
	return nil
}
