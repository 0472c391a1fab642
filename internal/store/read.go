package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/careforge/cohort/internal/model"
)

// ReadEvents returns one patient's event log for a run.
// Results are ordered by seq, which is log order by construction.
//
// Returns an empty slice (not nil) if no records exist.
func (s *Store) ReadEvents(ctx context.Context, runID, pid string) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, pid, t, kind, relates_to, meta
		FROM events
		WHERE run_id = ? AND pid = ?
		ORDER BY seq ASC
	`, runID, pid)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var (
			e        model.Event
			kind     string
			metaJSON string
		)
		if err := rows.Scan(&e.ID, &e.PID, &e.Time, &kind, &e.RelatesTo, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = model.EventKind(kind)
		var meta model.Attributes
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("decode meta for %s: %w", e.ID, err)
		}
		if len(meta) > 0 {
			e.Meta = meta
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// Patients returns the distinct patient ids recorded for a run, in byte order.
func (s *Store) Patients(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT pid FROM events
		WHERE run_id = ?
		ORDER BY pid COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	pids := []string{}
	for rows.Next() {
		var pid string
		if err := rows.Scan(&pid); err != nil {
			return nil, fmt.Errorf("scan pid: %w", err)
		}
		pids = append(pids, pid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return pids, nil
}

// CountByKind returns per-kind event counts for a run.
func (s *Store) CountByKind(ctx context.Context, runID string) (map[model.EventKind]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM events
		WHERE run_id = ?
		GROUP BY kind
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := map[model.EventKind]int{}
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[model.EventKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}
