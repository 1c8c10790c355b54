package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

func (s *Store) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS migration_runs (
  run_id TEXT PRIMARY KEY,
  started_at TIMESTAMP WITH TIME ZONE NOT NULL,
  finished_at TIMESTAMP WITH TIME ZONE NOT NULL,
  dry_run BOOLEAN NOT NULL DEFAULT FALSE,
  total INTEGER NOT NULL DEFAULT 0,
  succeeded INTEGER NOT NULL DEFAULT 0,
  failed INTEGER NOT NULL DEFAULT 0,
  skipped INTEGER NOT NULL DEFAULT 0,
  lightweight INTEGER NOT NULL DEFAULT 0,
  journey INTEGER NOT NULL DEFAULT 0,
  report_path TEXT NOT NULL DEFAULT '',
  counts JSONB NOT NULL DEFAULT '{}'::jsonb,
  entries JSONB NOT NULL DEFAULT '[]'::jsonb
);
CREATE INDEX IF NOT EXISTS idx_migration_runs_started_at ON migration_runs (started_at DESC);
`)
	})
	return s.schemaErr
}

func (s *Store) putDB(ctx context.Context, run Run) error {
	if err := s.ensureSchema(ctx); err != nil {
		return fmt.Errorf("history schema: %w", err)
	}
	counts, err := json.Marshal(run.Counts)
	if err != nil {
		return err
	}
	entries, err := json.Marshal(run.Entries)
	if err != nil {
		return err
	}
	c := run.Counts
	_, err = s.db.ExecContext(ctx, `
INSERT INTO migration_runs (
  run_id, started_at, finished_at, dry_run, total, succeeded, failed, skipped,
  lightweight, journey, report_path, counts, entries
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (run_id)
DO UPDATE SET started_at=EXCLUDED.started_at,
  finished_at=EXCLUDED.finished_at,
  dry_run=EXCLUDED.dry_run,
  total=EXCLUDED.total,
  succeeded=EXCLUDED.succeeded,
  failed=EXCLUDED.failed,
  skipped=EXCLUDED.skipped,
  lightweight=EXCLUDED.lightweight,
  journey=EXCLUDED.journey,
  report_path=EXCLUDED.report_path,
  counts=EXCLUDED.counts,
  entries=EXCLUDED.entries`,
		run.RunID, run.StartedAt, run.FinishedAt, run.DryRun, c.Total, c.Succeeded, c.Failed, c.Skipped,
		c.Lightweight, c.Journey, run.ReportPath, string(counts), string(entries))
	if err != nil {
		return fmt.Errorf("history insert %s: %w", run.RunID, err)
	}
	return nil
}

func (s *Store) getDB(ctx context.Context, runID string) (Run, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return Run{}, false, err
	}
	var (
		run     Run
		counts  []byte
		entries []byte
	)
	err := s.db.QueryRowContext(ctx, `SELECT run_id, started_at, finished_at, dry_run, report_path, counts, entries
FROM migration_runs WHERE run_id = $1`, runID).
		Scan(&run.RunID, &run.StartedAt, &run.FinishedAt, &run.DryRun, &run.ReportPath, &counts, &entries)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, err
	}
	if err := json.Unmarshal(counts, &run.Counts); err != nil {
		return Run{}, false, fmt.Errorf("history %s counts: %w", runID, err)
	}
	if err := json.Unmarshal(entries, &run.Entries); err != nil {
		return Run{}, false, fmt.Errorf("history %s entries: %w", runID, err)
	}
	return run, true, nil
}

func (s *Store) listDB(ctx context.Context, limit int) ([]Run, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	query := `SELECT run_id, started_at, finished_at, dry_run, report_path, counts
FROM migration_runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Run, 0, 16)
	for rows.Next() {
		var (
			run    Run
			counts []byte
		)
		if err := rows.Scan(&run.RunID, &run.StartedAt, &run.FinishedAt, &run.DryRun, &run.ReportPath, &counts); err != nil {
			continue
		}
		_ = json.Unmarshal(counts, &run.Counts)
		out = append(out, run)
	}
	return out, rows.Err()
}
