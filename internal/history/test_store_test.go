package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"synthmigrate/internal/classify"
	"synthmigrate/internal/migrate"
	"synthmigrate/internal/tester"
)

func report(runID string, started time.Time) *migrate.Report {
	rep := &migrate.Report{
		RunID:     runID,
		StartedAt: started,
		Entries: []migrate.Entry{
			{MonitorID: "a", State: migrate.StateSucceeded, Format: classify.FormatLightweight},
			{MonitorID: "b", State: migrate.StateFailed, Stage: migrate.StageValidate},
			{MonitorID: "c", State: migrate.StateSucceeded, Format: classify.FormatJourney},
		},
		Path: "reports/" + runID + ".json",
	}
	rep.Finalize(started.Add(time.Minute))
	return rep
}

func TestFileStore_RecordAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "history.json")
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	s := New(path)
	tester.NoErr(t, s.Record(ctx, report("r1", base)))
	tester.NoErr(t, s.Record(ctx, report("r2", base.Add(time.Hour))))

	reopened := New(path)
	run, ok, err := reopened.Get(ctx, "r1")
	tester.NoErr(t, err)
	tester.True(t, ok)
	tester.Eq(t, run.Counts.Total, 3)
	tester.Eq(t, run.Counts.Journey, 1)
	tester.Eq(t, run.Failed(), []string{"b"})
	tester.Eq(t, run.ReportPath, "reports/r1.json")

	runs, err := reopened.List(ctx, 0)
	tester.NoErr(t, err)
	tester.Eq(t, len(runs), 2)
	tester.Eq(t, runs[0].RunID, "r2")
	tester.True(t, runs[0].Entries == nil, "listings omit entries")

	runs, err = reopened.List(ctx, 1)
	tester.NoErr(t, err)
	tester.Eq(t, len(runs), 1)
}

func TestFileStore_RecordReplaces(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "history.json"))
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rep := report("r1", base)
	tester.NoErr(t, s.Record(ctx, rep))
	rep.Entries = rep.Entries[:1]
	rep.Finalize(base.Add(time.Minute))
	tester.NoErr(t, s.Record(ctx, rep))

	run, ok, err := s.Get(ctx, "r1")
	tester.NoErr(t, err)
	tester.True(t, ok)
	tester.Eq(t, run.Counts.Total, 1)
}

func TestStore_RejectsMissingRunID(t *testing.T) {
	s := New("")
	tester.True(t, s.Record(context.Background(), &migrate.Report{}) != nil)
	tester.True(t, s.Record(context.Background(), nil) != nil)

	_, ok, err := s.Get(context.Background(), "  ")
	tester.NoErr(t, err)
	tester.False(t, ok)
}

func TestOpen_EmptyDSNUsesFile(t *testing.T) {
	s, err := Open(context.Background(), "", filepath.Join(t.TempDir(), "h.json"))
	tester.NoErr(t, err)
	tester.True(t, s.db == nil)
	tester.NoErr(t, s.Close())
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("HISTORY_PG_DSN")
	if dsn == "" {
		t.Skip("HISTORY_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgres(ctx, dsn)
	tester.NoErr(t, err)
	defer s.Close()

	runID := "test-" + time.Now().UTC().Format("20060102150405.000000000")
	tester.NoErr(t, s.Record(ctx, report(runID, time.Now().UTC().Truncate(time.Second))))

	s.runCache.Purge()
	run, ok, err := s.Get(ctx, runID)
	tester.NoErr(t, err)
	tester.True(t, ok)
	tester.Eq(t, run.Counts.Succeeded, 2)
	tester.Eq(t, len(run.Entries), 3)

	_, ok, err = s.Get(ctx, runID+"-missing")
	tester.NoErr(t, err)
	tester.False(t, ok)
}
