package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"synthmigrate/internal/classify"
	"synthmigrate/internal/config"
	"synthmigrate/internal/history"
	"synthmigrate/internal/migrate"
	"synthmigrate/internal/tester"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestWatchInterrupts_SecondSignalExits(t *testing.T) {
	sigs := make(chan os.Signal, 2)
	sigs <- syscall.SIGINT
	sigs <- syscall.SIGINT

	stops, code := 0, -1
	watchInterrupts(sigs, func() { stops++ }, func(c int) { code = c }, quietLogger())
	tester.Eq(t, stops, 1)
	tester.Eq(t, code, 130)
}

func TestWatchInterrupts_SingleSignalOnlyStops(t *testing.T) {
	sigs := make(chan os.Signal, 1)
	sigs <- syscall.SIGTERM
	close(sigs)

	stops, code := 0, -1
	watchInterrupts(sigs, func() { stops++ }, func(c int) { code = c }, quietLogger())
	tester.Eq(t, stops, 1)
	tester.Eq(t, code, -1)
}

func recordRun(t *testing.T, store *history.Store, runID string, finished time.Time) {
	t.Helper()
	rep := &migrate.Report{
		RunID:     runID,
		StartedAt: finished.Add(-time.Minute),
		Entries: []migrate.Entry{
			{MonitorID: "ok-1", State: migrate.StateSucceeded, Format: classify.FormatLightweight},
			{MonitorID: "bad-1", State: migrate.StateFailed, Stage: migrate.StageValidate},
			{MonitorID: "late-1", State: migrate.StateSkipped, Stage: migrate.StageCancelled},
		},
		Path: "reports/" + runID + ".json",
	}
	rep.Finalize(finished)
	tester.NoErr(t, store.Record(context.Background(), rep))
}

func TestPrintHistory(t *testing.T) {
	ctx := context.Background()
	store := history.New(filepath.Join(t.TempDir(), "history.json"))
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	recordRun(t, store, "run-a", base)
	recordRun(t, store, "run-b", base.Add(time.Hour))

	var out bytes.Buffer
	tester.NoErr(t, printHistory(ctx, &out, store, config.RunConfig{History: 1}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	tester.Eq(t, len(lines), 2)
	tester.True(t, strings.HasPrefix(lines[1], "run-b "), lines[1])

	out.Reset()
	tester.NoErr(t, printHistory(ctx, &out, store, config.RunConfig{ShowRun: "run-a"}))
	text := out.String()
	tester.True(t, strings.Contains(text, "3 total, 1 succeeded, 1 failed, 1 skipped"), text)
	tester.True(t, strings.Contains(text, "reports/run-a.json"), text)
	tester.True(t, strings.Contains(text, "bad-1"), text)
	tester.True(t, strings.Contains(text, "late-1"), text)
	tester.False(t, strings.Contains(text, "ok-1"), text)

	err := printHistory(ctx, io.Discard, store, config.RunConfig{ShowRun: "run-z"})
	tester.True(t, err != nil)
}
