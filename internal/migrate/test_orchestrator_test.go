package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"synthmigrate/internal/classify"
	"synthmigrate/internal/generate"
	"synthmigrate/internal/monitor"
)

type memWriter struct {
	mu      sync.Mutex
	configs []string
	reports int
	failFor string
}

func (w *memWriter) WriteConfig(_ context.Context, runID string, cfg generate.Config) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cfg.MonitorID == w.failFor {
		return "", errors.New("disk full")
	}
	dir := "lightweight"
	if cfg.Format == classify.FormatJourney {
		dir = "journey"
	}
	path := dir + "/" + cfg.Doc.DocID()
	w.configs = append(w.configs, path)
	return path, nil
}

func (w *memWriter) WriteReport(_ context.Context, rep *Report) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reports++
	return "reports/" + rep.RunID + ".json", nil
}

type mapSource map[string]monitor.Record

func (s mapSource) FetchMonitor(_ context.Context, id string) (monitor.Record, error) {
	rec, ok := s[id]
	if !ok {
		return monitor.Record{}, fmt.Errorf("monitor %s: not found", id)
	}
	return rec, nil
}

// hookClassifier runs before on every call, then defers to a rule-only
// classifier.
type hookClassifier struct {
	inner  *classify.Classifier
	before func(rec monitor.Record)
}

func (h *hookClassifier) Classify(ctx context.Context, rec monitor.Record) (classify.Result, error) {
	if h.before != nil {
		h.before(rec)
	}
	return h.inner.Classify(ctx, rec)
}

func ruleClassifier(t *testing.T) *classify.Classifier {
	t.Helper()
	c, err := classify.New(nil, classify.Options{})
	require.NoError(t, err)
	return c
}

func newOrchestrator(t *testing.T, w Writer, opts Options) *Orchestrator {
	t.Helper()
	if opts.RunID == "" {
		opts.RunID = "run-test"
	}
	o, err := New(Deps{Classifier: ruleClassifier(t), Generator: generate.New(generate.Options{}), Writer: w}, opts)
	require.NoError(t, err)
	return o
}

func pingRecord(id string) monitor.Record {
	return monitor.Record{ID: id, Name: "Ping " + id, Kind: monitor.KindPing, Host: "10.0.0.1", CheckInterval: 60, Active: true}
}

func httpRecord(id string) monitor.Record {
	return monitor.Record{ID: id, Name: "Site " + id, Kind: monitor.KindHTTPS, URL: "https://" + id + ".example.com", Active: true}
}

func journeyRecord(id string) monitor.Record {
	return monitor.Record{ID: id, Name: "Flow " + id, Kind: monitor.KindTransaction, Steps: []monitor.Step{
		{Name: "Open", Type: "Navigate", URL: "https://shop.example.com"},
		{Name: "Buy", Type: "Click", Selector: "#buy"},
	}}
}

func loaded(records ...monitor.Record) []Loaded {
	out := make([]Loaded, len(records))
	for i, rec := range records {
		out[i] = Loaded{Record: rec}
	}
	return out
}

func ids(rep *Report) []string {
	out := make([]string, len(rep.Entries))
	for i, e := range rep.Entries {
		out[i] = e.MonitorID
	}
	return out
}

func TestNew_RequiresStages(t *testing.T) {
	_, err := New(Deps{}, Options{})
	require.Error(t, err)
}

func TestRun_MixedBatch(t *testing.T) {
	w := &memWriter{}
	o := newOrchestrator(t, w, Options{})

	records := []monitor.Record{
		pingRecord("p1"),
		{ID: "tx-empty", Name: "Empty flow", Kind: monitor.KindTransaction},
		{ID: "odd", Name: "Odd kind", Kind: "Gopher"},
		journeyRecord("j1"),
		{ID: "bad", Name: "Bad host", Kind: monitor.KindPing, Host: "bad host!"},
		httpRecord("h1"),
	}
	rep := o.Run(context.Background(), loaded(records...))

	require.Equal(t, []string{"p1", "tx-empty", "odd", "j1", "bad", "h1"}, ids(rep))
	require.Equal(t, "run-test", rep.RunID)

	require.Equal(t, StateSucceeded, rep.Entries[0].State)
	require.Equal(t, classify.TargetICMP, rep.Entries[0].TargetKind)
	require.Equal(t, classify.SourceRule, rep.Entries[0].DecisionSource)
	require.Equal(t, "lightweight/monitor-p1", rep.Entries[0].OutputPath)

	require.Equal(t, StateFailed, rep.Entries[1].State)
	require.Equal(t, StageGenerate, rep.Entries[1].Stage)
	require.Contains(t, rep.Entries[1].Error, string(generate.ErrMissingRequiredField))

	require.Equal(t, StageClassify, rep.Entries[2].Stage)
	require.Contains(t, rep.Entries[2].Error, string(classify.ErrUnknownSourceKind))

	require.Equal(t, StateSucceeded, rep.Entries[3].State)
	require.Equal(t, classify.FormatJourney, rep.Entries[3].Format)
	require.Equal(t, "journey/monitor-j1", rep.Entries[3].OutputPath)

	require.Equal(t, StageValidate, rep.Entries[4].Stage)
	require.NotEmpty(t, rep.Entries[4].Violations)
	require.Equal(t, "hosts[0]", rep.Entries[4].Violations[0].Field)

	require.Equal(t, StateSucceeded, rep.Entries[5].State)

	require.Equal(t, Counts{
		Total: 6, Succeeded: 3, Failed: 3, Lightweight: 2, Journey: 1,
		ByStage: map[Stage]int{StageGenerate: 1, StageClassify: 1, StageValidate: 1},
	}, rep.Counts)
	require.Equal(t, 1, w.reports)
	require.Equal(t, "reports/run-test.json", rep.Path)
	require.False(t, rep.FinishedAt.Before(rep.StartedAt))
}

func TestRun_PersistFailure(t *testing.T) {
	w := &memWriter{failFor: "h2"}
	o := newOrchestrator(t, w, Options{})
	rep := o.Run(context.Background(), loaded(httpRecord("h1"), httpRecord("h2"), httpRecord("h3")))

	require.Equal(t, StagePersist, rep.Entries[1].Stage)
	require.Contains(t, rep.Entries[1].Error, "disk full")
	require.Equal(t, 2, rep.Counts.Succeeded)
}

func TestRun_ParseFailuresAreFetchFailures(t *testing.T) {
	w := &memWriter{}
	o := newOrchestrator(t, w, Options{})

	rep := o.Run(context.Background(), []Loaded{
		{Record: pingRecord("p1")},
		{Record: monitor.Record{ID: "item-1", Name: "No guid"}, Err: errors.New("monitor 1: MonitorGuid is empty")},
		{Record: httpRecord("h1")},
	})

	require.Equal(t, []string{"p1", "item-1", "h1"}, ids(rep))
	require.Equal(t, StateSucceeded, rep.Entries[0].State)
	require.Equal(t, StateFailed, rep.Entries[1].State)
	require.Equal(t, StageFetch, rep.Entries[1].Stage)
	require.Equal(t, "No guid", rep.Entries[1].Name)
	require.Contains(t, rep.Entries[1].Error, "MonitorGuid is empty")
	require.Equal(t, StateSucceeded, rep.Entries[2].State)

	require.Equal(t, Counts{
		Total: 3, Succeeded: 2, Failed: 1, Lightweight: 2,
		ByStage: map[Stage]int{StageFetch: 1},
	}, rep.Counts)
	require.Len(t, w.configs, 2)
	require.Equal(t, 1, w.reports)
}

func TestRun_DryRun(t *testing.T) {
	w := &memWriter{}
	o := newOrchestrator(t, w, Options{DryRun: true})
	rep := o.Run(context.Background(), loaded(httpRecord("h1"), journeyRecord("j1")))

	require.Empty(t, w.configs)
	require.Equal(t, 1, w.reports)
	require.True(t, rep.DryRun)
	require.Equal(t, 2, rep.Counts.Succeeded)
	require.Empty(t, rep.Entries[0].OutputPath)
}

func TestRunIDs_FetchStage(t *testing.T) {
	src := mapSource{"h1": httpRecord("h1"), "p1": pingRecord("p1")}
	o, err := New(Deps{
		Classifier: ruleClassifier(t),
		Generator:  generate.New(generate.Options{}),
		Source:     src,
	}, Options{})
	require.NoError(t, err)

	rep := o.RunIDs(context.Background(), []string{"h1", "gone", "p1"})
	require.Equal(t, []string{"h1", "gone", "p1"}, ids(rep))
	require.Equal(t, StateSucceeded, rep.Entries[0].State)
	require.Equal(t, StageFetch, rep.Entries[1].Stage)
	require.Equal(t, StateSucceeded, rep.Entries[2].State)
	require.NotEmpty(t, rep.RunID)
}

func TestRunIDs_WithoutSource(t *testing.T) {
	o := newOrchestrator(t, nil, Options{})
	rep := o.RunIDs(context.Background(), []string{"a"})
	require.Equal(t, StageFetch, rep.Entries[0].Stage)
}

func TestRun_KillSwitch(t *testing.T) {
	var o *Orchestrator
	calls := 0
	hook := &hookClassifier{inner: ruleClassifier(t), before: func(monitor.Record) {
		calls++
		if calls == 2 {
			o.Stop()
		}
	}}
	var err error
	o, err = New(Deps{Classifier: hook, Generator: generate.New(generate.Options{})}, Options{})
	require.NoError(t, err)

	rep := o.Run(context.Background(), loaded(httpRecord("a"), httpRecord("b"), httpRecord("c"), httpRecord("d")))
	require.Len(t, rep.Entries, 4)
	require.Equal(t, StateSucceeded, rep.Entries[0].State)
	require.Equal(t, StateSucceeded, rep.Entries[1].State, "in-flight monitor finishes")
	for _, e := range rep.Entries[2:] {
		require.Equal(t, StateSkipped, e.State)
		require.Equal(t, StageCancelled, e.Stage)
		require.Equal(t, "Site "+e.MonitorID, e.Name)
	}
	require.Equal(t, 2, rep.Counts.Skipped)
	require.Equal(t, 2, calls)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := &memWriter{}
	o := newOrchestrator(t, w, Options{Workers: 4})
	rep := o.Run(ctx, loaded(httpRecord("a"), pingRecord("b")))

	require.Equal(t, 2, rep.Counts.Skipped)
	require.Equal(t, 1, w.reports, "the report is written even when the run is cancelled")
}

func TestRun_ParallelKeepsOrder(t *testing.T) {
	var records []monitor.Record
	for i := 0; i < 60; i++ {
		switch i % 3 {
		case 0:
			records = append(records, httpRecord(fmt.Sprintf("h%d", i)))
		case 1:
			records = append(records, pingRecord(fmt.Sprintf("p%d", i)))
		default:
			records = append(records, monitor.Record{ID: fmt.Sprintf("x%d", i), Kind: "Gopher"})
		}
	}
	slow := &hookClassifier{inner: ruleClassifier(t), before: func(rec monitor.Record) {
		if len(rec.ID)%2 == 0 {
			time.Sleep(time.Millisecond)
		}
	}}
	w := &memWriter{}
	o, err := New(Deps{Classifier: slow, Generator: generate.New(generate.Options{}), Writer: w}, Options{Workers: 8})
	require.NoError(t, err)

	rep := o.Run(context.Background(), loaded(records...))
	require.Len(t, rep.Entries, len(records))
	for i, rec := range records {
		require.Equal(t, rec.ID, rep.Entries[i].MonitorID)
	}
	require.Equal(t, 40, rep.Counts.Succeeded)
	require.Equal(t, 20, rep.Counts.ByStage[StageClassify])
	require.Len(t, w.configs, 40)
}

func TestRun_BatchSizeProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	o := newOrchestrator(t, nil, Options{Workers: 3})
	builders := []func(string) monitor.Record{
		httpRecord, pingRecord, journeyRecord,
		func(id string) monitor.Record { return monitor.Record{ID: id, Kind: monitor.KindTransaction} },
		func(id string) monitor.Record { return monitor.Record{ID: id, Kind: "Unknown"} },
		func(id string) monitor.Record { return monitor.Record{ID: id, Kind: monitor.KindTCP} },
	}

	properties.Property("one entry per input monitor, in input order", prop.ForAll(
		func(kinds []int) bool {
			records := make([]monitor.Record, len(kinds))
			for i, k := range kinds {
				records[i] = builders[k](fmt.Sprintf("m%d", i))
			}
			rep := o.Run(context.Background(), loaded(records...))
			if len(rep.Entries) != len(records) || rep.Counts.Total != len(records) {
				return false
			}
			for i := range records {
				if rep.Entries[i].MonitorID != records[i].ID {
					return false
				}
			}
			return rep.Counts.Succeeded+rep.Counts.Failed+rep.Counts.Skipped == len(records)
		},
		gen.SliceOf(gen.IntRange(0, len(builders)-1)),
	))

	properties.TestingRun(t)
}
