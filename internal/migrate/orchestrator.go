package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"synthmigrate/internal/classify"
	"synthmigrate/internal/generate"
	"synthmigrate/internal/monitor"
	"synthmigrate/internal/validate"
)

type Classifier interface {
	Classify(ctx context.Context, rec monitor.Record) (classify.Result, error)
}

type Generator interface {
	Generate(rec monitor.Record, cls classify.Result) (generate.Config, error)
}

// Source fetches monitor definitions by id.
type Source interface {
	FetchMonitor(ctx context.Context, id string) (monitor.Record, error)
}

// Writer persists validated configs and the finished report. Where a config
// lands depends only on its output format.
type Writer interface {
	WriteConfig(ctx context.Context, runID string, cfg generate.Config) (string, error)
	WriteReport(ctx context.Context, rep *Report) (string, error)
}

type Deps struct {
	Classifier Classifier
	Generator  Generator
	// Validate defaults to validate.Validate.
	Validate func(generate.Config) (validate.Result, error)
	// Source is required by RunIDs only.
	Source Source
	// Writer may be nil; configs and the report are then not persisted.
	Writer Writer
}

type Options struct {
	// Workers > 1 processes monitors concurrently; report order is unchanged.
	Workers int
	// DryRun validates without writing configs. The report is still written.
	DryRun bool
	Logger *log.Logger
	RunID  string
	Now    func() time.Time
}

// Orchestrator drives each monitor through fetch, classify, generate,
// validate and persist, and collects one report entry per monitor.
type Orchestrator struct {
	deps    Deps
	opts    Options
	logger  *log.Logger
	stopped atomic.Bool
}

func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Classifier == nil || deps.Generator == nil {
		return nil, errors.New("migrate: classifier and generator are required")
	}
	if deps.Validate == nil {
		deps.Validate = validate.Validate
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Orchestrator{deps: deps, opts: opts, logger: logger}, nil
}

// Stop is the kill switch: monitors not yet started are skipped, monitors in
// flight run to completion.
func (o *Orchestrator) Stop() { o.stopped.Store(true) }

func (o *Orchestrator) halted(ctx context.Context) bool {
	return o.stopped.Load() || ctx.Err() != nil
}

type job struct {
	id  string
	rec *monitor.Record
	err error
}

// Loaded is a monitor read ahead of the run. A non-nil Err marks an input
// that could not be parsed; it is reported as failed at the fetch stage and
// Record only needs to carry its id and name.
type Loaded struct {
	Record monitor.Record
	Err    error
}

// Run migrates monitors that were loaded before the run, typically from an
// export file.
func (o *Orchestrator) Run(ctx context.Context, items []Loaded) *Report {
	jobs := make([]job, len(items))
	for i := range items {
		rec := items[i].Record
		jobs[i] = job{id: rec.ID, rec: &rec, err: items[i].Err}
	}
	return o.run(ctx, jobs)
}

// RunIDs fetches each monitor from the Source before migrating it.
func (o *Orchestrator) RunIDs(ctx context.Context, ids []string) *Report {
	jobs := make([]job, len(ids))
	for i, id := range ids {
		jobs[i] = job{id: strings.TrimSpace(id)}
	}
	return o.run(ctx, jobs)
}

func (o *Orchestrator) run(ctx context.Context, jobs []job) *Report {
	runID := o.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	rep := newReport(runID, len(jobs), o.opts.Now().UTC())
	rep.DryRun = o.opts.DryRun
	n := len(jobs)
	o.logger.Printf("run %s: migrating %d monitor(s) with %d worker(s)", runID, n, o.opts.Workers)

	// Each goroutine writes only its own index, so no lock is needed.
	process := func(i int) {
		if o.halted(ctx) {
			rep.Entries[i] = skipped(jobs[i])
			return
		}
		rep.Entries[i] = o.migrateOne(context.WithoutCancel(ctx), runID, jobs[i], i+1, n)
	}

	if o.opts.Workers == 1 {
		for i := range jobs {
			process(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(o.opts.Workers)
		for i := range jobs {
			if o.halted(ctx) {
				rep.Entries[i] = skipped(jobs[i])
				continue
			}
			g.Go(func() error {
				process(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	rep.Finalize(o.opts.Now().UTC())
	c := rep.Counts
	o.logger.Printf("run %s: %d succeeded (%d lightweight, %d journey), %d failed, %d skipped",
		runID, c.Succeeded, c.Lightweight, c.Journey, c.Failed, c.Skipped)

	if o.deps.Writer != nil {
		path, err := o.deps.Writer.WriteReport(context.WithoutCancel(ctx), rep)
		if err != nil {
			rep.PersistError = err.Error()
			o.logger.Printf("run %s: write report: %v", runID, err)
		} else {
			rep.Path = path
			o.logger.Printf("run %s: report written to %s", runID, path)
		}
	}
	return rep
}

func skipped(j job) Entry {
	e := Entry{MonitorID: j.id, State: StateSkipped, Stage: StageCancelled, Error: "run stopped before this monitor started"}
	if j.rec != nil {
		e.Name, e.SourceKind = j.rec.Name, j.rec.Kind
	}
	return e
}

func (o *Orchestrator) migrateOne(ctx context.Context, runID string, j job, pos, n int) Entry {
	entry := Entry{MonitorID: j.id}
	fail := func(stage Stage, err error) Entry {
		entry.State, entry.Stage, entry.Error = StateFailed, stage, err.Error()
		o.logger.Printf("[%d/%d] %s: failed at %s: %v", pos, n, label(entry), stage, err)
		return entry
	}

	var rec monitor.Record
	switch {
	case j.err != nil:
		if j.rec != nil {
			entry.Name, entry.SourceKind = j.rec.Name, j.rec.Kind
		}
		return fail(StageFetch, j.err)
	case j.rec != nil:
		rec = *j.rec
	default:
		if o.deps.Source == nil {
			return fail(StageFetch, errors.New("no monitor source configured"))
		}
		fetched, err := o.deps.Source.FetchMonitor(ctx, j.id)
		if err != nil {
			return fail(StageFetch, err)
		}
		rec = fetched
	}
	entry.Name, entry.SourceKind = rec.Name, rec.Kind
	if entry.MonitorID == "" {
		entry.MonitorID = rec.ID
	}

	cls, err := o.deps.Classifier.Classify(ctx, rec)
	if err != nil {
		return fail(StageClassify, err)
	}
	entry.TargetKind, entry.Format, entry.DecisionSource = cls.Kind, cls.Format, cls.Source
	entry.Confidence, entry.Rationale = cls.Confidence, cls.Rationale
	o.logger.Printf("[%d/%d] %s → %s (%s)", pos, n, label(entry), cls.Kind, cls.Source)

	cfg, err := o.deps.Generator.Generate(rec, cls)
	if err != nil {
		return fail(StageGenerate, err)
	}

	res, err := o.deps.Validate(cfg)
	if err != nil {
		return fail(StageValidate, err)
	}
	if !res.Passed {
		entry.Violations = res.Violations
		return fail(StageValidate, fmt.Errorf("%d violation(s): %s", len(res.Violations), strings.Join(res.Messages(), "; ")))
	}

	if !o.opts.DryRun && o.deps.Writer != nil {
		path, err := o.deps.Writer.WriteConfig(ctx, runID, cfg)
		if err != nil {
			return fail(StagePersist, err)
		}
		entry.OutputPath = path
	}
	entry.State = StateSucceeded
	return entry
}

func label(e Entry) string {
	if e.Name != "" {
		return e.Name
	}
	return e.MonitorID
}
