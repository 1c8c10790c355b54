package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"synthmigrate/internal/artifact"
	"synthmigrate/internal/classify"
	"synthmigrate/internal/config"
	"synthmigrate/internal/generate"
	"synthmigrate/internal/history"
	"synthmigrate/internal/llm"
	"synthmigrate/internal/logging"
	"synthmigrate/internal/migrate"
	"synthmigrate/internal/uptrends"
)

func main() {
	logger := logging.New()
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Printf("config: %v", err)
		os.Exit(2)
	}
	os.Exit(run(cfg, logger))
}

func run(cfg *config.Config, logger *log.Logger) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.InspectsHistory() {
		return inspectHistory(ctx, cfg.History, cfg.Run, logger)
	}

	var client *uptrends.Client
	if cfg.NeedsUptrends() {
		c, err := uptrends.New(cfg.Uptrends.Username, cfg.Uptrends.Password, uptrends.Options{
			BaseURL: cfg.Uptrends.BaseURL,
			RPS:     cfg.Uptrends.RPS,
			Retry:   cfg.Retry,
		})
		if err != nil {
			logger.Printf("uptrends: %v", err)
			return 2
		}
		client = c
	}

	if cfg.Run.List {
		return listMonitors(ctx, client, cfg.Run.Pattern, cfg.Run.Limit, logger)
	}

	calls := &llm.Counter{}
	model, err := buildModel(ctx, cfg.Model, calls, logger)
	if err != nil {
		logger.Printf("model: %v", err)
		return 2
	}
	if model != nil {
		defer model.Close()
	}
	classifier, err := classify.New(model, classify.Options{
		Retry:         cfg.Retry,
		MinConfidence: cfg.Model.MinConfidence,
	})
	if err != nil {
		logger.Printf("classifier: %v", err)
		return 2
	}

	store, err := buildStore(cfg)
	if err != nil {
		logger.Printf("artifact store: %v", err)
		return 2
	}

	deps := migrate.Deps{
		Classifier: classifier,
		Generator:  generate.New(generate.Options{Locations: cfg.Locations}),
		Writer:     artifact.NewPublisher(store),
	}
	if client != nil {
		deps.Source = client
	}
	orch, err := migrate.New(deps, migrate.Options{
		Workers: cfg.Run.Workers,
		DryRun:  cfg.Run.DryRun,
		Logger:  logger,
	})
	if err != nil {
		logger.Printf("orchestrator: %v", err)
		return 2
	}

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go watchInterrupts(sigs, orch.Stop, os.Exit, logger)

	var rep *migrate.Report
	if cfg.Run.Input != "" {
		data, err := os.ReadFile(cfg.Run.Input)
		if err != nil {
			logger.Printf("input: %v", err)
			return 2
		}
		items, err := uptrends.DecodeMonitors(data)
		if err != nil {
			logger.Printf("input %s: %v", cfg.Run.Input, err)
			return 2
		}
		loaded := make([]migrate.Loaded, len(items))
		for i, it := range items {
			loaded[i] = migrate.Loaded{Record: it.Record, Err: it.Err}
		}
		rep = orch.Run(ctx, loaded)
	} else {
		ids, err := cfg.MonitorIDs()
		if err != nil {
			logger.Printf("%v", err)
			return 2
		}
		rep = orch.RunIDs(ctx, ids)
	}

	recordHistory(cfg.History, rep, logger)
	printSummary(rep)
	if model != nil {
		fmt.Printf("  model calls: %d\n", calls.Calls())
	}
	// Failed monitors are reported, not fatal.
	if rep.PersistError != "" {
		return 1
	}
	return 0
}

// watchInterrupts stops scheduling new monitors on the first signal and lets
// the ones in flight finish. A second signal exits at once without a report.
func watchInterrupts(sigs <-chan os.Signal, stop func(), exit func(int), logger *log.Logger) {
	if _, ok := <-sigs; !ok {
		return
	}
	logger.Printf("interrupt: finishing monitors in flight, skipping the rest (interrupt again to exit now)")
	stop()
	if _, ok := <-sigs; ok {
		logger.Printf("second interrupt: exiting without a report")
		exit(130)
	}
}

func buildModel(ctx context.Context, mc config.ModelConfig, calls *llm.Counter, logger *log.Logger) (llm.LLMClient, error) {
	var inner llm.LLMClient
	switch mc.Provider {
	case "none":
		return nil, nil
	case "fake":
		inner = llm.NewFakeClient()
	case "ollama":
		inner = llm.NewOllamaClient(mc.OllamaHost, mc.OllamaModel, mc.Timeout)
	case "gemini":
		g, err := llm.NewGeminiClient(ctx, mc.GeminiAPIKey, mc.GeminiModel)
		if err != nil {
			return nil, err
		}
		inner = g
	default:
		return nil, fmt.Errorf("unknown provider %q", mc.Provider)
	}
	logger.Printf("model fallback: %s", inner.Name())
	return llm.Wrap(inner, llm.Count(calls), llm.RateLimit(mc.RPS, mc.Burst), llm.WithLogging(logger)), nil
}

func buildStore(cfg *config.Config) (artifact.Store, error) {
	if !cfg.Artifact.Enabled {
		return artifact.NewFileStore(cfg.OutputDir), nil
	}
	return artifact.NewS3Store(artifact.S3Config{
		Endpoint:  cfg.Artifact.Endpoint,
		Region:    cfg.Artifact.Region,
		AccessKey: cfg.Artifact.AccessKey,
		SecretKey: cfg.Artifact.SecretKey,
		Bucket:    cfg.Artifact.Bucket,
		UseSSL:    cfg.Artifact.UseSSL,
	})
}

func recordHistory(hc config.HistoryConfig, rep *migrate.Report, logger *log.Logger) {
	ctx := context.Background()
	store, err := history.Open(ctx, hc.DSN, hc.Path)
	if err != nil {
		logger.Printf("history: postgres unavailable, using %s: %v", hc.Path, err)
	}
	defer store.Close()
	if err := store.Record(ctx, rep); err != nil {
		logger.Printf("history: %v", err)
	}
}

func inspectHistory(ctx context.Context, hc config.HistoryConfig, rc config.RunConfig, logger *log.Logger) int {
	store, err := history.Open(ctx, hc.DSN, hc.Path)
	if err != nil {
		logger.Printf("history: postgres unavailable, using %s: %v", hc.Path, err)
	}
	defer store.Close()
	if err := printHistory(ctx, os.Stdout, store, rc); err != nil {
		logger.Printf("history: %v", err)
		return 1
	}
	return 0
}

// printHistory writes one recorded run when rc.ShowRun is set and the most
// recent rc.History runs otherwise.
func printHistory(ctx context.Context, out io.Writer, store *history.Store, rc config.RunConfig) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if id := strings.TrimSpace(rc.ShowRun); id != "" {
		run, ok, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("run %s not found", id)
		}
		c := run.Counts
		fmt.Fprintf(w, "run\t%s\n", run.RunID)
		fmt.Fprintf(w, "finished\t%s\n", run.FinishedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "dry run\t%t\n", run.DryRun)
		fmt.Fprintf(w, "counts\t%d total, %d succeeded, %d failed, %d skipped\n", c.Total, c.Succeeded, c.Failed, c.Skipped)
		if run.ReportPath != "" {
			fmt.Fprintf(w, "report\t%s\n", run.ReportPath)
		}
		for _, id := range run.Failed() {
			fmt.Fprintf(w, "not migrated\t%s\n", id)
		}
		return nil
	}

	runs, err := store.List(ctx, rc.History)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "RUN	FINISHED	TOTAL	SUCCEEDED	FAILED	SKIPPED	DRY RUN")
	for _, r := range runs {
		c := r.Counts
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%t\n",
			r.RunID, r.FinishedAt.Format(time.RFC3339), c.Total, c.Succeeded, c.Failed, c.Skipped, r.DryRun)
	}
	return nil
}

func listMonitors(ctx context.Context, client *uptrends.Client, pattern string, limit int, logger *log.Logger) int {
	rows, err := client.ListMonitors(ctx, pattern, limit)
	if err != nil {
		logger.Printf("list monitors: %v", err)
		if errors.Is(err, uptrends.ErrUnauthorized) {
			return 2
		}
		return 1
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tACTIVE")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", r.ID, r.Name, r.Kind, r.Active)
	}
	_ = w.Flush()
	fmt.Printf("%d monitor(s)\n", len(rows))
	return 0
}

func printSummary(rep *migrate.Report) {
	c := rep.Counts
	fmt.Printf("\nrun %s\n", rep.RunID)
	fmt.Printf("  total:       %d\n", c.Total)
	fmt.Printf("  succeeded:   %d (lightweight %d, journey %d)\n", c.Succeeded, c.Lightweight, c.Journey)
	fmt.Printf("  failed:      %d\n", c.Failed)
	fmt.Printf("  skipped:     %d\n", c.Skipped)
	if rep.Path != "" {
		fmt.Printf("  report:      %s\n", rep.Path)
	}
	if rep.PersistError != "" {
		fmt.Printf("  report error: %s\n", rep.PersistError)
	}
	for _, e := range rep.Failures() {
		fmt.Printf("  - %s [%s/%s] %s\n", e.MonitorID, e.State, e.Stage, e.Error)
	}
}
