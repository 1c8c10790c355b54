package artifact

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"synthmigrate/internal/classify"
	"synthmigrate/internal/generate"
	"synthmigrate/internal/migrate"
	"synthmigrate/internal/tester"
)

func lightweightConfig(id, name string) generate.Config {
	doc := sampleHTTPDoc()
	doc.ID, doc.Name, doc.OriginalSourceID = generate.DocumentID(id), name, id
	return generate.Config{MonitorID: id, Name: name, Format: classify.FormatLightweight, Kind: classify.TargetHTTP, Doc: doc}
}

func journeyConfig(id, name string) generate.Config {
	doc := sampleJourneyDoc()
	doc.ID, doc.Name, doc.OriginalSourceID = generate.DocumentID(id), name, id
	return generate.Config{MonitorID: id, Name: name, Format: classify.FormatJourney, Kind: classify.TargetBrowser, Doc: doc}
}

func TestPublisher_RoutesByFormat(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p := NewPublisher(store)

	path, err := p.WriteConfig(ctx, "run-1", lightweightConfig("a1", "Shop Home!"))
	tester.NoErr(t, err)
	tester.Eq(t, path, "lightweight/shop_home.yml")

	path, err = p.WriteConfig(ctx, "run-1", journeyConfig("j1", "Checkout flow"))
	tester.NoErr(t, err)
	tester.Eq(t, path, "journey/checkout_flow.journey.ts")

	listed, err := store.List(ctx, "run-1")
	tester.NoErr(t, err)
	tester.Eq(t, listed, []string{"journey/checkout_flow.journey.ts", "lightweight/shop_home.yml"})

	body, err := store.Get(ctx, "run-1", "journey/checkout_flow.journey.ts")
	tester.NoErr(t, err)
	tester.True(t, strings.Contains(string(body), "@elastic/synthetics"))
}

func TestPublisher_SameNameGetsSuffix(t *testing.T) {
	ctx := context.Background()
	p := NewPublisher(NewMemoryStore())

	first, err := p.WriteConfig(ctx, "run-1", lightweightConfig("a1", "Home"))
	tester.NoErr(t, err)
	second, err := p.WriteConfig(ctx, "run-1", lightweightConfig("a2", "Home"))
	tester.NoErr(t, err)
	again, err := p.WriteConfig(ctx, "run-1", lightweightConfig("a1", "Home"))
	tester.NoErr(t, err)

	tester.Eq(t, first, "lightweight/home.yml")
	tester.Eq(t, second, "lightweight/home_2.yml")
	tester.Eq(t, again, first, "rewriting the same monitor reuses its path")
}

func TestPublisher_FormatDocMismatch(t *testing.T) {
	cfg := lightweightConfig("a1", "Home")
	cfg.Format = classify.FormatJourney
	_, err := NewPublisher(NewMemoryStore()).WriteConfig(context.Background(), "run-1", cfg)
	tester.True(t, err != nil)
}

func TestPublisher_FileStoreLayout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	p := NewPublisher(NewFileStore(root))

	_, err := p.WriteConfig(ctx, "run-1", lightweightConfig("a1", "Api health"))
	tester.NoErr(t, err)

	rep := &migrate.Report{
		RunID:     "run-1",
		StartedAt: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Entries:   []migrate.Entry{{MonitorID: "a1", State: migrate.StateSucceeded, Format: classify.FormatLightweight}},
	}
	rep.Finalize(rep.StartedAt.Add(time.Second))
	where, err := p.WriteReport(ctx, rep)
	tester.NoErr(t, err)
	tester.Eq(t, where, filepath.Join(root, "reports", "migration_results_20260304_050607.json"))

	raw, err := os.ReadFile(filepath.Join(root, "lightweight", "api_health.yml"))
	tester.NoErr(t, err)
	tester.True(t, strings.Contains(string(raw), "monitor-a1"))

	raw, err = os.ReadFile(where)
	tester.NoErr(t, err)
	var decoded migrate.Report
	tester.NoErr(t, json.Unmarshal(raw, &decoded))
	tester.Eq(t, decoded.Counts.Lightweight, 1)
	tester.Eq(t, decoded.RunID, "run-1")
}

func TestSlug(t *testing.T) {
	tester.Eq(t, Slug("  My Site / Prod ", "x"), "my_site__prod")
	tester.Eq(t, Slug("Ünïcode-ok_1", "x"), "ünïcode-ok_1")
	tester.Eq(t, Slug("***", "monitor-abc"), "monitor-abc")
	tester.Eq(t, Slug("", ""), "monitor")
}
