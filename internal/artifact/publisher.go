package artifact

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"synthmigrate/internal/classify"
	"synthmigrate/internal/generate"
	"synthmigrate/internal/migrate"
	"synthmigrate/internal/util/jsonutil"
)

const (
	LightweightDir = "lightweight"
	JourneyDir     = "journey"
	ReportDir      = "reports"
)

// Publisher renders generated configs and reports and puts them in a Store.
// The destination directory is chosen by output format alone.
type Publisher struct {
	store Store

	mu   sync.Mutex
	used map[string]string // path -> monitor id
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store, used: map[string]string{}}
}

func (p *Publisher) WriteConfig(ctx context.Context, runID string, cfg generate.Config) (string, error) {
	if cfg.Doc == nil {
		return "", fmt.Errorf("publish %s: config has no document", cfg.MonitorID)
	}
	var (
		dir, ext string
		content  []byte
		err      error
	)
	switch cfg.Format {
	case classify.FormatLightweight:
		doc, ok := cfg.Doc.(*generate.LightweightDoc)
		if !ok {
			return "", fmt.Errorf("publish %s: %T under format %s", cfg.MonitorID, cfg.Doc, cfg.Format)
		}
		dir, ext = LightweightDir, ".yml"
		content, err = RenderLightweight(doc)
	case classify.FormatJourney:
		doc, ok := cfg.Doc.(*generate.JourneyDoc)
		if !ok {
			return "", fmt.Errorf("publish %s: %T under format %s", cfg.MonitorID, cfg.Doc, cfg.Format)
		}
		dir, ext = JourneyDir, ".journey.ts"
		content, err = RenderJourney(doc)
	default:
		return "", fmt.Errorf("publish %s: unknown output format %q", cfg.MonitorID, cfg.Format)
	}
	if err != nil {
		return "", err
	}

	path := p.claim(dir, Slug(cfg.Name, cfg.Doc.DocID()), ext, cfg.MonitorID)
	if err := p.store.Put(ctx, runID, path, content); err != nil {
		return "", fmt.Errorf("publish %s: %w", cfg.MonitorID, err)
	}
	return path, nil
}

// WriteReport stores the report as reports/migration_results_<ts>.json and
// returns where it can be read back.
func (p *Publisher) WriteReport(ctx context.Context, rep *migrate.Report) (string, error) {
	if rep == nil {
		return "", fmt.Errorf("publish report: nil report")
	}
	b, err := jsonutil.MarshalNoEscapeIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("publish report: %w", err)
	}
	path := fmt.Sprintf("%s/migration_results_%s.json", ReportDir, rep.StartedAt.UTC().Format("20060102_150405"))
	if err := p.store.Put(ctx, rep.RunID, path, append(b, '\n')); err != nil {
		return "", fmt.Errorf("publish report: %w", err)
	}
	if u, err := p.store.GetURL(ctx, rep.RunID, path); err == nil && u != "" {
		return u, nil
	}
	return path, nil
}

// claim reserves a file path for monitorID, suffixing _2, _3... when two
// monitors share a name.
func (p *Publisher) claim(dir, slug, ext, monitorID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	for n := 1; ; n++ {
		name := slug
		if n > 1 {
			name = fmt.Sprintf("%s_%d", slug, n)
		}
		path := dir + "/" + name + ext
		owner, taken := p.used[path]
		if !taken || owner == monitorID {
			p.used[path] = monitorID
			return path
		}
	}
}

// Slug turns a display name into a file name: letters, digits, '-' and '_'
// kept, spaces become '_', lower case. fallback is used when nothing is left.
func Slug(name, fallback string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(unicode.ToLower(r))
		case r == ' ':
			b.WriteRune('_')
		}
	}
	s := strings.Trim(b.String(), "_")
	if s == "" {
		s = strings.ToLower(strings.TrimSpace(fallback))
	}
	if s == "" {
		s = "monitor"
	}
	return s
}
