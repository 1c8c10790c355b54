package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"synthmigrate/internal/retry"
	"synthmigrate/internal/validate"
)

type Config struct {
	OutputDir string
	Locations []string

	Uptrends UptrendsConfig
	Model    ModelConfig
	Retry    retry.Policy
	Artifact ArtifactConfig
	History  HistoryConfig
	Run      RunConfig
}

type UptrendsConfig struct {
	Username string
	Password string
	BaseURL  string
	RPS      float64
}

type ModelConfig struct {
	// Provider is one of ollama, gemini, fake or none.
	Provider      string
	OllamaHost    string
	OllamaModel   string
	GeminiAPIKey  string
	GeminiModel   string
	RPS           float64
	Burst         int
	MinConfidence float64
	Timeout       time.Duration
}

type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type HistoryConfig struct {
	DSN string
	// Path is the JSON file used when DSN is empty.
	Path string
}

// RunConfig is what this invocation should do.
type RunConfig struct {
	IDs     []string
	IDsFile string
	Input   string
	Pattern string
	Limit   int
	Workers int
	List    bool
	DryRun  bool
	// History > 0 lists that many recorded runs instead of migrating.
	History int
	// ShowRun prints one recorded run with its unsuccessful monitors.
	ShowRun string
}

var (
	ErrNoInput       = errors.New("one of -ids, -ids-file or -input is required")
	ErrConflictInput = errors.New("-input cannot be combined with -ids or -ids-file")
)

var providers = map[string]bool{"ollama": true, "gemini": true, "fake": true, "none": true}

// Load reads .env, the environment and then args (without the program name).
// Flags win over the environment.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		OutputDir: firstNonEmpty(strings.TrimSpace(os.Getenv("OUTPUT_DIR")), "elastic_monitors"),
		Locations: splitList(os.Getenv("MONITOR_LOCATIONS")),
		Uptrends: UptrendsConfig{
			Username: strings.TrimSpace(os.Getenv("UPTRENDS_USERNAME")),
			Password: strings.TrimSpace(os.Getenv("UPTRENDS_PASSWORD")),
			BaseURL:  strings.TrimSpace(os.Getenv("UPTRENDS_BASE_URL")),
			RPS:      envFloat("UPTRENDS_RPS", 5),
		},
		Model:    loadModelConfig(),
		Retry:    loadRetryPolicy(),
		Artifact: loadArtifactConfig(),
		History: HistoryConfig{
			DSN:  strings.TrimSpace(os.Getenv("HISTORY_PG_DSN")),
			Path: strings.TrimSpace(os.Getenv("HISTORY_PATH")),
		},
	}

	fs := flag.NewFlagSet("synthmigrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	ids := fs.String("ids", "", "comma separated Uptrends monitor GUIDs")
	fs.StringVar(&cfg.Run.IDsFile, "ids-file", "", "file with one monitor GUID per line")
	fs.StringVar(&cfg.Run.Input, "input", "", "JSON file with Uptrends monitor objects (offline mode)")
	fs.StringVar(&cfg.Run.Pattern, "pattern", "", "name filter for -list")
	fs.IntVar(&cfg.Run.Limit, "limit", 0, "max monitors for -list (0 = all)")
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "output directory")
	fs.IntVar(&cfg.Run.Workers, "workers", envInt("MIGRATION_WORKERS", 1), "monitors migrated concurrently")
	fs.BoolVar(&cfg.Run.List, "list", false, "list monitors and exit")
	fs.BoolVar(&cfg.Run.DryRun, "dry-run", false, "validate without writing configs")
	fs.IntVar(&cfg.Run.History, "history", 0, "list the last N recorded runs and exit")
	fs.StringVar(&cfg.Run.ShowRun, "show-run", "", "print a recorded run and its failed monitors, then exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Run.IDs = splitList(*ids)

	if cfg.History.Path == "" {
		cfg.History.Path = cfg.OutputDir + "/history.json"
	}
	if cfg.Run.Workers < 1 {
		cfg.Run.Workers = 1
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !providers[c.Model.Provider] {
		return fmt.Errorf("MODEL_PROVIDER %q: want ollama, gemini, fake or none", c.Model.Provider)
	}
	if c.Model.Provider == "gemini" && c.Model.GeminiAPIKey == "" {
		return errors.New("MODEL_PROVIDER=gemini requires GEMINI_API_KEY")
	}
	known := validate.Locations()
	for _, loc := range c.Locations {
		if !slices.Contains(known, loc) {
			return fmt.Errorf("MONITOR_LOCATIONS: unknown location %q, want one of %s", loc, strings.Join(known, ", "))
		}
	}
	if c.Run.List || c.InspectsHistory() {
		return nil
	}
	hasIDs := len(c.Run.IDs) > 0 || c.Run.IDsFile != ""
	switch {
	case c.Run.Input != "" && hasIDs:
		return ErrConflictInput
	case c.Run.Input == "" && !hasIDs:
		return ErrNoInput
	}
	return nil
}

// NeedsUptrends reports whether the run talks to the Uptrends API.
func (c *Config) NeedsUptrends() bool {
	return c.Run.List || (c.Run.Input == "" && !c.InspectsHistory())
}

// InspectsHistory reports whether the invocation reads the run history
// instead of migrating.
func (c *Config) InspectsHistory() bool {
	return c.Run.History > 0 || strings.TrimSpace(c.Run.ShowRun) != ""
}

// MonitorIDs returns -ids followed by the ids read from -ids-file, without
// blanks, comments or duplicates.
func (c *Config) MonitorIDs() ([]string, error) {
	out := make([]string, 0, len(c.Run.IDs))
	seen := map[string]bool{}
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" || strings.HasPrefix(id, "#") || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, id := range c.Run.IDs {
		add(id)
	}
	if c.Run.IDsFile == "" {
		return out, nil
	}
	f, err := os.Open(c.Run.IDsFile)
	if err != nil {
		return nil, fmt.Errorf("ids file: %w", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		add(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ids file: %w", err)
	}
	return out, nil
}

func loadModelConfig() ModelConfig {
	ollamaHost := strings.TrimSpace(os.Getenv("OLLAMA_HOST"))
	geminiKey := firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_API_KEY")), strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")))
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("MODEL_PROVIDER")))
	if provider == "" {
		switch {
		case ollamaHost != "":
			provider = "ollama"
		case geminiKey != "":
			provider = "gemini"
		default:
			provider = "none"
		}
	}
	return ModelConfig{
		Provider:      provider,
		OllamaHost:    firstNonEmpty(ollamaHost, "http://localhost:11434"),
		OllamaModel:   firstNonEmpty(strings.TrimSpace(os.Getenv("OLLAMA_MODEL")), "llama3.1:8b"),
		GeminiAPIKey:  geminiKey,
		GeminiModel:   firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_MODEL")), "gemini-2.5-flash"),
		RPS:           envFloat("LLM_RPS", 1),
		Burst:         envInt("LLM_BURST", 1),
		MinConfidence: envFloat("MIN_CONFIDENCE", 0.7),
		Timeout:       envDuration("LLM_TIMEOUT", 60*time.Second),
	}
}

func loadRetryPolicy() retry.Policy {
	p := retry.Default()
	p.MaxAttempts = envInt("RETRY_MAX_ATTEMPTS", p.MaxAttempts)
	p.BaseDelay = envDuration("RETRY_BASE_DELAY", p.BaseDelay)
	p.MaxDelay = envDuration("RETRY_MAX_DELAY", p.MaxDelay)
	p.MaxWait = envDuration("RETRY_MAX_WAIT", p.MaxWait)
	return p
}

func loadArtifactConfig() ArtifactConfig {
	endpoint := strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
	return ArtifactConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "elastic-monitors"),
		UseSSL:    envBool("ARTIFACT_S3_USE_SSL", true),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

// envDuration accepts Go durations ("4s") or plain seconds ("4").
func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
