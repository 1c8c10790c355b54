package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"synthmigrate/internal/llm"
	"synthmigrate/internal/monitor"
	"synthmigrate/internal/retry"
)

const classificationPrompt = `You are an expert in synthetic monitoring. Analyze the Uptrends monitor in the input
and choose the most appropriate Elastic Synthetics monitor type.

Available types:
- http: simple HTTP/HTTPS checks with response validations
- tcp: TCP connectivity to a specific host and port
- icmp: basic ping reachability of a host
- browser: multi-step or scripted checks that need a real browser

Decision criteria:
- simple HTTP/HTTPS without interactions -> http
- transaction scripts or multiple steps -> browser
- plain host reachability -> icmp
- checks of a specific port or protocol handshake -> tcp

Respond ONLY with valid JSON in this format:
{"elastic_type": "http|tcp|icmp|browser", "confidence": 0.0-1.0, "reasoning": "short explanation"}`

// DefaultMinConfidence is the lowest model confidence accepted.
const DefaultMinConfidence = 0.7

type Options struct {
	// Rules defaults to DefaultRules.
	Rules []Rule
	// Retry bounds model calls; the zero value makes a single attempt.
	Retry retry.Policy
	// MinConfidence defaults to DefaultMinConfidence; negative disables the check.
	MinConfidence float64
	// CacheSize bounds the model-decision cache; 0 uses 256.
	CacheSize int
}

// Classifier maps source monitors to target kinds: rule table first, model
// fallback second.
type Classifier struct {
	rules         []Rule
	model         llm.LLMClient
	minConfidence float64
	cache         *lru.Cache[string, Result]
}

// New builds a Classifier. model may be nil, in which case monitors that no
// rule covers fail classification.
func New(model llm.LLMClient, opts Options) (*Classifier, error) {
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	minConf := opts.MinConfidence
	if minConf == 0 {
		minConf = DefaultMinConfidence
	}
	size := opts.CacheSize
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, Result](size)
	if err != nil {
		return nil, fmt.Errorf("classify: init cache: %w", err)
	}
	c := &Classifier{rules: rules, minConfidence: minConf, cache: cache}
	if model != nil {
		c.model = llm.Wrap(model, llm.Retry(opts.Retry))
	}
	return c, nil
}

// Classify decides the target kind for rec. A matching rule returns without
// touching the model.
func (c *Classifier) Classify(ctx context.Context, rec monitor.Record) (Result, error) {
	if strings.TrimSpace(string(rec.Kind)) == "" {
		return Result{}, &Error{Kind: ErrUnknownSourceKind, MonitorID: rec.ID, Err: errors.New("monitor kind is empty")}
	}
	for _, r := range c.rules {
		if r.Match(rec) {
			return newResult(r.Kind, SourceRule, 1, "rule: "+r.Name), nil
		}
	}
	if c.model == nil {
		if !rec.Kind.Valid() {
			return Result{}, &Error{Kind: ErrUnknownSourceKind, MonitorID: rec.ID, Err: fmt.Errorf("monitor kind %q is not recognized", rec.Kind)}
		}
		return Result{}, &Error{Kind: ErrInconclusive, MonitorID: rec.ID, Err: fmt.Errorf("no rule for kind %q and no model backend configured", rec.Kind)}
	}
	return c.classifyWithModel(ctx, rec)
}

type modelAnswer struct {
	ElasticType string   `json:"elastic_type"`
	TargetKind  string   `json:"target_kind"`
	Confidence  *float64 `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
}

func (c *Classifier) classifyWithModel(ctx context.Context, rec monitor.Record) (Result, error) {
	desc := rec.Describe()
	if cached, ok := c.cache.Get(desc); ok {
		return cached, nil
	}

	ctx = llm.WithPhase(ctx, "classify")
	raw, err := c.model.GenerateJSON(ctx, classificationPrompt, map[string]any{"monitor": desc})
	if err != nil {
		if errors.Is(err, llm.ErrInvalidJSON) {
			return Result{}, &Error{Kind: ErrModelMalformedResponse, MonitorID: rec.ID, Err: err}
		}
		return Result{}, &Error{Kind: ErrModelUnavailable, MonitorID: rec.ID, Err: err}
	}

	res, err := parseAnswer(raw)
	if err != nil {
		return Result{}, &Error{Kind: ErrModelMalformedResponse, MonitorID: rec.ID, Err: err}
	}
	if c.minConfidence > 0 && res.Confidence < c.minConfidence {
		return Result{}, &Error{
			Kind:      ErrInconclusive,
			MonitorID: rec.ID,
			Err:       fmt.Errorf("model confidence %.2f below %.2f (%s)", res.Confidence, c.minConfidence, res.Kind),
		}
	}
	c.cache.Add(desc, res)
	return res, nil
}

func parseAnswer(raw json.RawMessage) (Result, error) {
	var ans modelAnswer
	if err := json.Unmarshal(raw, &ans); err != nil {
		return Result{}, fmt.Errorf("decode model answer: %w", err)
	}
	label := ans.ElasticType
	if label == "" {
		label = ans.TargetKind
	}
	kind, err := ParseTargetKind(label)
	if err != nil {
		return Result{}, err
	}
	conf := 1.0
	if ans.Confidence != nil {
		conf = *ans.Confidence
		if conf < 0 || conf > 1 {
			return Result{}, fmt.Errorf("model confidence %v outside [0,1]", conf)
		}
	}
	rationale := strings.TrimSpace(ans.Reasoning)
	if rationale == "" {
		rationale = "model: no reasoning given"
	} else {
		rationale = "model: " + rationale
	}
	return newResult(kind, SourceModel, conf, rationale), nil
}
