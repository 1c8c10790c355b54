package classify

import (
	"errors"
	"fmt"
	"strings"
)

// TargetKind is the Elastic Synthetics monitor type.
type TargetKind string

const (
	TargetHTTP    TargetKind = "http"
	TargetICMP    TargetKind = "icmp"
	TargetTCP     TargetKind = "tcp"
	TargetBrowser TargetKind = "browser"
)

var targetKinds = []TargetKind{TargetHTTP, TargetICMP, TargetTCP, TargetBrowser}

// ParseTargetKind accepts a model label; anything outside the closed set
// fails.
func ParseTargetKind(s string) (TargetKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, k := range targetKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("target kind %q is not one of http, icmp, tcp, browser", s)
}

func (k TargetKind) Valid() bool { return FormatFor(k) != "" }

// OutputFormat is the shape of the generated document.
type OutputFormat string

const (
	FormatLightweight OutputFormat = "lightweight-yaml"
	FormatJourney     OutputFormat = "journey-script"
)

// FormatFor is the only place an output format is derived. It returns ""
// for kinds outside the closed set.
func FormatFor(k TargetKind) OutputFormat {
	switch k {
	case TargetHTTP, TargetICMP, TargetTCP:
		return FormatLightweight
	case TargetBrowser:
		return FormatJourney
	}
	return ""
}

// DecisionSource tells whether a rule or the model chose the target kind.
type DecisionSource string

const (
	SourceRule  DecisionSource = "rule"
	SourceModel DecisionSource = "model"
)

// Result is the outcome of classifying one monitor.
type Result struct {
	Kind       TargetKind     `json:"target_kind"`
	Format     OutputFormat   `json:"output_format"`
	Source     DecisionSource `json:"decision_source"`
	Confidence float64        `json:"confidence,omitempty"`
	Rationale  string         `json:"rationale,omitempty"`
}

func newResult(kind TargetKind, source DecisionSource, confidence float64, rationale string) Result {
	return Result{
		Kind:       kind,
		Format:     FormatFor(kind),
		Source:     source,
		Confidence: confidence,
		Rationale:  rationale,
	}
}

// ErrorKind tags why classification failed.
type ErrorKind string

const (
	ErrUnknownSourceKind      ErrorKind = "unknown-source-kind"
	ErrModelUnavailable       ErrorKind = "model-unavailable"
	ErrModelMalformedResponse ErrorKind = "model-malformed-response"
	ErrInconclusive           ErrorKind = "inconclusive"
)

// Error is returned by Classify for every failure.
type Error struct {
	Kind      ErrorKind
	MonitorID string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("classify %s: %s", e.MonitorID, e.Kind)
	}
	return fmt.Sprintf("classify %s: %s: %v", e.MonitorID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind carried by err, or "" if err is not a
// classification error.
func KindOf(err error) ErrorKind {
	var cErr *Error
	if errors.As(err, &cErr) {
		return cErr.Kind
	}
	return ""
}
