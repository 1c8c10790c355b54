package monitor

import (
	"fmt"
	"sort"
	"strings"
)

// Record is a source monitor as read from Uptrends. Fields the migration
// does not model are kept in Raw.
type Record struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Kind           SourceKind     `json:"kind"`
	URL            string         `json:"url,omitempty"`
	Host           string         `json:"host,omitempty"`
	Port           int            `json:"port,omitempty"`
	Method         string         `json:"method,omitempty"`
	Headers        []Header       `json:"headers,omitempty"`
	Body           string         `json:"body,omitempty"`
	ExpectedStatus *int           `json:"expected_status,omitempty"`
	MatchPattern   string         `json:"match_pattern,omitempty"`
	CheckInterval  int            `json:"check_interval,omitempty"` // seconds
	TimeoutSeconds int            `json:"timeout_seconds,omitempty"`
	Active         bool           `json:"active"`
	Steps          []Step         `json:"steps,omitempty"`
	Script         string         `json:"script,omitempty"`
	BrowserType    string         `json:"browser_type,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	Raw            map[string]any `json:"raw,omitempty"`
}

type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Step is one element of a Transaction or MultiStepApi definition.
type Step struct {
	Name           string `json:"name,omitempty"`
	Type           string `json:"type"`
	URL            string `json:"url,omitempty"`
	Method         string `json:"method,omitempty"`
	Selector       string `json:"selector,omitempty"`
	Value          string `json:"value,omitempty"`
	ExpectedStatus *int   `json:"expected_status,omitempty"`
	WaitMillis     int    `json:"wait_ms,omitempty"`
}

// Target returns the endpoint the monitor checks: URL when set, else host.
func (r Record) Target() string {
	if u := strings.TrimSpace(r.URL); u != "" {
		return u
	}
	return strings.TrimSpace(r.Host)
}

// HeaderMap flattens Headers; later duplicates win.
func (r Record) HeaderMap() map[string]string {
	if len(r.Headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		k := strings.TrimSpace(h.Key)
		if k == "" {
			continue
		}
		out[k] = h.Value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Describe renders the descriptive text handed to the classification model.
func (r Record) Describe() string {
	var b strings.Builder
	line := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			value = "N/A"
		}
		fmt.Fprintf(&b, "- %s: %s\n", label, value)
	}
	b.WriteString("Uptrends Monitor:\n")
	line("Name", r.Name)
	line("Type", string(r.Kind))
	line("URL", r.URL)
	line("Host", r.Host)
	line("HTTP Method", r.Method)
	if r.CheckInterval > 0 {
		line("Check Interval", fmt.Sprintf("%d seconds", r.CheckInterval))
	} else {
		line("Check Interval", "")
	}
	line("Request Headers", formatHeaders(r.HeaderMap()))
	line("Request Body", r.Body)
	if r.ExpectedStatus != nil {
		line("Expected HTTP Status Code", fmt.Sprintf("%d", *r.ExpectedStatus))
	} else {
		line("Expected HTTP Status Code", "")
	}
	line("Transaction Script", r.Script)
	line("Steps", formatSteps(r.Steps))
	line("Browser Type", r.BrowserType)
	if r.Port > 0 {
		line("Port", fmt.Sprintf("%d", r.Port))
	} else {
		line("Port", "")
	}
	line("Notes", r.Notes)
	return b.String()
}

func formatHeaders(h map[string]string) string {
	if len(h) == 0 {
		return ""
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+h[k])
	}
	return strings.Join(parts, "; ")
}

func formatSteps(steps []Step) string {
	if len(steps) == 0 {
		return ""
	}
	parts := make([]string, 0, len(steps))
	for i, s := range steps {
		desc := fmt.Sprintf("%d. %s", i+1, s.Type)
		if s.Name != "" {
			desc += " " + s.Name
		}
		if s.URL != "" {
			desc += " " + s.URL
		}
		parts = append(parts, desc)
	}
	return strings.Join(parts, "; ")
}
