package validate

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"synthmigrate/internal/classify"
	"synthmigrate/internal/generate"
)

// ErrNilDocument is the only error Validate returns; every data problem is
// reported as a Violation.
var ErrNilDocument = errors.New("validate: config has no document")

type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string { return v.Field + ": " + v.Message }

// Result is pass/fail with the ordered list of violations.
type Result struct {
	MonitorID  string      `json:"monitor_id"`
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`
}

// Messages renders the violations one per entry.
func (r Result) Messages() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.String()
	}
	return out
}

var (
	idPattern       = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	schedulePattern = regexp.MustCompile(`^@every\s+(\d+)([smh])$`)
	durationPattern = regexp.MustCompile(`^(\d+)([smh])$`)
	hostnamePattern = regexp.MustCompile(`^(?i)[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*\.?$`)
)

const (
	minNameLen     = 3
	minScheduleSec = 10
	maxTimeoutSec  = 180
)

var locations = []string{
	"us_central", "us_east", "us_west", "europe_west",
	"asia_pacific", "south_america", "africa", "australia_southeast",
}

var knownLocations = func() map[string]bool {
	m := make(map[string]bool, len(locations))
	for _, l := range locations {
		m[l] = true
	}
	return m
}()

// Locations returns the Elastic locations the validator accepts.
func Locations() []string {
	return append([]string(nil), locations...)
}

var actionList = func() string {
	var names []string
	for _, a := range generate.Actions() {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}()

var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "HEAD": true, "OPTIONS": true, "PATCH": true,
}

type collector struct{ v []Violation }

func (c *collector) add(field, format string, args ...any) {
	c.v = append(c.v, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks cfg against the rules of its output format. All rules run;
// nothing short-circuits after the first violation.
func Validate(cfg generate.Config) (Result, error) {
	if cfg.Doc == nil {
		return Result{MonitorID: cfg.MonitorID}, ErrNilDocument
	}
	c := &collector{}

	if want := classify.FormatFor(cfg.Kind); want == "" {
		c.add("target_kind", "unknown target kind %q", cfg.Kind)
	} else if want != cfg.Format {
		c.add("output_format", "format %q does not match target kind %q (want %q)", cfg.Format, cfg.Kind, want)
	}

	switch doc := cfg.Doc.(type) {
	case *generate.LightweightDoc:
		if cfg.Format != classify.FormatLightweight {
			c.add("document", "flat document under output format %q", cfg.Format)
		}
		if doc == nil {
			c.add("document", "lightweight document is nil")
			break
		}
		checkCommon(c, doc.ID, doc.Name, doc.Schedule, doc.Locations)
		checkLightweight(c, cfg.Kind, doc)
	case *generate.JourneyDoc:
		if cfg.Format != classify.FormatJourney {
			c.add("document", "journey document under output format %q", cfg.Format)
		}
		if doc == nil {
			c.add("document", "journey document is nil")
			break
		}
		checkCommon(c, doc.ID, doc.Name, doc.Schedule, doc.Locations)
		checkJourney(c, doc)
	default:
		c.add("document", "unsupported document type %T", cfg.Doc)
	}

	return Result{MonitorID: cfg.MonitorID, Passed: len(c.v) == 0, Violations: c.v}, nil
}

func checkCommon(c *collector, id, name, schedule string, locations []string) {
	if id == "" {
		c.add("id", "is required")
	} else if !idPattern.MatchString(id) {
		c.add("id", "%q may contain only letters, digits, '-' and '_'", id)
	}
	if len(strings.TrimSpace(name)) < minNameLen {
		c.add("name", "must be at least %d characters", minNameLen)
	}
	if schedule == "" {
		c.add("schedule", "is required")
	} else if m := schedulePattern.FindStringSubmatch(schedule); m == nil {
		c.add("schedule", "%q is not of the form '@every <n>[smh]'", schedule)
	} else if secs := seconds(m[1], m[2]); secs < minScheduleSec {
		c.add("schedule", "%q is below the %ds minimum", schedule, minScheduleSec)
	}
	if len(locations) == 0 {
		c.add("locations", "at least one location is required")
	}
	for i, loc := range locations {
		if !knownLocations[loc] {
			c.add(fmt.Sprintf("locations[%d]", i), "unknown location %q", loc)
		}
	}
}

func checkLightweight(c *collector, kind classify.TargetKind, doc *generate.LightweightDoc) {
	switch doc.Type {
	case string(classify.TargetHTTP), string(classify.TargetICMP), string(classify.TargetTCP):
		if doc.Type != string(kind) {
			c.add("type", "%q does not match target kind %q", doc.Type, kind)
		}
	default:
		c.add("type", "%q is not one of http, icmp, tcp", doc.Type)
	}

	if doc.Timeout == "" {
		c.add("timeout", "is required")
	} else if m := durationPattern.FindStringSubmatch(doc.Timeout); m == nil {
		c.add("timeout", "%q is not of the form '<n>[smh]'", doc.Timeout)
	} else if secs := seconds(m[1], m[2]); secs < 1 || secs > maxTimeoutSec {
		c.add("timeout", "%q must be between 1s and %ds", doc.Timeout, maxTimeoutSec)
	}

	switch doc.Type {
	case string(classify.TargetHTTP):
		if len(doc.URLs) == 0 {
			c.add("urls", "at least one URL is required")
		}
		for i, raw := range doc.URLs {
			if !validHTTPURL(raw) {
				c.add(fmt.Sprintf("urls[%d]", i), "%q is not an absolute http(s) URL", raw)
			}
		}
		if len(doc.Hosts) > 0 {
			c.add("hosts", "http monitors use urls, not hosts")
		}
		if !httpMethods[doc.Method] {
			c.add("method", "%q is not a known HTTP method", doc.Method)
		}
		for i, code := range doc.ResponseStatus {
			if code < 100 || code > 599 {
				c.add(fmt.Sprintf("check.response.status[%d]", i), "%d is not a 3-digit HTTP status", code)
			}
		}
		if doc.MaxRedirects != nil && *doc.MaxRedirects < 0 {
			c.add("max_redirects", "must not be negative")
		}
	case string(classify.TargetICMP):
		checkHostsPresent(c, doc)
		for i, h := range doc.Hosts {
			if !validHost(h) {
				c.add(fmt.Sprintf("hosts[%d]", i), "%q is not a valid hostname or IP", h)
			}
		}
		if doc.Wait != "" {
			if _, err := time.ParseDuration(doc.Wait); err != nil || !durationPattern.MatchString(doc.Wait) {
				c.add("wait", "%q is not of the form '<n>[smh]'", doc.Wait)
			}
		}
	case string(classify.TargetTCP):
		checkHostsPresent(c, doc)
		for i, h := range doc.Hosts {
			if !validHostPort(h) {
				c.add(fmt.Sprintf("hosts[%d]", i), "%q is not host:port", h)
			}
		}
	}
}

func checkHostsPresent(c *collector, doc *generate.LightweightDoc) {
	if len(doc.Hosts) == 0 {
		c.add("hosts", "at least one host is required")
	}
	if len(doc.URLs) > 0 {
		c.add("urls", "%s monitors use hosts, not urls", doc.Type)
	}
}

func checkJourney(c *collector, doc *generate.JourneyDoc) {
	if len(doc.Steps) == 0 {
		c.add("steps", "at least one step is required")
		return
	}
	seen := make(map[string]int, len(doc.Steps))
	for i, s := range doc.Steps {
		field := fmt.Sprintf("steps[%d]", i)
		name := strings.TrimSpace(s.Name)
		if name == "" {
			c.add(field+".name", "is required")
		} else if first, dup := seen[name]; dup {
			c.add(field+".name", "%q duplicates steps[%d]", name, first)
		} else {
			seen[name] = i
		}
		if !s.Action.Valid() {
			c.add(field+".action", "%q is not one of %s", s.Action, actionList)
			continue
		}
		checkStepParams(c, field, s)
	}
}

func checkStepParams(c *collector, field string, s generate.JourneyStep) {
	has := func(k string) bool { return strings.TrimSpace(s.Params[k]) != "" }
	switch s.Action {
	case generate.ActionNavigate, generate.ActionRequest:
		if !has("url") {
			c.add(field+".params.url", "is required for %s", s.Action)
		} else if s.Action == generate.ActionRequest && !validHTTPURL(s.Params["url"]) {
			c.add(field+".params.url", "%q is not an absolute http(s) URL", s.Params["url"])
		}
		if m, ok := s.Params["method"]; ok && !httpMethods[m] {
			c.add(field+".params.method", "%q is not a known HTTP method", m)
		}
		if st, ok := s.Params["status"]; ok && !validStatus(st) {
			c.add(field+".params.status", "%q is not a 3-digit HTTP status", st)
		}
	case generate.ActionClick:
		if !has("selector") {
			c.add(field+".params.selector", "is required for click")
		}
	case generate.ActionFill:
		if !has("selector") {
			c.add(field+".params.selector", "is required for fill")
		}
		if _, ok := s.Params["value"]; !ok {
			c.add(field+".params.value", "is required for fill")
		}
	case generate.ActionAssertText:
		if !has("selector") && !has("text") {
			c.add(field+".params", "assert-text needs a selector or text")
		}
	case generate.ActionWait:
		if d, err := time.ParseDuration(s.Params["duration"]); err != nil || d <= 0 {
			c.add(field+".params.duration", "%q is not a positive duration", s.Params["duration"])
		}
	case generate.ActionAssertStatus:
		if !validStatus(s.Params["status"]) {
			c.add(field+".params.status", "%q is not a 3-digit HTTP status", s.Params["status"])
		}
	}
}

func seconds(n, unit string) int {
	v, err := strconv.Atoi(n)
	if err != nil {
		return -1
	}
	switch unit {
	case "m":
		return v * 60
	case "h":
		return v * 3600
	}
	return v
}

func validStatus(s string) bool {
	if len(s) != 3 {
		return false
	}
	code, err := strconv.Atoi(s)
	return err == nil && code >= 100 && code <= 599
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" && u.Hostname() != ""
}

func validHost(h string) bool {
	if h == "" {
		return false
	}
	if net.ParseIP(h) != nil {
		return true
	}
	return len(h) <= 253 && hostnamePattern.MatchString(h)
}

func validHostPort(hp string) bool {
	host, port, err := net.SplitHostPort(hp)
	if err != nil || !validHost(host) {
		return false
	}
	p, err := strconv.Atoi(port)
	return err == nil && p > 0 && p <= 65535
}
