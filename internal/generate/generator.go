package generate

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"synthmigrate/internal/classify"
	"synthmigrate/internal/monitor"
)

const (
	DefaultLocation = "us_central"
	MigrationTag    = "migrated-from-uptrends"
	maxTimeoutSecs  = 180
	minNameLen      = 3
)

type Options struct {
	// Locations defaults to [DefaultLocation].
	Locations []string
	// Tags are appended after MigrationTag.
	Tags []string
}

// Generator turns a classified record into a target document.
type Generator struct {
	locations []string
	tags      []string
}

func New(opts Options) *Generator {
	locs := opts.Locations
	if len(locs) == 0 {
		locs = []string{DefaultLocation}
	}
	tags := append([]string{MigrationTag}, opts.Tags...)
	return &Generator{locations: locs, tags: tags}
}

// Generate branches on the classification's output format. Missing data is
// an error; no partial documents are produced.
func (g *Generator) Generate(rec monitor.Record, cls classify.Result) (Config, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return Config{}, missing(rec.ID, "id")
	}
	var (
		doc Document
		err error
	)
	switch cls.Format {
	case classify.FormatLightweight:
		doc, err = g.lightweight(rec, cls.Kind)
	case classify.FormatJourney:
		doc, err = g.journey(rec)
	default:
		err = &Error{Kind: ErrUnsupportedValue, MonitorID: rec.ID, Field: "output_format", Err: fmt.Errorf("format %q", cls.Format)}
	}
	if err != nil {
		return Config{}, err
	}
	return Config{
		MonitorID: rec.ID,
		Name:      monitorName(rec),
		Format:    cls.Format,
		Kind:      cls.Kind,
		Doc:       doc,
	}, nil
}

func (g *Generator) lightweight(rec monitor.Record, kind classify.TargetKind) (*LightweightDoc, error) {
	doc := &LightweightDoc{
		ID:               DocumentID(rec.ID),
		Name:             monitorName(rec),
		Type:             string(kind),
		Enabled:          rec.Active,
		Schedule:         ScheduleFor(rec.CheckInterval),
		Locations:        append([]string(nil), g.locations...),
		Tags:             append([]string(nil), g.tags...),
		OriginalSourceID: rec.ID,
	}
	switch kind {
	case classify.TargetHTTP:
		u := strings.TrimSpace(rec.URL)
		if u == "" {
			return nil, missing(rec.ID, "url")
		}
		if !strings.Contains(u, "://") {
			scheme := "http://"
			if rec.Kind == monitor.KindHTTPS {
				scheme = "https://"
			}
			u = scheme + u
		}
		redirects := 3
		doc.URLs = []string{u}
		doc.Method = strings.ToUpper(strings.TrimSpace(rec.Method))
		if doc.Method == "" {
			doc.Method = "GET"
		}
		doc.Headers = rec.HeaderMap()
		doc.Body = rec.Body
		doc.MaxRedirects = &redirects
		doc.Mode = "any"
		if rec.ExpectedStatus != nil {
			doc.ResponseStatus = []int{*rec.ExpectedStatus}
		}
		if p := strings.TrimSpace(rec.MatchPattern); p != "" {
			doc.BodyPositive = []string{p}
		}
		doc.Timeout = timeoutFor(rec, 30)
	case classify.TargetICMP:
		host := hostOf(rec)
		if host == "" {
			return nil, missing(rec.ID, "host")
		}
		doc.Hosts = []string{host}
		doc.Wait = "1s"
		doc.Timeout = timeoutFor(rec, 10)
	case classify.TargetTCP:
		host := hostOf(rec)
		if host == "" {
			return nil, missing(rec.ID, "host")
		}
		port := portOf(rec)
		if port == 0 {
			return nil, missing(rec.ID, "port")
		}
		doc.Hosts = []string{net.JoinHostPort(host, strconv.Itoa(port))}
		doc.Timeout = timeoutFor(rec, 30)
	default:
		return nil, &Error{Kind: ErrUnsupportedValue, MonitorID: rec.ID, Field: "type", Err: fmt.Errorf("kind %q has no lightweight form", kind)}
	}
	return doc, nil
}

func (g *Generator) journey(rec monitor.Record) (*JourneyDoc, error) {
	if len(rec.Steps) == 0 {
		return nil, missing(rec.ID, "steps")
	}
	steps := make([]JourneyStep, 0, len(rec.Steps))
	for i, s := range rec.Steps {
		js, err := translateStep(rec.ID, i, s)
		if err != nil {
			return nil, err
		}
		steps = append(steps, js)
	}
	doc := &JourneyDoc{
		ID:               DocumentID(rec.ID),
		Name:             monitorName(rec),
		Enabled:          rec.Active,
		Schedule:         ScheduleFor(rec.CheckInterval),
		Locations:        append([]string(nil), g.locations...),
		Tags:             append([]string(nil), g.tags...),
		Steps:            steps,
		OriginalSourceID: rec.ID,
	}
	if u := strings.TrimSpace(rec.URL); u != "" {
		doc.Params = map[string]string{"url": absoluteURL(u)}
	}
	return doc, nil
}

// nameSteps gives every unnamed step the first "Step <n>" label, starting at
// its own position, that no other step already uses.
func nameSteps(steps []JourneyStep) {
	used := make(map[string]bool, len(steps))
	for _, s := range steps {
		if s.Name != "" {
			used[s.Name] = true
		}
	}
	for i := range steps {
		if steps[i].Name != "" {
			continue
		}
		n := i + 1
		for used[fmt.Sprintf("Step %d", n)] {
			n++
		}
		steps[i].Name = fmt.Sprintf("Step %d", n)
		used[steps[i].Name] = true
	}
}

// absoluteURL defaults scheme-less step targets to https.
func absoluteURL(u string) string {
	if u == "" || strings.Contains(u, "://") {
		return u
	}
	return "https://" + strings.TrimPrefix(u, "//")
}

func translateStep(id string, i int, s monitor.Step) (JourneyStep, error) {
	field := func(name string) string { return fmt.Sprintf("steps[%d].%s", i, name) }
	js := JourneyStep{Name: strings.TrimSpace(s.Name), Params: map[string]string{}}
	need := func(key, value string) error {
		value = strings.TrimSpace(value)
		if value == "" {
			return missing(id, field(key))
		}
		js.Params[key] = value
		return nil
	}

	var err error
	switch normalizeStepType(s.Type) {
	case "httprequest", "request", "http":
		js.Action = ActionRequest
		err = need("url", absoluteURL(strings.TrimSpace(s.URL)))
		method := strings.ToUpper(strings.TrimSpace(s.Method))
		if method == "" {
			method = "GET"
		}
		js.Params["method"] = method
		if s.ExpectedStatus != nil {
			js.Params["status"] = strconv.Itoa(*s.ExpectedStatus)
		}
	case "navigate", "navigatetourl", "goto", "open":
		js.Action = ActionNavigate
		err = need("url", absoluteURL(strings.TrimSpace(s.URL)))
	case "click", "clickelement":
		js.Action = ActionClick
		err = need("selector", s.Selector)
	case "setvalue", "type", "fill", "input", "settext":
		js.Action = ActionFill
		if err = need("selector", s.Selector); err == nil {
			// an empty value is a legitimate way to clear a field
			js.Params["value"] = s.Value
		}
	case "wait", "delay", "waitfor":
		js.Action = ActionWait
		if s.WaitMillis <= 0 {
			err = missing(id, field("wait_ms"))
		} else {
			js.Params["duration"] = fmt.Sprintf("%dms", s.WaitMillis)
		}
	case "testdocumentcontent", "verify", "asserttext", "checkcontent", "checkelement":
		js.Action = ActionAssertText
		text := strings.TrimSpace(s.Value)
		sel := strings.TrimSpace(s.Selector)
		if text == "" && sel == "" {
			err = missing(id, field("value"))
		}
		if text != "" {
			js.Params["text"] = text
		}
		if sel != "" {
			js.Params["selector"] = sel
		}
	case "checkstatus", "assertstatus", "statuscode":
		js.Action = ActionAssertStatus
		if s.ExpectedStatus == nil {
			err = missing(id, field("expected_status"))
		} else {
			js.Params["status"] = strconv.Itoa(*s.ExpectedStatus)
		}
	default:
		err = &Error{Kind: ErrUnsupportedValue, MonitorID: id, Field: field("type"), Err: fmt.Errorf("step type %q", s.Type)}
	}
	if err != nil {
		return JourneyStep{}, err
	}
	return js, nil
}

func normalizeStepType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(t)
}

var idUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// DocumentID derives the target monitor id from the source identifier.
func DocumentID(sourceID string) string {
	return "monitor-" + strings.Trim(idUnsafe.ReplaceAllString(strings.TrimSpace(sourceID), "-"), "-")
}

// monitorName falls back to the source id and suffixes names too short for
// Elastic with it.
func monitorName(rec monitor.Record) string {
	name, id := strings.TrimSpace(rec.Name), strings.TrimSpace(rec.ID)
	switch {
	case name == "":
		name = id
	case len(name) < minNameLen:
		name += " (" + id + ")"
	}
	if len(name) < minNameLen {
		name = "Monitor " + name
	}
	return name
}

// ScheduleFor maps a check interval in seconds onto the coarser schedule
// steps Elastic offers. Unknown or very long intervals fall back to 5m.
func ScheduleFor(intervalSecs int) string {
	switch {
	case intervalSecs <= 0:
		return "@every 5m"
	case intervalSecs <= 60:
		return "@every 1m"
	case intervalSecs <= 180:
		return "@every 3m"
	case intervalSecs <= 300:
		return "@every 5m"
	case intervalSecs <= 600:
		return "@every 10m"
	case intervalSecs <= 900:
		return "@every 15m"
	case intervalSecs <= 1800:
		return "@every 30m"
	case intervalSecs <= 3600:
		return "@every 1h"
	}
	return "@every 5m"
}

func timeoutFor(rec monitor.Record, def int) string {
	secs := rec.TimeoutSeconds
	if secs <= 0 {
		secs = def
	}
	if secs > maxTimeoutSecs {
		secs = maxTimeoutSecs
	}
	return fmt.Sprintf("%ds", secs)
}

func hostOf(rec monitor.Record) string {
	if h := strings.TrimSpace(rec.Host); h != "" {
		if host, _, err := net.SplitHostPort(h); err == nil {
			return host
		}
		return h
	}
	raw := strings.TrimSpace(rec.URL)
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		return host
	}
	return raw
}

var defaultPorts = map[monitor.SourceKind]int{
	monitor.KindHTTP:  80,
	monitor.KindHTTPS: 443,
	monitor.KindSMTP:  25,
	monitor.KindPOP3:  110,
	monitor.KindIMAP:  143,
	monitor.KindFTP:   21,
	monitor.KindSFTP:  22,
}

var schemePorts = map[string]int{"http": 80, "https": 443, "smtp": 25, "pop3": 110, "imap": 143, "ftp": 21, "sftp": 22, "ssh": 22}

func portOf(rec monitor.Record) int {
	if rec.Port > 0 {
		return rec.Port
	}
	for _, raw := range []string{rec.Host, rec.URL} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			if p, err := strconv.Atoi(u.Port()); err == nil && p > 0 {
				return p
			}
			if p, ok := schemePorts[strings.ToLower(u.Scheme)]; ok {
				return p
			}
		}
		if _, ps, err := net.SplitHostPort(raw); err == nil {
			if p, err := strconv.Atoi(ps); err == nil && p > 0 {
				return p
			}
		}
	}
	return defaultPorts[rec.Kind]
}
