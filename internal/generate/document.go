package generate

import "synthmigrate/internal/classify"

// Document is the generated monitor body. It is implemented only by
// *LightweightDoc and *JourneyDoc; the two shapes are deliberately unrelated.
type Document interface {
	Format() classify.OutputFormat
	DocID() string
	isDocument()
}

// LightweightDoc is an Elastic Synthetics lightweight monitor (http, icmp,
// tcp). Keys follow the project-monitor YAML format.
type LightweightDoc struct {
	ID               string            `yaml:"id" json:"id"`
	Name             string            `yaml:"name" json:"name"`
	Type             string            `yaml:"type" json:"type"`
	Enabled          bool              `yaml:"enabled" json:"enabled"`
	Schedule         string            `yaml:"schedule" json:"schedule"`
	Timeout          string            `yaml:"timeout" json:"timeout"`
	Locations        []string          `yaml:"locations" json:"locations"`
	Tags             []string          `yaml:"tags,omitempty" json:"tags,omitempty"`
	URLs             []string          `yaml:"urls,omitempty" json:"urls,omitempty"`
	Hosts            []string          `yaml:"hosts,omitempty" json:"hosts,omitempty"`
	Method           string            `yaml:"method,omitempty" json:"method,omitempty"`
	Headers          map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body             string            `yaml:"body,omitempty" json:"body,omitempty"`
	MaxRedirects     *int              `yaml:"max_redirects,omitempty" json:"max_redirects,omitempty"`
	Mode             string            `yaml:"mode,omitempty" json:"mode,omitempty"`
	ResponseStatus   []int             `yaml:"check.response.status,omitempty" json:"check.response.status,omitempty"`
	BodyPositive     []string          `yaml:"check.response.body.positive,omitempty" json:"check.response.body.positive,omitempty"`
	Wait             string            `yaml:"wait,omitempty" json:"wait,omitempty"`
	OriginalSourceID string            `yaml:"original_uptrends_id" json:"original_uptrends_id"`
}

func (*LightweightDoc) Format() classify.OutputFormat { return classify.FormatLightweight }
func (d *LightweightDoc) DocID() string               { return d.ID }
func (*LightweightDoc) isDocument()                   {}

// Action is what a journey step does in the browser.
type Action string

const (
	ActionNavigate     Action = "navigate"
	ActionClick        Action = "click"
	ActionFill         Action = "fill"
	ActionWait         Action = "wait"
	ActionAssertText   Action = "assert-text"
	ActionAssertStatus Action = "assert-status"
	ActionRequest      Action = "request"
)

var actions = []Action{ActionNavigate, ActionClick, ActionFill, ActionWait, ActionAssertText, ActionAssertStatus, ActionRequest}

// Actions returns the recognized step actions.
func Actions() []Action { return append([]Action(nil), actions...) }

func (a Action) Valid() bool {
	for _, known := range actions {
		if a == known {
			return true
		}
	}
	return false
}

// JourneyStep is one named step of a browser journey.
type JourneyStep struct {
	Name   string            `json:"name"`
	Action Action            `json:"action"`
	Params map[string]string `json:"params,omitempty"`
}

// JourneyDoc is an Elastic Synthetics browser journey: an ordered script of
// steps rather than a flat key/value document.
type JourneyDoc struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Enabled          bool              `json:"enabled"`
	Schedule         string            `json:"schedule"`
	Locations        []string          `json:"locations"`
	Tags             []string          `json:"tags,omitempty"`
	Params           map[string]string `json:"params,omitempty"`
	Steps            []JourneyStep     `json:"steps"`
	OriginalSourceID string            `json:"original_uptrends_id"`
}

func (*JourneyDoc) Format() classify.OutputFormat { return classify.FormatJourney }
func (d *JourneyDoc) DocID() string               { return d.ID }
func (*JourneyDoc) isDocument()                   {}

// Config is a generated monitor configuration ready for validation.
type Config struct {
	MonitorID string                `json:"monitor_id"`
	Name      string                `json:"name"`
	Format    classify.OutputFormat `json:"output_format"`
	Kind      classify.TargetKind   `json:"target_kind"`
	Doc       Document              `json:"document"`
}
