package migrate

import (
	"time"

	"synthmigrate/internal/classify"
	"synthmigrate/internal/monitor"
	"synthmigrate/internal/validate"
)

// Stage names the step of the pipeline a monitor failed or stopped in.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageClassify  Stage = "classify"
	StageGenerate  Stage = "generate"
	StageValidate  Stage = "validate"
	StagePersist   Stage = "persist"
	StageCancelled Stage = "cancelled"
)

type State string

const (
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
)

// Entry is the outcome for one input monitor.
type Entry struct {
	MonitorID      string                  `json:"monitor_id"`
	Name           string                  `json:"name,omitempty"`
	SourceKind     monitor.SourceKind      `json:"source_kind,omitempty"`
	State          State                   `json:"state"`
	Stage          Stage                   `json:"stage,omitempty"`
	Error          string                  `json:"error,omitempty"`
	TargetKind     classify.TargetKind     `json:"target_kind,omitempty"`
	Format         classify.OutputFormat   `json:"output_format,omitempty"`
	DecisionSource classify.DecisionSource `json:"decision_source,omitempty"`
	Confidence     float64                 `json:"confidence,omitempty"`
	Rationale      string                  `json:"rationale,omitempty"`
	Violations     []validate.Violation    `json:"violations,omitempty"`
	OutputPath     string                  `json:"output_path,omitempty"`
}

type Counts struct {
	Total       int           `json:"total"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Lightweight int           `json:"lightweight"`
	Journey     int           `json:"journey"`
	ByStage     map[Stage]int `json:"by_stage,omitempty"`
}

// Report is created empty at run start, receives exactly one entry per
// input monitor and is finalized once at the end.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run,omitempty"`
	Entries    []Entry   `json:"entries"`
	Counts     Counts    `json:"counts"`

	// Path is where the report itself was persisted, if it was.
	Path         string `json:"-"`
	PersistError string `json:"persist_error,omitempty"`
}

func newReport(runID string, n int, started time.Time) *Report {
	return &Report{RunID: runID, StartedAt: started, Entries: make([]Entry, n)}
}

// Finalize computes Counts from Entries and stamps FinishedAt.
func (r *Report) Finalize(finished time.Time) {
	c := Counts{Total: len(r.Entries)}
	for _, e := range r.Entries {
		switch e.State {
		case StateSucceeded:
			c.Succeeded++
			switch e.Format {
			case classify.FormatLightweight:
				c.Lightweight++
			case classify.FormatJourney:
				c.Journey++
			}
		case StateFailed:
			c.Failed++
		case StateSkipped:
			c.Skipped++
		}
		if e.Stage != "" {
			if c.ByStage == nil {
				c.ByStage = map[Stage]int{}
			}
			c.ByStage[e.Stage]++
		}
	}
	r.Counts = c
	r.FinishedAt = finished
}

// Failures returns the entries that did not succeed, in input order.
func (r *Report) Failures() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.State != StateSucceeded {
			out = append(out, e)
		}
	}
	return out
}
