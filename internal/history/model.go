package history

import (
	"strings"
	"time"

	"synthmigrate/internal/migrate"
)

// Run is the stored summary of one finished migration run.
type Run struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	DryRun     bool            `json:"dry_run"`
	Counts     migrate.Counts  `json:"counts"`
	ReportPath string          `json:"report_path,omitempty"`
	Entries    []migrate.Entry `json:"entries,omitempty"`
}

func fromReport(rep *migrate.Report) Run {
	return Run{
		RunID:      strings.TrimSpace(rep.RunID),
		StartedAt:  rep.StartedAt.UTC(),
		FinishedAt: rep.FinishedAt.UTC(),
		DryRun:     rep.DryRun,
		Counts:     rep.Counts,
		ReportPath: rep.Path,
		Entries:    append([]migrate.Entry(nil), rep.Entries...),
	}
}

// Failed returns the ids of monitors that did not succeed in the run.
func (r Run) Failed() []string {
	var out []string
	for _, e := range r.Entries {
		if e.State != migrate.StateSucceeded {
			out = append(out, e.MonitorID)
		}
	}
	return out
}
