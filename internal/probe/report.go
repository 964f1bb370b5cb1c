package probe

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the result of a single visibility check
type Outcome string

const (
	Passed  Outcome = "passed"
	Failed  Outcome = "failed"
	Skipped Outcome = "skipped" // not reached because the run aborted
)

// Status summarizes a whole run
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
	StatusError  Status = "error"
)

// CheckResult records one named check
type CheckResult struct {
	Name     string  `json:"name"`
	Selector string  `json:"selector"`
	Outcome  Outcome `json:"outcome"`
	Detail   string  `json:"detail,omitempty"`
}

// Report is returned from every run, including aborted ones
type Report struct {
	ID         string        `json:"id"`
	URL        string        `json:"url"`
	Screenshot string        `json:"screenshot,omitempty"` // absolute
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Checks     []CheckResult `json:"checks"`
	Stage      Stage         `json:"stage,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func newReport(t Target) *Report {
	checks := make([]CheckResult, len(t.Checks))
	for i, c := range t.Checks {
		checks[i] = CheckResult{
			Name:     c.Name,
			Selector: c.Selector,
			Outcome:  Skipped,
		}
	}
	return &Report{
		ID:        uuid.NewString(),
		URL:       t.URL,
		StartedAt: time.Now(),
		Checks:    checks,
	}
}

// AllPassed reports whether every check passed and the run completed
func (r *Report) AllPassed() bool {
	if r.Error != "" {
		return false
	}
	for _, c := range r.Checks {
		if c.Outcome != Passed {
			return false
		}
	}
	return true
}

// Count returns how many checks ended with the given outcome
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, c := range r.Checks {
		if c.Outcome == o {
			n++
		}
	}
	return n
}

// Status returns error if the run aborted, failed if any check did not pass
func (r *Report) Status() Status {
	switch {
	case r.Error != "":
		return StatusError
	case r.AllPassed():
		return StatusPassed
	default:
		return StatusFailed
	}
}

// Duration is the wall time of the run
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
