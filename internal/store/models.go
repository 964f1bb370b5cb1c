package store

import (
	"time"

	"github.com/ibeckermayer/webprobe/internal/probe"
)

// RunSummary is one row of the run history
type RunSummary struct {
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	Status    probe.Status  `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
}
