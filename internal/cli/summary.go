package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/ibeckermayer/webprobe/internal/probe"
)

var (
	passColor = color.New(color.FgGreen)
	failColor = color.New(color.FgRed, color.Bold)
	skipColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

func outcomeColor(o probe.Outcome) *color.Color {
	switch o {
	case probe.Passed:
		return passColor
	case probe.Failed:
		return failColor
	default:
		return skipColor
	}
}

func statusColor(s probe.Status) *color.Color {
	if s == probe.StatusPassed {
		return passColor
	}
	return failColor
}

// printSummary writes the human summary of a run. Pass lines already went
// to stdout, so this goes to stderr and may be colored.
func printSummary(w io.Writer, r *probe.Report) {
	if r == nil {
		return
	}

	fmt.Fprintln(w)
	for _, c := range r.Checks {
		line := fmt.Sprintf("  %-8s %s", c.Outcome, c.Name)
		if c.Detail != "" {
			line += dimColor.Sprintf(" (%s)", c.Detail)
		}
		fmt.Fprintln(w, outcomeColor(c.Outcome).Sprint(line))
	}

	status := r.Status()
	fmt.Fprintf(w, "\n%s %d passed, %d failed, %d skipped in %s\n",
		statusColor(status).Sprintf("%s:", status),
		r.Count(probe.Passed), r.Count(probe.Failed), r.Count(probe.Skipped),
		r.Duration().Round(10*time.Millisecond),
	)
	if r.Error != "" {
		fmt.Fprintln(w, failColor.Sprint("error: ")+r.Error)
	}
	if r.Screenshot != "" {
		fmt.Fprintln(w, dimColor.Sprint("screenshot: ")+r.Screenshot)
	}
}
