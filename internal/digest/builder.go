package digest

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/ibeckermayer/webprobe/internal/probe"
	"github.com/ibeckermayer/webprobe/internal/store"
)

// Builder renders run history as a standalone HTML page
type Builder struct {
	maxRuns  int
	template *template.Template
}

// New creates a new digest builder
func New(maxRuns int) (*Builder, error) {
	tmpl, err := template.New("digest").Funcs(template.FuncMap{
		"short": shortID,
	}).Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &Builder{
		maxRuns:  maxRuns,
		template: tmpl,
	}, nil
}

// Digest represents a rendered history page
type Digest struct {
	Title     string
	HTMLBody  string
	PlainBody string
	RunIDs    []string
	CreatedAt time.Time
}

// DigestData is the template data structure
type DigestData struct {
	Title string
	Date  string
	Runs  []RunData
	Stats StatsData
}

// RunData represents one run row in the template
type RunData struct {
	ID       string
	URL      string
	Status   string
	Started  string
	Duration string
	Checks   string
	Error    string
}

// StatsData summarizes the included runs
type StatsData struct {
	Total    int
	Passed   int
	Failed   int
	Errored  int
	PassRate string
}

// Build renders the newest runs, which must be ordered newest first
func (b *Builder) Build(runs []store.RunSummary) (*Digest, error) {
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs to include in digest")
	}

	if len(runs) > b.maxRuns {
		runs = runs[:b.maxRuns]
	}

	now := time.Now()
	data := DigestData{
		Title: fmt.Sprintf("webprobe history for %s", runs[0].URL),
		Date:  now.Format("Monday, January 2 15:04"),
		Runs:  make([]RunData, len(runs)),
	}

	runIDs := make([]string, len(runs))
	for i, r := range runs {
		data.Runs[i] = RunData{
			ID:       r.ID,
			URL:      r.URL,
			Status:   string(r.Status),
			Started:  r.StartedAt.Local().Format(time.DateTime),
			Duration: r.Duration.Round(10 * time.Millisecond).String(),
			Checks:   fmt.Sprintf("%d/%d", r.Passed, r.Passed+r.Failed+r.Skipped),
			Error:    r.Error,
		}
		runIDs[i] = r.ID

		switch r.Status {
		case probe.StatusPassed:
			data.Stats.Passed++
		case probe.StatusFailed:
			data.Stats.Failed++
		default:
			data.Stats.Errored++
		}
	}
	data.Stats.Total = len(runs)
	data.Stats.PassRate = fmt.Sprintf("%.0f%%", 100*float64(data.Stats.Passed)/float64(data.Stats.Total))

	var htmlBuf bytes.Buffer
	if err := b.template.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	return &Digest{
		Title:     data.Title,
		HTMLBody:  htmlBuf.String(),
		PlainBody: buildPlainText(data),
		RunIDs:    runIDs,
		CreatedAt: now,
	}, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func buildPlainText(data DigestData) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n%s\n", data.Title, data.Date)
	fmt.Fprintf(&buf, "%d runs: %d passed, %d failed, %d errored (%s)\n\n",
		data.Stats.Total, data.Stats.Passed, data.Stats.Failed, data.Stats.Errored, data.Stats.PassRate)

	for _, r := range data.Runs {
		fmt.Fprintf(&buf, "%s  %-6s  %s  %s\n", r.Started, r.Status, r.Checks, shortID(r.ID))
		if r.Error != "" {
			fmt.Fprintf(&buf, "    %s\n", r.Error)
		}
	}

	return buf.String()
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 800px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        .container { background: white; border-radius: 8px; padding: 20px; }
        h1 { color: #333; margin-bottom: 5px; font-size: 20px; }
        .date { color: #666; margin-bottom: 20px; }
        .stats { margin-bottom: 15px; color: #333; }
        table { width: 100%; border-collapse: collapse; font-size: 14px; }
        th { text-align: left; color: #666; border-bottom: 2px solid #eee; padding: 6px; }
        td { border-bottom: 1px solid #eee; padding: 6px; vertical-align: top; }
        .passed { color: #1a7f37; font-weight: bold; }
        .failed { color: #cf222e; font-weight: bold; }
        .error { color: #9a6700; font-weight: bold; }
        .detail { color: #999; font-size: 12px; }
        code { color: #666; }
        .footer { margin-top: 20px; padding-top: 15px; border-top: 1px solid #eee; color: #999; font-size: 12px; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <div class="date">{{.Date}}</div>
        <div class="stats">{{.Stats.Total}} runs · {{.Stats.Passed}} passed · {{.Stats.Failed}} failed · {{.Stats.Errored}} errored · {{.Stats.PassRate}} pass rate</div>

        <table>
            <tr><th>Started</th><th>Status</th><th>Checks</th><th>Duration</th><th>Run</th></tr>
            {{range .Runs}}
            <tr>
                <td>{{.Started}}</td>
                <td class="{{.Status}}">{{.Status}}</td>
                <td>{{.Checks}}</td>
                <td>{{.Duration}}</td>
                <td><code>{{short .ID}}</code>{{if .Error}}<div class="detail">{{.Error}}</div>{{end}}</td>
            </tr>
            {{end}}
        </table>

        <div class="footer">
            Generated by webprobe
        </div>
    </div>
</body>
</html>`
