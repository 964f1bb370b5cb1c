package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/webprobe/internal/config"
	"github.com/ibeckermayer/webprobe/internal/notifier/providers"
	"github.com/ibeckermayer/webprobe/internal/probe"
)

type sent struct {
	to, subject, body string
}

type recordingSender struct {
	sent []sent
}

func (r *recordingSender) Send(to, subject, body string) error {
	r.sent = append(r.sent, sent{to, subject, body})
	return nil
}

func report(header probe.Outcome) *probe.Report {
	started := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	return &probe.Report{
		ID:         "run-1",
		URL:        "http://localhost:8000/web/index.html",
		Screenshot: "verification/initial_load.png",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Checks: []probe.CheckResult{
			{Name: "Header", Selector: "header", Outcome: header, Detail: "no visible element"},
			{Name: "Message input", Selector: "#message-input", Outcome: probe.Passed},
		},
	}
}

func TestNotifyFailure(t *testing.T) {
	rs := &recordingSender{}
	n := New(rs, "ops@example.com")

	require.NoError(t, n.NotifyFailure(report(probe.Passed)))
	assert.Empty(t, rs.sent, "passing runs do not alert")

	require.NoError(t, n.NotifyFailure(report(probe.Failed)))
	require.Len(t, rs.sent, 1)
	assert.Equal(t, "ops@example.com", rs.sent[0].to)
	assert.Equal(t, "[webprobe] FAILED: http://localhost:8000/web/index.html", rs.sent[0].subject)
	assert.Contains(t, rs.sent[0].body, "[failed] Header (header): no visible element")
	assert.Contains(t, rs.sent[0].body, "[passed] Message input (#message-input)")
	assert.Contains(t, rs.sent[0].body, "Screenshot: verification/initial_load.png")
}

func TestNotifyAborted(t *testing.T) {
	rs := &recordingSender{}
	n := New(rs, "ops@example.com")

	r := report(probe.Skipped)
	r.Checks[1].Outcome = probe.Skipped
	r.Screenshot = ""
	r.Stage = probe.StageNavigate
	r.Error = "navigate: target unreachable"

	require.NoError(t, n.NotifyFailure(r))
	require.Len(t, rs.sent, 1)
	assert.Contains(t, rs.sent[0].subject, "ERROR")
	assert.Contains(t, rs.sent[0].body, "Aborted at navigate: navigate: target unreachable")
	assert.NotContains(t, rs.sent[0].body, "Screenshot:")
}

func TestNewFromConfig(t *testing.T) {
	n, err := NewFromConfig(config.AlertConfig{})
	require.NoError(t, err)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.NotifyFailure(report(probe.Failed)))

	_, err = NewFromConfig(config.AlertConfig{Provider: "pager"})
	assert.Error(t, err)

	_, err = NewFromConfig(config.AlertConfig{Provider: "smtp", SMTPHost: "localhost"})
	assert.Error(t, err, "recipient is required")

	n, err = NewFromConfig(config.AlertConfig{Provider: "smtp", SMTPHost: "localhost", SMTPPort: 25, ToAddr: "ops@example.com"})
	require.NoError(t, err)
	assert.True(t, n.Enabled())
}

func TestSMTPMessage(t *testing.T) {
	s := providers.NewSMTPSender("localhost", 25, "", "", "probe@example.com")
	msg := string(s.Message("ops@example.com", "subject", "line one\nline two\n"))

	assert.Contains(t, msg, "From: probe@example.com\r\n")
	assert.Contains(t, msg, "To: ops@example.com\r\n")
	assert.Contains(t, msg, "Subject: subject\r\n")
	assert.Contains(t, msg, "\r\n\r\nline one\r\nline two\r\n")
}
