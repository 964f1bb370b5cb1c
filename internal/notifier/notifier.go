package notifier

import (
	"fmt"
	"strings"

	"github.com/ibeckermayer/webprobe/internal/config"
	"github.com/ibeckermayer/webprobe/internal/notifier/providers"
	"github.com/ibeckermayer/webprobe/internal/probe"
)

// Notifier sends alerts for runs that did not fully pass
type Notifier struct {
	sender Sender
	to     string
}

// Sender defines the interface for email sending
type Sender interface {
	Send(to, subject, body string) error
}

// New creates a new notifier with the given sender. A nil sender disables alerts.
func New(sender Sender, to string) *Notifier {
	return &Notifier{sender: sender, to: to}
}

// NewFromConfig creates a notifier based on configuration.
// An empty provider yields a notifier that never sends.
func NewFromConfig(cfg config.AlertConfig) (*Notifier, error) {
	var sender Sender

	switch cfg.Provider {
	case "":
		return New(nil, ""), nil
	case "smtp":
		if cfg.ToAddr == "" {
			return nil, fmt.Errorf("alert.to_address is required for smtp alerts")
		}
		sender = providers.NewSMTPSender(
			cfg.SMTPHost,
			cfg.SMTPPort,
			cfg.SMTPUser,
			cfg.SMTPPass,
			cfg.FromAddr,
		)
	default:
		return nil, fmt.Errorf("unknown alert provider: %s", cfg.Provider)
	}

	return New(sender, cfg.ToAddr), nil
}

// Enabled reports whether alerts will be sent
func (n *Notifier) Enabled() bool {
	return n.sender != nil
}

// NotifyFailure sends an alert unless the run passed or alerts are disabled
func (n *Notifier) NotifyFailure(r *probe.Report) error {
	if !n.Enabled() || r.Status() == probe.StatusPassed {
		return nil
	}
	return n.sender.Send(n.to, Subject(r), Body(r))
}

// Subject is the alert subject line for a run
func Subject(r *probe.Report) string {
	return fmt.Sprintf("[webprobe] %s: %s", strings.ToUpper(string(r.Status())), r.URL)
}

// Body is the plain text alert body for a run
func Body(r *probe.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s against %s\n", r.ID, r.URL)
	fmt.Fprintf(&b, "Started %s, took %s\n\n", r.StartedAt.Format("2006-01-02 15:04:05 MST"), r.Duration())

	if r.Error != "" {
		fmt.Fprintf(&b, "Aborted at %s: %s\n\n", r.Stage, r.Error)
	}

	for _, c := range r.Checks {
		fmt.Fprintf(&b, "  [%s] %s (%s)", c.Outcome, c.Name, c.Selector)
		if c.Detail != "" {
			fmt.Fprintf(&b, ": %s", c.Detail)
		}
		b.WriteString("\n")
	}

	if r.Screenshot != "" {
		fmt.Fprintf(&b, "\nScreenshot: %s\n", r.Screenshot)
	}

	return b.String()
}
