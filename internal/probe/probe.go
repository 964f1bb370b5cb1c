// Package probe runs a fixed verification checklist against one page load:
// navigate, wait for the network to settle, screenshot, then check that a
// set of elements is visible.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/ibeckermayer/webprobe/internal/config"
)

// Page is a single browser tab owned by one run. Close releases the whole
// browser session behind it.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitNetworkIdle(ctx context.Context, window time.Duration) error
	Screenshot(ctx context.Context) ([]byte, error)
	Visible(ctx context.Context, selector string) (bool, error)
	Close() error
}

// Launcher starts a browser session and hands back its page
type Launcher interface {
	Launch(ctx context.Context) (Page, error)
}

// Check is an element that should be visible once the page has settled
type Check struct {
	Name     string
	Selector string
}

// PassLine is the line written to stdout when the check passes
func (c Check) PassLine() string {
	return c.Name + " is visible"
}

// Target describes one run
type Target struct {
	URL               string
	ScreenshotPath    string
	Checks            []Check
	NavigationTimeout time.Duration
	IdleWindow        time.Duration
}

// TargetFromConfig builds the run target from configuration
func TargetFromConfig(cfg *config.Config) Target {
	checks := make([]Check, len(cfg.Checks))
	for i, c := range cfg.Checks {
		checks[i] = Check{Name: c.Name, Selector: c.Selector}
	}
	return Target{
		URL:               cfg.TargetURL(),
		ScreenshotPath:    cfg.Output.ScreenshotPath,
		Checks:            checks,
		NavigationTimeout: cfg.Timeouts.Navigation,
		IdleWindow:        cfg.Timeouts.IdleWindow,
	}
}

// Probe executes runs. It is safe to reuse for sequential runs.
type Probe struct {
	launcher Launcher
	fs       afero.Fs
	out      io.Writer
	logger   logrus.FieldLogger
}

// New creates a probe. Screenshots are written to fs and pass lines to out.
func New(launcher Launcher, fs afero.Fs, out io.Writer, logger logrus.FieldLogger) *Probe {
	return &Probe{
		launcher: launcher,
		fs:       fs,
		out:      out,
		logger:   logger,
	}
}

// Run performs the checklist. The returned report is never nil; when the
// error is non-nil it is a *FatalError and the report records how far the
// run got.
func (p *Probe) Run(ctx context.Context, t Target) (*Report, error) {
	report := newReport(t)
	logger := p.logger.WithFields(logrus.Fields{"run": report.ID, "url": t.URL})

	err := p.run(ctx, t, report, logger)
	report.FinishedAt = time.Now()

	if err != nil {
		var fe *FatalError
		if errors.As(err, &fe) {
			report.Stage = fe.Stage
		}
		report.Error = err.Error()
		logger.WithError(err).Error("Probe aborted")
		return report, err
	}

	logger.WithFields(logrus.Fields{
		"passed":   report.Count(Passed),
		"failed":   report.Count(Failed),
		"duration": report.Duration().Round(time.Millisecond),
	}).Info("Probe finished")
	return report, nil
}

func (p *Probe) run(ctx context.Context, t Target, report *Report, logger logrus.FieldLogger) error {
	logger.Debug("Launching browser")
	page, err := p.launcher.Launch(ctx)
	if err != nil {
		return fatal(StageLaunch, ErrBrowserLaunch, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close browser")
		}
	}()

	// Navigation and the quiescence wait share one budget.
	navCtx, cancel := context.WithTimeout(ctx, t.NavigationTimeout)
	defer cancel()

	logger.Info("Navigating")
	if err := page.Navigate(navCtx, t.URL); err != nil {
		return classifyNavigation(ctx, navCtx, StageNavigate, err)
	}

	logger.WithField("window", t.IdleWindow).Debug("Waiting for network idle")
	if err := page.WaitNetworkIdle(navCtx, t.IdleWindow); err != nil {
		return classifyNavigation(ctx, navCtx, StageNetworkIdle, err)
	}

	if err := p.screenshot(ctx, page, t); err != nil {
		return err
	}
	report.Screenshot = absPath(t.ScreenshotPath)
	logger.WithField("path", report.Screenshot).Info("Saved screenshot")

	for i, c := range t.Checks {
		report.Checks[i] = p.check(ctx, page, c, t.NavigationTimeout, logger)
	}

	return nil
}

func (p *Probe) screenshot(ctx context.Context, page Page, t Target) error {
	shotCtx, cancel := context.WithTimeout(ctx, t.NavigationTimeout)
	defer cancel()

	buf, err := page.Screenshot(shotCtx)
	if err != nil {
		return fatal(StageScreenshot, ErrCapture, err)
	}

	// The parent directory is a precondition; it is not created here.
	if err := afero.WriteFile(p.fs, t.ScreenshotPath, buf, 0644); err != nil {
		return fatal(StageScreenshot, ErrArtifactWrite, err)
	}
	return nil
}

// absPath pins a relative path to the working directory of this run, so
// history readers elsewhere can still find the file.
func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func (p *Probe) check(ctx context.Context, page Page, c Check, timeout time.Duration, logger logrus.FieldLogger) CheckResult {
	result := CheckResult{Name: c.Name, Selector: c.Selector, Outcome: Failed}
	logger = logger.WithField("check", c.Name)

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	visible, err := page.Visible(checkCtx, c.Selector)
	switch {
	case err != nil:
		result.Detail = fmt.Sprintf("query failed: %v", err)
		logger.WithError(err).Warn("Check could not be evaluated")
	case visible:
		result.Outcome = Passed
		fmt.Fprintln(p.out, c.PassLine())
	default:
		result.Detail = fmt.Sprintf("no visible element matches %q", c.Selector)
		logger.Warn("Check failed")
	}
	return result
}

// classifyNavigation maps a navigate or idle-wait failure to its fatal kind
func classifyNavigation(parent, navCtx context.Context, stage Stage, err error) error {
	switch {
	case parent.Err() != nil:
		return fatal(stage, parent.Err(), err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(navCtx.Err(), context.DeadlineExceeded):
		return fatal(stage, ErrNavigationTimeout, err)
	case stage == StageNetworkIdle:
		return fatal(stage, ErrNavigationTimeout, err)
	default:
		return fatal(stage, ErrConnection, err)
	}
}
