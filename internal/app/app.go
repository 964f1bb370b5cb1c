package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/ibeckermayer/webprobe/internal/config"
	"github.com/ibeckermayer/webprobe/internal/metrics"
	"github.com/ibeckermayer/webprobe/internal/notifier"
	"github.com/ibeckermayer/webprobe/internal/probe"
	"github.com/ibeckermayer/webprobe/internal/store"
)

// LauncherFunc builds the browser launcher for a config
type LauncherFunc func(cfg config.BrowserConfig, logger logrus.FieldLogger) probe.Launcher

// Deps are the collaborators that survive config reloads
type Deps struct {
	ConfigPath string               // empty means the default location
	Overrides  func(*config.Config) // re-applied after every reload, e.g. CLI flags
	Launcher   LauncherFunc
	Fs         afero.Fs
	Out        io.Writer // pass lines
	Logger     logrus.FieldLogger
	History    *store.Store     // optional
	ReportsDir string           // optional, JSON reports are cached here
	Metrics    *metrics.Metrics // optional
}

// App holds the application state.
type App struct {
	mu   sync.RWMutex
	deps Deps // immutable after creation

	// Mutable fields - use getSnapshot() for concurrent access.
	config   *config.Config
	probe    *probe.Probe
	notifier *notifier.Notifier
}

// snapshot holds fields that may be replaced by ReloadConfig.
// Use getSnapshot() to obtain a consistent, point-in-time copy.
type snapshot struct {
	config   *config.Config
	probe    *probe.Probe
	notifier *notifier.Notifier
}

// getSnapshot returns a snapshot of mutable fields under read lock.
func (a *App) getSnapshot() snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return snapshot{
		config:   a.config,
		probe:    a.probe,
		notifier: a.notifier,
	}
}

// New creates a new App instance from an already validated config.
func New(cfg *config.Config, deps Deps) (*App, error) {
	a := &App{deps: deps}
	if err := a.apply(cfg); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) apply(cfg *config.Config) error {
	n, err := notifier.NewFromConfig(cfg.Alert)
	if err != nil {
		return err
	}

	launcher := a.deps.Launcher(cfg.Browser, a.deps.Logger)
	p := probe.New(launcher, a.deps.Fs, a.deps.Out, a.deps.Logger)

	a.mu.Lock()
	a.config = cfg
	a.probe = p
	a.notifier = n
	a.mu.Unlock()
	return nil
}

// Config returns the current configuration
func (a *App) Config() *config.Config {
	return a.getSnapshot().config
}

// RunCheck performs one probe run and records it in history.
func (a *App) RunCheck(ctx context.Context) (*probe.Report, error) {
	s := a.getSnapshot()

	report, err := s.probe.Run(ctx, probe.TargetFromConfig(s.config))
	a.record(report)
	return report, err
}

// RunAndNotify is the watch-mode job: run, record, alert on anything but a pass.
func (a *App) RunAndNotify(ctx context.Context) error {
	report, err := a.RunCheck(ctx)

	s := a.getSnapshot()
	if nerr := s.notifier.NotifyFailure(report); nerr != nil {
		a.deps.Logger.WithError(nerr).Warn("Failed to send alert")
	}

	if err != nil {
		return err
	}
	if !report.AllPassed() {
		return fmt.Errorf("%d of %d checks failed", report.Count(probe.Failed), len(report.Checks))
	}
	return nil
}

// ExitCode maps a run to a process exit status under the current policy
func (a *App) ExitCode(report *probe.Report, err error) probe.ExitCode {
	return probe.ExitCodeFor(report, err, probe.PolicyFor(a.Config().Policy.Strict))
}

// record publishes the report to metrics, history and the reports dir;
// failures are logged but never fail the run.
func (a *App) record(report *probe.Report) {
	logger := a.deps.Logger.WithField("run", report.ID)

	if a.deps.Metrics != nil {
		a.deps.Metrics.Observe(report)
	}

	if a.deps.History != nil {
		if err := a.deps.History.SaveReport(report); err != nil {
			logger.WithError(err).Warn("Failed to save run history")
		}
	}

	if a.deps.ReportsDir != "" {
		if path, err := store.SaveReportFile(a.deps.ReportsDir, report); err != nil {
			logger.WithError(err).Warn("Failed to cache report")
		} else {
			logger.WithField("path", path).Debug("Cached report")
		}
	}
}

// ReloadConfig reloads the configuration from disk.
func (a *App) ReloadConfig() error {
	cfg, err := config.LoadOrDefault(a.deps.ConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if a.deps.Overrides != nil {
		a.deps.Overrides(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := a.apply(cfg); err != nil {
		return err
	}

	a.deps.Logger.Info("Configuration reloaded")
	return nil
}
