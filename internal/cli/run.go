package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/webprobe/internal/app"
	"github.com/ibeckermayer/webprobe/internal/config"
	"github.com/ibeckermayer/webprobe/internal/metrics"
	"github.com/ibeckermayer/webprobe/internal/probe"
	"github.com/ibeckermayer/webprobe/internal/store"
)

type runFlags struct {
	baseURL    string
	pagePath   string
	output     string
	timeout    time.Duration
	idleWindow time.Duration
	headful    bool
	noSandbox  bool
	chromePath string
	lenient    bool
	reportPath string
	noHistory  bool
}

func newRunCommand(gs *globalState) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Probe the page once",
		Example: `  webprobe run
  webprobe run --base-url http://localhost:9000 -o /tmp/shot.png
  webprobe run --lenient --report report.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(gs, appOptions{
				overrides: f.overrides(cmd),
				history:   !f.noHistory,
			})
			if err != nil {
				return err
			}
			defer s.Close()

			report, runErr := s.app.RunCheck(cmd.Context())

			if f.reportPath != "" {
				if err := store.WriteReport(f.reportPath, report); err != nil {
					gs.logger.WithError(err).Warn("Failed to write report")
				}
			}

			printSummary(gs.stderr, report)

			code := s.app.ExitCode(report, runErr)
			if code != probe.ExitOK {
				return &exitError{code: code, err: runErr}
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.baseURL, "base-url", "", "target host, e.g. http://localhost:8000")
	fl.StringVar(&f.pagePath, "page-path", "", "page path appended to the base URL")
	fl.StringVarP(&f.output, "output", "o", "", "screenshot path; its directory must exist")
	fl.DurationVar(&f.timeout, "timeout", 0, "budget for navigation plus network quiescence")
	fl.DurationVar(&f.idleWindow, "idle-window", 0, "how long the network must stay quiet")
	fl.BoolVar(&f.headful, "headful", false, "show the browser window")
	fl.BoolVar(&f.noSandbox, "no-sandbox", false, "disable the Chrome sandbox (needed as root)")
	fl.StringVar(&f.chromePath, "chrome-path", "", "Chrome executable")
	fl.BoolVar(&f.lenient, "lenient", false, "exit 0 even when checks fail")
	fl.StringVar(&f.reportPath, "report", "", "also write the JSON report to this file")
	fl.BoolVar(&f.noHistory, "no-history", false, "do not record the run in history")

	return cmd
}

// overrides applies only the flags the user actually set
func (f *runFlags) overrides(cmd *cobra.Command) func(*config.Config) {
	changed := cmd.Flags().Changed
	return func(c *config.Config) {
		if changed("base-url") {
			c.Target.BaseURL = f.baseURL
		}
		if changed("page-path") {
			c.Target.PagePath = f.pagePath
		}
		if changed("output") {
			c.Output.ScreenshotPath = f.output
		}
		if changed("timeout") {
			c.Timeouts.Navigation = f.timeout
		}
		if changed("idle-window") {
			c.Timeouts.IdleWindow = f.idleWindow
		}
		if changed("headful") {
			c.Browser.Headless = !f.headful
		}
		if changed("no-sandbox") {
			c.Browser.NoSandbox = f.noSandbox
		}
		if changed("chrome-path") {
			c.Browser.ExecPath = f.chromePath
		}
		if changed("lenient") {
			c.Policy.Strict = !f.lenient
		}
	}
}

// loadConfig layers file, environment and flags, then validates
func loadConfig(gs *globalState, overrides func(*config.Config)) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(gs.flags.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if overrides != nil {
		overrides(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type appOptions struct {
	overrides func(*config.Config)
	history   bool
	metrics   *metrics.Metrics
}

// session is an app plus the history store it records to
type session struct {
	app     *app.App
	history *store.Store // nil when history is off
}

func (s *session) Close() {
	if s.history != nil {
		s.history.Close()
	}
}

// newSession builds the app from layered config
func newSession(gs *globalState, opts appOptions) (*session, error) {
	cfg, err := loadConfig(gs, opts.overrides)
	if err != nil {
		return nil, err
	}

	deps := app.Deps{
		ConfigPath: gs.flags.configPath,
		Overrides:  opts.overrides,
		Launcher:   gs.launcher,
		Fs:         gs.fs,
		Out:        gs.stdout,
		Logger:     gs.logger,
		Metrics:    opts.metrics,
	}

	s := &session{}
	if opts.history && cfg.History.Enabled {
		h, err := openHistory(cfg)
		if err != nil {
			gs.logger.WithError(err).Warn("Run history disabled")
		} else {
			s.history = h
			deps.History = h
			if dir, err := store.ReportsDir(); err == nil {
				deps.ReportsDir = dir
			}
		}
	}

	if s.app, err = app.New(cfg, deps); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func openHistory(cfg *config.Config) (*store.Store, error) {
	path := cfg.History.DBPath
	if path == "" {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			return nil, err
		}
	}
	return store.New(path)
}
