package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/webprobe/internal/app"
	"github.com/ibeckermayer/webprobe/internal/config"
	"github.com/ibeckermayer/webprobe/internal/metrics"
	"github.com/ibeckermayer/webprobe/internal/scheduler"
)

const probeJob = "probe"

type watchFlags struct {
	schedule       string
	listen         string
	reloadOnChange bool
	noHistory      bool
	skipFirst      bool
}

func newWatchCommand(gs *globalState) *cobra.Command {
	f := &watchFlags{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Probe the page on a schedule and alert on failures",
		Long: `watch runs the probe on the configured cron schedule until interrupted.
Failed runs are recorded in history and, when [alert] is configured, mailed.
SIGHUP reloads the config file, as does editing it with --reload-on-change.`,
		Example: `  webprobe watch
  webprobe watch --schedule "@every 30s" --listen :9464
  webprobe watch --schedule "*/10 * * * *" --reload-on-change`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			overrides := func(c *config.Config) {
				if cmd.Flags().Changed("schedule") {
					c.Watch.Schedule = f.schedule
				}
				if cmd.Flags().Changed("listen") {
					c.Watch.Listen = f.listen
				}
				if cmd.Flags().Changed("reload-on-change") {
					c.Watch.ReloadOnChange = f.reloadOnChange
				}
			}

			m := metrics.New()
			s, err := newSession(gs, appOptions{
				overrides: overrides,
				history:   !f.noHistory,
				metrics:   m,
			})
			if err != nil {
				return err
			}
			defer s.Close()

			w := &watcher{gs: gs, app: s.app, metrics: metrics.NewServer(m, s.history, gs.logger)}
			return w.run(cmd.Context(), !f.skipFirst)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.schedule, "schedule", "", `cron spec or descriptor, e.g. "@every 5m"`)
	fl.StringVar(&f.listen, "listen", "", "serve /metrics and /api/runs on this address, e.g. :9464")
	fl.BoolVar(&f.reloadOnChange, "reload-on-change", false, "reload the config file when it is edited")
	fl.BoolVar(&f.noHistory, "no-history", false, "do not record runs in history")
	fl.BoolVar(&f.skipFirst, "skip-first", false, "wait for the first scheduled tick instead of probing at startup")

	return cmd
}

// jobTimeout bounds one scheduled run: navigation, capture and checks
func jobTimeout(cfg *config.Config) time.Duration {
	return 2*cfg.Timeouts.Navigation + time.Minute
}

type watcher struct {
	gs      *globalState
	app     *app.App
	metrics *metrics.Server
	sched   *scheduler.Scheduler
}

func (w *watcher) run(ctx context.Context, runFirst bool) error {
	ctx, stop := withSignals(ctx)
	defer stop()

	cfg := w.app.Config()
	sched, err := scheduler.New(cfg.Watch.Timezone, jobTimeout(cfg), w.gs.logger)
	if err != nil {
		return err
	}
	if err := sched.AddJob(probeJob, cfg.Watch.Schedule, w.app.RunAndNotify); err != nil {
		return err
	}
	w.sched = sched

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	sched.Start()
	logger := w.gs.logger.WithField("schedule", cfg.Watch.Schedule)
	for _, j := range sched.ListJobs() {
		logger = logger.WithField("next", j.NextRun.Format(time.RFC3339))
	}
	logger.Info("Watching " + cfg.TargetURL())

	g, ctx := errgroup.WithContext(ctx)

	if runFirst {
		g.Go(func() error {
			if err := sched.RunNow(ctx, probeJob, w.app.RunAndNotify); err != nil {
				w.gs.logger.WithError(err).Warn("Initial probe failed")
			}
			return nil
		})
	}

	if cfg.Watch.Listen != "" {
		g.Go(func() error {
			return w.metrics.ListenAndServe(ctx, cfg.Watch.Listen)
		})
	}

	reloads := make(chan struct{}, 1)
	if cfg.Watch.ReloadOnChange {
		g.Go(func() error {
			return w.watchConfig(ctx, reloads)
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				w.reload()
			case <-reloads:
				w.reload()
			}
		}
	})

	err = g.Wait()

	// Let an in-flight probe finish so its browser is released
	<-sched.Stop().Done()
	w.gs.logger.Info("Stopped watching")
	return err
}

func (w *watcher) watchConfig(ctx context.Context, reloads chan<- struct{}) error {
	path := w.gs.flags.configPath
	if path == "" {
		var err error
		if path, err = config.ConfigPath(); err != nil {
			return err
		}
	}

	err := config.Watch(ctx, path, 250*time.Millisecond, func() {
		select {
		case reloads <- struct{}{}:
		default:
		}
	})
	if err != nil {
		// A missing config dir only disables live reload
		w.gs.logger.WithError(err).Warn("Not watching config file for changes")
	}
	return nil
}

// reload re-reads the config and reschedules the probe job. A bad config
// keeps the previous one running. Listen address, timezone and live reload
// take effect on restart.
func (w *watcher) reload() {
	before := w.app.Config().Watch.Schedule
	if err := w.app.ReloadConfig(); err != nil {
		w.gs.logger.WithError(err).Error("Config reload failed, keeping previous config")
		return
	}

	after := w.app.Config().Watch.Schedule
	if after == before {
		return
	}
	if err := w.sched.AddJob(probeJob, after, w.app.RunAndNotify); err != nil {
		w.gs.logger.WithError(err).Error("Failed to reschedule probe")
	}
}
