// Package cli wires the webprobe commands: run (the default), watch,
// history and init.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/webprobe/internal/app"
	"github.com/ibeckermayer/webprobe/internal/browser"
	"github.com/ibeckermayer/webprobe/internal/config"
	"github.com/ibeckermayer/webprobe/internal/probe"
)

// globalState is everything a command touches outside its own flags, so
// tests can swap out the process environment.
type globalState struct {
	ctx       context.Context
	stdout    io.Writer
	stderr    io.Writer
	stderrTTY bool
	fs        afero.Fs
	logger    *logrus.Logger
	launcher  app.LauncherFunc

	flags rootFlags
}

type rootFlags struct {
	configPath string
	logLevel   string
	noColor    bool
}

func newGlobalState(ctx context.Context) *globalState {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	return &globalState{
		ctx:       ctx,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		stderrTTY: isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()),
		fs:        afero.NewOsFs(),
		logger:    logger,
		launcher: func(cfg config.BrowserConfig, logger logrus.FieldLogger) probe.Launcher {
			return browser.NewLauncher(cfg, logger)
		},
	}
}

func newRootCommand(gs *globalState) *cobra.Command {
	run := newRunCommand(gs)

	root := &cobra.Command{
		Use:   "webprobe",
		Short: "Load a page in headless Chrome, screenshot it and check key elements are visible",
		Long: `webprobe loads <base-url>/web/index.html in headless Chrome, waits for the
network to go quiet, saves a full-page screenshot and checks that the
configured elements are visible. Each passing check prints one line.

Exit status: 0 all checks passed, 1 a check failed, 2 the run could not
complete (browser, connection, timeout or screenshot failure).`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return setupLogger(gs) },
		RunE:              run.RunE,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&gs.flags.configPath, "config", "c", os.Getenv("WEBPROBE_CONFIG"), "config file (default is the user config dir)")
	pf.StringVar(&gs.flags.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	pf.BoolVar(&gs.flags.noColor, "no-color", false, "disable colored output")

	// `webprobe` alone behaves like `webprobe run`
	root.Flags().AddFlagSet(run.Flags())

	root.AddCommand(run, newWatchCommand(gs), newHistoryCommand(gs), newInitCommand(gs))
	return root
}

func setupLogger(gs *globalState) error {
	level, err := logrus.ParseLevel(gs.flags.logLevel)
	if err != nil {
		return err
	}
	gs.logger.SetLevel(level)

	if gs.flags.noColor {
		color.NoColor = true
	}
	gs.logger.SetFormatter(&logrus.TextFormatter{
		ForceColors:   gs.stderrTTY && !gs.flags.noColor,
		DisableColors: gs.flags.noColor || !gs.stderrTTY,
		FullTimestamp: true,
	})
	return nil
}

// exitError carries the exit status of a run that finished with one
type exitError struct {
	code probe.ExitCode
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func (e *exitError) ExitCode() probe.ExitCode { return e.code }

// execute runs the root command and returns the process exit status
func execute(gs *globalState, args []string) int {
	root := newRootCommand(gs)
	root.SetArgs(args)
	root.SetOut(gs.stdout)
	root.SetErr(gs.stderr)

	err := root.ExecuteContext(gs.ctx)
	if err == nil {
		return int(probe.ExitOK)
	}

	var ec probe.HasExitCode
	if errors.As(err, &ec) {
		// The run already logged and summarized the failure.
		return int(ec.ExitCode())
	}

	gs.logger.Error(err)
	return int(probe.ExitFatal)
}

// withSignals cancels ctx on SIGINT or SIGTERM so a run unwinds and closes
// its browser instead of dying with it still open.
func withSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// Execute is the entry point for the webprobe binary
func Execute() int {
	ctx, stop := withSignals(context.Background())
	defer stop()
	return execute(newGlobalState(ctx), os.Args[1:])
}
