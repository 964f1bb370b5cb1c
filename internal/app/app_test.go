package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/webprobe/internal/config"
	"github.com/ibeckermayer/webprobe/internal/metrics"
	"github.com/ibeckermayer/webprobe/internal/probe"
	"github.com/ibeckermayer/webprobe/internal/store"
)

type stubPage struct {
	visible map[string]bool
}

func (p *stubPage) Navigate(context.Context, string) error               { return nil }
func (p *stubPage) WaitNetworkIdle(context.Context, time.Duration) error { return nil }
func (p *stubPage) Screenshot(context.Context) ([]byte, error)           { return []byte("png"), nil }
func (p *stubPage) Visible(_ context.Context, sel string) (bool, error)  { return p.visible[sel], nil }
func (p *stubPage) Close() error                                         { return nil }

type stubLauncher struct {
	page *stubPage
	cfg  config.BrowserConfig
}

func (l *stubLauncher) Launch(context.Context) (probe.Page, error) {
	return l.page, nil
}

type fixture struct {
	app       *App
	out       *bytes.Buffer
	fs        afero.Fs
	history   *store.Store
	launchers []*stubLauncher
	page      *stubPage
}

func newFixture(t *testing.T, cfg *config.Config, deps Deps) *fixture {
	t.Helper()

	f := &fixture{
		out:  &bytes.Buffer{},
		fs:   afero.NewMemMapFs(),
		page: &stubPage{visible: map[string]bool{"header": true, "#message-input": true}},
	}

	h, err := store.New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	f.history = h

	logger, _ := logtest.NewNullLogger()
	deps.Launcher = func(bc config.BrowserConfig, _ logrus.FieldLogger) probe.Launcher {
		l := &stubLauncher{page: f.page, cfg: bc}
		f.launchers = append(f.launchers, l)
		return l
	}
	deps.Fs = f.fs
	deps.Out = f.out
	deps.Logger = logger
	deps.History = h

	a, err := New(cfg, deps)
	require.NoError(t, err)
	f.app = a
	return f
}

func TestRunCheckRecordsHistory(t *testing.T) {
	reports := filepath.Join(t.TempDir(), "reports")
	f := newFixture(t, config.Default(), Deps{ReportsDir: reports})

	report, err := f.app.RunCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Header is visible\nMessage input is visible\n", f.out.String())
	assert.Equal(t, probe.ExitOK, f.app.ExitCode(report, err))

	saved, err := f.history.GetRun(report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.Checks, saved.Checks)
	assert.True(t, filepath.IsAbs(saved.Screenshot), saved.Screenshot)

	latest, err := store.LatestReportFile(reports)
	require.NoError(t, err)
	loaded, err := store.LoadReportFile(latest)
	require.NoError(t, err)
	assert.Equal(t, report.ID, loaded.ID)
}

func TestRunAndNotify(t *testing.T) {
	m := metrics.New()
	f := newFixture(t, config.Default(), Deps{Metrics: m})
	require.NoError(t, f.app.RunAndNotify(context.Background()))
	require.NotNil(t, m.Latest())
	assert.True(t, m.Latest().AllPassed())

	delete(f.page.visible, "header")
	err := f.app.RunAndNotify(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 checks failed")

	runs, err := f.history.RecentRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	assert.Equal(t, probe.StatusFailed, m.Latest().Status())
}

func TestExitCodeFollowsPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Policy.Strict = false
	f := newFixture(t, cfg, Deps{})
	delete(f.page.visible, "#message-input")

	report, err := f.app.RunCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, probe.ExitOK, f.app.ExitCode(report, err))
}

func TestReloadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[target]
base_url = "http://staging:8000"

[browser]
headless = false
`), 0600))

	f := newFixture(t, config.Default(), Deps{
		ConfigPath: path,
		Overrides: func(c *config.Config) {
			c.Output.ScreenshotPath = "override.png"
		},
	})

	require.NoError(t, f.app.ReloadConfig())
	cfg := f.app.Config()
	assert.Equal(t, "http://staging:8000", cfg.Target.BaseURL)
	assert.Equal(t, "override.png", cfg.Output.ScreenshotPath)

	require.Len(t, f.launchers, 2)
	assert.False(t, f.launchers[1].cfg.Headless)

	report, err := f.app.RunCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://staging:8000/web/index.html", report.URL)
	exists, err := afero.Exists(f.fs, "override.png")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestReloadConfigKeepsOldOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[target]
base_url = "gopher://nowhere"
`), 0600))

	f := newFixture(t, config.Default(), Deps{ConfigPath: path})
	assert.Error(t, f.app.ReloadConfig())
	assert.Equal(t, "http://localhost:8000", f.app.Config().Target.BaseURL)
}
