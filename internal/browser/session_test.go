package browser

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/webprobe/internal/config"
)

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>geochat</title></head>
<body>
	<header><h1>Geochat</h1></header>
	<main id="message-feed"></main>
	<form id="message-form">
		<input id="message-input" type="text" placeholder="Say something">
		<input id="hidden-input" type="text" style="visibility:hidden">
		<input id="collapsed-input" type="text" style="display:none">
	</form>
	<script>
		setTimeout(function() { fetch('/slow'); }, 50);
	</script>
</body>
</html>`

// chromeConfig finds a local Chrome or skips the test
func chromeConfig(t *testing.T) config.BrowserConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	cfg := config.Default().Browser
	cfg.NoSandbox = true

	if path := os.Getenv("WEBPROBE_CHROME_PATH"); path != "" {
		cfg.ExecPath = path
		return cfg
	}
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if _, err := exec.LookPath(name); err == nil {
			return cfg
		}
	}
	t.Skip("no Chrome executable found")
	return cfg
}

func newPageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/web/index.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("ok"))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func testLogger() logrus.FieldLogger {
	logger, _ := logtest.NewNullLogger()
	return logger
}

func TestSessionAgainstPage(t *testing.T) {
	cfg := chromeConfig(t)
	ts := newPageServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s, err := NewLauncher(cfg, testLogger()).launch(ctx)
	require.NoError(t, err)
	defer s.Close()

	navCtx, navCancel := context.WithTimeout(ctx, 20*time.Second)
	defer navCancel()
	require.NoError(t, s.Navigate(navCtx, ts.URL+"/web/index.html"))

	start := time.Now()
	require.NoError(t, s.WaitNetworkIdle(navCtx, 300*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
	assert.Zero(t, s.idle.Inflight())

	shot, err := s.Screenshot(ctx)
	require.NoError(t, err)
	require.Greater(t, len(shot), 8)
	assert.Equal(t, "\x89PNG\r\n\x1a\n", string(shot[:8]))

	cases := map[string]bool{
		"header":           true,
		"#message-input":   true,
		"#hidden-input":    false,
		"#collapsed-input": false,
		"#does-not-exist":  false,
	}
	for selector, want := range cases {
		got, err := s.Visible(ctx, selector)
		require.NoError(t, err, selector)
		assert.Equal(t, want, got, selector)
	}

	_, err = s.Visible(ctx, "[[invalid")
	assert.Error(t, err)

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close(), "second close is a no-op")
}

func TestSessionConnectionRefused(t *testing.T) {
	cfg := chromeConfig(t)

	// Grab a free port, then close it so nothing is listening
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s, err := NewLauncher(cfg, testLogger()).launch(ctx)
	require.NoError(t, err)
	defer s.Close()

	err = s.Navigate(ctx, "http://"+addr+"/web/index.html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "net::ERR_CONNECTION_REFUSED")
}

// A browser that never reports its DevTools endpoint must not hang Launch
func TestLaunchGivesUpOnSilentBrowser(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a shell script as the browser executable")
	}

	exe := filepath.Join(t.TempDir(), "silent-chrome")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\nexec sleep 30\n"), 0755))

	cfg := config.Default().Browser
	cfg.ExecPath = exe
	cfg.StartTimeout = 300 * time.Millisecond

	start := time.Now()
	page, err := NewLauncher(cfg, testLogger()).Launch(context.Background())
	require.Error(t, err)
	assert.Nil(t, page)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "not ready within 300ms")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestOptionsGrowWithConfig(t *testing.T) {
	base := config.Default().Browser
	base.Headless = false
	base.WindowWidth = 0
	minimal := len(Options(base))

	full := base
	full.Headless = true
	full.WindowWidth, full.WindowHeight = 800, 600
	full.UserAgent = "webprobe-test"
	full.NoSandbox = true
	full.ExecPath = "/usr/bin/chromium"

	// window size, user agent, disable-gpu, two sandbox flags, exec path
	assert.Equal(t, minimal+6, len(Options(full)))
}
