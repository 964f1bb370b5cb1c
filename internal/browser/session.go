package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/webprobe/internal/config"
	"github.com/ibeckermayer/webprobe/internal/probe"
)

// ScreenshotQuality 100 makes chromedp capture PNG instead of JPEG
const ScreenshotQuality = 100

// DefaultStartTimeout applies when the config leaves start_timeout unset
const DefaultStartTimeout = 30 * time.Second

// Launcher starts one Chrome per Launch call
type Launcher struct {
	cfg    config.BrowserConfig
	logger logrus.FieldLogger
}

// NewLauncher creates a launcher for the given browser config
func NewLauncher(cfg config.BrowserConfig, logger logrus.FieldLogger) *Launcher {
	return &Launcher{cfg: cfg, logger: logger}
}

// Session is a running browser with a single tab. It implements probe.Page.
type Session struct {
	ctx         context.Context // tab context, owns the browser
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	idle        *IdleTracker

	closeOnce sync.Once
	closeErr  error
}

// Launch starts the browser and opens its tab. The caller owns the returned
// page and must Close it.
func (l *Launcher) Launch(ctx context.Context) (probe.Page, error) {
	s, err := l.launch(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (l *Launcher) launch(ctx context.Context) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, Options(l.cfg)...)

	tabCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(l.logger.Debugf),
		chromedp.WithErrorf(l.logger.Debugf),
	)

	s := &Session{
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		idle:        NewIdleTracker(),
	}
	chromedp.ListenTarget(tabCtx, s.idle.HandleEvent)

	// The first Run allocates the browser, so it must use the tab context
	// itself: a derived deadline here would bound the browser's lifetime.
	// The start timeout cancels the tab instead, and only until Run returns.
	timeout := l.cfg.StartTimeout
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}
	timer := time.AfterFunc(timeout, cancel)

	err := chromedp.Run(tabCtx, network.Enable())
	if !timer.Stop() {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: not ready within %s: %w", timeout, context.DeadlineExceeded)
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return s, nil
}

// run executes actions on the tab while honoring ctx's deadline and
// cancellation.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for its load event
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.idle.Reset()
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// WaitNetworkIdle blocks until no request has been in flight for window
func (s *Session) WaitNetworkIdle(ctx context.Context, window time.Duration) error {
	if err := s.idle.Wait(ctx, window); err != nil {
		return fmt.Errorf("network still busy (%d requests in flight): %w", s.idle.Inflight(), err)
	}
	return nil
}

// Screenshot captures the full page as PNG
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, ScreenshotQuality)); err != nil {
		return nil, err
	}
	return buf, nil
}

// visibleJS matches the first element for a selector and applies the usual
// visibility rule: a non-empty box and no visibility:hidden.
const visibleJS = `(function(sel) {
	const el = document.querySelector(sel);
	if (!el) return false;
	if (window.getComputedStyle(el).visibility === 'hidden') return false;
	const rect = el.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
})(%s)`

// Visible reports whether the first element matching selector is visible.
// It does not wait for the element to appear.
func (s *Session) Visible(ctx context.Context, selector string) (bool, error) {
	arg, err := json.Marshal(selector)
	if err != nil {
		return false, err
	}

	var visible bool
	if err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(visibleJS, arg), &visible)); err != nil {
		return false, err
	}
	return visible, nil
}

// Close shuts the browser down and waits for the process to exit. It is
// safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancel()
		s.allocCancel()
	})
	return s.closeErr
}
