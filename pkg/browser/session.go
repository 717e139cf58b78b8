package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// Options configure a browser session.
type Options struct {
	Headless bool
	Viewport snapshot.Viewport
	// Timeout bounds each individual page action.
	Timeout time.Duration
	// SlowMo pauses after every action so runs can be watched.
	SlowMo    time.Duration
	UserAgent string
}

// DefaultOptions returns headless options with a 1280x800 viewport.
func DefaultOptions() Options {
	return Options{
		Headless: true,
		Viewport: snapshot.DefaultViewport,
		Timeout:  10 * time.Second,
	}
}

// Session owns a chromedp browser and implements Env on its single tab.
type Session struct {
	opts        Options
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
	mutex       sync.Mutex
	isActive    bool
}

var _ Env = (*Session)(nil)

// NewSession creates an inactive session.
func NewSession(opts Options) *Session {
	if opts.Viewport.Width <= 0 || opts.Viewport.Height <= 0 {
		opts.Viewport = snapshot.DefaultViewport
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Session{opts: opts}
}

// AllocatorOptions returns the chromedp allocator flags for opts.
func AllocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.WindowSize(opts.Viewport.Width, opts.Viewport.Height),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("force-color-profile", "srgb"),
	}
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Headless)
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	return allocOpts
}

// Start launches the browser and opens about:blank.
func (s *Session) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isActive {
		return nil
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), AllocatorOptions(s.opts)...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(s.opts.Viewport.Width), int64(s.opts.Viewport.Height)),
		chromedp.Navigate("about:blank"),
	); err != nil {
		cancelCtx()
		cancelAlloc()
		return errors.Wrap(err, "failed to start browser")
	}

	s.ctx = browserCtx
	s.cancelCtx = cancelCtx
	s.cancelAlloc = cancelAlloc
	s.isActive = true

	logger.G(ctx).WithField("headless", s.opts.Headless).Debug("browser session started")
	return nil
}

// Stop shuts down the browser.
func (s *Session) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isActive {
		return
	}
	s.cancelCtx()
	s.cancelAlloc()
	s.isActive = false
	s.ctx = nil
	s.cancelCtx = nil
	s.cancelAlloc = nil
}

// IsActive returns whether the browser is running.
func (s *Session) IsActive() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.isActive
}

// EnsureActive starts the browser if needed.
func (s *Session) EnsureActive(ctx context.Context) error {
	if !s.IsActive() {
		return s.Start(ctx)
	}
	return nil
}

// Context returns the chromedp tab context, or nil when stopped.
func (s *Session) Context() context.Context {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.ctx
}

// Run executes actions on the tab with the per-action timeout and slow-mo.
// ctx cancellation also aborts the actions.
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	return s.RunWithTimeout(ctx, s.opts.Timeout, actions...)
}

// RunWithTimeout is Run with an explicit timeout.
func (s *Session) RunWithTimeout(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := s.EnsureActive(ctx); err != nil {
		return err
	}
	browserCtx := s.Context()
	if browserCtx == nil {
		return errors.New("browser context not available")
	}

	runCtx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return err
	}
	if s.opts.SlowMo > 0 {
		select {
		case <-time.After(s.opts.SlowMo):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
