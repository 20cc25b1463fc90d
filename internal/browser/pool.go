// Package browser owns the process-wide Chrome instance jobs run against.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/dxywop/cf-clearance-scraper/internal/job"
	"github.com/dxywop/cf-clearance-scraper/internal/metrics"
)

// ErrNotLaunched is returned by Open before the browser finished starting.
var ErrNotLaunched = errors.New("browser not launched")

// Config controls how the browser process is started.
type Config struct {
	Headless    bool
	ExecPath    string
	UserAgent   string
	LaunchRetry time.Duration
}

// Pool launches a single browser in the background and hands out isolated tabs.
// It satisfies admission.Readiness.
type Pool struct {
	cfg    Config
	logger *zap.Logger
	ready  atomic.Bool

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	closed        bool
}

// New builds a Pool. Nothing is started until Run.
func New(cfg Config, logger *zap.Logger) *Pool {
	if cfg.LaunchRetry <= 0 {
		cfg.LaunchRetry = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{cfg: cfg, logger: logger.Named("browser")}
}

// Run keeps trying to launch the browser until it succeeds or ctx ends.
func (p *Pool) Run(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := p.launch()
		if err == nil {
			p.logger.Info("browser launched", zap.Int("attempt", attempt))
			return nil
		}
		if errors.Is(err, errPoolClosed) {
			return err
		}
		p.logger.Warn("browser launch failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", p.cfg.LaunchRetry),
			zap.Error(err),
		)

		timer := time.NewTimer(p.cfg.LaunchRetry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("browser launch canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

var errPoolClosed = errors.New("browser pool closed")

func (p *Pool) launch() error {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(p.cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("start browser: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		browserCancel()
		allocCancel()
		return errPoolClosed
	}
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	p.allocCancel = allocCancel
	p.ready.Store(true)
	metrics.SetBrowserReady(true)
	return nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

// Ready reports whether the browser is up.
func (p *Pool) Ready() bool {
	return p.ready.Load()
}

// Open creates a tab in a fresh browser context, routed through proxy when set.
// The tab is closed when ctx ends; callers should still Close it when done.
func (p *Pool) Open(ctx context.Context, proxy *job.Proxy) (*Tab, error) {
	p.mu.Lock()
	browserCtx := p.browserCtx
	p.mu.Unlock()
	if browserCtx == nil {
		return nil, ErrNotLaunched
	}

	tabCtx, cancel := chromedp.NewContext(browserCtx, chromedp.WithNewBrowserContext(contextOptions(proxy)...))
	tab := newTab(tabCtx, cancel, proxy)
	tab.stop = context.AfterFunc(ctx, cancel)

	if err := chromedp.Run(tabCtx, tab.setup(p.cfg.UserAgent, proxy.HasCredentials())); err != nil {
		tab.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("open tab: %w", ctx.Err())
		}
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return tab, nil
}

func contextOptions(proxy *job.Proxy) []chromedp.BrowserContextOption {
	server := proxy.Server()
	if server == "" {
		return nil
	}
	return []chromedp.BrowserContextOption{
		func(params *target.CreateBrowserContextParams) *target.CreateBrowserContextParams {
			return params.WithProxyServer(server)
		},
	}
}

// Close shuts the browser down. Run calls that are still retrying give up.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.browserCancel != nil {
		p.browserCancel()
		p.allocCancel()
		p.browserCtx = nil
	}
	if p.ready.Swap(false) {
		metrics.SetBrowserReady(false)
	}
}
