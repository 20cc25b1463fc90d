// Package handler implements the job modes on top of a browser tab.
package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/dxywop/cf-clearance-scraper/internal/browser"
	"github.com/dxywop/cf-clearance-scraper/internal/job"
)

// Page is the slice of a browser tab the handlers drive.
type Page interface {
	Navigate(url string) error
	Title() (string, error)
	HTML() (string, error)
	EvalString(expr string) (string, error)
	SetContent(html string) error
	Cookies(urls ...string) ([]*network.Cookie, error)
	DocumentHeaders() map[string]string
	Close()
}

// Browser opens pages for a job, optionally through a proxy.
type Browser interface {
	Open(ctx context.Context, proxy *job.Proxy) (Page, error)
}

// Waiter gates navigation to a target, e.g. a per-host rate limiter.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Options tune handler polling.
type Options struct {
	// PollInterval is how often a page is re-checked while waiting. Defaults to 250ms.
	PollInterval time.Duration
	// Limiter, when set, is waited on before every navigation.
	Limiter Waiter
}

func (o Options) interval() time.Duration {
	if o.PollInterval > 0 {
		return o.PollInterval
	}
	return 250 * time.Millisecond
}

func (o Options) wait(ctx context.Context, rawURL string) error {
	if o.Limiter == nil {
		return nil
	}
	return o.Limiter.Wait(ctx, rawURL)
}

// FromPool adapts a browser pool to Browser.
func FromPool(pool *browser.Pool) Browser {
	return poolBrowser{pool: pool}
}

type poolBrowser struct {
	pool *browser.Pool
}

func (b poolBrowser) Open(ctx context.Context, proxy *job.Proxy) (Page, error) {
	tab, err := b.pool.Open(ctx, proxy)
	if err != nil {
		return nil, err
	}
	return tab, nil
}

// challengeTitle is what the interstitial shows while the browser is checked.
const challengeTitle = "Just a moment..."

func requireURL(d job.Descriptor) error {
	if d.URL == "" {
		return fmt.Errorf("url: %w", job.ErrMissingParameter)
	}
	return nil
}

// open waits on the limiter, opens a page and loads d.URL.
func open(ctx context.Context, b Browser, opts Options, d job.Descriptor) (Page, error) {
	if err := opts.wait(ctx, d.URL); err != nil {
		return nil, err
	}
	page, err := b.Open(ctx, d.Proxy)
	if err != nil {
		return nil, ctxErr(ctx, err)
	}
	if err := page.Navigate(d.URL); err != nil {
		page.Close()
		return nil, ctxErr(ctx, err)
	}
	return page, nil
}

// waitCleared polls until the page is no longer the challenge interstitial.
func waitCleared(ctx context.Context, page Page, every time.Duration) error {
	return poll(ctx, every, func() (bool, error) {
		title, err := page.Title()
		if err != nil {
			return false, err
		}
		return title != challengeTitle, nil
	})
}

func poll(ctx context.Context, every time.Duration, check func() (bool, error)) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		done, err := check()
		if err != nil {
			return ctxErr(ctx, err)
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for page: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// ctxErr prefers the job context's error, since browser calls fail with a bare
// cancellation once the tab is torn down.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}
