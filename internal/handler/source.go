package handler

import (
	"context"
	"fmt"
	"net/http"

	collyfetcher "github.com/dxywop/cf-clearance-scraper/internal/fetcher/colly"
	"github.com/dxywop/cf-clearance-scraper/internal/job"
)

// Source returns the rendered HTML of a page once any challenge has cleared.
type Source struct {
	browser Browser
	opts    Options
}

// NewSource builds the source handler.
func NewSource(b Browser, opts Options) *Source {
	return &Source{browser: b, opts: opts}
}

// Run implements job.Handler.
func (h *Source) Run(ctx context.Context, d job.Descriptor) (job.Result, error) {
	if err := requireURL(d); err != nil {
		return job.Result{}, err
	}
	page, err := open(ctx, h.browser, h.opts, d)
	if err != nil {
		return job.Result{}, err
	}
	defer page.Close()

	if err := waitCleared(ctx, page, h.opts.interval()); err != nil {
		return job.Result{}, err
	}
	html, err := page.HTML()
	if err != nil {
		return job.Result{}, ctxErr(ctx, err)
	}
	return job.Result{Value: html}, nil
}

// Fetcher is the plain HTTP client HTTPSource delegates to.
type Fetcher interface {
	Fetch(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// HTTPSource serves source jobs without a browser. It cannot pass challenges
// and is only wired when the browser is skipped.
type HTTPSource struct {
	fetcher Fetcher
	opts    Options
}

// NewHTTPSource builds the browserless source handler.
func NewHTTPSource(f Fetcher, opts Options) *HTTPSource {
	return &HTTPSource{fetcher: f, opts: opts}
}

// Run implements job.Handler.
func (h *HTTPSource) Run(ctx context.Context, d job.Descriptor) (job.Result, error) {
	if err := requireURL(d); err != nil {
		return job.Result{}, err
	}
	if err := h.opts.wait(ctx, d.URL); err != nil {
		return job.Result{}, err
	}
	resp, err := h.fetcher.Fetch(ctx, collyfetcher.Request{
		URL:     d.URL,
		Headers: http.Header{"Accept": {"text/html,application/xhtml+xml"}},
		Proxy:   d.Proxy,
	})
	if err != nil {
		return job.Result{}, fmt.Errorf("fetch source: %w", err)
	}
	return job.Result{Value: string(resp.Body)}, nil
}
