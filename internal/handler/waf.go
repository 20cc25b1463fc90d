package handler

import (
	"context"

	"github.com/dxywop/cf-clearance-scraper/internal/job"
)

// WAFSession clears the challenge on a page and returns the resulting cookies
// together with the request headers the browser sent, so callers can replay
// the session from a plain HTTP client.
type WAFSession struct {
	browser Browser
	opts    Options
}

// NewWAFSession builds the waf-session handler.
func NewWAFSession(b Browser, opts Options) *WAFSession {
	return &WAFSession{browser: b, opts: opts}
}

// Run implements job.Handler.
func (h *WAFSession) Run(ctx context.Context, d job.Descriptor) (job.Result, error) {
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
	cookies, err := page.Cookies(d.URL)
	if err != nil {
		return job.Result{}, ctxErr(ctx, err)
	}
	return job.Result{Fields: map[string]any{
		"cookies": cookies,
		"headers": page.DocumentHeaders(),
	}}, nil
}
