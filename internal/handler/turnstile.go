package handler

import (
	"context"
	"fmt"
	"html"

	"github.com/dxywop/cf-clearance-scraper/internal/job"
)

const tokenExpr = `(document.querySelector('[name="cf-turnstile-response"]') || {}).value || ""`

const widgetPage = `<!DOCTYPE html>
<html>
<head>
<script src="https://challenges.cloudflare.com/turnstile/v0/api.js" async defer></script>
</head>
<body>
<div class="cf-turnstile" data-sitekey="%s"></div>
</body>
</html>`

// TurnstileMin renders a bare Turnstile widget for siteKey on the target origin
// and returns the token it produces.
type TurnstileMin struct {
	browser Browser
	opts    Options
}

// NewTurnstileMin builds the turnstile-min handler.
func NewTurnstileMin(b Browser, opts Options) *TurnstileMin {
	return &TurnstileMin{browser: b, opts: opts}
}

// Run implements job.Handler.
func (h *TurnstileMin) Run(ctx context.Context, d job.Descriptor) (job.Result, error) {
	if err := requireURL(d); err != nil {
		return job.Result{}, err
	}
	if d.SiteKey == "" {
		return job.Result{}, fmt.Errorf("siteKey: %w", job.ErrMissingParameter)
	}
	page, err := open(ctx, h.browser, h.opts, d)
	if err != nil {
		return job.Result{}, err
	}
	defer page.Close()

	if err := page.SetContent(fmt.Sprintf(widgetPage, html.EscapeString(d.SiteKey))); err != nil {
		return job.Result{}, ctxErr(ctx, err)
	}
	token, err := waitToken(ctx, page, h.opts)
	if err != nil {
		return job.Result{}, err
	}
	return job.Result{Value: token}, nil
}

// TurnstileMax loads the real page and returns the token its own widget produces.
type TurnstileMax struct {
	browser Browser
	opts    Options
}

// NewTurnstileMax builds the turnstile-max handler.
func NewTurnstileMax(b Browser, opts Options) *TurnstileMax {
	return &TurnstileMax{browser: b, opts: opts}
}

// Run implements job.Handler.
func (h *TurnstileMax) Run(ctx context.Context, d job.Descriptor) (job.Result, error) {
	if err := requireURL(d); err != nil {
		return job.Result{}, err
	}
	page, err := open(ctx, h.browser, h.opts, d)
	if err != nil {
		return job.Result{}, err
	}
	defer page.Close()

	token, err := waitToken(ctx, page, h.opts)
	if err != nil {
		return job.Result{}, err
	}
	return job.Result{Value: token}, nil
}

func waitToken(ctx context.Context, page Page, opts Options) (string, error) {
	var token string
	err := poll(ctx, opts.interval(), func() (bool, error) {
		value, err := page.EvalString(tokenExpr)
		if err != nil {
			return false, err
		}
		token = value
		return token != "", nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}
