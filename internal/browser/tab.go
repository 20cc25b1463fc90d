package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/dxywop/cf-clearance-scraper/internal/job"
)

// Tab is a single page inside its own browser context.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool

	mu      sync.Mutex
	headers map[string]string
}

func newTab(ctx context.Context, cancel context.CancelFunc, proxy *job.Proxy) *Tab {
	t := &Tab{ctx: ctx, cancel: cancel}
	chromedp.ListenTarget(ctx, t.listener(proxy))
	return t
}

func (t *Tab) setup(userAgent string, proxyAuth bool) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if userAgent != "" {
			if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if proxyAuth {
			if err := fetch.Enable().WithHandleAuthRequests(true).Do(ctx); err != nil {
				return fmt.Errorf("enable proxy auth: %w", err)
			}
		}
		return nil
	})
}

// listener records the headers of the first document request and answers proxy
// auth challenges. Commands are issued off the event goroutine.
func (t *Tab) listener(proxy *job.Proxy) func(ev any) {
	return func(ev any) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			if e.Type == network.ResourceTypeDocument && e.Request != nil {
				t.captureHeaders(e.Request.Headers)
			}
		case *fetch.EventRequestPaused:
			go t.exec(fetch.ContinueRequest(e.RequestID))
		case *fetch.EventAuthRequired:
			resp := &fetch.AuthChallengeResponse{Response: fetch.AuthChallengeResponseResponseCancelAuth}
			if proxy.HasCredentials() && e.AuthChallenge != nil && e.AuthChallenge.Source == fetch.AuthChallengeSourceProxy {
				resp = &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: proxy.Username,
					Password: proxy.Password,
				}
			}
			go t.exec(fetch.ContinueWithAuth(e.RequestID, resp))
		}
	}
}

func (t *Tab) exec(action chromedp.Action) {
	c := chromedp.FromContext(t.ctx)
	if c == nil || c.Target == nil {
		return
	}
	_ = action.Do(cdp.WithExecutor(t.ctx, c.Target))
}

func (t *Tab) captureHeaders(h network.Headers) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.headers != nil {
		return
	}
	t.headers = make(map[string]string, len(h))
	for k, v := range h {
		t.headers[k] = fmt.Sprint(v)
	}
}

// Navigate loads url and waits for the body to be ready.
func (t *Tab) Navigate(url string) error {
	if err := chromedp.Run(t.ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Title returns the current document title.
func (t *Tab) Title() (string, error) {
	var title string
	if err := chromedp.Run(t.ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

// HTML returns the serialised document.
func (t *Tab) HTML() (string, error) {
	var html string
	if err := chromedp.Run(t.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

// EvalString evaluates expr in the page and returns its string result.
func (t *Tab) EvalString(expr string) (string, error) {
	var out string
	if err := chromedp.Run(t.ctx, chromedp.Evaluate(expr, &out)); err != nil {
		return "", fmt.Errorf("evaluate: %w", err)
	}
	return out, nil
}

// SetContent replaces the main frame's document while keeping its origin.
func (t *Tab) SetContent(html string) error {
	err := chromedp.Run(t.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return fmt.Errorf("frame tree: %w", err)
		}
		return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("set content: %w", err)
	}
	return nil
}

// Cookies returns the cookies visible to urls.
func (t *Tab) Cookies(urls ...string) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(t.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithURLs(urls).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return cookies, nil
}

// DocumentHeaders returns the request headers of the first document load.
func (t *Tab) DocumentHeaders() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.headers))
	for k, v := range t.headers {
		out[k] = v
	}
	return out
}

// Close disposes the tab and its browser context.
func (t *Tab) Close() {
	if t.stop != nil {
		t.stop()
	}
	t.cancel()
}
