package browser

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/stretchr/testify/require"

	"github.com/dxywop/cf-clearance-scraper/internal/job"
)

func TestOpenBeforeLaunch(t *testing.T) {
	t.Parallel()

	pool := New(Config{}, nil)
	require.False(t, pool.Ready())

	tab, err := pool.Open(context.Background(), nil)
	require.ErrorIs(t, err, ErrNotLaunched)
	require.Nil(t, tab)
}

func TestRunGivesUpWhenContextEnds(t *testing.T) {
	t.Parallel()

	pool := New(Config{
		Headless:    true,
		ExecPath:    filepath.Join(t.TempDir(), "no-such-chrome"),
		LaunchRetry: 10 * time.Millisecond,
	}, nil)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := pool.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, pool.Ready())
}

func TestRunAfterClose(t *testing.T) {
	t.Parallel()

	pool := New(Config{
		ExecPath:    filepath.Join(t.TempDir(), "no-such-chrome"),
		LaunchRetry: time.Millisecond,
	}, nil)
	pool.Close()
	pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, pool.Run(ctx))
	require.False(t, pool.Ready())
}

func TestNewDefaultsLaunchRetry(t *testing.T) {
	t.Parallel()

	pool := New(Config{}, nil)
	require.Equal(t, 5*time.Second, pool.cfg.LaunchRetry)
}

func TestAllocatorOptions(t *testing.T) {
	t.Parallel()

	base := len(allocatorOptions(Config{Headless: true}))
	withExtras := len(allocatorOptions(Config{Headless: true, ExecPath: "/usr/bin/chromium", UserAgent: "ua"}))
	require.Equal(t, base+2, withExtras)
}

func TestContextOptions(t *testing.T) {
	t.Parallel()

	require.Empty(t, contextOptions(nil))
	require.Empty(t, contextOptions(&job.Proxy{}))

	opts := contextOptions(&job.Proxy{Host: "proxy.local", Port: 8080})
	require.Len(t, opts, 1)
	params := opts[0](target.CreateBrowserContext())
	require.Equal(t, "http://proxy.local:8080", params.ProxyServer)
}

func TestListenerCapturesFirstDocumentHeaders(t *testing.T) {
	t.Parallel()

	tab := &Tab{}
	listen := tab.listener(nil)

	listen(&network.EventRequestWillBeSent{
		Type:    network.ResourceTypeScript,
		Request: &network.Request{Headers: network.Headers{"X-Script": "1"}},
	})
	require.Empty(t, tab.DocumentHeaders())

	listen(&network.EventRequestWillBeSent{
		Type:    network.ResourceTypeDocument,
		Request: &network.Request{Headers: network.Headers{"User-Agent": "chrome", "Upgrade-Insecure-Requests": 1}},
	})
	listen(&network.EventRequestWillBeSent{
		Type:    network.ResourceTypeDocument,
		Request: &network.Request{Headers: network.Headers{"User-Agent": "second"}},
	})

	headers := tab.DocumentHeaders()
	require.Equal(t, map[string]string{"User-Agent": "chrome", "Upgrade-Insecure-Requests": "1"}, headers)

	headers["User-Agent"] = "mutated"
	require.Equal(t, "chrome", tab.DocumentHeaders()["User-Agent"])
}
