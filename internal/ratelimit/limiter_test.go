package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterWaitDelaysSameHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	// Consume the initial token.
	require.NoError(t, l.Wait(ctx, "https://test.com/a"))

	// 10 RPS means the next token arrives in ~100ms.
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://test.com/b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterDifferentHosts(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.com/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.com/1"))
	require.Less(t, time.Since(start), 100*time.Millisecond, "host b blocked by host a")
	require.Equal(t, 2, l.Hosts())
}

func TestLimiterUnlimited(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(ctx, "https://example.com"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterHonoursContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.example"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, l.Wait(ctx, "https://slow.example"))
}

func TestLimiterEvictsWhenFull(t *testing.T) {
	t.Parallel()

	l := New(Config{MaxHosts: 2})
	clock := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.com"))
	clock = clock.Add(time.Second)
	require.NoError(t, l.Wait(ctx, "https://b.com"))
	clock = clock.Add(time.Second)
	require.NoError(t, l.Wait(ctx, "https://c.com"))

	require.Equal(t, 2, l.Hosts())
	_, kept := l.limiters["a.com"]
	require.False(t, kept, "least recently used host should be evicted")

	// Everything idle goes at once.
	clock = clock.Add(idleAfter)
	require.NoError(t, l.Wait(ctx, "https://d.com"))
	require.Equal(t, 1, l.Hosts())
}

func TestLimiterBoundsMetricLabels(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	for i := 0; i < maxLabelledHosts+10; i++ {
		require.NoError(t, l.Wait(ctx, fmt.Sprintf("https://h%d.example", i)))
	}
	require.Len(t, l.labelled, maxLabelledHosts)
	_, label := l.limiterFor(fmt.Sprintf("h%d.example", maxLabelledHosts+5))
	require.Equal(t, otherHost, label)
	_, label = l.limiterFor("h0.example")
	require.Equal(t, "h0.example", label)
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com", hostOf("https://example.com:8443/path"))
	require.Equal(t, "unknown", hostOf("::not a url"))
	require.Equal(t, "unknown", hostOf(""))
}
