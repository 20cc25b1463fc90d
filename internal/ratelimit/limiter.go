// Package ratelimit throttles browser navigation per target host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dxywop/cf-clearance-scraper/internal/metrics"
)

const (
	defaultMaxHosts = 1024
	idleAfter       = 10 * time.Minute
	// maxLabelledHosts bounds the metric's host label set; later hosts share "other".
	maxLabelledHosts = 64
	otherHost        = "other"
)

// Limiter manages per-host token buckets.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*bucket
	labelled map[string]struct{}
	rate     rate.Limit
	burst    int
	maxHosts int
	now      func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Config holds rate limiter configuration. RPS <= 0 means unlimited.
// MaxHosts caps how many host buckets are kept; idle ones are evicted first.
type Config struct {
	RPS      float64
	Burst    int
	MaxHosts int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	maxHosts := cfg.MaxHosts
	if maxHosts <= 0 {
		maxHosts = defaultMaxHosts
	}
	return &Limiter{
		limiters: make(map[string]*bucket),
		labelled: make(map[string]struct{}),
		rate:     r,
		burst:    burst,
		maxHosts: maxHosts,
		now:      time.Now,
	}
}

// Wait blocks until a token is available for the host of rawURL.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	limiter, label := l.limiterFor(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Tokens that were available immediately are not worth recording.
	if delay := time.Since(start); delay > time.Millisecond {
		metrics.ObserveRateLimitDelay(label, delay)
	}
	return nil
}

// Hosts returns how many hosts currently have a bucket.
func (l *Limiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Limiter) limiterFor(host string) (*rate.Limiter, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.limiters[host]
	if !ok {
		if len(l.limiters) >= l.maxHosts {
			l.evict(now)
		}
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[host] = b
	}
	b.lastUsed = now
	return b.limiter, l.label(host)
}

// evict drops idle buckets, or the least recently used one when none are idle.
func (l *Limiter) evict(now time.Time) {
	var oldest string
	var oldestAt time.Time
	for host, b := range l.limiters {
		if now.Sub(b.lastUsed) >= idleAfter {
			delete(l.limiters, host)
			continue
		}
		if oldest == "" || b.lastUsed.Before(oldestAt) {
			oldest, oldestAt = host, b.lastUsed
		}
	}
	if len(l.limiters) >= l.maxHosts && oldest != "" {
		delete(l.limiters, oldest)
	}
}

func (l *Limiter) label(host string) string {
	if _, ok := l.labelled[host]; ok {
		return host
	}
	if len(l.labelled) < maxLabelledHosts {
		l.labelled[host] = struct{}{}
		return host
	}
	return otherHost
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
