package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Fatalf("expected default port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Browser.Limit != 20 {
		t.Fatalf("expected default browser limit 20, got %d", cfg.Browser.Limit)
	}
	if got := cfg.RequestTimeout(); got != time.Minute {
		t.Fatalf("expected default timeout 1m, got %v", got)
	}
	if cfg.AuthEnabled() {
		t.Fatal("expected auth to be disabled without a token")
	}
	if cfg.Browser.SkipLaunch {
		t.Fatal("expected browser launch by default")
	}
	if !cfg.Browser.Headless {
		t.Fatal("expected headless browser by default")
	}
}

func TestLoadLegacyEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("authToken", "secret")
	t.Setenv("browserLimit", "5")
	t.Setenv("timeOut", "1500")
	t.Setenv("SKIP_LAUNCH", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Auth.Token != "secret" || !cfg.AuthEnabled() {
		t.Fatalf("expected auth token to be loaded, got %q", cfg.Auth.Token)
	}
	if cfg.Browser.Limit != 5 {
		t.Fatalf("expected browser limit 5, got %d", cfg.Browser.Limit)
	}
	if got := cfg.RequestTimeout(); got != 1500*time.Millisecond {
		t.Fatalf("expected timeout 1.5s, got %v", got)
	}
	if !cfg.Browser.SkipLaunch {
		t.Fatal("expected SKIP_LAUNCH=true to skip the browser")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  timeout_ms: 30000
  cors_origins: ["https://app.example.com"]
browser:
  limit: 3
  headless: false
  exec_path: /usr/bin/chromium
  launch_retry_seconds: 1
metrics:
  addr: ""
journal:
  dsn: postgres://localhost/scraper
  table: outcomes
ratelimit:
  rps: 2.5
  burst: 4
logging:
  development: true
  level: debug
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.RequestTimeout() != 30*time.Second {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "https://app.example.com" {
		t.Fatalf("expected cors origins override, got %v", cfg.Server.CORSOrigins)
	}
	if cfg.Browser.Limit != 3 || cfg.Browser.Headless || cfg.Browser.ExecPath != "/usr/bin/chromium" {
		t.Fatalf("expected browser overrides, got %+v", cfg.Browser)
	}
	if cfg.LaunchRetry() != time.Second {
		t.Fatalf("expected launch retry 1s, got %v", cfg.LaunchRetry())
	}
	if cfg.Metrics.Addr != "" {
		t.Fatalf("expected metrics listener disabled, got %q", cfg.Metrics.Addr)
	}
	if cfg.Journal.DSN == "" || cfg.Journal.Table != "outcomes" {
		t.Fatalf("expected journal overrides, got %+v", cfg.Journal)
	}
	if cfg.RateLimit.RPS != 2.5 || cfg.RateLimit.Burst != 4 {
		t.Fatalf("expected rate limit overrides, got %+v", cfg.RateLimit)
	}
	if !cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected development debug logging, got %+v", cfg.Logging)
	}
}

func TestSkipLaunchRequiresLiteralTrue(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", false},
		{"TRUE", false},
		{"t", false},
		{"yes", false},
		{"false", false},
	}
	for _, tc := range cases {
		t.Run(tc.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("SKIP_LAUNCH", tc.value)

			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Browser.SkipLaunch != tc.want {
				t.Fatalf("SKIP_LAUNCH=%q: expected skip %v, got %v", tc.value, tc.want, cfg.Browser.SkipLaunch)
			}
		})
	}
}

func TestSkipLaunchEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("SKIP_LAUNCH", "1")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("browser:\n  skip_launch: true\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Browser.SkipLaunch {
		t.Fatal("expected SKIP_LAUNCH=1 to keep the browser")
	}
}

func TestLegacyEnvironmentBeatsFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("browserLimit", "7")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("browser:\n  limit: 3\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Browser.Limit != 7 {
		t.Fatalf("expected env to win, got %d", cfg.Browser.Limit)
	}
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("browserLimit", "0")

	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "browser.limit") {
		t.Fatalf("expected browser.limit error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 3000, TimeoutMS: 60000},
		Browser: BrowserConfig{Limit: 20},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "port out of range",
			cfg: func() Config {
				c := base
				c.Server.Port = 70000
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.Server.TimeoutMS = 0
				return c
			}(),
			want: "server.timeout_ms",
		},
		{
			name: "invalid limit",
			cfg: func() Config {
				c := base
				c.Browser.Limit = -1
				return c
			}(),
			want: "browser.limit",
		},
		{
			name: "negative launch retry",
			cfg: func() Config {
				c := base
				c.Browser.LaunchRetrySeconds = -1
				return c
			}(),
			want: "browser.launch_retry_seconds",
		},
		{
			name: "negative ring size",
			cfg: func() Config {
				c := base
				c.Journal.RingSize = -1
				return c
			}(),
			want: "journal.ring_size",
		},
		{
			name: "negative rps",
			cfg: func() Config {
				c := base
				c.RateLimit.RPS = -1
				return c
			}(),
			want: "ratelimit.rps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to be valid, got %v", err)
	}
}

// clearEnv blanks every variable Load reads so the host environment cannot leak
// into assertions. t.Setenv restores the previous values after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range append([]string{skipLaunchEnv}, envNames()...) {
		t.Setenv(env, "")
		os.Unsetenv(env) //nolint:errcheck // restored by t.Setenv cleanup
	}
	for _, kv := range os.Environ() {
		if key, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(key, "SCRAPER_") {
			t.Setenv(key, "")
			os.Unsetenv(key) //nolint:errcheck // restored by t.Setenv cleanup
		}
	}
}

func envNames() []string {
	names := make([]string, 0, len(envBindings))
	for _, env := range envBindings {
		names = append(names, env)
	}
	return names
}
