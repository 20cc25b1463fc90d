// Package config loads and validates gateway configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Journal   JournalConfig   `mapstructure:"journal"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the public HTTP listener.
type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	TimeoutMS   int      `mapstructure:"timeout_ms"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// AuthConfig holds the optional shared secret. An empty token disables the check.
type AuthConfig struct {
	Token string `mapstructure:"token"`
}

// BrowserConfig governs the backing browser pool and admission ceiling.
type BrowserConfig struct {
	Limit              int    `mapstructure:"limit"`
	SkipLaunch         bool   `mapstructure:"skip_launch"`
	Headless           bool   `mapstructure:"headless"`
	ExecPath           string `mapstructure:"exec_path"`
	UserAgent          string `mapstructure:"user_agent"`
	LaunchRetrySeconds int    `mapstructure:"launch_retry_seconds"`
}

// MetricsConfig sets the admin listener address; empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// JournalConfig selects where job outcomes are recorded.
type JournalConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	RingSize int    `mapstructure:"ring_size"`
}

// RateLimitConfig throttles navigation per target host. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// LoggingConfig toggles zap development features and sets the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Environment variables the service has always honoured, bound by exact name.
var envBindings = map[string]string{
	"server.port":       "PORT",
	"server.timeout_ms": "timeOut",
	"auth.token":        "authToken",
	"browser.limit":     "browserLimit",
}

// skipLaunchEnv only skips the browser when set to the literal "true".
const skipLaunchEnv = "SKIP_LAUNCH"

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if raw := os.Getenv(skipLaunchEnv); raw != "" {
		cfg.Browser.SkipLaunch = raw == "true"
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.timeout_ms", 60000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("auth.token", "")
	v.SetDefault("browser.limit", 20)
	v.SetDefault("browser.skip_launch", false)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.launch_retry_seconds", 5)
	v.SetDefault("metrics.addr", ":9091")
	v.SetDefault("journal.dsn", "")
	v.SetDefault("journal.table", "job_outcomes")
	v.SetDefault("journal.ring_size", 256)
	v.SetDefault("ratelimit.rps", 0)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.TimeoutMS <= 0 {
		return fmt.Errorf("server.timeout_ms must be > 0")
	}
	if c.Browser.Limit <= 0 {
		return fmt.Errorf("browser.limit must be > 0")
	}
	if c.Browser.LaunchRetrySeconds < 0 {
		return fmt.Errorf("browser.launch_retry_seconds must be >= 0")
	}
	if c.Journal.RingSize < 0 {
		return fmt.Errorf("journal.ring_size must be >= 0")
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("ratelimit.rps must be >= 0")
	}
	return nil
}

// RequestTimeout is the per-job budget applied to connections and handlers.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutMS) * time.Millisecond
}

// AuthEnabled reports whether requests must carry the shared secret.
func (c Config) AuthEnabled() bool {
	return c.Auth.Token != ""
}

// LaunchRetry is the pause between failed browser launch attempts.
func (c Config) LaunchRetry() time.Duration {
	return time.Duration(c.Browser.LaunchRetrySeconds) * time.Second
}
