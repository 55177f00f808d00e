// Package config defines the application configuration, loaded from
// config.yaml, HARVESTER_* environment variables and bound CLI flags via
// viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config is the root of all runtime settings.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Extract ExtractConfig `mapstructure:"extract" yaml:"extract"`
	Collect CollectConfig `mapstructure:"collect" yaml:"collect"`
	Scrape  ScrapeConfig  `mapstructure:"scrape" yaml:"scrape"`
}

// LoggerConfig configures the zap logger and optional rotating log file.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls the Chrome process and per-tab behavior.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// AuthSelectors are the DOM probes classification relies on. They are
// configuration, not code: the remote markup changes over time and these
// are the first thing to go stale.
type AuthSelectors struct {
	LoginForm       string `mapstructure:"login_form" yaml:"login_form"`
	RateLimitBanner string `mapstructure:"rate_limit_banner" yaml:"rate_limit_banner"`
	AuthedChrome    string `mapstructure:"authed_chrome" yaml:"authed_chrome"`
}

// AuthPatterns are URL fragments that classify a page by location alone.
type AuthPatterns struct {
	LoginURLFragments     []string `mapstructure:"login_url_fragments" yaml:"login_url_fragments"`
	RateLimitURLFragments []string `mapstructure:"rate_limit_url_fragments" yaml:"rate_limit_url_fragments"`
}

// AuthConfig drives the authentication controller.
type AuthConfig struct {
	SessionPath  string        `mapstructure:"session_path" yaml:"session_path"`
	LoginURL     string        `mapstructure:"login_url" yaml:"login_url"`
	CanaryURL    string        `mapstructure:"canary_url" yaml:"canary_url"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	LoginTimeout time.Duration `mapstructure:"login_timeout" yaml:"login_timeout"`
	Selectors    AuthSelectors `mapstructure:"selectors" yaml:"selectors"`
	Patterns     AuthPatterns  `mapstructure:"patterns" yaml:"patterns"`
}

// ExtractConfig bounds one resilient extraction call.
type ExtractConfig struct {
	Retries        int           `mapstructure:"retries" yaml:"retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
}

// CollectConfig bounds the pagination loop.
type CollectConfig struct {
	ListingURL  string        `mapstructure:"listing_url" yaml:"listing_url"`
	ItemPattern string        `mapstructure:"item_pattern" yaml:"item_pattern"`
	MaxPages    int           `mapstructure:"max_pages" yaml:"max_pages"`
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	Output      string        `mapstructure:"output" yaml:"output"`
}

// ScrapeConfig drives the orchestrator run.
type ScrapeConfig struct {
	Input       string        `mapstructure:"input" yaml:"input"`
	Output      string        `mapstructure:"output" yaml:"output"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	TargetDelay time.Duration `mapstructure:"target_delay" yaml:"target_delay"`
}

// SetDefaults registers every default on the given viper instance. The
// defaults target the professional-network site the original tooling was
// built against; all of them are overridable.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "harvester")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.post_load_wait", 2*time.Second)

	v.SetDefault("auth.session_path", "~/.harvester/session.json")
	v.SetDefault("auth.login_url", "https://www.linkedin.com/login")
	v.SetDefault("auth.canary_url", "https://www.linkedin.com/feed/")
	v.SetDefault("auth.poll_interval", 10*time.Second)
	v.SetDefault("auth.login_timeout", 5*time.Minute)
	v.SetDefault("auth.selectors.login_form", `form.login__form, input[name="session_key"]`)
	v.SetDefault("auth.selectors.rate_limit_banner", `.error-code, [data-test-error="429"]`)
	v.SetDefault("auth.selectors.authed_chrome", `.global-nav, #global-nav`)
	v.SetDefault("auth.patterns.login_url_fragments", []string{"/login", "/authwall", "/checkpoint", "/uas/"})
	v.SetDefault("auth.patterns.rate_limit_url_fragments", []string{"/429"})

	v.SetDefault("extract.retries", 2)
	v.SetDefault("extract.retry_delay", 500*time.Millisecond)
	v.SetDefault("extract.attempt_timeout", 5*time.Second)

	v.SetDefault("collect.listing_url", "https://www.linkedin.com/my-items/saved-jobs/")
	v.SetDefault("collect.item_pattern", "/jobs/view/")
	v.SetDefault("collect.max_pages", 25)
	v.SetDefault("collect.settle_delay", 2*time.Second)
	v.SetDefault("collect.output", "saved_job_urls.txt")

	v.SetDefault("scrape.output", "records.json")
	v.SetDefault("scrape.concurrency", 1)
	v.SetDefault("scrape.target_delay", 3*time.Second)
}

// Load unmarshals the merged viper state, expands the session path and
// validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	expanded, err := homedir.Expand(cfg.Auth.SessionPath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand session path: %w", err)
	}
	cfg.Auth.SessionPath = expanded
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the core cannot operate under.
func (c *Config) Validate() error {
	if c.Auth.SessionPath == "" {
		return fmt.Errorf("auth.session_path must not be empty")
	}
	if c.Auth.PollInterval <= 0 {
		return fmt.Errorf("auth.poll_interval must be positive")
	}
	if c.Auth.LoginTimeout < c.Auth.PollInterval {
		return fmt.Errorf("auth.login_timeout must be at least one poll interval")
	}
	if !strings.HasPrefix(c.Auth.LoginURL, "http") {
		return fmt.Errorf("auth.login_url must be an absolute URL")
	}
	if !strings.HasPrefix(c.Auth.CanaryURL, "http") {
		return fmt.Errorf("auth.canary_url must be an absolute URL")
	}
	if c.Extract.Retries < 0 {
		return fmt.Errorf("extract.retries must not be negative")
	}
	if c.Collect.MaxPages < 0 {
		return fmt.Errorf("collect.max_pages must not be negative")
	}
	if c.Scrape.Concurrency < 1 {
		return fmt.Errorf("scrape.concurrency must be at least 1")
	}
	return nil
}
