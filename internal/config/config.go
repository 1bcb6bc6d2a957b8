package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when --config is not given.
// A missing file at this path is fine; everything has a default.
const DefaultPath = "newsroom.yaml"

// DevBackendURL is used when no backend URL is configured outside production.
const DevBackendURL = "http://localhost:5001"

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Admin    AdminConfig    `yaml:"admin"`
	Cache    CacheConfig    `yaml:"cache"`
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	BaseURL     string `yaml:"base_url"`
	Env         string `yaml:"env"` // "development" or "production"
	Dev         bool   `yaml:"dev"` // reload templates from TemplateDir
	TemplateDir string `yaml:"template_dir"`
	// honour X-Forwarded-For; only behind a proxy that overwrites it
	TrustForwarded bool `yaml:"trust_forwarded"`
}

type BackendConfig struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	AdminTimeout time.Duration `yaml:"admin_timeout"` // processing jobs run long
	Retries      int           `yaml:"retries"`
}

type AdminConfig struct {
	Token      string        `yaml:"token"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	LoginRate  float64       `yaml:"login_rate"` // attempts per minute per client
	LoginBurst int           `yaml:"login_burst"`
}

type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

type SiteConfig struct {
	PageSize        int `yaml:"page_size"`
	RelatedPool     int `yaml:"related_pool"`
	MaxSuggestions  int `yaml:"max_suggestions"`
	PerfSampleLimit int `yaml:"perf_sample_limit"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":3000",
			BaseURL:     "http://localhost:3000",
			Env:         "development",
			TemplateDir: "internal/site/templates",
		},
		Backend: BackendConfig{
			Timeout:      15 * time.Second,
			AdminTimeout: 5 * time.Minute,
			Retries:      2,
		},
		Admin: AdminConfig{
			SessionTTL: 12 * time.Hour,
			LoginRate:  5,
			LoginBurst: 5,
		},
		Cache: CacheConfig{
			TTL:        10 * time.Minute,
			MaxEntries: 512,
		},
		Site: SiteConfig{
			PageSize:        22,
			RelatedPool:     30,
			MaxSuggestions:  10,
			PerfSampleLimit: 300,
		},
		Database: DatabaseConfig{Path: "newsroom.db"},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads configuration from a file, then applies .env and environment
// overrides. An empty path means DefaultPath, which may be absent.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("BACKEND_API_URL"); v != "" {
		c.Backend.URL = v
	} else if v := os.Getenv("PUBLIC_API_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("PROCESSING_ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("BACKEND_PROXY_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BACKEND_PROXY_TIMEOUT_MS: %w", err)
		}
		c.Backend.Timeout = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("NEWSROOM_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("NEWSROOM_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("NEWSROOM_ENV"); v != "" {
		c.Server.Env = v
	}
	if v := os.Getenv("NEWSROOM_TRUST_FORWARDED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("NEWSROOM_TRUST_FORWARDED: %w", err)
		}
		c.Server.TrustForwarded = b
	}
	if v := os.Getenv("NEWSROOM_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("NEWSROOM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("NEWSROOM_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	return nil
}

func (c *Config) normalize() {
	c.Admin.Token = strings.TrimSpace(c.Admin.Token)
	c.Backend.URL = strings.TrimRight(strings.TrimSpace(c.Backend.URL), "/")
	if c.Backend.URL == "" && !c.Production() {
		c.Backend.URL = DevBackendURL
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	c.Logging.Level = strings.ToLower(c.Logging.Level)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Backend.URL != "" {
		u, err := url.Parse(c.Backend.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("backend.url must be an absolute http(s) URL, got %q", c.Backend.URL)
		}
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	if c.Backend.AdminTimeout <= 0 {
		return fmt.Errorf("backend.admin_timeout must be positive")
	}
	if c.Backend.Retries < 0 {
		return fmt.Errorf("backend.retries must not be negative")
	}
	if c.Admin.SessionTTL <= 0 {
		return fmt.Errorf("admin.session_ttl must be positive")
	}
	if c.Site.PageSize <= 0 {
		return fmt.Errorf("site.page_size must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// Production reports whether the server runs in production mode.
func (c *Config) Production() bool {
	return c.Server.Env == "production"
}

// AdminTokenConfigured reports whether a processing token is set. Without it
// admin login and processing jobs are disabled.
func (c *Config) AdminTokenConfigured() bool {
	return c.Admin.Token != ""
}

// SecureCookies reports whether cookies should carry the Secure flag.
func (c *Config) SecureCookies() bool {
	return c.Production() || strings.HasPrefix(c.Server.BaseURL, "https")
}
