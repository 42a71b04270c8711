package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Engines a source can be crawled with
const (
	EngineBrowser = "browser"
	EngineHTTP    = "http"
)

var (
	ErrNoSources        = errors.New("no sources configured")
	ErrDuplicateSource  = errors.New("duplicate source id")
	ErrInvalidSchedule  = errors.New("invalid crawl schedule")
	ErrInvalidEngine    = errors.New("invalid engine")
	ErrInvalidAttempts  = errors.New("queue attempts must be at least 1")
	ErrInvalidBackoff   = errors.New("queue backoff must be positive")
	ErrInvalidDBDriver  = errors.New("database driver must be postgres or sqlite")
	ErrInvalidMaxPages  = errors.New("max pages must be at least 1")
	ErrMissingSourceURL = errors.New("source base url is required")
)

// Config is the full crawler configuration
type Config struct {
	Env      string         `yaml:"env"`
	Sources  []SourceConfig `yaml:"sources"`
	Crawler  CrawlerConfig  `yaml:"crawler"`
	Browser  BrowserConfig  `yaml:"browser"`
	Queue    QueueConfig    `yaml:"queue"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Telegram TelegramConfig `yaml:"telegram"`
	Sheets   SheetsConfig   `yaml:"sheets"`
}

// SourceConfig is one schedulable listing source
type SourceConfig struct {
	ID            string `yaml:"id"`
	BaseURL       string `yaml:"base_url"`
	CrawlSchedule string `yaml:"crawl_schedule"`
	Active        bool   `yaml:"active"`
	MaxPages      int    `yaml:"max_pages"`
	Engine        string `yaml:"engine"`
}

// CrawlerConfig controls page pacing and page setup
type CrawlerConfig struct {
	MaxPages          int           `yaml:"max_pages"`
	PageDelay         time.Duration `yaml:"page_delay"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	WaitTimeout       time.Duration `yaml:"wait_timeout"`
	UserAgent         string        `yaml:"user_agent"`
	ViewportWidth     int           `yaml:"viewport_width"`
	ViewportHeight    int           `yaml:"viewport_height"`
	BlockResources    []string      `yaml:"block_resources"`
}

// BrowserConfig controls the shared headless browser
type BrowserConfig struct {
	Headless bool   `yaml:"headless"`
	BinPath  string `yaml:"bin_path"`
	DataDir  string `yaml:"data_dir"`
}

// QueueConfig is the retry policy of scheduled crawl jobs
type QueueConfig struct {
	Attempts        int           `yaml:"attempts"`
	Backoff         time.Duration `yaml:"backoff"`
	StallTimeout    time.Duration `yaml:"stall_timeout"`
	MaxStalledCount int           `yaml:"max_stalled_count"`
	PollInterval    time.Duration `yaml:"poll_interval"`
}

// DatabaseConfig selects the listing store
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoggingConfig controls logrus output
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelegramConfig enables job notifications when Token and ChatID are set
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// SheetsConfig enables export of stored listings when SpreadsheetID is set
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	CredentialsPath string `yaml:"credentials_path"`
}

// LoadConfig loads configuration from a YAML file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := GetDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyEnv()
	cfg.fillSourceDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetDefaultConfig returns a configuration with the three built-in sources
func GetDefaultConfig() *Config {
	cfg := &Config{
		Env: "development",
		Sources: []SourceConfig{
			{ID: "cheki", BaseURL: "https://autochek.africa/ke/cars-for-sale", CrawlSchedule: "0 */6 * * *", Active: true},
			{ID: "usedcars", BaseURL: "https://www.usedcars.co.ke/cars-for-sale", CrawlSchedule: "30 */6 * * *", Active: true},
			{ID: "kaiandkaro", BaseURL: "https://www.kaiandkaro.com", CrawlSchedule: "0 */12 * * *", Active: true},
		},
		Crawler: CrawlerConfig{
			MaxPages:          5,
			PageDelay:         2 * time.Second,
			NavigationTimeout: 60 * time.Second,
			WaitTimeout:       10 * time.Second,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			ViewportWidth:     1920,
			ViewportHeight:    1080,
			BlockResources:    []string{"image", "stylesheet", "font", "media"},
		},
		Browser: BrowserConfig{
			Headless: true,
		},
		Queue: QueueConfig{
			Attempts:        3,
			Backoff:         60 * time.Second,
			StallTimeout:    5 * time.Minute,
			MaxStalledCount: 3,
			PollInterval:    5 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "postgres",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
	cfg.applyEnv()
	cfg.fillSourceDefaults()
	return cfg
}

// applyEnv overrides secrets and deployment settings from the environment
func (c *Config) applyEnv() {
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("BROWSER_BIN"); v != "" {
		c.Browser.BinPath = v
	}
	if v := os.Getenv("BOT_DATA_DIR"); v != "" {
		c.Browser.DataDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) fillSourceDefaults() {
	for i := range c.Sources {
		if c.Sources[i].Engine == "" {
			c.Sources[i].Engine = EngineBrowser
		}
		if c.Sources[i].MaxPages == 0 {
			c.Sources[i].MaxPages = c.Crawler.MaxPages
		}
	}
}

// Validate checks the configuration for values the crawler cannot run with
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return ErrNoSources
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, src := range c.Sources {
		if seen[src.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateSource, src.ID)
		}
		seen[src.ID] = true

		if strings.TrimSpace(src.BaseURL) == "" {
			return fmt.Errorf("%w: %s", ErrMissingSourceURL, src.ID)
		}
		if src.Engine != EngineBrowser && src.Engine != EngineHTTP {
			return fmt.Errorf("%w %q for source %s", ErrInvalidEngine, src.Engine, src.ID)
		}
		if src.MaxPages < 1 {
			return fmt.Errorf("%w: source %s", ErrInvalidMaxPages, src.ID)
		}
		if src.Active {
			if _, err := cron.ParseStandard(src.CrawlSchedule); err != nil {
				return fmt.Errorf("%w for source %s: %v", ErrInvalidSchedule, src.ID, err)
			}
		}
	}
	if c.Crawler.MaxPages < 1 {
		return ErrInvalidMaxPages
	}
	if c.Queue.Attempts < 1 {
		return ErrInvalidAttempts
	}
	if c.Queue.Backoff <= 0 {
		return ErrInvalidBackoff
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("%w: %q", ErrInvalidDBDriver, c.Database.Driver)
	}
	return nil
}

// IsProduction reports whether diagnostic traces must be withheld from callers
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Source returns the configuration of the given source id
func (c *Config) Source(id string) (SourceConfig, bool) {
	for _, src := range c.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return SourceConfig{}, false
}

// ActiveSources returns the sources the scheduler should register
func (c *Config) ActiveSources() []SourceConfig {
	var active []SourceConfig
	for _, src := range c.Sources {
		if src.Active {
			active = append(active, src)
		}
	}
	return active
}
