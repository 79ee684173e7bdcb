// Package config loads subbot's process configuration from a single YAML
// file, the same struct-tags-plus-LoadConfig shape as the teacher's
// internal/config.ProvidersConfig.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete subbot process configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Pixiv     PixivConfig     `yaml:"pixiv"`
	Ehentai   EhentaiConfig   `yaml:"ehentai"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	DSN            string `yaml:"dsn"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
	MaxIdleConns   int    `yaml:"max_idle_conns"`
	QueryTimeoutMS int    `yaml:"query_timeout_ms"`
}

func (c *DatabaseConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMS) * time.Millisecond
}

// RedisConfig configures the notifier's URL index cache.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	IndexTTLS int    `yaml:"index_ttl_secs"`
}

func (c *RedisConfig) IndexTTL() time.Duration {
	return time.Duration(c.IndexTTLS) * time.Second
}

// TelegramConfig configures the outbound chat client.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
}

// PixivConfig configures the Pixiv OAuth client.
type PixivConfig struct {
	RefreshToken string `yaml:"refresh_token"`
}

// EhentaiCredentials mirrors ehentai.Credentials for YAML unmarshaling.
type EhentaiCredentials struct {
	MemberID string `yaml:"member_id"`
	PassHash string `yaml:"pass_hash"`
	Igneous  string `yaml:"igneous"`
}

// EhentaiConfig configures the e-hentai/exhentai client. Source is either
// "ehentai" or "exhentai"; exhentai requires Credentials.
type EhentaiConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Source      string              `yaml:"source"`
	Credentials *EhentaiCredentials `yaml:"credentials"`
}

// SchedulerConfig configures every poll engine's cadence.
type SchedulerConfig struct {
	AuthorTickIntervalS    int    `yaml:"author_tick_interval_secs"`
	AuthorMinTaskIntervalS int    `yaml:"author_min_task_interval_secs"`
	AuthorMaxTaskIntervalS int    `yaml:"author_max_task_interval_secs"`
	AuthorMaxRetryCount    int    `yaml:"author_max_retry_count"`
	ImageSize              string `yaml:"image_size"` // original|large|medium|square_medium

	RankingExecutionHour   int `yaml:"ranking_execution_hour"`
	RankingExecutionMinute int `yaml:"ranking_execution_minute"`

	NameRefreshExecutionHour   int `yaml:"name_refresh_execution_hour"`
	NameRefreshExecutionMinute int `yaml:"name_refresh_execution_minute"`

	EhTickIntervalS    int `yaml:"eh_tick_interval_secs"`
	EhMinTaskIntervalS int `yaml:"eh_min_task_interval_secs"`
	EhMaxTaskIntervalS int `yaml:"eh_max_task_interval_secs"`
}

func (c *SchedulerConfig) AuthorTickInterval() time.Duration {
	return time.Duration(c.AuthorTickIntervalS) * time.Second
}
func (c *SchedulerConfig) AuthorMinTaskInterval() time.Duration {
	return time.Duration(c.AuthorMinTaskIntervalS) * time.Second
}
func (c *SchedulerConfig) AuthorMaxTaskInterval() time.Duration {
	return time.Duration(c.AuthorMaxTaskIntervalS) * time.Second
}
func (c *SchedulerConfig) EhTickInterval() time.Duration {
	return time.Duration(c.EhTickIntervalS) * time.Second
}
func (c *SchedulerConfig) EhMinTaskInterval() time.Duration {
	return time.Duration(c.EhMinTaskIntervalS) * time.Second
}
func (c *SchedulerConfig) EhMaxTaskInterval() time.Duration {
	return time.Duration(c.EhMaxTaskIntervalS) * time.Second
}

// NotifierConfig configures outbound throttling and the on-disk image
// cache.
type NotifierConfig struct {
	GlobalRPS           float64 `yaml:"global_rps"`
	ChatRPS             float64 `yaml:"chat_rps"`
	ChatBurst           int     `yaml:"chat_burst"`
	CacheDir            string  `yaml:"cache_dir"`
	CacheRetentionDays  int     `yaml:"cache_retention_days"`
}

// HTTPConfig configures the health/metrics HTTP surface.
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads and validates a Config from a YAML file at path. A missing
// required key is a fatal startup error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with every non-secret field defaulted, so a
// YAML file only needs to set what it wants to override plus the
// required secrets (dsn, bot_token, refresh_token).
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxOpenConns:   10,
			MaxIdleConns:   5,
			QueryTimeoutMS: 5000,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			IndexTTLS: 86400,
		},
		Scheduler: SchedulerConfig{
			AuthorTickIntervalS:        30,
			AuthorMinTaskIntervalS:     1800,
			AuthorMaxTaskIntervalS:     3600,
			AuthorMaxRetryCount:        3,
			ImageSize:                  "original",
			RankingExecutionHour:       9,
			RankingExecutionMinute:     0,
			NameRefreshExecutionHour:   4,
			NameRefreshExecutionMinute: 0,
			EhTickIntervalS:            30,
			EhMinTaskIntervalS:         1800,
			EhMaxTaskIntervalS:         3600,
		},
		Notifier: NotifierConfig{
			GlobalRPS:          20,
			ChatRPS:            1,
			ChatBurst:          3,
			CacheDir:           "./data/cache",
			CacheRetentionDays: 7,
		},
		HTTP: HTTPConfig{
			ListenAddr: ":8080",
		},
	}
}

// Validate checks every field a missing or out-of-range value in which
// would only surface as a confusing runtime error far from startup.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive, got %d", c.Database.MaxOpenConns)
	}
	if c.Database.QueryTimeoutMS <= 0 {
		return fmt.Errorf("database.query_timeout_ms must be positive, got %d", c.Database.QueryTimeoutMS)
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Pixiv.RefreshToken == "" {
		return fmt.Errorf("pixiv.refresh_token is required")
	}
	if c.Ehentai.Enabled {
		switch c.Ehentai.Source {
		case "ehentai":
		case "exhentai":
			if c.Ehentai.Credentials == nil {
				return fmt.Errorf("ehentai.credentials is required when source is exhentai")
			}
		default:
			return fmt.Errorf("ehentai.source must be \"ehentai\" or \"exhentai\", got %q", c.Ehentai.Source)
		}
	}
	switch c.Scheduler.ImageSize {
	case "original", "large", "medium", "square_medium":
	default:
		return fmt.Errorf("scheduler.image_size must be one of original/large/medium/square_medium, got %q", c.Scheduler.ImageSize)
	}
	if c.Scheduler.RankingExecutionHour < 0 || c.Scheduler.RankingExecutionHour > 23 {
		return fmt.Errorf("scheduler.ranking_execution_hour must be 0-23, got %d", c.Scheduler.RankingExecutionHour)
	}
	if c.Scheduler.NameRefreshExecutionHour < 0 || c.Scheduler.NameRefreshExecutionHour > 23 {
		return fmt.Errorf("scheduler.name_refresh_execution_hour must be 0-23, got %d", c.Scheduler.NameRefreshExecutionHour)
	}
	if c.Scheduler.AuthorMaxTaskIntervalS < c.Scheduler.AuthorMinTaskIntervalS {
		return fmt.Errorf("scheduler.author_max_task_interval_secs must be >= author_min_task_interval_secs")
	}
	if c.Scheduler.EhMaxTaskIntervalS < c.Scheduler.EhMinTaskIntervalS {
		return fmt.Errorf("scheduler.eh_max_task_interval_secs must be >= eh_min_task_interval_secs")
	}
	if c.Notifier.GlobalRPS <= 0 {
		return fmt.Errorf("notifier.global_rps must be positive, got %f", c.Notifier.GlobalRPS)
	}
	if c.Notifier.ChatRPS <= 0 {
		return fmt.Errorf("notifier.chat_rps must be positive, got %f", c.Notifier.ChatRPS)
	}
	if c.Notifier.CacheDir == "" {
		return fmt.Errorf("notifier.cache_dir is required")
	}
	if c.HTTP.ListenAddr == "" {
		return fmt.Errorf("http.listen_addr is required")
	}
	return nil
}
