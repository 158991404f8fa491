package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"goodnews-bot/keywords"
	"goodnews-bot/scheduler"
)

const defaultConfigPath = "./config.yaml"

// Config holds all application configuration.
type Config struct {
	FeedKind           string `yaml:"feed_kind"`
	FeedTopic          string `yaml:"feed_topic"`
	FeedBaseURL        string `yaml:"feed_base_url"`
	RedditClientID     string `yaml:"reddit_client_id"`
	RedditClientSecret string `yaml:"reddit_client_secret"`
	UserAgent          string `yaml:"user_agent"`
	BatchLimit         int    `yaml:"batch_limit"`

	ClassifierKind    string `yaml:"classifier_kind"`
	ClassifierModel   string `yaml:"classifier_model"`
	ClassifierBaseURL string `yaml:"classifier_base_url"`
	HFAPIToken        string `yaml:"hf_api_token"`
	GeminiAPIKey      string `yaml:"gemini_api_key"`

	ScoreThreshold float64  `yaml:"score_threshold"`
	KeywordWeight  *float64 `yaml:"keyword_weight"`
	Keywords       []string `yaml:"keywords"`

	PublisherKind       string `yaml:"publisher_kind"`
	MastodonAccessToken string `yaml:"mastodon_access_token"`
	MastodonAPIBaseURL  string `yaml:"mastodon_api_base_url"`
	MastodonVisibility  string `yaml:"mastodon_visibility"`
	TelegramToken       string `yaml:"telegram_token"`
	TelegramChatID      int64  `yaml:"telegram_chat_id"`
	Marker              string `yaml:"marker"`
	MaxPayloadLen       int    `yaml:"max_payload_len"`

	LedgerKind string `yaml:"ledger_kind"`
	LedgerPath string `yaml:"ledger_path"`
	RedisURL   string `yaml:"redis_url"`
	RedisKey   string `yaml:"redis_key"`

	DryRun           bool   `yaml:"dry_run"`
	Schedule         string `yaml:"schedule"`
	Timezone         string `yaml:"timezone"`
	FetchTimeoutSecs int    `yaml:"fetch_timeout_secs"`
	LogLevel         string `yaml:"log_level"`
	LogFormat        string `yaml:"log_format"`
}

// FetchTimeout returns the timeout for outbound calls.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// Weight returns the keyword weight.
func (c *Config) Weight() float64 {
	if c.KeywordWeight == nil {
		return 0.03
	}
	return *c.KeywordWeight
}

// LoadOption adjusts the configuration after file and environment values
// are applied and before it is validated.
type LoadOption func(*Config)

// ForceDryRun turns dry-run mode on whatever the file or environment say.
func ForceDryRun() LoadOption {
	return func(c *Config) {
		c.DryRun = true
	}
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string, opts ...LoadOption) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return parse(data, opts)
}

// LoadFromEnv loads .env when present, then the config file named by
// GOODNEWS_CONFIG or ./config.yaml. A missing ./config.yaml is allowed so the
// bot can be configured from the environment alone.
func LoadFromEnv(opts ...LoadOption) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	path := GetConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
			return parse(nil, opts)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return parse(data, opts)
}

func parse(data []byte, opts []LoadOption) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	applyDefaults(cfg)
	if err := applyEnvironmentOverrides(cfg); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// GetConfigPath returns the config file path from environment or default.
func GetConfigPath() string {
	if path := os.Getenv("GOODNEWS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func applyDefaults(cfg *Config) {
	if cfg.FeedKind == "" {
		cfg.FeedKind = "reddit"
	}
	if cfg.FeedTopic == "" {
		cfg.FeedTopic = "UpliftingNews"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "PositiveContentBot"
	}
	if cfg.BatchLimit == 0 {
		cfg.BatchLimit = 20
	}
	if cfg.ClassifierKind == "" {
		cfg.ClassifierKind = "huggingface"
	}
	if cfg.ScoreThreshold == 0 {
		cfg.ScoreThreshold = 0.97
	}
	if cfg.KeywordWeight == nil {
		w := 0.03
		cfg.KeywordWeight = &w
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = append([]string(nil), keywords.DefaultVocabulary...)
	}
	if cfg.PublisherKind == "" {
		cfg.PublisherKind = "mastodon"
	}
	if cfg.MastodonVisibility == "" {
		cfg.MastodonVisibility = "public"
	}
	if cfg.Marker == "" {
		cfg.Marker = "🌍"
	}
	if cfg.MaxPayloadLen == 0 {
		cfg.MaxPayloadLen = 500
	}
	if cfg.LedgerKind == "" {
		cfg.LedgerKind = "file"
	}
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = "posted_urls.txt"
	}
	if cfg.RedisKey == "" {
		cfg.RedisKey = "goodnews:posted"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.FetchTimeoutSecs == 0 {
		cfg.FetchTimeoutSecs = 10
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
}

func applyEnvironmentOverrides(cfg *Config) error {
	overrides := []struct {
		env    string
		target *string
	}{
		{"REDDIT_CLIENT_ID", &cfg.RedditClientID},
		{"REDDIT_CLIENT_SECRET", &cfg.RedditClientSecret},
		{"MASTODON_ACCESS_TOKEN", &cfg.MastodonAccessToken},
		{"MASTODON_API_BASE_URL", &cfg.MastodonAPIBaseURL},
		{"HF_API_TOKEN", &cfg.HFAPIToken},
		{"GEMINI_API_KEY", &cfg.GeminiAPIKey},
		{"TELEGRAM_TOKEN", &cfg.TelegramToken},
		{"GOODNEWS_LEDGER", &cfg.LedgerPath},
		{"REDIS_URL", &cfg.RedisURL},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}

	if v := os.Getenv("GOODNEWS_DRY_RUN"); v != "" {
		dryRun, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse GOODNEWS_DRY_RUN: %w", err)
		}
		cfg.DryRun = dryRun
	}
	return nil
}

func validate(cfg *Config) error {
	switch cfg.FeedKind {
	case "reddit", "rss":
	default:
		return fmt.Errorf("feed_kind must be reddit or rss, got %q", cfg.FeedKind)
	}
	if cfg.BatchLimit < 1 || cfg.BatchLimit > 100 {
		return fmt.Errorf("batch_limit must be between 1 and 100, got %d", cfg.BatchLimit)
	}
	if (cfg.RedditClientID == "") != (cfg.RedditClientSecret == "") {
		return fmt.Errorf("reddit_client_id and reddit_client_secret must be set together")
	}

	switch cfg.ClassifierKind {
	case "huggingface":
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return fmt.Errorf("gemini_api_key is required for the gemini classifier")
		}
	default:
		return fmt.Errorf("classifier_kind must be huggingface or gemini, got %q", cfg.ClassifierKind)
	}

	if cfg.ScoreThreshold <= 0 || cfg.ScoreThreshold > 10 {
		return fmt.Errorf("score_threshold must be in (0, 10], got %v", cfg.ScoreThreshold)
	}
	if cfg.Weight() < 0 {
		return fmt.Errorf("keyword_weight must be >= 0, got %v", cfg.Weight())
	}

	switch cfg.PublisherKind {
	case "mastodon":
		if !cfg.DryRun && (cfg.MastodonAccessToken == "" || cfg.MastodonAPIBaseURL == "") {
			return fmt.Errorf("mastodon_access_token and mastodon_api_base_url are required")
		}
	case "telegram":
		if !cfg.DryRun && (cfg.TelegramToken == "" || cfg.TelegramChatID == 0) {
			return fmt.Errorf("telegram_token and telegram_chat_id are required")
		}
	default:
		return fmt.Errorf("publisher_kind must be mastodon or telegram, got %q", cfg.PublisherKind)
	}
	if cfg.MaxPayloadLen <= 3 {
		return fmt.Errorf("max_payload_len must be greater than 3, got %d", cfg.MaxPayloadLen)
	}

	switch cfg.LedgerKind {
	case "file", "sqlite":
	case "redis":
		if cfg.RedisURL == "" {
			return fmt.Errorf("redis_url is required for the redis ledger")
		}
	default:
		return fmt.Errorf("ledger_kind must be file, sqlite or redis, got %q", cfg.LedgerKind)
	}

	if cfg.Schedule != "" {
		if err := scheduler.Validate(cfg.Schedule); err != nil {
			return fmt.Errorf("invalid schedule: %w", err)
		}
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.FetchTimeoutSecs < 0 {
		return fmt.Errorf("fetch_timeout_secs must be positive, got %d", cfg.FetchTimeoutSecs)
	}
	return nil
}
