package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token    string `yaml:"token" envconfig:"BOT_TOKEN"`
	Username string `yaml:"username" envconfig:"BOT_USERNAME"`
	AdminID  int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode  string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Stacks      string `yaml:"stacks"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// RedisConfig points at the ephemeral code store.
type RedisConfig struct {
	URL string `yaml:"url" envconfig:"REDIS_URL"`
}

// APIConfig configures the backend HTTP listener.
type APIConfig struct {
	Listen         string   `yaml:"listen" envconfig:"API_LISTEN"`
	Port           int      `yaml:"port" envconfig:"API_PORT"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"API_ALLOWED_ORIGINS"`
	// RatePerSecond and RateBurst throttle the public OTP endpoints.
	RatePerSecond float64 `yaml:"rate_per_second" envconfig:"API_RATE_PER_SECOND"`
	RateBurst     int     `yaml:"rate_burst" envconfig:"API_RATE_BURST"`
}

// BackendConfig tells the bot where its backend lives.
type BackendConfig struct {
	BaseURL string `yaml:"base_url" envconfig:"BACKEND_URL"`
}

const (
	// RecordDriverSupabase selects the PostgREST-style record store.
	RecordDriverSupabase = "supabase"
	// RecordDriverPostgres selects the self-hosted Postgres record store.
	RecordDriverPostgres = "postgres"
)

// RecordStoreConfig selects and configures the persisted link record store.
type RecordStoreConfig struct {
	Driver        string `yaml:"driver" envconfig:"RECORD_STORE_DRIVER"`
	SupabaseURL   string `yaml:"supabase_url" envconfig:"SUPABASE_URL"`
	SupabaseKey   string `yaml:"supabase_key" envconfig:"SUPABASE_SERVICE_ROLE_KEY"`
	SupabaseTable string `yaml:"supabase_table" envconfig:"SUPABASE_USER_TABLE"`
}

// LinkConfig holds the account-linking protocol knobs.
type LinkConfig struct {
	// TelegramBase is the deep link prefix, e.g. "https://t.me".
	TelegramBase string `yaml:"telegram_base" envconfig:"LINK_TELEGRAM_BASE"`
	// CodeTTLSeconds bounds the life of pending codes on both sides.
	CodeTTLSeconds int `yaml:"code_ttl_seconds" envconfig:"LINK_CODE_TTL_SECONDS"`
	// ConversationTTLSeconds bounds inactivity in the bot-side confirm dialog.
	ConversationTTLSeconds int `yaml:"conversation_ttl_seconds" envconfig:"LINK_CONVERSATION_TTL_SECONDS"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for Telegram-side rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration for the whole service.
type Config struct {
	Telegram    TelegramConfig    `yaml:"telegram"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	Logging     LoggingConfig     `yaml:"logging"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Redis       RedisConfig       `yaml:"redis"`
	API         APIConfig         `yaml:"api"`
	Backend     BackendConfig     `yaml:"backend"`
	RecordStore RecordStoreConfig `yaml:"record_store"`
	Link        LinkConfig        `yaml:"link"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if strings.TrimSpace(cfg.Telegram.Username) == "" {
		return fmt.Errorf("telegram.username is required to build deep links")
	}
	cfg.Telegram.Username = strings.TrimPrefix(strings.TrimSpace(cfg.Telegram.Username), "@")

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if strings.TrimSpace(cfg.Redis.URL) == "" {
		return fmt.Errorf("redis.url is required")
	}

	if cfg.API.Port <= 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.RatePerSecond <= 0 {
		cfg.API.RatePerSecond = 5
	}
	if cfg.API.RateBurst <= 0 {
		cfg.API.RateBurst = 10
	}

	if strings.TrimSpace(cfg.Backend.BaseURL) == "" {
		cfg.Backend.BaseURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.API.Port)
	}
	cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")

	driver := strings.ToLower(strings.TrimSpace(cfg.RecordStore.Driver))
	if driver == "" {
		driver = RecordDriverSupabase
	}
	switch driver {
	case RecordDriverSupabase:
		if strings.TrimSpace(cfg.RecordStore.SupabaseURL) == "" {
			return fmt.Errorf("record_store.supabase_url is required when record_store.driver is 'supabase'")
		}
		if strings.TrimSpace(cfg.RecordStore.SupabaseKey) == "" {
			return fmt.Errorf("record_store.supabase_key is required when record_store.driver is 'supabase'")
		}
		if strings.TrimSpace(cfg.RecordStore.SupabaseTable) == "" {
			cfg.RecordStore.SupabaseTable = "users"
		}
		cfg.RecordStore.SupabaseURL = strings.TrimRight(cfg.RecordStore.SupabaseURL, "/")
	case RecordDriverPostgres:
	default:
		return fmt.Errorf("invalid record_store.driver %q; allowed: supabase, postgres", cfg.RecordStore.Driver)
	}
	cfg.RecordStore.Driver = driver

	if strings.TrimSpace(cfg.Link.TelegramBase) == "" {
		cfg.Link.TelegramBase = "https://t.me"
	}
	cfg.Link.TelegramBase = strings.TrimRight(cfg.Link.TelegramBase, "/")
	if cfg.Link.CodeTTLSeconds <= 0 {
		cfg.Link.CodeTTLSeconds = 300
	}
	if cfg.Link.ConversationTTLSeconds <= 0 {
		cfg.Link.ConversationTTLSeconds = 300
	}

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}
