package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultServerAddress   = ":8090"
	DefaultWebhookPath     = "/webhook"
	DefaultMaxFileBytes    = 50 << 20 // 50 MB
	DefaultCodeLength      = 6
	DefaultCodeMaxAttempts = 32
	DefaultSessionIdle     = 30 // minutes
	DefaultDedupWindow     = 10 // minutes
	DefaultHTTPTimeout     = 30 // seconds
	DefaultAITimeout       = 60 // seconds
	DefaultWorkers         = 8
	DefaultQueueSize       = 256
	DefaultMarkerWord      = "PDBOT"

	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Replies     RepliesConfig             `json:"replies"`
	Marker      MarkerConfig              `json:"marker"`
	AI          AIConfig                  `json:"ai"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	UltraMsg    UltraMsgConfig            `json:"ultramsg"`
	Telegram    TelegramConfig            `json:"telegram"`
}

type BasicConfig struct {
	ServerAddress      string `json:"server_address"`
	WebhookPath        string `json:"webhook_path"`
	WebhookSecret      string `json:"webhook_secret"`
	LogLevel           string `json:"log_level"`
	DevLog             bool   `json:"dev_log"`
	TempDir            string `json:"temp_dir"`
	MaxFileBytes       int64  `json:"max_file_bytes"`
	CodeLength         int    `json:"code_length"`
	CodeMaxAttempts    int    `json:"code_max_attempts"`
	CodeWidenAfter     int    `json:"code_widen_after"`
	SessionBackend     string `json:"session_backend"`
	SessionIdleTimeout int    `json:"session_idle_timeout"` // minutes
	DedupBackend       string `json:"dedup_backend"`
	DedupWindow        int    `json:"dedup_window"` // minutes
	HTTPTimeout        int    `json:"http_timeout_seconds"`
	Workers            int    `json:"workers"`
	QueueSize          int    `json:"queue_size"`
}

// KeywordRule maps any of the listed substrings to a reply. Rules are evaluated in order.
type KeywordRule struct {
	Match []string `json:"match"`
	Reply string   `json:"reply"`
}

type RepliesConfig struct {
	Keywords []KeywordRule `json:"keywords"`
	Default  string        `json:"default"`
}

// MarkerConfig controls the marker-word gate. When enabled, messages containing
// Word receive no reply at all.
type MarkerConfig struct {
	Enabled bool   `json:"enabled"`
	Word    string `json:"word"`
}

type AIConfig struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
	WebSearch    bool   `json:"web_search"`
	Timeout      int    `json:"timeout_seconds"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

type UltraMsgConfig struct {
	BaseURL    string `json:"base_url"`
	InstanceID string `json:"instance_id"`
	Token      string `json:"token"`
}

type TelegramConfig struct {
	BotToken    string `json:"bot_token"`
	APIEndpoint string `json:"api_endpoint"`
	WebhookURL  string `json:"webhook_url"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	for name, db := range cfg.Databases {
		if db.DSN != "" && db.DSN != ":memory:" && !strings.HasPrefix(db.DSN, "file:") && isSQLite(name) && !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration that cannot produce a working service.
func (c *Config) Validate() error {
	if c.BasicConfig.MaxFileBytes <= 0 {
		return errors.New("max_file_bytes must be positive")
	}
	if c.BasicConfig.CodeLength < 4 {
		return errors.New("code_length must be at least 4")
	}
	switch c.BasicConfig.SessionBackend {
	case SessionBackendMemory, SessionBackendRedis:
	default:
		return fmt.Errorf("unsupported session_backend: %s", c.BasicConfig.SessionBackend)
	}
	switch c.BasicConfig.DedupBackend {
	case SessionBackendMemory, SessionBackendRedis:
	default:
		return fmt.Errorf("unsupported dedup_backend: %s", c.BasicConfig.DedupBackend)
	}
	if !strings.HasPrefix(c.BasicConfig.WebhookPath, "/") {
		return errors.New("webhook_path must start with /")
	}
	if c.Marker.Enabled && strings.TrimSpace(c.Marker.Word) == "" {
		return errors.New("marker.word is required when marker gating is enabled")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	b := &cfg.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = DefaultServerAddress
	}
	if b.WebhookPath == "" {
		b.WebhookPath = DefaultWebhookPath
	}
	if b.LogLevel == "" {
		b.LogLevel = "info"
	}
	if b.TempDir == "" {
		b.TempDir = filepath.Join(os.TempDir(), "pdbot")
	}
	if b.MaxFileBytes == 0 {
		b.MaxFileBytes = DefaultMaxFileBytes
	}
	if b.CodeLength == 0 {
		b.CodeLength = DefaultCodeLength
	}
	if b.CodeMaxAttempts <= 0 {
		b.CodeMaxAttempts = DefaultCodeMaxAttempts
	}
	if b.SessionBackend == "" {
		b.SessionBackend = SessionBackendMemory
	}
	if b.SessionIdleTimeout <= 0 {
		b.SessionIdleTimeout = DefaultSessionIdle
	}
	if b.DedupBackend == "" {
		b.DedupBackend = b.SessionBackend
	}
	if b.DedupWindow <= 0 {
		b.DedupWindow = DefaultDedupWindow
	}
	if b.HTTPTimeout <= 0 {
		b.HTTPTimeout = DefaultHTTPTimeout
	}
	if b.Workers <= 0 {
		b.Workers = DefaultWorkers
	}
	if b.QueueSize <= 0 {
		b.QueueSize = DefaultQueueSize
	}
	if len(cfg.Replies.Keywords) == 0 {
		cfg.Replies.Keywords = DefaultKeywords()
	}
	if cfg.Replies.Default == "" {
		cfg.Replies.Default = "My New WhatsApp Number 0723051652 (PDBOT)"
	}
	if cfg.Marker.Word == "" {
		cfg.Marker.Word = DefaultMarkerWord
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = DefaultAITimeout
	}
	if cfg.UltraMsg.BaseURL == "" {
		cfg.UltraMsg.BaseURL = "https://api.ultramsg.com"
	}
}

// DefaultKeywords returns the built-in keyword table.
func DefaultKeywords() []KeywordRule {
	return []KeywordRule{
		{Match: []string{"hello", "hi"}, Reply: "Hi! How can I help you? 😊"},
		{Match: []string{"info", "contact"}, Reply: "This is PDBOT 📱 Contact: 0723051652"},
	}
}

// applyEnv lets secrets live outside the config file.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("PDBOT_TELEGRAM_TOKEN")); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := strings.TrimSpace(os.Getenv("PDBOT_ULTRAMSG_TOKEN")); v != "" {
		cfg.UltraMsg.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("PDBOT_ULTRAMSG_INSTANCE")); v != "" {
		cfg.UltraMsg.InstanceID = v
	}
	if v := strings.TrimSpace(os.Getenv("PDBOT_WEBHOOK_SECRET")); v != "" {
		cfg.BasicConfig.WebhookSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("PDBOT_AI_API_KEY")); v != "" && cfg.AI.Provider != "" {
		if cfg.Providers == nil {
			cfg.Providers = make(map[string]ProviderConfig)
		}
		p := cfg.Providers[cfg.AI.Provider]
		p.APIKey = v
		cfg.Providers[cfg.AI.Provider] = p
	}
}

func isSQLite(name string) bool {
	name = strings.ToLower(name)
	return name == "sqlite" || name == "sqlite3"
}

// SessionIdle returns the idle timeout for conversation sessions.
func (b BasicConfig) SessionIdle() time.Duration {
	return time.Duration(b.SessionIdleTimeout) * time.Minute
}

// Dedup returns the window during which repeated message ids are suppressed.
func (b BasicConfig) Dedup() time.Duration {
	return time.Duration(b.DedupWindow) * time.Minute
}

// HTTPClientTimeout returns the timeout applied to outbound HTTP calls.
func (b BasicConfig) HTTPClientTimeout() time.Duration {
	return time.Duration(b.HTTPTimeout) * time.Second
}

// UltraMsgEnabled reports whether the WhatsApp gateway is configured.
func (c *Config) UltraMsgEnabled() bool {
	return c.UltraMsg.InstanceID != "" && c.UltraMsg.Token != ""
}

// TelegramEnabled reports whether the Telegram bot is configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != ""
}
