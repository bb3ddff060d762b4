// Package config provides configuration management for the research digest bot.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research digest bot.
type Config struct {
	// Telegram contains Bot API settings.
	Telegram TelegramConfig `mapstructure:"telegram"`
	// Server contains the operational HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// LLM contains text-generation client settings.
	LLM LLMConfig `mapstructure:"llm"`
	// ArXiv contains arXiv API and full-text parser settings.
	ArXiv ArXivConfig `mapstructure:"arxiv"`
	// Pipeline contains paper pipeline settings.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	// Storage contains allow-list and ledger file settings.
	Storage StorageConfig `mapstructure:"storage"`
	// Database contains the optional PostgreSQL paper archive settings.
	Database DatabaseConfig `mapstructure:"database"`
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	// Token is the bot token (loaded from ARXIVBOT_TELEGRAM_TOKEN env var).
	Token string `mapstructure:"-"`
	// AdminID is the user id of the bot administrator.
	AdminID int64 `mapstructure:"admin_id"`
	// BaseURL is the Bot API base URL (for custom endpoints and tests).
	BaseURL string `mapstructure:"base_url"`
	// PollTimeout is the long-poll timeout for getUpdates.
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	// RequestTimeout is the HTTP timeout for single Bot API calls; it must
	// exceed PollTimeout or long polls are cut short.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// SendRateLimit is the maximum outbound messages per second.
	SendRateLimit float64 `mapstructure:"send_rate_limit"`
}

// ServerConfig holds the operational HTTP server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// LLMConfig holds text-generation client configuration.
type LLMConfig struct {
	// Provider is the LLM provider (openai, anthropic).
	Provider string `mapstructure:"provider"`
	// Timeout is the timeout for LLM API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the maximum number of retries for transient failures.
	// Zero keeps query planning at exactly one attempt before its fallback.
	MaxRetries int `mapstructure:"max_retries"`
	// Temperature is the LLM temperature setting.
	Temperature float64 `mapstructure:"temperature"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (loaded from ARXIVBOT_LLM_OPENAI_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// Model is the OpenAI model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the OpenAI API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic-specific settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (loaded from ARXIVBOT_LLM_ANTHROPIC_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// Model is the Anthropic model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the Anthropic API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// ArXivConfig holds arXiv API and full-text parser settings.
type ArXivConfig struct {
	// BaseURL is the arXiv export API base URL.
	BaseURL string `mapstructure:"base_url"`
	// HTMLBaseURL is the base URL for HTML full-text pages.
	HTMLBaseURL string `mapstructure:"html_base_url"`
	// Timeout is the timeout for arXiv API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second (arXiv recommends 3).
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults is the maximum results per search query.
	MaxResults int `mapstructure:"max_results"`
}

// PipelineConfig holds paper pipeline settings.
type PipelineConfig struct {
	// Concurrency is the process-wide cap on simultaneously in-flight
	// fetch and generation calls, shared by all concurrent runs.
	Concurrency int `mapstructure:"concurrency"`
}

// StorageConfig holds file store settings.
type StorageConfig struct {
	// AllowlistPath is the path to the persisted allow-list JSON file.
	AllowlistPath string `mapstructure:"allowlist_path"`
	// LedgerPath is the path to the processed-paper ledger journal.
	LedgerPath string `mapstructure:"ledger_path"`
}

// DatabaseConfig holds the optional PostgreSQL paper archive configuration.
type DatabaseConfig struct {
	// Enabled turns on the paper archive; the bot runs file-only when false.
	Enabled bool `mapstructure:"enabled"`
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"-"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files.
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the operational HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ARXIVBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/arxivbot")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Telegram.Token = os.Getenv("ARXIVBOT_TELEGRAM_TOKEN")
	cfg.LLM.OpenAI.APIKey = os.Getenv("ARXIVBOT_LLM_OPENAI_API_KEY")
	cfg.LLM.Anthropic.APIKey = os.Getenv("ARXIVBOT_LLM_ANTHROPIC_API_KEY")
	cfg.Database.Password = os.Getenv("ARXIVBOT_DATABASE_PASSWORD")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Telegram defaults
	v.SetDefault("telegram.admin_id", 0)
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout", "30s")
	v.SetDefault("telegram.request_timeout", "40s")
	v.SetDefault("telegram.send_rate_limit", 25.0)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// LLM defaults
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 0)
	v.SetDefault("llm.temperature", 0.7)
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("llm.openai.model", "gpt-4-turbo")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-3-sonnet-20240229")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")

	// arXiv defaults
	v.SetDefault("arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("arxiv.html_base_url", "https://arxiv.org/html")
	v.SetDefault("arxiv.timeout", "30s")
	v.SetDefault("arxiv.rate_limit", 3.0) // arXiv recommends max 3 req/sec
	v.SetDefault("arxiv.max_results", 25)

	// Pipeline defaults
	v.SetDefault("pipeline.concurrency", 4)

	// Storage defaults
	v.SetDefault("storage.allowlist_path", "data/allowlist.json")
	v.SetDefault("storage.ledger_path", "data/processed.log")

	// Database defaults (archive disabled unless explicitly enabled)
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "arxivbot")
	v.SetDefault("database.name", "arxivbot")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required (set ARXIVBOT_TELEGRAM_TOKEN)")
	}
	if c.Telegram.PollTimeout <= 0 {
		return fmt.Errorf("telegram poll_timeout must be positive")
	}
	if c.Telegram.RequestTimeout <= c.Telegram.PollTimeout {
		return fmt.Errorf("telegram request_timeout (%s) must exceed poll_timeout (%s)",
			c.Telegram.RequestTimeout, c.Telegram.PollTimeout)
	}

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline concurrency must be positive")
	}
	if c.ArXiv.MaxResults <= 0 {
		return fmt.Errorf("arxiv max_results must be positive")
	}
	if c.Storage.AllowlistPath == "" {
		return fmt.Errorf("storage allowlist_path is required")
	}
	if c.Storage.LedgerPath == "" {
		return fmt.Errorf("storage ledger_path is required")
	}

	// Validate that the configured LLM provider has its required API key set.
	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires ARXIVBOT_LLM_OPENAI_API_KEY to be set", c.LLM.Provider)
		}
	case "anthropic":
		if c.LLM.Anthropic.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires ARXIVBOT_LLM_ANTHROPIC_API_KEY to be set", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %q", c.LLM.Provider)
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required when the archive is enabled")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Database.Port)
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required when the archive is enabled")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
		}
	}

	return nil
}
