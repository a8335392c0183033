package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Port string

	// Auth
	TaxgestAPIKey string

	// Claude extraction
	AnthropicAPIKey    string
	AnthropicModel     string
	AnthropicBaseURL   string
	AnthropicMaxTokens int
	LLMTimeout         time.Duration
	LLMRatePerMinute   int
	LLMBreakerFailures int

	// Page selection
	ClassifyThreshold int
	MaxPagesPerCall   int

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// Record store
	StorePath string

	LogLevel string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8090")
	v.SetDefault("anthropic_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic_base_url", "https://api.anthropic.com")
	v.SetDefault("anthropic_max_tokens", 8192)
	v.SetDefault("llm_timeout", 5*time.Minute)
	v.SetDefault("llm_rate_per_minute", 20)
	v.SetDefault("llm_breaker_failures", 5)
	v.SetDefault("classify_threshold", 20)
	v.SetDefault("max_pages_per_call", 40)
	v.SetDefault("worker_count", 2)
	v.SetDefault("max_queue_size", 100)
	v.SetDefault("max_upload_bytes", int64(52428800)) // 50MB
	v.SetDefault("job_ttl", time.Hour)
	v.SetDefault("store_path", "data/returns.json")
	v.SetDefault("log_level", "info")
}

// Load reads configuration from the environment, with command-line flags
// taking precedence. Secrets are read from the environment only.
func Load(args []string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	fs := pflag.NewFlagSet("taxgest-server", pflag.ContinueOnError)
	fs.String("port", v.GetString("port"), "HTTP listen port")
	fs.String("store-path", v.GetString("store_path"), "Path of the JSON record store")
	fs.String("log-level", v.GetString("log_level"), "Log level (debug, info, warn, error)")
	fs.Int("worker-count", v.GetInt("worker_count"), "Documents processed in parallel")
	fs.String("model", v.GetString("anthropic_model"), "Anthropic model name")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	for key, flag := range map[string]string{
		"port":            "port",
		"store_path":      "store-path",
		"log_level":       "log-level",
		"worker_count":    "worker-count",
		"anthropic_model": "model",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	cfg := Config{
		Port: v.GetString("port"),

		TaxgestAPIKey: v.GetString("taxgest_api_key"),

		AnthropicAPIKey:    v.GetString("anthropic_api_key"),
		AnthropicModel:     v.GetString("anthropic_model"),
		AnthropicBaseURL:   v.GetString("anthropic_base_url"),
		AnthropicMaxTokens: v.GetInt("anthropic_max_tokens"),
		LLMTimeout:         v.GetDuration("llm_timeout"),
		LLMRatePerMinute:   v.GetInt("llm_rate_per_minute"),
		LLMBreakerFailures: v.GetInt("llm_breaker_failures"),

		ClassifyThreshold: v.GetInt("classify_threshold"),
		MaxPagesPerCall:   v.GetInt("max_pages_per_call"),

		WorkerCount:  v.GetInt("worker_count"),
		MaxQueueSize: v.GetInt("max_queue_size"),

		MaxUploadBytes: v.GetInt64("max_upload_bytes"),

		JobTTL: v.GetDuration("job_ttl"),

		StorePath: v.GetString("store_path"),

		LogLevel: strings.ToLower(v.GetString("log_level")),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.ClassifyThreshold <= 0 {
		cfg.ClassifyThreshold = 20
	}
	if cfg.MaxPagesPerCall <= 0 {
		cfg.MaxPagesPerCall = 40
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.TaxgestAPIKey == "" {
		return fmt.Errorf("TAXGEST_API_KEY is required")
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if c.StorePath == "" {
		return fmt.Errorf("STORE_PATH is required")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a LOG_LEVEL value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", s)
}
