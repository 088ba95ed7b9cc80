// Package config loads application settings from an optional config file,
// a local .env file and BOOKRAG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Book       BookConfig       `mapstructure:"book"`
	Chunker    ChunkerConfig    `mapstructure:"chunker"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Vector     VectorConfig     `mapstructure:"vector"`
	Generation GenerationConfig `mapstructure:"generation"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	APIKey          string        `mapstructure:"api_key"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	BodyLimit       string        `mapstructure:"body_limit"`
	RateLimit       int           `mapstructure:"rate_limit"`
	EmbedRateLimit  int           `mapstructure:"embed_rate_limit"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BookConfig struct {
	Dir     string `mapstructure:"dir"`
	Format  string `mapstructure:"format"`
	Subject string `mapstructure:"subject"`
	Domain  string `mapstructure:"domain"`
}

type ChunkerConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

type EmbeddingConfig struct {
	Host       string        `mapstructure:"host"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	BatchSize  int           `mapstructure:"batch_size"`
	MaxRetries int           `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Cache      CacheConfig   `mapstructure:"cache"`
}

type CacheConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type VectorConfig struct {
	Backend    string       `mapstructure:"backend"`
	Collection string       `mapstructure:"collection"`
	Qdrant     QdrantConfig `mapstructure:"qdrant"`
}

type QdrantConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type GenerationConfig struct {
	Provider string       `mapstructure:"provider"`
	Gemini   GeminiConfig `mapstructure:"gemini"`
	Ollama   OllamaConfig `mapstructure:"ollama"`
}

type GeminiConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type OllamaConfig struct {
	Host  string `mapstructure:"host"`
	Model string `mapstructure:"model"`
}

type AgentConfig struct {
	TopK            int           `mapstructure:"top_k"`
	MaxSources      int           `mapstructure:"max_sources"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	Temperature     float64       `mapstructure:"temperature"`
	TemperatureStep float64       `mapstructure:"temperature_step"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// legacyEnv maps keys onto the unprefixed variable names used by earlier deployments
var legacyEnv = map[string][]string{
	"generation.gemini.api_key": {"GEMINI_API_KEY"},
	"vector.qdrant.url":         {"QDRANT_URL"},
	"vector.qdrant.api_key":     {"QDRANT_API_KEY"},
	"database.url":              {"DATABASE_URL", "NEON_DATABASE_URL"},
	"server.api_key":            {"API_KEY"},
	"embedding.host":            {"OLLAMA_HOST"},
	"generation.ollama.host":    {"OLLAMA_HOST"},
	"embedding.cache.redis_url": {"REDIS_URL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.body_limit", "64K")
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.embed_rate_limit", 10)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("book.dir", "docs")
	v.SetDefault("book.format", "markdown")
	v.SetDefault("book.subject", "Physical AI and Humanoid Robotics")
	v.SetDefault("book.domain", "robotics and humanoid systems")

	v.SetDefault("chunker.size", 1024)
	v.SetDefault("chunker.overlap", 100)

	v.SetDefault("embedding.model", "mxbai-embed-large")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("embedding.batch_size", 96)
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.cache.ttl", 7*24*time.Hour)

	v.SetDefault("vector.backend", "qdrant")
	v.SetDefault("vector.collection", "book_content")
	v.SetDefault("vector.qdrant.url", "http://localhost:6333")
	v.SetDefault("vector.qdrant.timeout", 15*time.Second)

	v.SetDefault("generation.provider", "gemini")
	v.SetDefault("generation.gemini.model", "gemini-2.5-flash")
	v.SetDefault("generation.gemini.timeout", 60*time.Second)
	v.SetDefault("generation.ollama.model", "llama3.1")

	v.SetDefault("agent.top_k", 5)
	v.SetDefault("agent.max_sources", 3)
	v.SetDefault("agent.max_attempts", 3)
	v.SetDefault("agent.temperature", 0.7)
	v.SetDefault("agent.temperature_step", 0.15)
	v.SetDefault("agent.max_output_tokens", 1500)
	v.SetDefault("agent.attempt_timeout", 30*time.Second)
	v.SetDefault("agent.request_timeout", 90*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Keys without a default must still be known for env lookups to apply
	for _, key := range []string{
		"server.api_key",
		"embedding.host",
		"embedding.cache.redis_url",
		"vector.qdrant.api_key",
		"generation.gemini.api_key",
		"generation.gemini.base_url",
		"generation.ollama.host",
		"database.url",
	} {
		v.SetDefault(key, "")
	}
}

// Load reads configuration. path may be empty, in which case config.yaml is
// looked up in ./config and the working directory if present.
func Load(path string) (*Config, error) {
	// A missing .env file is fine
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BOOKRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	for key, names := range legacyEnv {
		if os.Getenv("BOOKRAG_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))) != "" {
			continue
		}
		for _, name := range names {
			if val := os.Getenv(name); val != "" {
				v.Set(key, val)
				break
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize lowercases enum-like fields
func (c *Config) Normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Book.Format = strings.ToLower(strings.TrimSpace(c.Book.Format))
	c.Vector.Backend = strings.ToLower(strings.TrimSpace(c.Vector.Backend))
	c.Generation.Provider = strings.ToLower(strings.TrimSpace(c.Generation.Provider))
}

// Validate checks ranges and enum values
func (c *Config) Validate() error {
	var errs []error
	if c.Chunker.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunker.size must be positive"))
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		errs = append(errs, fmt.Errorf("chunker.overlap must be in [0, chunker.size)"))
	}
	if c.Embedding.BatchSize < 1 || c.Embedding.BatchSize > 96 {
		errs = append(errs, fmt.Errorf("embedding.batch_size must be between 1 and 96"))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive"))
	}
	if c.Agent.MaxAttempts < 1 || c.Agent.MaxAttempts > 3 {
		errs = append(errs, fmt.Errorf("agent.max_attempts must be between 1 and 3"))
	}
	if c.Agent.TopK <= 0 {
		errs = append(errs, fmt.Errorf("agent.top_k must be positive"))
	}
	switch c.Vector.Backend {
	case "qdrant":
		if strings.TrimSpace(c.Vector.Qdrant.URL) == "" {
			errs = append(errs, fmt.Errorf("vector.qdrant.url required for the qdrant backend"))
		}
	case "pgvector":
		if strings.TrimSpace(c.Database.URL) == "" {
			errs = append(errs, fmt.Errorf("database.url required for the pgvector backend"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("vector.backend must be qdrant, pgvector or memory"))
	}
	switch c.Generation.Provider {
	case "gemini", "ollama":
	default:
		errs = append(errs, fmt.Errorf("generation.provider must be gemini or ollama"))
	}
	switch c.Book.Format {
	case "markdown", "pdf":
	default:
		errs = append(errs, fmt.Errorf("book.format must be markdown or pdf"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel converts a level name to a slog level
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error")
}

// NewLogger builds the process logger described by c
func (c LogConfig) NewLogger() *slog.Logger {
	level, _ := ParseLevel(c.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
