package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the ragline API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Query     QueryConfig     `yaml:"query"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds SQLite connection pool settings. The pool is capped
// and idle-reaped; the handle is injected into repositories, never global.
type DatabaseConfig struct {
	Path               string `yaml:"path"`
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_sec"`
	ConnMaxIdleSec     int    `yaml:"conn_max_idle_sec"`
}

// RedisConfig holds Redis connection settings (vector index, caches, locks).
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds object storage settings.
type StorageConfig struct {
	Dir       string `yaml:"dir"`
	URLSecret string `yaml:"url_secret"`
	BaseURL   string `yaml:"base_url"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// ProviderConfig holds one LLM provider's settings. List order is the
// default fallback priority.
type ProviderConfig struct {
	Name                 string `yaml:"name"`
	APIKey               string `yaml:"api_key"`
	BaseURL              string `yaml:"base_url"`
	Model                string `yaml:"model"`
	TimeoutSec           int    `yaml:"timeout_sec"`
	CostPerMillionCents  int    `yaml:"cost_per_million_cents"`
	TypicalLatencyMillis int    `yaml:"typical_latency_ms"`
}

// BreakerConfig holds circuit breaker settings shared by all providers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	CooldownSec      int `yaml:"cooldown_sec"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
	Breaker   BreakerConfig    `yaml:"breaker"`
}

// PipelineConfig holds document processing settings.
type PipelineConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	MaxRetries   int    `yaml:"max_retries"`
	Workers      int    `yaml:"workers"`
	QueueSize    int    `yaml:"queue_size"`
	LockTTLSec   int    `yaml:"lock_ttl_sec"`
	IndexName    string `yaml:"index_name"`
	KeyPrefix    string `yaml:"key_prefix"`
	HNSWM        int    `yaml:"hnsw_m"`
	HNSWEFConstr int    `yaml:"hnsw_ef_construction"`
}

// QueryConfig holds retrieval and prompt assembly settings.
type QueryConfig struct {
	TopK                int     `yaml:"top_k"`
	MinScore            float64 `yaml:"min_score"`
	ContextBudgetTokens int     `yaml:"context_budget_tokens"`
}

// CacheConfig holds per-category cache TTLs in seconds.
type CacheConfig struct {
	EmbeddingTTLSec int `yaml:"embedding_ttl_sec"`
	QueryTTLSec     int `yaml:"query_ttl_sec"`
	AnalysisTTLSec  int `yaml:"analysis_ttl_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Path == "" {
		c.Database.Path = "ragline.db"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetimeSec <= 0 {
		c.Database.ConnMaxLifetimeSec = 1800
	}
	if c.Database.ConnMaxIdleSec <= 0 {
		c.Database.ConnMaxIdleSec = 300
	}
	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "data/blobs"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	for i := range c.LLM.Providers {
		if c.LLM.Providers[i].TimeoutSec <= 0 {
			c.LLM.Providers[i].TimeoutSec = 60
		}
	}
	if c.LLM.Breaker.FailureThreshold <= 0 {
		c.LLM.Breaker.FailureThreshold = 3
	}
	if c.LLM.Breaker.CooldownSec <= 0 {
		c.LLM.Breaker.CooldownSec = 30
	}
	if c.Pipeline.ChunkSize <= 0 {
		c.Pipeline.ChunkSize = 1000
	}
	if c.Pipeline.ChunkOverlap <= 0 || c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkSize {
		c.Pipeline.ChunkOverlap = c.Pipeline.ChunkSize / 5
	}
	if c.Pipeline.MaxRetries <= 0 {
		c.Pipeline.MaxRetries = 3
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 4
	}
	if c.Pipeline.QueueSize <= 0 {
		c.Pipeline.QueueSize = 256
	}
	if c.Pipeline.LockTTLSec <= 0 {
		c.Pipeline.LockTTLSec = 600
	}
	if c.Pipeline.IndexName == "" {
		c.Pipeline.IndexName = "ragline_chunks"
	}
	if c.Pipeline.KeyPrefix == "" {
		c.Pipeline.KeyPrefix = "ragline:"
	}
	if c.Pipeline.HNSWM <= 0 {
		c.Pipeline.HNSWM = 16
	}
	if c.Pipeline.HNSWEFConstr <= 0 {
		c.Pipeline.HNSWEFConstr = 200
	}
	if c.Query.TopK <= 0 {
		c.Query.TopK = 5
	}
	if c.Query.MinScore <= 0 {
		c.Query.MinScore = 0.3
	}
	if c.Query.ContextBudgetTokens <= 0 {
		c.Query.ContextBudgetTokens = 3000
	}
	if c.Cache.EmbeddingTTLSec <= 0 {
		c.Cache.EmbeddingTTLSec = 7 * 24 * 3600
	}
	if c.Cache.QueryTTLSec <= 0 {
		c.Cache.QueryTTLSec = 3600
	}
	if c.Cache.AnalysisTTLSec <= 0 {
		c.Cache.AnalysisTTLSec = 24 * 3600
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs is required")
	}
	if len(c.LLM.Providers) == 0 {
		return fmt.Errorf("llm.providers is required")
	}
	seen := make(map[string]bool)
	for i, p := range c.LLM.Providers {
		if p.Name == "" {
			return fmt.Errorf("llm.providers[%d].name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate llm provider name %q", p.Name)
		}
		seen[p.Name] = true
		if p.Model == "" {
			return fmt.Errorf("llm.providers.%s.model is required", p.Name)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
