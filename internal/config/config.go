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

// Config holds the clip-image-search service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxUploadMB     int `yaml:"max_upload_mb"`
}

// DatabaseConfig holds feature store connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider    string      `yaml:"provider"` // metrics label (default: openai)
	APIKey      string      `yaml:"api_key"`
	BaseURL     string      `yaml:"base_url"`
	Model       string      `yaml:"model"`
	Dimensions  int         `yaml:"dimensions"`   // 0 = derived from model
	StorageType string      `yaml:"storage_type"` // float32 (default) | float64
	TextPrompt  string      `yaml:"text_prompt"`  // optional, e.g. "a photo of %s"
	Cache       bool        `yaml:"cache"`
	CacheTTLSec int         `yaml:"cache_ttl_sec"` // 0 = no expiry
	Quota       QuotaConfig `yaml:"quota"`
}

// QuotaConfig holds provider call quota settings.
type QuotaConfig struct {
	DailyLimit   int64  `yaml:"daily_limit"`   // 0 = unlimited
	MonthlyLimit int64  `yaml:"monthly_limit"` // 0 = unlimited
	Action       string `yaml:"action"`        // "reject" | "warn" (default)
}

// SearchConfig holds similarity scan settings.
type SearchConfig struct {
	ChunkSize     int `yaml:"chunk_size"`
	DefaultTopN   int `yaml:"default_topn"`
	MaxTopN       int `yaml:"max_topn"`
	CursorIdleSec int `yaml:"cursor_idle_sec"`
	TimeoutSec    int `yaml:"timeout_sec"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	Workers      int   `yaml:"workers"`    // 0 = GOMAXPROCS
	QueueSize    int   `yaml:"queue_size"` // 0 = 2 * workers
	MaxFileBytes int64 `yaml:"max_file_bytes"`
}

// StorageConfig holds key layout and content store settings.
type StorageConfig struct {
	KeyPrefix string        `yaml:"key_prefix"`
	Content   ContentConfig `yaml:"content"`
}

// ContentConfig selects where copied images are kept.
type ContentConfig struct {
	Backend string      `yaml:"backend"` // local (default) | minio
	Root    string      `yaml:"root"`
	Minio   MinioConfig `yaml:"minio"`
}

// MinioConfig holds S3-compatible bucket settings.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Secure    bool   `yaml:"secure"`
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
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 32
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "ViT-B/32"
	}
	if c.Embedding.StorageType == "" {
		c.Embedding.StorageType = "float32"
	}
	if c.Embedding.Quota.Action == "" {
		c.Embedding.Quota.Action = "warn"
	}
	if c.Search.ChunkSize <= 0 {
		c.Search.ChunkSize = 8192
	}
	if c.Search.DefaultTopN <= 0 {
		c.Search.DefaultTopN = 10
	}
	if c.Search.MaxTopN <= 0 {
		c.Search.MaxTopN = 1000
	}
	if c.Search.CursorIdleSec <= 0 {
		c.Search.CursorIdleSec = 300
	}
	if c.Search.TimeoutSec <= 0 {
		c.Search.TimeoutSec = 60
	}
	if c.Ingest.MaxFileBytes <= 0 {
		c.Ingest.MaxFileBytes = 64 << 20
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "clipsearch:"
	}
	if c.Storage.Content.Backend == "" {
		c.Storage.Content.Backend = "local"
	}
	if c.Storage.Content.Root == "" {
		c.Storage.Content.Root = "./data"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Database.Driver != "redis" {
		return fmt.Errorf("database.driver must be \"redis\", got %q", c.Database.Driver)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required")
	}
	switch c.Embedding.StorageType {
	case "float32", "float64":
	default:
		return fmt.Errorf("embedding.storage_type must be \"float32\" or \"float64\", got %q", c.Embedding.StorageType)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	switch c.Embedding.Quota.Action {
	case "warn", "reject":
	default:
		return fmt.Errorf("embedding.quota.action must be \"warn\" or \"reject\", got %q", c.Embedding.Quota.Action)
	}
	if c.Search.DefaultTopN > c.Search.MaxTopN {
		return fmt.Errorf("search.default_topn (%d) exceeds search.max_topn (%d)", c.Search.DefaultTopN, c.Search.MaxTopN)
	}
	if c.Ingest.Workers < 0 || c.Ingest.QueueSize < 0 {
		return fmt.Errorf("ingest.workers and ingest.queue_size must not be negative")
	}
	switch c.Storage.Content.Backend {
	case "local":
	case "minio":
		m := c.Storage.Content.Minio
		if m.Endpoint == "" || m.Bucket == "" {
			return fmt.Errorf("storage.content.minio.endpoint and bucket are required for the minio backend")
		}
	default:
		return fmt.Errorf("storage.content.backend must be \"local\" or \"minio\", got %q", c.Storage.Content.Backend)
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
