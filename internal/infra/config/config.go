package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	LLM       LLMConfig       `yaml:"llm"`
	Drive     DriveConfig     `yaml:"drive"`
	Storage   StorageConfig   `yaml:"storage"`
	Scratch   ScratchConfig   `yaml:"scratch"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Valkey    RedisConfig     `yaml:"valkey"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Session   SessionConfig   `yaml:"session"`
	Task      TaskConfig      `yaml:"task"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
	Retry          RetryConfig     `yaml:"retry"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// RetryConfig configures best-effort retries of POST requests that end in a
// 5xx response; paths listed in Exclude are never retried.
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	Exclude     []string      `yaml:"exclude"`
}

// AuthConfig controls the pre-shared API key every inbound request carries
// in X-API-Key.
type AuthConfig struct {
	APIKeys []string `yaml:"apiKeys"`
}

// LLMConfig contains the vision/text model and embedding model settings.
type LLMConfig struct {
	APIKey           string  `yaml:"apiKey"`
	BaseURL          string  `yaml:"baseUrl"`
	ModelName        string  `yaml:"modelName"`
	EmbeddingModel   string  `yaml:"embeddingModelName"`
	EmbeddingDim     int     `yaml:"embeddingDimension"`
	Temperature      float32 `yaml:"temperature"`
	CaptionRateLimit float64 `yaml:"captionRateLimitPerSecond"`
}

// DriveConfig controls the remote folder mirrored by Stage 1.
type DriveConfig struct {
	RemoteName       string            `yaml:"remoteName"`
	ExportFormats    map[string]string `yaml:"exportFormats"`
	IncludePatterns  []string          `yaml:"includePatterns"`
	ExcludePatterns  []string          `yaml:"excludePatterns"`
	ReconcileDeletes bool              `yaml:"reconcileDeletes"`
}

// StorageConfig configures the durable object store bucket (C1).
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"useSsl"`
}

// ScratchConfig configures the per-run scratch namespace (C1).
type ScratchConfig struct {
	Dir string `yaml:"dir"`
}

// PostgresConfig contains DSN and pooling settings for the metadata store.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// RedisConfig contains connection information for the Valkey-backed queue
// and session cache.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// RetrievalConfig tunes C7's ranking and index maintenance.
type RetrievalConfig struct {
	VectorMetric          string  `yaml:"vectorMetric"`
	HNSWM                 int     `yaml:"hnswM"`
	HNSWEfConstruction    int     `yaml:"hnswEfConstruction"`
	HNSWRebuildThreshold  int     `yaml:"hnswRebuildThreshold"`
	DefaultSemanticWeight float64 `yaml:"defaultSemanticWeight"`
	DefaultK              int     `yaml:"defaultK"`
}

// SessionConfig tunes C8's conversational memory window.
type SessionConfig struct {
	TTL         time.Duration `yaml:"ttlSeconds"`
	WindowTurns int           `yaml:"windowTurns"`
}

// TaskConfig tunes C6's worker pool and per-document stage concurrency.
type TaskConfig struct {
	HardTimeout            time.Duration `yaml:"hardTimeoutSeconds"`
	SoftTimeout            time.Duration `yaml:"softTimeoutSeconds"`
	MaxConcurrencyPerStage int           `yaml:"maxConcurrencyPerStage"`
	WorkerPoolSize         int           `yaml:"workerPoolSize"`
	EmbedBatchSize         int           `yaml:"embedBatchSize"`
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitAndTrim(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_ENABLED"); v != "" {
		cfg.HTTP.RateLimit.Enabled = truthy(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_RPM"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.RequestsPerMinute = parsed
		}
	}
	if v := os.Getenv("HTTP_RETRY_ENABLED"); v != "" {
		cfg.HTTP.Retry.Enabled = truthy(v)
	}
	if v := os.Getenv("AUTH_API_KEYS"); v != "" {
		cfg.Auth.APIKeys = splitAndTrim(v)
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL_NAME"); v != "" {
		cfg.LLM.ModelName = v
	}
	if v := os.Getenv("EMBEDDING_MODEL_NAME"); v != "" {
		cfg.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("EMBEDDING_DIMENSION"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.LLM.EmbeddingDim = parsed
		}
	}
	if v := os.Getenv("DRIVE_REMOTE_NAME"); v != "" {
		cfg.Drive.RemoteName = v
	}
	if v := os.Getenv("DRIVE_INCLUDE_PATTERNS"); v != "" {
		cfg.Drive.IncludePatterns = splitAndTrim(v)
	}
	if v := os.Getenv("DRIVE_EXCLUDE_PATTERNS"); v != "" {
		cfg.Drive.ExcludePatterns = splitAndTrim(v)
	}
	if v := os.Getenv("OBJECT_STORAGE_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv("OBJECT_STORAGE_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("OBJECT_STORAGE_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}
	if v := os.Getenv("OBJECT_STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("SCRATCH_DIR"); v != "" {
		cfg.Scratch.Dir = v
	}
	if v := os.Getenv("DB_CONNECTION_STRING"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.MaxConns = int32(parsed)
		}
	}
	if v := os.Getenv("VALKEY_ENABLED"); v != "" {
		cfg.Valkey.Enabled = truthy(v)
	}
	if v := os.Getenv("VALKEY_ADDR"); v != "" {
		cfg.Valkey.Addr = v
	}
	if v := os.Getenv("VECTOR_METRIC"); v != "" {
		cfg.Retrieval.VectorMetric = v
	}
	if v := os.Getenv("HNSW_M"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.HNSWM = parsed
		}
	}
	if v := os.Getenv("HNSW_EF_CONSTRUCTION"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.HNSWEfConstruction = parsed
		}
	}
	if v := os.Getenv("HNSW_REBUILD_THRESHOLD"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.HNSWRebuildThreshold = parsed
		}
	}
	if v := os.Getenv("SESSION_TTL_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Session.TTL = time.Duration(parsed) * time.Second
		}
	}
	if v := os.Getenv("SESSION_WINDOW_TURNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Session.WindowTurns = parsed
		}
	}
	if v := os.Getenv("TASK_HARD_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Task.HardTimeout = time.Duration(parsed) * time.Second
		}
	}
	if v := os.Getenv("TASK_SOFT_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Task.SoftTimeout = time.Duration(parsed) * time.Second
		}
	}
	if v := os.Getenv("MAX_CONCURRENCY_PER_STAGE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Task.MaxConcurrencyPerStage = parsed
		}
	}
}

func truthy(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:        ":8080",
			AllowedOrigins: []string{"*"},
			RateLimit:      RateLimitConfig{Enabled: true, RequestsPerMinute: 60, Burst: 20},
			Retry:          RetryConfig{Enabled: true, MaxAttempts: 3, BaseBackoff: 150 * time.Millisecond},
		},
		LLM: LLMConfig{
			ModelName:        "gpt-4o-mini",
			EmbeddingModel:   "text-embedding-3-small",
			EmbeddingDim:     1536,
			Temperature:      0.2,
			CaptionRateLimit: 2,
		},
		Drive: DriveConfig{
			ExportFormats: map[string]string{
				"application/vnd.google-apps.document":     "docx",
				"application/vnd.google-apps.spreadsheet":   "xlsx",
				"application/vnd.google-apps.presentation":  "pptx",
			},
			ExcludePatterns: []string{"*.form", "~$*"},
		},
		Storage: StorageConfig{Bucket: "meridian-documents"},
		Scratch: ScratchConfig{Dir: "./scratch"},
		Postgres: PostgresConfig{
			MaxConns: 10,
			MinConns: 2,
		},
		Valkey: RedisConfig{Enabled: false, Addr: "127.0.0.1:6379"},
		Retrieval: RetrievalConfig{
			VectorMetric:          "cosine",
			HNSWM:                 16,
			HNSWEfConstruction:    64,
			HNSWRebuildThreshold:  1000,
			DefaultSemanticWeight: 0.7,
			DefaultK:              8,
		},
		Session: SessionConfig{TTL: time.Hour, WindowTurns: 6},
		Task: TaskConfig{
			HardTimeout:            30 * time.Minute,
			SoftTimeout:            20 * time.Minute,
			MaxConcurrencyPerStage: 4,
			WorkerPoolSize:         4,
			EmbedBatchSize:         64,
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if len(c.Auth.APIKeys) == 0 {
		return errors.New("auth.apiKeys must contain at least one key")
	}
	if strings.TrimSpace(c.LLM.EmbeddingModel) == "" {
		return errors.New("llm.embeddingModelName cannot be empty")
	}
	if c.LLM.EmbeddingDim <= 0 {
		return errors.New("llm.embeddingDimension must be positive")
	}
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		return errors.New("storage.bucket cannot be empty")
	}
	if strings.TrimSpace(c.Scratch.Dir) == "" {
		return errors.New("scratch.dir cannot be empty")
	}
	if c.Retrieval.DefaultSemanticWeight < 0 || c.Retrieval.DefaultSemanticWeight > 1 {
		return errors.New("retrieval.defaultSemanticWeight must be within [0,1]")
	}
	if c.Retrieval.HNSWRebuildThreshold <= 0 {
		return errors.New("retrieval.hnswRebuildThreshold must be positive")
	}
	if c.Session.WindowTurns <= 0 {
		return errors.New("session.windowTurns must be positive")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session.ttlSeconds must be positive")
	}
	if c.Task.MaxConcurrencyPerStage <= 0 {
		return errors.New("task.maxConcurrencyPerStage must be positive")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if c.HTTP.Retry.Enabled {
		if c.HTTP.Retry.MaxAttempts <= 0 {
			return errors.New("http.retry.maxAttempts must be positive")
		}
		if c.HTTP.Retry.BaseBackoff <= 0 {
			return errors.New("http.retry.baseBackoff must be positive")
		}
	}
	if c.Valkey.Enabled && strings.TrimSpace(c.Valkey.Addr) == "" {
		return errors.New("valkey.addr cannot be empty when valkey is enabled")
	}
	return nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var result []string
	for _, part := range parts {
		val := strings.TrimSpace(part)
		if val != "" {
			result = append(result, val)
		}
	}
	return result
}
