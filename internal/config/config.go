package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Segment    SegmentConfig    `yaml:"segment" mapstructure:"segment"`
	Structure  StructureConfig  `yaml:"structure" mapstructure:"structure"`
	Quality    QualityConfig    `yaml:"quality" mapstructure:"quality"`
	Audit      AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Metadata   MetadataConfig   `yaml:"metadata" mapstructure:"metadata"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	RepairModel string `yaml:"repair_model" mapstructure:"repair_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	// Provider is one of "native", "local" (pdftotext), "mistral" or "chain".
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_ocr_model" mapstructure:"mistral_ocr_model"`
}

// SegmentConfig tunes the deterministic segmenter.
type SegmentConfig struct {
	MinQuestions int `yaml:"min_questions" mapstructure:"min_questions"`
}

// StructureConfig configures the structuring strategies.
type StructureConfig struct {
	Strategies         []string `yaml:"strategies" mapstructure:"strategies"`
	ChunkChars         int      `yaml:"chunk_chars" mapstructure:"chunk_chars"`
	PageSize           int      `yaml:"page_size" mapstructure:"page_size"`
	MaxPages           int      `yaml:"max_pages" mapstructure:"max_pages"`
	MaxConcurrentCalls int      `yaml:"max_concurrent_calls" mapstructure:"max_concurrent_calls"`
	RequestsPerMinute  int      `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// QualityConfig holds the quality gate thresholds and answer-key policy.
type QualityConfig struct {
	MinStemLength    int     `yaml:"min_stem_length" mapstructure:"min_stem_length"`
	SimilarityRatio  float64 `yaml:"similarity_ratio" mapstructure:"similarity_ratio"`
	SimilarityMinLen int     `yaml:"similarity_min_len" mapstructure:"similarity_min_len"`
	StrictAnswerKey  bool    `yaml:"strict_answer_key" mapstructure:"strict_answer_key"`
	DefaultAnswer    string  `yaml:"default_answer" mapstructure:"default_answer"`
}

// AuditConfig configures the audit and auto-fix pass.
type AuditConfig struct {
	BatchSize         int  `yaml:"batch_size" mapstructure:"batch_size"`
	AutoFix           bool `yaml:"auto_fix" mapstructure:"auto_fix"`
	MaxRepairAttempts int  `yaml:"max_repair_attempts" mapstructure:"max_repair_attempts"`
}

// RetryConfig holds the retry policy shared by all LLM calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the LLM circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// BatchConfig configures bulk imports.
type BatchConfig struct {
	MaxConcurrentDocuments int    `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
	LockPath               string `yaml:"lock_path" mapstructure:"lock_path"`
}

// FetchConfig configures downloads of remote documents (http, https, ftp).
type FetchConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	MaxBytes          int64   `yaml:"max_bytes" mapstructure:"max_bytes"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// MetadataConfig configures filename metadata inference.
type MetadataConfig struct {
	InstitutionsFile string `yaml:"institutions_file" mapstructure:"institutions_file"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures the background consistency monitor.
type MonitoringConfig struct {
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	DLQDepthThreshold    int     `yaml:"dlq_depth_threshold" mapstructure:"dlq_depth_threshold"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("QBANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "qbank.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.repair_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 16000)
	v.SetDefault("ocr.provider", "chain")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_ocr_model", "mistral-ocr-latest")
	v.SetDefault("segment.min_questions", 3)
	v.SetDefault("structure.strategies", []string{"regex", "llm"})
	v.SetDefault("structure.chunk_chars", 12000)
	v.SetDefault("structure.page_size", 25)
	v.SetDefault("structure.max_pages", 8)
	v.SetDefault("structure.max_concurrent_calls", 2)
	v.SetDefault("structure.requests_per_minute", 50)
	v.SetDefault("quality.min_stem_length", 30)
	v.SetDefault("quality.similarity_ratio", 0.8)
	v.SetDefault("quality.similarity_min_len", 10)
	v.SetDefault("quality.strict_answer_key", false)
	v.SetDefault("quality.default_answer", "A")
	v.SetDefault("audit.batch_size", 3)
	v.SetDefault("audit.auto_fix", true)
	v.SetDefault("audit.max_repair_attempts", 3)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 60)
	v.SetDefault("batch.max_concurrent_documents", 2)
	v.SetDefault("batch.lock_path", "qbank-batch.lock")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.max_bytes", 64<<20)
	v.SetDefault("fetch.requests_per_second", 2.0)
	v.SetDefault("fetch.user_agent", "qbank-cli/1.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.dlq_depth_threshold", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required by the given command mode.
// Modes: "import", "audit", "check", "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "import", "audit":
		if c.usesLLM(mode) && c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "check":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Batch.MaxConcurrentDocuments < 1 || c.Batch.MaxConcurrentDocuments > 16 {
		errs = append(errs, "batch.max_concurrent_documents must be between 1 and 16")
	}
	if c.Structure.MaxConcurrentCalls < 1 {
		errs = append(errs, "structure.max_concurrent_calls must be >= 1")
	}
	if c.Audit.BatchSize < 1 {
		errs = append(errs, "audit.batch_size must be >= 1")
	}
	if c.Quality.SimilarityRatio <= 0 || c.Quality.SimilarityRatio > 1 {
		errs = append(errs, "quality.similarity_ratio must be in (0, 1]")
	}
	if !validLetter(c.Quality.DefaultAnswer) {
		errs = append(errs, "quality.default_answer must be one of A-E")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// usesLLM reports whether the mode will reach the LLM strategy.
func (c *Config) usesLLM(mode string) bool {
	if mode == "audit" {
		return c.Audit.AutoFix
	}
	for _, s := range c.Structure.Strategies {
		if s == "llm" {
			return true
		}
	}
	return false
}

func validLetter(s string) bool {
	return len(s) == 1 && s[0] >= 'A' && s[0] <= 'E'
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
