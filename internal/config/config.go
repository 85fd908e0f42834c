package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/audit-cli/internal/cost"
)

// Modes accepted by Validate.
const (
	ModeAnalyze = "analyze"
	ModeServe   = "serve"
	ModeMigrate = "migrate"
	ModeOffline = "offline"
)

const maxBatchSize = 1000

// Config holds the full application configuration. It is read once at process
// start and passed to the components that need it.
type Config struct {
	Anthropic AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Together  TogetherConfig   `yaml:"together" mapstructure:"together"`
	Routing   RoutingConfig    `yaml:"routing" mapstructure:"routing"`
	Audit     AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Pricing   PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Store     StoreConfig      `yaml:"store" mapstructure:"store"`
	Redis     RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Batch     BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitor   MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log       LogConfig        `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	DefaultModel string `yaml:"default_model" mapstructure:"default_model"`
	MaxTokens    int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	CacheSystem  bool   `yaml:"cache_system" mapstructure:"cache_system"`
}

// TogetherConfig holds Together.ai API settings.
type TogetherConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	DefaultModel      string  `yaml:"default_model" mapstructure:"default_model"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// RoutingConfig configures the routing policy.
type RoutingConfig struct {
	CallTimeoutSecs int                    `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	Routes          map[string]RouteConfig `yaml:"routes" mapstructure:"routes"`
	Circuit         CircuitConfig          `yaml:"circuit" mapstructure:"circuit"`
}

// RouteConfig overrides the built-in route for one task type.
type RouteConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PrimaryModel  string `yaml:"primary_model" mapstructure:"primary_model"`
	FallbackModel string `yaml:"fallback_model" mapstructure:"fallback_model"`
}

// CircuitConfig configures per-provider circuit breakers.
type CircuitConfig struct {
	Enabled          bool `yaml:"enabled" mapstructure:"enabled"`
	FailureThreshold int  `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int  `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// AuditConfig configures the analysis orchestrator.
type AuditConfig struct {
	MaxRecords  int     `yaml:"max_records" mapstructure:"max_records"`
	SampleSize  int     `yaml:"sample_size" mapstructure:"sample_size"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// PricingConfig holds per-provider pricing rates keyed by model ID.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Together  map[string]ModelPricing `yaml:"together" mapstructure:"together"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RedisConfig configures the webhook dedupe guard. An empty URL disables it.
type RedisConfig struct {
	URL           string `yaml:"url" mapstructure:"url"`
	DedupeTTLSecs int    `yaml:"dedupe_ttl_secs" mapstructure:"dedupe_ttl_secs"`
}

// BatchConfig configures directory batch runs.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures batch-run alerting. Zero thresholds are
// disabled and an empty webhook URL only logs alerts.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold  float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	FallbackRateThreshold float64 `yaml:"fallback_rate_threshold" mapstructure:"fallback_rate_threshold"`
	CostThresholdUSD      float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	AlertOnCritical       bool    `yaml:"alert_on_critical" mapstructure:"alert_on_critical"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml, if present, and environment.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file. An empty path searches the
// working directory; a named file must exist.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("AUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("anthropic.default_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.cache_system", true)
	v.SetDefault("together.base_url", "https://api.together.xyz/v1")
	v.SetDefault("together.default_model", "meta-llama/Llama-3.3-70B-Instruct-Turbo")
	v.SetDefault("together.max_tokens", 4096)
	v.SetDefault("together.requests_per_second", 0)
	v.SetDefault("together.burst", 1)
	v.SetDefault("routing.call_timeout_secs", 60)
	v.SetDefault("routing.circuit.enabled", true)
	v.SetDefault("routing.circuit.failure_threshold", 5)
	v.SetDefault("routing.circuit.reset_timeout_secs", 30)
	v.SetDefault("audit.max_records", maxBatchSize)
	v.SetDefault("audit.sample_size", 50)
	v.SetDefault("audit.temperature", 0.1)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "audit.db")
	v.SetDefault("redis.dedupe_ttl_secs", 86400)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("monitoring.fallback_rate_threshold", 0.50)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("monitoring.alert_on_critical", true)
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

// Validate checks the settings mode needs. Analyze and serve need both provider
// credentials; migrate needs a database; offline commands need neither.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case ModeAnalyze, ModeServe:
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Together.Key == "" {
			errs = append(errs, "together.key is required")
		}
		if mode == ModeServe && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case ModeMigrate:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case ModeOffline:
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Audit.MaxRecords < 1 || c.Audit.MaxRecords > maxBatchSize {
		errs = append(errs, fmt.Sprintf("audit.max_records must be between 1 and %d", maxBatchSize))
	}
	if c.Audit.SampleSize < 1 {
		errs = append(errs, "audit.sample_size must be > 0")
	}
	if c.Audit.Temperature < 0 || c.Audit.Temperature > 1 {
		errs = append(errs, "audit.temperature must be between 0 and 1")
	}
	if c.Routing.CallTimeoutSecs < 1 {
		errs = append(errs, "routing.call_timeout_secs must be > 0")
	}
	if c.Monitor.FailureRateThreshold < 0 || c.Monitor.FailureRateThreshold > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}
	if c.Monitor.FallbackRateThreshold < 0 || c.Monitor.FallbackRateThreshold > 1 {
		errs = append(errs, "monitoring.fallback_rate_threshold must be between 0 and 1")
	}
	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 32 {
		errs = append(errs, "batch.concurrency must be between 1 and 32")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
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

// Rates overlays configured prices on base. Models not configured keep their
// base price.
func (p PricingConfig) Rates(base cost.Rates) cost.Rates {
	out := cost.Rates{
		Anthropic: make(map[string]cost.ModelRate, len(base.Anthropic)+len(p.Anthropic)),
		Together:  make(map[string]cost.ModelRate, len(base.Together)+len(p.Together)),
	}
	for m, r := range base.Anthropic {
		out.Anthropic[m] = r
	}
	for m, r := range base.Together {
		out.Together[m] = r
	}
	for m, r := range p.Anthropic {
		out.Anthropic[m] = cost.ModelRate(r)
	}
	for m, r := range p.Together {
		out.Together[m] = cost.ModelRate(r)
	}
	return out
}
