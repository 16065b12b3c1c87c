package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/payee-cli/internal/classify"
	"github.com/sells-group/payee-cli/internal/dedupe"
	"github.com/sells-group/payee-cli/internal/match"
	"github.com/sells-group/payee-cli/internal/similarity"
	"github.com/sells-group/payee-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Similarity SimilarityConfig `yaml:"similarity" mapstructure:"similarity"`
	Input      InputConfig      `yaml:"input" mapstructure:"input"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string           `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	UseBatchAPI       bool    `yaml:"use_batch_api" mapstructure:"use_batch_api"`
}

// Classify converts the Anthropic section into the classifier's config.
func (c AnthropicConfig) Classify() classify.Config {
	return classify.Config{
		Model:             c.Model,
		MaxTokens:         c.MaxTokens,
		RequestsPerSecond: c.RequestsPerSecond,
	}
}

// SimilarityConfig holds fuzzy-matching weights and thresholds.
type SimilarityConfig struct {
	Weights      similarity.Weights `yaml:"weights" mapstructure:"weights"`
	DedupeThresh float64            `yaml:"dedupe_threshold" mapstructure:"dedupe_threshold"`
	MatchThresh  float64            `yaml:"match_threshold" mapstructure:"match_threshold"`
	DisableFuzzy bool               `yaml:"disable_fuzzy" mapstructure:"disable_fuzzy"`
}

// InputConfig configures input file parsing.
type InputConfig struct {
	PayeeColumn int    `yaml:"payee_column" mapstructure:"payee_column"`
	SheetName   string `yaml:"sheet_name" mapstructure:"sheet_name"`
}

// PipelineConfig configures the classification run.
type PipelineConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PAYEE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "payee.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", classify.DefaultModel)
	v.SetDefault("anthropic.max_tokens", classify.DefaultMaxTokens)
	v.SetDefault("anthropic.requests_per_second", 5)
	v.SetDefault("similarity.weights.levenshtein", 0.25)
	v.SetDefault("similarity.weights.jaro_winkler", 0.35)
	v.SetDefault("similarity.weights.dice", 0.25)
	v.SetDefault("similarity.weights.token_sort", 0.15)
	v.SetDefault("similarity.dedupe_threshold", dedupe.DefaultThreshold)
	v.SetDefault("similarity.match_threshold", match.DefaultThreshold)
	v.SetDefault("input.payee_column", -1)
	v.SetDefault("pipeline.concurrency", 4)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Similarity.Weights.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields required for a given run mode. Mode "classify"
// needs API credentials and a usable store; "dedupe" and "export" need only
// the store; "serve" additionally needs a valid port.
func (c *Config) Validate(mode string) error {
	var missing []string

	requireStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				missing = append(missing, "store.database_url is required for the postgres driver")
			}
		case "sqlite":
			if c.Store.SQLitePath == "" {
				missing = append(missing, "store.sqlite_path is required for the sqlite driver")
			}
		default:
			missing = append(missing, "store.driver must be postgres or sqlite")
		}
	}

	switch mode {
	case "classify":
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		requireStore()
	case "dedupe", "export", "migrate", "stats":
		requireStore()
	case "serve":
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		requireStore()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 50 {
		missing = append(missing, "pipeline.concurrency must be between 1 and 50")
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
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
