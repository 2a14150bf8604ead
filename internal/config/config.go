// Package config loads application configuration from file and environment
// and initializes the global logger.
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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Sources  SourcesConfig  `yaml:"sources" mapstructure:"sources"`
	Sessions SessionsConfig `yaml:"sessions" mapstructure:"sessions"`
	Parser   ParserConfig   `yaml:"parser" mapstructure:"parser"`
	Policy   PolicyConfig   `yaml:"policy" mapstructure:"policy"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FetchConfig configures the shared HTTP client.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ArtifactDir string `yaml:"artifact_dir" mapstructure:"artifact_dir"`
}

// SourcesConfig holds per-source endpoint settings.
type SourcesConfig struct {
	Handelsregister      EndpointConfig `yaml:"handelsregister" mapstructure:"handelsregister"`
	Northdata            EndpointConfig `yaml:"northdata" mapstructure:"northdata"`
	LinkedIn             EndpointConfig `yaml:"linkedin" mapstructure:"linkedin"`
	Unternehmensregister EndpointConfig `yaml:"unternehmensregister" mapstructure:"unternehmensregister"`
}

// EndpointConfig configures one source endpoint.
type EndpointConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SessionsConfig configures persisted session state.
type SessionsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ParserConfig configures document parsing.
type ParserConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// PolicyConfig points at the aggregation policy file. An empty path uses
// the built-in policy.
type PolicyConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentCompanies int `yaml:"max_concurrent_companies" mapstructure:"max_concurrent_companies"`
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

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FIRMENRADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "firmenradar.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_companies", 3)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0")
	v.SetDefault("fetch.timeout_secs", 45)
	v.SetDefault("fetch.artifact_dir", "artifacts")
	v.SetDefault("sources.handelsregister.base_url", "https://www.handelsregister.de")
	v.SetDefault("sources.northdata.base_url", "https://www.northdata.de")
	v.SetDefault("sources.linkedin.base_url", "https://www.linkedin.com")
	v.SetDefault("sources.unternehmensregister.base_url", "https://www.unternehmensregister.de")
	v.SetDefault("sessions.path", "sessions.json")
	v.SetDefault("parser.pdftotext_path", "pdftotext")

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
