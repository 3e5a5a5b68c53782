// Package config loads the sentrydeck configuration from YAML with
// environment overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sentrydeck/internal/classify"
	"sentrydeck/internal/etl"
	"sentrydeck/internal/notify"
	"sentrydeck/internal/serving"
	"sentrydeck/internal/source"
	"sentrydeck/internal/storage"
)

// Config is the root configuration for both binaries.
type Config struct {
	Server  ServerConfig        `yaml:"server"`
	Logging LoggingConfig       `yaml:"logging"`
	Storage storage.Config      `yaml:"storage"`
	Sources SourcesConfig       `yaml:"sources"`
	Ingest  etl.Config          `yaml:"ingest"`
	Cache   serving.CacheConfig `yaml:"cache"`
	Notify  notify.Config       `yaml:"notify"`

	Retention storage.RetentionConfig `yaml:"retention"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// SourcesConfig names the CSV exports an ingest run consumes and where
// to fetch them from. When the S3 bucket is set the files come from S3,
// otherwise from the local directory.
type SourcesConfig struct {
	Dir      string           `yaml:"dir"`
	S3       source.S3Config  `yaml:"s3"`
	Manifest []etl.SourceSpec `yaml:"manifest"`
}

// DefaultConfig returns the default configuration. The manifest lists the
// portal exports by their shipped names, typos included.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: storage.DefaultConfig(),
		Sources: SourcesConfig{
			Dir: "data",
			Manifest: []etl.SourceSpec{
				{File: "Alert.csv", Kind: classify.KindSecurityEvent},
				{File: "Sec Event.csv", Kind: classify.KindSecurityEvent},
				{File: "AzurActivity.csv", Kind: classify.KindActivity},
				{File: "FierWall.csv", Kind: classify.KindFirewall},
				{File: "Incedent.csv", Kind: classify.KindIncident},
			},
		},
		Ingest:    etl.DefaultConfig(),
		Cache:     serving.DefaultCacheConfig(),
		Notify:    notify.DefaultConfig(),
		Retention: storage.DefaultRetentionConfig(),
	}
}

// Load loads configuration from a file or returns defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("DECK_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("DECK_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.HTTPPort = p
		}
	}
	if level := os.Getenv("DECK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if dsn := os.Getenv("DECK_DB_DSN"); dsn != "" {
		c.Storage.DSN = dsn
	}
	if dir := os.Getenv("DECK_SOURCE_DIR"); dir != "" {
		c.Sources.Dir = dir
	}
	if bucket := os.Getenv("DECK_S3_BUCKET"); bucket != "" {
		c.Sources.S3.Bucket = bucket
	}
	if region := os.Getenv("AWS_REGION"); region != "" && c.Sources.S3.Region == "" {
		c.Sources.S3.Region = region
	}
	if addr := os.Getenv("DECK_REDIS_ADDR"); addr != "" {
		c.Cache.Addr = addr
		c.Cache.Enabled = true
	}
	if brokers := os.Getenv("DECK_KAFKA_BROKERS"); brokers != "" {
		c.Notify.Brokers = strings.Split(brokers, ",")
		c.Notify.Enabled = true
	}
}

// UseS3 reports whether source files come from S3.
func (c *Config) UseS3() bool {
	return c.Sources.S3.Bucket != ""
}

// Validate checks the configuration for both binaries.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	if c.Storage.DSN == "" {
		return fmt.Errorf("storage dsn is required")
	}

	if len(c.Sources.Manifest) == 0 {
		return fmt.Errorf("at least one source file is required")
	}
	seen := make(map[string]struct{}, len(c.Sources.Manifest))
	for _, src := range c.Sources.Manifest {
		if src.File == "" {
			return fmt.Errorf("source file name is required")
		}
		switch src.Kind {
		case classify.KindIncident, classify.KindActivity, classify.KindFirewall, classify.KindSecurityEvent:
		default:
			return fmt.Errorf("unknown source kind %q for %s", src.Kind, src.File)
		}
		if _, dup := seen[src.File]; dup {
			return fmt.Errorf("duplicate source file %s", src.File)
		}
		seen[src.File] = struct{}{}
	}

	if err := c.Notify.Validate(); err != nil {
		return err
	}

	return nil
}
