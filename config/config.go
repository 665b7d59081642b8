package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Congressflow CongressflowConfig `yaml:"congressflow"`
	Quiver       QuiverConfig       `yaml:"quiver"`
	Ingest       IngestConfig       `yaml:"ingest"`
	Universe     UniverseConfig     `yaml:"universe"`
	Output       OutputConfig       `yaml:"output"`
	Storage      StorageConfig      `yaml:"storage"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

type CongressflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type QuiverConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Token          string               `yaml:"token"`
	Timeout        time.Duration        `yaml:"timeout"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Retry          RetryConfig          `yaml:"retry"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// RateLimitConfig bounds outbound requests to Requests per Window. The
// limit is shared by every fetch worker in the process.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
	Burst    int           `yaml:"burst"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

type IngestConfig struct {
	// Mode selects the run shape: "tickers" fans out one historical fetch
	// per listed company, "bulk" pulls the whole feed in one payload.
	Mode        string `yaml:"mode"`
	MaxWorkers  int    `yaml:"max_workers"`
	ProcessDate string `yaml:"process_date"`
}

type UniverseConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ListingsFile   string `yaml:"listings_file"`
	MinListingDate string `yaml:"min_listing_date"`
}

type OutputConfig struct {
	DataDir     string `yaml:"data_dir"`
	UniverseDir string `yaml:"universe_dir"`
	Schema      string `yaml:"schema"`
	// When true a single reported trade size fills both amount bounds;
	// when false the maximum stays empty for single-value reports.
	MaxAmountDefaultsToAmount bool `yaml:"max_amount_defaults_to_amount"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Quiver: QuiverConfig{
			BaseURL: "https://api.quiverquant.com/beta",
			Timeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Requests: 10,
				Window:   time.Second,
				Burst:    1,
			},
			Retry: RetryConfig{
				MaxAttempts:       5,
				BaseDelay:         time.Second,
				BackoffMultiplier: 1,
			},
		},
		Ingest: IngestConfig{
			Mode:       "tickers",
			MaxWorkers: 10,
		},
		Output: OutputConfig{
			Schema:                    "extended",
			MaxAmountDefaultsToAmount: true,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Secrets come from the environment when present
	if v := os.Getenv("QUIVER_API_TOKEN"); v != "" {
		config.Quiver.Token = strings.TrimSpace(v)
	}
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Congressflow.Name == "" {
		return fmt.Errorf("congressflow.name is required")
	}
	if cfg.Congressflow.Version == "" {
		return fmt.Errorf("congressflow.version is required")
	}

	if cfg.Quiver.BaseURL == "" {
		return fmt.Errorf("quiver.base_url is required")
	}
	if cfg.Quiver.RateLimit.Requests <= 0 {
		return fmt.Errorf("quiver.rate_limit.requests must be greater than 0")
	}
	if cfg.Quiver.RateLimit.Window <= 0 {
		return fmt.Errorf("quiver.rate_limit.window must be greater than 0")
	}
	if cfg.Quiver.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("quiver.retry.max_attempts must be greater than 0")
	}

	switch cfg.Ingest.Mode {
	case "tickers", "bulk":
	default:
		return fmt.Errorf("ingest.mode '%s' is invalid, expected 'tickers' or 'bulk'", cfg.Ingest.Mode)
	}
	if cfg.Ingest.MaxWorkers <= 0 {
		return fmt.Errorf("ingest.max_workers must be greater than 0")
	}
	if cfg.Ingest.ProcessDate != "" {
		if _, err := time.Parse("2006-01-02", cfg.Ingest.ProcessDate); err != nil {
			return fmt.Errorf("ingest.process_date '%s' is invalid: %w", cfg.Ingest.ProcessDate, err)
		}
	}

	if cfg.Output.DataDir == "" {
		return fmt.Errorf("output.data_dir is required")
	}
	switch cfg.Output.Schema {
	case "basic", "extended":
	default:
		return fmt.Errorf("output.schema '%s' is invalid, expected 'basic' or 'extended'", cfg.Output.Schema)
	}

	if cfg.Universe.Enabled {
		if cfg.Output.UniverseDir == "" {
			return fmt.Errorf("output.universe_dir is required when the universe is enabled")
		}
		if cfg.Universe.ListingsFile == "" {
			return fmt.Errorf("universe.listings_file is required when the universe is enabled")
		}
		if cfg.Universe.MinListingDate != "" {
			if _, err := time.Parse("2006-01-02", cfg.Universe.MinListingDate); err != nil {
				return fmt.Errorf("universe.min_listing_date '%s' is invalid: %w", cfg.Universe.MinListingDate, err)
			}
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

// ProcessDate returns the configured processing date, defaulting to the
// current UTC day. Validation guarantees the configured value parses.
func (c *Config) ProcessDate() time.Time {
	if c.Ingest.ProcessDate == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	d, _ := time.Parse("2006-01-02", c.Ingest.ProcessDate)
	return d
}

// MinListingDate returns the universe viability floor. Securities whose
// resolved listing date predates the floor are considered unmappable.
func (c *Config) MinListingDate() time.Time {
	if c.Universe.MinListingDate == "" {
		return time.Date(1998, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	d, _ := time.Parse("2006-01-02", c.Universe.MinListingDate)
	return d
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
