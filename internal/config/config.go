package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/escalate-go/internal/features"
	"github.com/raphaelgruber/escalate-go/internal/ml"
	"github.com/raphaelgruber/escalate-go/internal/tracing"
	"github.com/raphaelgruber/escalate-go/internal/trainer"
)

// Store backends.
const (
	StoreS3    = "s3"
	StoreMinIO = "minio"
	StoreLocal = "local"
)

// MinIO holds the native MinIO client settings. The bucket is shared with
// the s3 backend.
type MinIO struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"-"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Split holds the train/validation split settings.
type Split struct {
	TestFraction float64 `yaml:"test_fraction"`
	Seed         uint64  `yaml:"seed"`
	Stratify     bool    `yaml:"stratify"`
}

// Options converts the settings to features.SplitOptions.
func (s Split) Options() features.SplitOptions {
	return features.SplitOptions{TestFraction: s.TestFraction, Seed: s.Seed, Stratify: s.Stratify}
}

// Config holds all configuration values.
type Config struct {
	// Object store
	Store      string `yaml:"store"`
	Bucket     string `yaml:"bucket"`
	S3Endpoint string `yaml:"s3_endpoint"`
	Region     string `yaml:"region"`
	StoreDir   string `yaml:"store_dir"`
	MinIO      MinIO  `yaml:"minio"`

	// Local working directory for raw tables and partitions
	DataDir string `yaml:"data_dir"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`

	// Prometheus textfile written after each command; empty disables it
	MetricsFile string `yaml:"metrics_file"`

	Tracing tracing.Config `yaml:"tracing"`

	Split   Split           `yaml:"split"`
	Trainer trainer.Options `yaml:"trainer"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Store:    StoreS3,
		Bucket:   "escalation-poc",
		Region:   "us-east-1",
		StoreDir: "escalations/store",
		DataDir:  "escalations/data",
		LogFile:  "/tmp/escalate.log",
		LogLevel: slog.LevelInfo,
		Split: Split{
			TestFraction: features.DefaultSplitOptions().TestFraction,
			Seed:         features.DefaultSplitOptions().Seed,
		},
		Trainer: trainer.DefaultOptions(),
		Tracing: tracing.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by ESCALATE_CONFIG, and environment variables, in increasing precedence.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("ESCALATE_CONFIG"); path != "" {
		if err := LoadFile(&cfg, path); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var overlay struct {
		Config   `yaml:",inline"`
		LogLevel string `yaml:"log_level"`
	}
	overlay.Config = *cfg
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	*cfg = overlay.Config
	if overlay.LogLevel != "" {
		cfg.LogLevel = parseLogLevel(overlay.LogLevel)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Store = getEnv("ESCALATE_STORE", cfg.Store)
	cfg.Bucket = getEnv("ESCALATE_BUCKET", cfg.Bucket)
	cfg.S3Endpoint = getEnv("ESCALATE_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.Region = getEnv("AWS_REGION", cfg.Region)
	cfg.StoreDir = getEnv("ESCALATE_STORE_DIR", cfg.StoreDir)
	cfg.DataDir = getEnv("ESCALATE_DATA_DIR", cfg.DataDir)
	cfg.LogFile = getEnv("ESCALATE_LOG_FILE", cfg.LogFile)
	if v := os.Getenv("ESCALATE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	cfg.MetricsFile = getEnv("ESCALATE_METRICS_FILE", cfg.MetricsFile)
	cfg.MinIO.Endpoint = getEnv("ESCALATE_MINIO_ENDPOINT", cfg.MinIO.Endpoint)
	cfg.MinIO.AccessKey = getEnv("ESCALATE_MINIO_ACCESS_KEY", cfg.MinIO.AccessKey)
	cfg.MinIO.SecretKey = getEnv("ESCALATE_MINIO_SECRET_KEY", cfg.MinIO.SecretKey)
	cfg.Tracing.Exporter = getEnv("ESCALATE_TRACE_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.Protocol = getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", cfg.Tracing.Protocol)
	cfg.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Trainer.Resample = ml.ResampleStrategy(getEnv("ESCALATE_RESAMPLE", string(cfg.Trainer.Resample)))

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	collect(getEnvBool("ESCALATE_SCALE", &cfg.Trainer.Scale))
	collect(getEnvInt("ESCALATE_SELECT_K", &cfg.Trainer.SelectK))
	collect(getEnvInt("ESCALATE_CV_FOLDS", &cfg.Trainer.CVFolds))
	collect(getEnvInt("ESCALATE_TREES", &cfg.Trainer.Trees))
	collect(getEnvBool("ESCALATE_STRATIFY", &cfg.Split.Stratify))
	collect(getEnvBool("ESCALATE_MINIO_USE_SSL", &cfg.MinIO.UseSSL))
	collect(getEnvBool("ESCALATE_TRACE_INSECURE", &cfg.Tracing.Insecure))
	if v := os.Getenv("ESCALATE_TRACE_SAMPLE_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			collect(fmt.Errorf("ESCALATE_TRACE_SAMPLE_RATE: %w", err))
		} else {
			cfg.Tracing.SampleRate = rate
		}
	}
	if v := os.Getenv("ESCALATE_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			collect(fmt.Errorf("ESCALATE_SEED: %w", err))
		} else {
			cfg.Trainer.Seed = seed
			cfg.Split.Seed = seed
		}
	}
	return errors.Join(errs...)
}

// Validate checks values that would otherwise fail deep inside a stage.
func (c Config) Validate() error {
	switch c.Store {
	case StoreS3:
		if c.Bucket == "" {
			return errors.New("bucket required for s3 store")
		}
	case StoreMinIO:
		if c.Bucket == "" {
			return errors.New("bucket required for minio store")
		}
		if c.MinIO.Endpoint == "" {
			return errors.New("minio endpoint required for minio store")
		}
	case StoreLocal:
		if c.StoreDir == "" {
			return errors.New("store directory required for local store")
		}
	default:
		return fmt.Errorf("unknown store %q (want %s, %s or %s)", c.Store, StoreS3, StoreMinIO, StoreLocal)
	}
	if c.Split.TestFraction < 0 || c.Split.TestFraction >= 1 {
		return fmt.Errorf("test fraction %v outside [0, 1)", c.Split.TestFraction)
	}
	if err := c.Trainer.Validate(); err != nil {
		return fmt.Errorf("trainer: %w", err)
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, dst *int) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func getEnvBool(key string, dst *bool) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
