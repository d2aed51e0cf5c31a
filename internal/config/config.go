package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the sentinel service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
	Observer  ObserverConfig  `yaml:"observer"`
	Decider   DeciderConfig   `yaml:"decider"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// StoreConfig locates the authoritative SQLite store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ObserverConfig tunes pattern detection.
type ObserverConfig struct {
	SpikeThreshold  int `yaml:"spikeThreshold"`
	VolumeThreshold int `yaml:"volumeThreshold"`
}

// DeciderConfig tunes the decision policy and locates the remediation
// template pack.
type DeciderConfig struct {
	ConfidenceHigh      float64 `yaml:"confidenceHigh"`
	ConfidenceMedium    float64 `yaml:"confidenceMedium"`
	SignificantSubjects int     `yaml:"significantSubjects"`
	UrgentSubjects      int     `yaml:"urgentSubjects"`
	TemplatesPath       string  `yaml:"templatesPath"`
}

// OracleConfig configures the optional generative-reasoning backend.
type OracleConfig struct {
	Enabled     bool          `yaml:"enabled"`
	BaseURL     string        `yaml:"baseURL"`
	APIKey      string        `yaml:"apiKey"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
	Timeout     time.Duration `yaml:"timeout"`
	DocsDir     string        `yaml:"docsDir"`
}

// SchedulerConfig controls the periodic detection job.
type SchedulerConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batchSize"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SENTINEL_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			GracefulTimeout: 10 * time.Second,
		},
		Store:   StoreConfig{Path: "sentinel.db"},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Observer: ObserverConfig{
			SpikeThreshold:  3,
			VolumeThreshold: 10,
		},
		Decider: DeciderConfig{
			ConfidenceHigh:      0.70,
			ConfidenceMedium:    0.50,
			SignificantSubjects: 3,
			UrgentSubjects:      10,
			TemplatesPath:       "configs/templates/default.yaml",
		},
		Oracle: OracleConfig{
			Enabled:     false,
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
			MaxTokens:   1500,
			Timeout:     15 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:   true,
			Interval:  5 * time.Minute,
			BatchSize: 500,
		},
	}
}

func validate(cfg *Config) error {
	if cfg.Observer.SpikeThreshold < 2 {
		return fmt.Errorf("observer.spikeThreshold must be at least 2, got %d", cfg.Observer.SpikeThreshold)
	}
	if cfg.Decider.ConfidenceMedium > cfg.Decider.ConfidenceHigh {
		return fmt.Errorf("decider.confidenceMedium %.2f exceeds confidenceHigh %.2f",
			cfg.Decider.ConfidenceMedium, cfg.Decider.ConfidenceHigh)
	}
	if cfg.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("scheduler.batchSize must be positive, got %d", cfg.Scheduler.BatchSize)
	}
	if cfg.Oracle.Enabled && cfg.Oracle.Timeout <= 0 {
		return fmt.Errorf("oracle.timeout must be positive when the oracle is enabled")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTINEL_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SENTINEL_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("SENTINEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SENTINEL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("SENTINEL_SPIKE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Observer.SpikeThreshold = n
		}
	}
	if v := os.Getenv("SENTINEL_VOLUME_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Observer.VolumeThreshold = n
		}
	}
	if v := os.Getenv("SENTINEL_TEMPLATES_PATH"); v != "" {
		cfg.Decider.TemplatesPath = v
	}
	if v := os.Getenv("SENTINEL_ORACLE_ENABLED"); v != "" {
		cfg.Oracle.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SENTINEL_ORACLE_BASE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}
	if v := os.Getenv("SENTINEL_ORACLE_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("SENTINEL_ORACLE_MODEL"); v != "" {
		cfg.Oracle.Model = v
	}
	if v := os.Getenv("SENTINEL_ORACLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Oracle.Timeout = d
		}
	}
	if v := os.Getenv("SENTINEL_ORACLE_DOCS_DIR"); v != "" {
		cfg.Oracle.DocsDir = v
	}
	if v := os.Getenv("SENTINEL_SCHEDULER_ENABLED"); v != "" {
		cfg.Scheduler.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SENTINEL_SCHEDULER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scheduler.Interval = d
		}
	}
	if v := os.Getenv("SENTINEL_SCHEDULER_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.BatchSize = n
		}
	}
}
