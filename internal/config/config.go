package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for the server and dataset tools.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Model    ModelConfig    `yaml:"model"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Split    SplitConfig    `yaml:"split"`
	Download DownloadConfig `yaml:"download"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port           string `yaml:"port"`
	UploadDir      string `yaml:"upload_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	ReadTimeout    string `yaml:"read_timeout"`
	WriteTimeout   string `yaml:"write_timeout"`
}

// ModelConfig points at the exported classifier and the runtime library.
type ModelConfig struct {
	Path              string  `yaml:"path"`
	MetadataPath      string  `yaml:"metadata_path"`
	SharedLibraryPath string  `yaml:"shared_library_path"`
	Threshold         float32 `yaml:"threshold"`
}

// DatasetConfig describes the on-disk corpus layout.
type DatasetConfig struct {
	RealDir   string `yaml:"real_dir"`
	FakeDir   string `yaml:"fake_dir"`
	OutputDir string `yaml:"output_dir"`
}

// SplitConfig configures the stratified splitter.
type SplitConfig struct {
	RandomSeed         int64 `yaml:"random_seed"`
	SeedSize           int   `yaml:"seed_size"`
	ValidationSize     int   `yaml:"validation_size"`
	NumQuartiles       int   `yaml:"num_quartiles"`
	ExpectedFakeImages int   `yaml:"expected_fake_images"`
	StrictQuartiles    bool  `yaml:"strict_quartiles"`
	Staged             bool  `yaml:"staged"`
	ProgressEvery      int   `yaml:"progress_every"`
}

// DownloadConfig configures the synthetic face downloader.
type DownloadConfig struct {
	URL         string `yaml:"url"`
	Timeout     string `yaml:"timeout"`
	MaxAttempts int    `yaml:"max_attempts"`
	Backoff     string `yaml:"backoff"`
	RateDelay   string `yaml:"rate_delay"`
	UserAgent   string `yaml:"user_agent"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8000",
			UploadDir:      "uploads",
			MaxUploadBytes: 50 << 20,
			ReadTimeout:    "30s",
			WriteTimeout:   "60s",
		},
		Model: ModelConfig{
			Path:         filepath.Join("models", "trained_models", "baseline_best.onnx"),
			MetadataPath: filepath.Join("models", "trained_models", "baseline_best.json"),
			Threshold:    0.5,
		},
		Dataset: DatasetConfig{
			RealDir:   filepath.Join("data", "raw", "real"),
			FakeDir:   filepath.Join("data", "raw", "fake"),
			OutputDir: "data",
		},
		Split: SplitConfig{
			RandomSeed:         42,
			SeedSize:           8050,
			ValidationSize:     700,
			NumQuartiles:       4,
			ExpectedFakeImages: 80001,
			ProgressEvery:      1000,
		},
		Download: DownloadConfig{
			URL:         "https://thispersondoesnotexist.com/image",
			Timeout:     "10s",
			MaxAttempts: 10,
			Backoff:     "1s",
			RateDelay:   "150ms",
			UserAgent:   "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.114 Safari/537.36",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config from path on top of the defaults and applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		c.Server.UploadDir = v
	}
	if v := os.Getenv("MODEL_PATH"); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv("MODEL_METADATA_PATH"); v != "" {
		c.Model.MetadataPath = v
	}
	if v := os.Getenv("ONNXRUNTIME_LIB"); v != "" {
		c.Model.SharedLibraryPath = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Dataset.RealDir = filepath.Join(v, "raw", "real")
		c.Dataset.FakeDir = filepath.Join(v, "raw", "fake")
		c.Dataset.OutputDir = v
	}
	if v := os.Getenv("SPLIT_RANDOM_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SPLIT_RANDOM_SEED must be an integer: %w", err)
		}
		c.Split.RandomSeed = seed
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	if c.Model.Threshold <= 0 || c.Model.Threshold >= 1 {
		return fmt.Errorf("model.threshold must be in (0, 1), got %v", c.Model.Threshold)
	}
	if c.Split.NumQuartiles < 1 {
		return fmt.Errorf("split.num_quartiles must be at least 1")
	}
	if c.Split.SeedSize < 0 || c.Split.ValidationSize < 0 {
		return fmt.Errorf("split sizes must not be negative")
	}
	if c.Download.MaxAttempts < 1 {
		return fmt.Errorf("download.max_attempts must be at least 1")
	}
	for name, v := range map[string]string{
		"server.read_timeout":  c.Server.ReadTimeout,
		"server.write_timeout": c.Server.WriteTimeout,
		"download.timeout":     c.Download.Timeout,
		"download.backoff":     c.Download.Backoff,
		"download.rate_delay":  c.Download.RateDelay,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Duration parses a duration field that Validate already accepted.
func Duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
