package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "config.toml"

// Config holds the miner parameters shared by the supervisor and every device
// worker. It is read once per process and never written afterwards.
// Zero values mean "unspecified" and are replaced by ApplyDefaults, except for
// reload_interval and sleep_duration: Load seeds those before decoding, so an
// explicit 0 in the file is kept.
type Config struct {
	BaseURL        string  `json:"base_url" yaml:"base_url" toml:"base_url" validate:"required,url"`
	SignalURL      string  `json:"signal_url" yaml:"signal_url" toml:"signal_url" validate:"required,url"`
	ReloadInterval float64 `json:"reload_interval" yaml:"reload_interval" toml:"reload_interval" validate:"gte=0"`
	SleepDuration  float64 `json:"sleep_duration" yaml:"sleep_duration" toml:"sleep_duration" validate:"gte=0"`
	MinDeadline    int     `json:"min_deadline" yaml:"min_deadline" toml:"min_deadline" validate:"gte=0"`
	NumCUDADevices int     `json:"num_cuda_devices" yaml:"num_cuda_devices" toml:"num_cuda_devices" validate:"gte=1"`
	ExcludeSDXL    bool    `json:"exclude_sdxl" yaml:"exclude_sdxl" toml:"exclude_sdxl"`
	Version        string  `json:"version" yaml:"version" toml:"version" validate:"required"`

	ModelsDir       string  `json:"models_dir" yaml:"models_dir" toml:"models_dir" validate:"required"`
	DefaultModel    string  `json:"default_model" yaml:"default_model" toml:"default_model"`
	CatalogURL      string  `json:"catalog_url" yaml:"catalog_url" toml:"catalog_url" validate:"omitempty,url"`
	CatalogInterval float64 `json:"catalog_interval" yaml:"catalog_interval" toml:"catalog_interval" validate:"gte=0"`
	RequestTimeout  float64 `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout" validate:"gte=0"`
	MaxRetries      int     `json:"max_retries" yaml:"max_retries" toml:"max_retries" validate:"gte=0"`
	MinComputeCap   float64 `json:"min_compute_capability" yaml:"min_compute_capability" toml:"min_compute_capability" validate:"gte=0"`

	LogLevel    string   `json:"log_level" yaml:"log_level" toml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat   string   `json:"log_format" yaml:"log_format" toml:"log_format" validate:"omitempty,oneof=console json"`
	StatusPort  int      `json:"status_port" yaml:"status_port" toml:"status_port" validate:"gte=0,lte=65535"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`

	Runtime      string   `json:"runtime" yaml:"runtime" toml:"runtime" validate:"omitempty,oneof=llama subprocess"`
	LlamaBin     string   `json:"llama_bin" yaml:"llama_bin" toml:"llama_bin"`
	LlamaCtx     int      `json:"llama_ctx" yaml:"llama_ctx" toml:"llama_ctx" validate:"gte=0"`
	LlamaThreads int      `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads" validate:"gte=0"`
	LlamaNGL     int      `json:"llama_ngl" yaml:"llama_ngl" toml:"llama_ngl" validate:"gte=0"`
	LlamaArgs    []string `json:"llama_args" yaml:"llama_args" toml:"llama_args"`
}

// Defaults applied when corresponding Config fields are unset.
const (
	defaultReloadInterval  = 600
	defaultSleepDuration   = 2
	defaultCatalogInterval = 3600
	defaultRequestTimeout  = 30
	defaultMaxRetries      = 3
	defaultModelsDir       = "~/.sdminer/models"
	defaultRuntime         = "subprocess"
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Config{ReloadInterval: defaultReloadInterval, SleepDuration: defaultSleepDuration}
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// LoadAndValidate loads path, fills defaults and validates the result.
func LoadAndValidate(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields in place. ReloadInterval and SleepDuration
// are left alone; 0 is a valid setting for both.
func (c *Config) ApplyDefaults() {
	if c.CatalogInterval == 0 {
		c.CatalogInterval = defaultCatalogInterval
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.ModelsDir == "" {
		c.ModelsDir = defaultModelsDir
	}
	if c.Runtime == "" {
		c.Runtime = defaultRuntime
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	if c.CatalogURL == "" && c.BaseURL != "" {
		c.CatalogURL = strings.TrimRight(c.BaseURL, "/") + "/models"
	}
}

// ReloadEvery is the minimum spacing between reload signal checks.
func (c Config) ReloadEvery() time.Duration { return seconds(c.ReloadInterval) }

// SleepFor is the idle back-off between polls that returned no job.
func (c Config) SleepFor() time.Duration { return seconds(c.SleepDuration) }

// CatalogEvery is the model catalog refresh period.
func (c Config) CatalogEvery() time.Duration { return seconds(c.CatalogInterval) }

// Timeout is the per-request HTTP timeout towards the coordinator.
func (c Config) Timeout() time.Duration { return seconds(c.RequestTimeout) }

func seconds(v float64) time.Duration { return time.Duration(v * float64(time.Second)) }
