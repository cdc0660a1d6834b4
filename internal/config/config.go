package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDataDir          = ".flowlab"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultEventBuffer      = 64
	DefaultBatchConcurrency = 4
	DefaultPlotHeight       = 12
	DefaultPlotWidth        = 80
)

type Config struct {
	DataDir          string     `yaml:"data_dir"`
	LogLevel         string     `yaml:"log_level"`
	LogFormat        string     `yaml:"log_format"`
	EventBuffer      int        `yaml:"event_buffer"`
	BatchConcurrency int        `yaml:"batch_concurrency"`
	Plot             PlotConfig `yaml:"plot"`
}

type PlotConfig struct {
	Height int `yaml:"height"`
	Width  int `yaml:"width"`
}

func DefaultConfig() *Config {
	return &Config{
		DataDir:          DefaultDataDir,
		LogLevel:         DefaultLogLevel,
		LogFormat:        DefaultLogFormat,
		EventBuffer:      DefaultEventBuffer,
		BatchConcurrency: DefaultBatchConcurrency,
		Plot: PlotConfig{
			Height: DefaultPlotHeight,
			Width:  DefaultPlotWidth,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.EventBuffer < 1 {
		return fmt.Errorf("event_buffer must be positive, got %d", c.EventBuffer)
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("batch_concurrency must be positive, got %d", c.BatchConcurrency)
	}
	if c.Plot.Height < 1 || c.Plot.Width < 1 {
		return fmt.Errorf("plot size must be positive, got %dx%d", c.Plot.Width, c.Plot.Height)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}
