// Package config loads the service and tooling configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/xihe/internal/core/anchor"
	"github.com/zeusync/xihe/internal/core/cubemap"
	"github.com/zeusync/xihe/internal/core/observability/log"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// CoefficientCount is the length of a degree 2 RGB coefficient vector.
const CoefficientCount = 27

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Anchors   AnchorsConfig   `yaml:"anchors"`
	Cubemap   CubemapConfig   `yaml:"cubemap"`
	Inference InferenceConfig `yaml:"inference"`
	Labels    LabelsConfig    `yaml:"labels"`
	Dump      DumpConfig      `yaml:"dump"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxPayloadBytes int64         `yaml:"max_payload_bytes"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type AnchorsConfig struct {
	Prewarm []int `yaml:"prewarm"`
}

type CubemapConfig struct {
	Resolution int `yaml:"resolution"`
	CacheSize  int `yaml:"cache_size"`
}

// InferenceConfig holds the optional output denormalization (p - min) / scale.
type InferenceConfig struct {
	Min   []float32 `yaml:"min,omitempty"`
	Scale []float32 `yaml:"scale,omitempty"`
}

type LabelsConfig struct {
	Workers    int    `yaml:"workers"`
	Downsample int    `yaml:"downsample"`
	Flip       bool   `yaml:"flip"`
	OutputDir  string `yaml:"output_dir"`
}

type DumpConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      "127.0.0.1:8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxPayloadBytes: 8 * 1024 * 1024, // 8MB
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
		Anchors: AnchorsConfig{
			Prewarm: append([]int(nil), anchor.DefaultSizes...),
		},
		Cubemap: CubemapConfig{
			Resolution: cubemap.DefaultResolution,
			CacheSize:  cubemap.DefaultCacheSize,
		},
		Labels: LabelsConfig{
			Workers:    4,
			Downsample: 4,
			Flip:       true,
			OutputDir:  "./dist/labels",
		},
		Dump: DumpConfig{
			Dir: "./dist/xihe_service",
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads YAML from r over the defaults and validates the result.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
	}

	if c.Server.ListenAddr == "" {
		return invalid("server.listen_addr is empty")
	}
	if c.Server.MaxPayloadBytes <= 0 {
		return invalid("server.max_payload_bytes must be positive")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}
	if c.Log.Encoding != "console" && c.Log.Encoding != "json" {
		return invalid("log.encoding %q", c.Log.Encoding)
	}
	for _, n := range c.Anchors.Prewarm {
		if n <= 0 {
			return invalid("anchors.prewarm contains %d", n)
		}
	}
	if c.Cubemap.Resolution < 2 {
		return invalid("cubemap.resolution %d < 2", c.Cubemap.Resolution)
	}
	if c.Cubemap.CacheSize < 1 {
		return invalid("cubemap.cache_size %d < 1", c.Cubemap.CacheSize)
	}
	if len(c.Inference.Min) != len(c.Inference.Scale) {
		return invalid("inference.min has %d values, inference.scale %d", len(c.Inference.Min), len(c.Inference.Scale))
	}
	if n := len(c.Inference.Scale); n != 0 && n != CoefficientCount {
		return invalid("inference normalizer needs %d values, got %d", CoefficientCount, n)
	}
	for i, s := range c.Inference.Scale {
		if s == 0 {
			return invalid("inference.scale[%d] is zero", i)
		}
	}
	if c.Labels.Workers < 1 {
		return invalid("labels.workers %d < 1", c.Labels.Workers)
	}
	if c.Labels.Downsample < 1 {
		return invalid("labels.downsample %d < 1", c.Labels.Downsample)
	}
	if c.Dump.Dir == "" {
		return invalid("dump.dir is empty")
	}
	return nil
}

// Provide loads path, or returns the defaults when path is empty.
func Provide(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}
