// Package config loads the service configuration
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"recipe-gen/generation"
)

// Config is the root configuration
type Config struct {
	App    AppConfig    `yaml:"app" mapstructure:"app"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Model  ModelConfig  `yaml:"model" mapstructure:"model"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// AppConfig holds application identity
type AppConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	Env  string `yaml:"env" mapstructure:"env"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ModelConfig locates the checkpoint and picks the backend
type ModelConfig struct {
	Dir            string            `yaml:"dir" mapstructure:"dir"`
	Backend        string            `yaml:"backend" mapstructure:"backend"`
	Device         string            `yaml:"device" mapstructure:"device"`
	MaxModelLen    int               `yaml:"max_model_len" mapstructure:"max_model_len"`
	NumThreads     int               `yaml:"num_threads" mapstructure:"num_threads"`
	ServerURL      string            `yaml:"server_url" mapstructure:"server_url"`
	RequestTimeout time.Duration     `yaml:"request_timeout" mapstructure:"request_timeout"`
	Seed           int64             `yaml:"seed" mapstructure:"seed"`
	ONNXLibrary    string            `yaml:"onnx_library" mapstructure:"onnx_library"`
	Preload        bool              `yaml:"preload" mapstructure:"preload"`
	PrefixCache    PrefixCacheConfig `yaml:"prefix_cache" mapstructure:"prefix_cache"`
}

// PrefixCacheConfig bounds the prompt prefix KV cache of the tensor backend
type PrefixCacheConfig struct {
	BlockSize int           `yaml:"block_size" mapstructure:"block_size"`
	Blocks    int           `yaml:"blocks" mapstructure:"blocks"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// LogConfig configures zap
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Generation converts the model section into a generation.Config
func (c *Config) Generation() (*generation.Config, error) {
	backend, err := generation.ParseBackend(c.Model.Backend)
	if err != nil {
		return nil, err
	}
	device, err := generation.ParseDevicePreference(c.Model.Device)
	if err != nil {
		return nil, err
	}

	gc := generation.NewConfig(c.Model.Dir,
		generation.WithBackend(backend),
		generation.WithDevice(device),
		generation.WithMaxModelLen(c.Model.MaxModelLen),
		generation.WithNumThreads(c.Model.NumThreads),
		generation.WithServerURL(c.Model.ServerURL),
		generation.WithRequestTimeout(c.Model.RequestTimeout),
		generation.WithSeed(c.Model.Seed),
		generation.WithONNXLibrary(c.Model.ONNXLibrary),
		generation.WithPrefixCache(c.Model.PrefixCache.BlockSize, c.Model.PrefixCache.Blocks, c.Model.PrefixCache.TTL),
	)
	if err := gc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model config: %w", err)
	}
	return gc, nil
}
