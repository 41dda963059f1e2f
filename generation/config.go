package generation

import (
	"fmt"
	"strings"
	"time"
)

// Backend names the inference backend used to serve generations
type Backend string

const (
	BackendTensor Backend = "tensor" // pure-Go GPT-2 over model.safetensors
	BackendONNX   Backend = "onnx"   // ONNX Runtime over model.onnx
	BackendHTTP   Backend = "http"   // remote text-generation server
)

// ParseBackend maps a configuration value onto a Backend
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendTensor, BackendONNX, BackendHTTP:
		return b, nil
	case "":
		return BackendTensor, nil
	}
	return "", fmt.Errorf("unknown backend %q (want tensor, onnx or http)", s)
}

// Config holds the configuration for loading and running the recipe model
type Config struct {
	ModelDir       string
	Backend        Backend
	Device         DevicePreference
	MaxModelLen    int
	NumThreads     int
	ServerURL      string
	RequestTimeout time.Duration
	Seed           int64

	// Path to the onnxruntime shared library; empty uses the platform default
	ONNXLibraryPath string

	// Prefix KV caching for the tensor backend
	PrefixBlockSize   int
	PrefixCacheBlocks int
	PrefixCacheTTL    time.Duration
}

// ConfigOption is a functional option for Config
type ConfigOption func(*Config)

// NewConfig creates a new Config with default values
func NewConfig(modelDir string, opts ...ConfigOption) *Config {
	c := &Config{
		ModelDir:          modelDir,
		Backend:           BackendTensor,
		Device:            DeviceAuto,
		MaxModelLen:       1024,
		NumThreads:        4,
		RequestTimeout:    5 * time.Minute,
		PrefixBlockSize:   8,
		PrefixCacheBlocks: 256,
		PrefixCacheTTL:    30 * time.Minute,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Validate checks if the configuration is usable. It does not touch the
// filesystem; missing checkpoints are reported by the loader.
func (c *Config) Validate() error {
	if c.ModelDir == "" {
		return fmt.Errorf("model directory is not set")
	}

	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return err
	}

	if _, err := ParseDevicePreference(string(c.Device)); err != nil {
		return err
	}

	if c.Backend == BackendHTTP && c.ServerURL == "" {
		return fmt.Errorf("http backend requires a server url")
	}

	if c.MaxModelLen < 1 {
		return fmt.Errorf("max_model_len must be positive")
	}

	if c.PrefixBlockSize < 1 {
		return fmt.Errorf("prefix_block_size must be positive")
	}

	return nil
}

// WithBackend sets the inference backend
func WithBackend(b Backend) ConfigOption {
	return func(c *Config) {
		c.Backend = b
	}
}

// WithDevice sets the device preference
func WithDevice(d DevicePreference) ConfigOption {
	return func(c *Config) {
		c.Device = d
	}
}

// WithMaxModelLen sets the maximum number of positions (prompt + completion)
func WithMaxModelLen(n int) ConfigOption {
	return func(c *Config) {
		c.MaxModelLen = n
	}
}

// WithNumThreads sets the intra-op thread count for the ONNX backend
func WithNumThreads(n int) ConfigOption {
	return func(c *Config) {
		c.NumThreads = n
	}
}

// WithServerURL sets the remote text-generation server for the http backend
func WithServerURL(url string) ConfigOption {
	return func(c *Config) {
		c.ServerURL = strings.TrimRight(url, "/")
	}
}

// WithRequestTimeout bounds a single remote generation call
func WithRequestTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// WithSeed fixes the sampler seed. Zero seeds from the clock.
func WithSeed(seed int64) ConfigOption {
	return func(c *Config) {
		c.Seed = seed
	}
}

// WithONNXLibrary sets the onnxruntime shared library path
func WithONNXLibrary(path string) ConfigOption {
	return func(c *Config) {
		c.ONNXLibraryPath = path
	}
}

// WithPrefixCache configures prefix KV caching for the tensor backend.
// A zero block count disables it.
func WithPrefixCache(blockSize, blocks int, ttl time.Duration) ConfigOption {
	return func(c *Config) {
		c.PrefixBlockSize = blockSize
		c.PrefixCacheBlocks = blocks
		c.PrefixCacheTTL = ttl
	}
}
