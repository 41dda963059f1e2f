package gpt2

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the subset of a Hugging Face GPT-2 config.json the forward pass needs
type Config struct {
	ModelType    string   `json:"model_type"`
	Architecture []string `json:"architectures"`
	VocabSize    int      `json:"vocab_size"`
	NPositions   int      `json:"n_positions"`
	NEmbd        int      `json:"n_embd"`
	NLayer       int      `json:"n_layer"`
	NHead        int      `json:"n_head"`
	NInner       *int     `json:"n_inner"`
	LayerNormEps float32  `json:"layer_norm_epsilon"`
	BOSTokenID   int      `json:"bos_token_id"`
	EOSTokenID   int      `json:"eos_token_id"`
}

// DefaultConfig returns GPT-2 small
func DefaultConfig() *Config {
	return &Config{
		ModelType:    "gpt2",
		VocabSize:    50257,
		NPositions:   1024,
		NEmbd:        768,
		NLayer:       12,
		NHead:        12,
		LayerNormEps: 1e-5,
		BOSTokenID:   50256,
		EOSTokenID:   50256,
	}
}

// LoadConfig reads config.json from a checkpoint directory
func LoadConfig(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read config.json: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config.json: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the config describes a GPT-2 model this package can run
func (c *Config) Validate() error {
	if c.ModelType != "" && c.ModelType != "gpt2" {
		return fmt.Errorf("unsupported model_type %q (want gpt2)", c.ModelType)
	}
	if c.NEmbd <= 0 || c.NHead <= 0 || c.NLayer <= 0 || c.VocabSize <= 0 || c.NPositions <= 0 {
		return fmt.Errorf("config.json has non-positive dimensions")
	}
	if c.NEmbd%c.NHead != 0 {
		return fmt.Errorf("n_embd %d is not divisible by n_head %d", c.NEmbd, c.NHead)
	}
	return nil
}

// HeadDim returns the per-head dimension
func (c *Config) HeadDim() int {
	return c.NEmbd / c.NHead
}

// InnerDim returns the MLP hidden size
func (c *Config) InnerDim() int {
	if c.NInner != nil && *c.NInner > 0 {
		return *c.NInner
	}
	return 4 * c.NEmbd
}
