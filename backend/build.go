package backend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"recipe-gen/backend/gpt2"
	"recipe-gen/generation"
)

// Build is the generation.BuildFunc for all backends
func Build(ctx context.Context, cfg *generation.Config, log *zap.Logger) (*generation.Pipeline, error) {
	return BuildWith()(ctx, cfg, log)
}

// BuildWith returns a BuildFunc that passes extra options to local engines
func BuildWith(opts ...generation.EngineOption) generation.BuildFunc {
	return func(ctx context.Context, cfg *generation.Config, log *zap.Logger) (*generation.Pipeline, error) {
		if log == nil {
			log = zap.NewNop()
		}

		ckpt, err := InspectCheckpoint(cfg.ModelDir, cfg.Backend)
		if err != nil {
			return nil, err
		}

		tok, err := NewTokenizer(cfg.ModelDir, log)
		if err != nil {
			return nil, err
		}
		for _, missing := range MissingSpecialTokens(tok) {
			log.Warn("Special token is not a single vocabulary entry", zap.String("token", missing))
		}

		p := &generation.Pipeline{
			Tokenizer:  tok,
			Backend:    cfg.Backend,
			Checkpoint: ckpt,
			Device:     generation.DeviceCPU,
		}

		engineOpts := func(positions int) []generation.EngineOption {
			return append([]generation.EngineOption{
				generation.WithSampler(generation.NewSampler(cfg.Seed)),
				generation.WithEngineMaxModelLen(min(cfg.MaxModelLen, positions)),
			}, opts...)
		}

		switch cfg.Backend {
		case generation.BackendTensor:
			runner, device, positions, err := buildTensor(cfg, ckpt, tok, log)
			if err != nil {
				closeTokenizer(tok)
				return nil, err
			}
			p.Device = device
			p.Generator = withCloser(generation.NewEngine(runner, tok, engineOpts(positions)...), tok)

		case generation.BackendONNX:
			runner, device, positions, err := buildONNX(cfg, ckpt, tok)
			if err != nil {
				closeTokenizer(tok)
				return nil, err
			}
			p.Device = device
			p.Generator = withCloser(generation.NewEngine(runner, tok, engineOpts(positions)...), tok)

		case generation.BackendHTTP:
			// the server picks its own device
			p.Generator = withCloser(NewHTTPGenerator(cfg.ServerURL, cfg.RequestTimeout), tok)

		default:
			closeTokenizer(tok)
			return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
		}

		return p, nil
	}
}

// buildTensor also returns the model's position limit
func buildTensor(cfg *generation.Config, ckpt generation.Checkpoint, tok Tokenizer, log *zap.Logger) (*TensorRunner, generation.Device, int, error) {
	device, err := generation.SelectDevice(cfg.Device, nil)
	if err != nil {
		return nil, device, 0, fmt.Errorf("tensor backend: %w", err)
	}

	modelCfg, err := gpt2.LoadConfig(cfg.ModelDir)
	if err != nil {
		return nil, device, 0, err
	}
	if err := checkVocab(tok, modelCfg.VocabSize); err != nil {
		return nil, device, 0, err
	}

	model, err := gpt2.LoadModel(ckpt.WeightsFile, modelCfg)
	if err != nil {
		return nil, device, 0, fmt.Errorf("failed to load %s: %w", ckpt.WeightsFile, err)
	}
	log.Debug("GPT-2 weights loaded",
		zap.Int("params", model.NumParams()),
		zap.Int("layers", modelCfg.NLayer),
		zap.Int("vocab_size", modelCfg.VocabSize))

	var prefix *gpt2.PrefixCache
	if cfg.PrefixCacheBlocks > 0 {
		prefix = gpt2.NewPrefixCache(cfg.PrefixBlockSize, cfg.PrefixCacheBlocks, cfg.PrefixCacheTTL)
	}

	return NewTensorRunner(model, prefix), device, modelCfg.NPositions, nil
}

func buildONNX(cfg *generation.Config, ckpt generation.Checkpoint, tok Tokenizer) (*ONNXRunner, generation.Device, int, error) {
	if err := InitONNXRuntime(cfg.ONNXLibraryPath); err != nil {
		return nil, generation.DeviceCPU, 0, err
	}

	device, err := generation.SelectDevice(cfg.Device, ONNXCUDAAvailable)
	if err != nil {
		return nil, device, 0, err
	}

	modelCfg, err := gpt2.LoadConfig(cfg.ModelDir)
	if err != nil {
		return nil, device, 0, err
	}
	if err := checkVocab(tok, modelCfg.VocabSize); err != nil {
		return nil, device, 0, err
	}

	runner, err := NewONNXRunner(ckpt.WeightsFile, modelCfg.VocabSize, device, cfg.NumThreads)
	if err != nil {
		return nil, device, 0, err
	}
	return runner, device, modelCfg.NPositions, nil
}

// checkVocab rejects tokenizers that can emit IDs the model has no row for
func checkVocab(tok Tokenizer, modelVocab int) error {
	if tok.VocabSize() > modelVocab {
		return fmt.Errorf("incompatible vocabulary: tokenizer has %d tokens, model has %d", tok.VocabSize(), modelVocab)
	}
	return nil
}

type closer interface{ Close() error }

func closeTokenizer(tok Tokenizer) {
	if c, ok := tok.(closer); ok {
		c.Close()
	}
}

// closingGenerator also closes the tokenizer when the generator is closed
type closingGenerator struct {
	generation.Generator
	tok Tokenizer
}

func withCloser(g generation.Generator, tok Tokenizer) generation.Generator {
	if _, ok := tok.(closer); !ok {
		return g
	}
	return closingGenerator{Generator: g, tok: tok}
}

func (c closingGenerator) Close() error {
	return errors.Join(c.Generator.Close(), c.tok.(closer).Close())
}
