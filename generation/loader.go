package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"recipe-gen/metrics"
)

// ErrModelUnavailable is returned when the checkpoint could not be loaded.
// Callers must refuse to generate rather than retry the load.
var ErrModelUnavailable = errors.New("model is not loaded")

// Checkpoint describes the model files a pipeline was built from
type Checkpoint struct {
	Dir         string
	WeightsFile string
	Fingerprint string
}

// Pipeline is a loaded, ready-to-call model. It is never mutated after the
// loader builds it.
type Pipeline struct {
	Generator  Generator
	Tokenizer  Tokenizer
	Device     Device
	Backend    Backend
	Checkpoint Checkpoint
}

// SamplingParams returns the recipe sampling parameters bound to the
// pipeline's EOS and padding tokens
func (p *Pipeline) SamplingParams(opts ...SamplingOption) *SamplingParams {
	return RecipeSamplingParams(p.Tokenizer.EOSTokenID(), p.Tokenizer.PadTokenID(), opts...)
}

// Close releases the generator
func (p *Pipeline) Close() error {
	if p.Generator == nil {
		return nil
	}
	return p.Generator.Close()
}

// BuildFunc constructs a pipeline from configuration
type BuildFunc func(ctx context.Context, cfg *Config, log *zap.Logger) (*Pipeline, error)

// Loader builds the pipeline at most once per process and memoizes the
// outcome, success or failure
type Loader struct {
	cfg   *Config
	build BuildFunc
	log   *zap.Logger

	once     sync.Once
	pipeline *Pipeline
	err      error
}

// NewLoader creates a loader; nothing is loaded until the first Load call
func NewLoader(cfg *Config, build BuildFunc, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{cfg: cfg, build: build, log: log}
}

// Load returns the pipeline, building it on first use. On failure it returns
// a nil pipeline and an error wrapping ErrModelUnavailable; later calls
// return the same result without retrying.
func (l *Loader) Load(ctx context.Context) (*Pipeline, error) {
	l.once.Do(func() {
		l.pipeline, l.err = l.load(context.WithoutCancel(ctx))
	})
	return l.pipeline, l.err
}

// Close releases the pipeline if one was built. A loader that never loaded
// is marked unavailable so later Load calls do not start a build.
func (l *Loader) Close() error {
	l.once.Do(func() {
		l.err = fmt.Errorf("%w: loader closed", ErrModelUnavailable)
	})
	if l.pipeline == nil {
		return nil
	}
	return l.pipeline.Close()
}

func (l *Loader) load(ctx context.Context) (p *Pipeline, err error) {
	start := time.Now()
	dir := l.cfg.ModelDir

	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("panic: %v", r)
		}
		metrics.ModelLoadDuration.Set(time.Since(start).Seconds())
		if err != nil {
			if p != nil {
				if cerr := p.Close(); cerr != nil {
					l.log.Warn("Failed to release partial pipeline", zap.Error(cerr))
				}
			}
			p = nil
			err = fmt.Errorf("%w: error loading model from %s: %w", ErrModelUnavailable, dir, err)
			metrics.ModelLoaded.Set(0)
			l.log.Error("Model load failed", zap.String("model_dir", dir), zap.Error(err))
			return
		}
		metrics.ModelLoaded.Set(1)
		l.log.Info("Model loaded",
			zap.String("model_dir", dir),
			zap.String("backend", string(p.Backend)),
			zap.String("device", p.Device.String()),
			zap.String("fingerprint", p.Checkpoint.Fingerprint),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()

	if err := l.cfg.Validate(); err != nil {
		return nil, err
	}

	p, err = l.build(ctx, l.cfg, l.log)
	if err == nil && p == nil {
		err = errors.New("backend returned no pipeline")
	}
	return p, err
}
