package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"recipe-gen/generation"
	"recipe-gen/metrics"
	"recipe-gen/recipe"
)

// Result is one cleaned generation
type Result struct {
	Prompt   string
	Recipe   string
	Sections recipe.Sections
	Elapsed  time.Duration
}

// RecipeService runs validation, prompting, generation and cleanup for a
// single request
type RecipeService struct {
	loader *generation.Loader
	log    *zap.Logger
}

// NewRecipeService creates a service over loader
func NewRecipeService(loader *generation.Loader, log *zap.Logger) *RecipeService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RecipeService{loader: loader, log: log}
}

// Generate validates req, then generates and cleans a recipe. Errors match
// recipe.ErrEmptyInput, recipe.ErrUnknownMode,
// generation.ErrModelUnavailable or generation.ErrGenerationFailed, or are
// the context's error.
func (s *RecipeService) Generate(ctx context.Context, req recipe.Request) (res *Result, err error) {
	start := time.Now()
	defer func() {
		metrics.GenerationsTotal.WithLabelValues(string(req.Mode), outcome(err)).Inc()
		if err == nil {
			metrics.GenerationDuration.WithLabelValues(string(req.Mode)).Observe(time.Since(start).Seconds())
		}
	}()

	prompt, err := req.Prompt()
	if err != nil {
		return nil, err
	}

	p, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	outputs, err := p.Generator.Generate(ctx, prompt, p.SamplingParams())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, generation.ErrGenerationFailed) {
			err = fmt.Errorf("%w: %w", generation.ErrGenerationFailed, err)
		}
		s.log.Error("Recipe generation failed", zap.String("mode", string(req.Mode)), zap.Error(err))
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: generator returned no sequences", generation.ErrGenerationFailed)
	}

	cleaned := recipe.CleanOutput(outputs[0].GeneratedText, req.Mode)
	res = &Result{
		Prompt:   prompt,
		Recipe:   cleaned,
		Sections: recipe.ParseSections(cleaned),
		Elapsed:  time.Since(start),
	}

	s.log.Info("Recipe generated",
		zap.String("mode", string(req.Mode)),
		zap.Int("chars", len(cleaned)),
		zap.String("finish_reason", string(outputs[0].FinishReason)),
		zap.Duration("elapsed", res.Elapsed))

	return res, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, recipe.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, recipe.ErrUnknownMode):
		return "unknown_mode"
	case errors.Is(err, generation.ErrModelUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "failed"
	}
}
