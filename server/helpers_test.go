package server

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-gen/generation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	params  []*generation.SamplingParams
	reply   func(prompt string) ([]generation.Output, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, params *generation.SamplingParams) ([]generation.Output, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.params = append(g.params, params)
	g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.reply(prompt)
}

func (g *fakeGenerator) Close() error { return nil }

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// echoing appends continuation to the prompt
func echoing(continuation string) *fakeGenerator {
	return &fakeGenerator{reply: func(prompt string) ([]generation.Output, error) {
		return []generation.Output{{GeneratedText: prompt + continuation, FinishReason: generation.FinishEOS}}, nil
	}}
}

type fakeTokenizer struct{}

func (fakeTokenizer) Encode(text string) ([]int, error) { return []int{len(text)}, nil }
func (fakeTokenizer) Decode(ids []int) (string, error)  { return "", nil }
func (fakeTokenizer) TokenID(token string) (int, bool)  { return 0, false }
func (fakeTokenizer) EOSTokenID() int                   { return 50258 }
func (fakeTokenizer) PadTokenID() int                   { return 50257 }
func (fakeTokenizer) VocabSize() int                    { return 50260 }

func newTestLoader(t *testing.T, gen generation.Generator, loadErr error) *generation.Loader {
	t.Helper()
	cfg := generation.NewConfig(t.TempDir())
	build := func(ctx context.Context, cfg *generation.Config, log *zap.Logger) (*generation.Pipeline, error) {
		if loadErr != nil {
			return nil, loadErr
		}
		return &generation.Pipeline{
			Generator: gen,
			Tokenizer: fakeTokenizer{},
			Device:    generation.DeviceCPU,
			Backend:   generation.BackendTensor,
			Checkpoint: generation.Checkpoint{
				Dir:         cfg.ModelDir,
				WeightsFile: "model.safetensors",
				Fingerprint: "00000000deadbeef",
			},
		}, nil
	}
	return generation.NewLoader(cfg, build, zap.NewNop())
}

var errMissingWeights = errors.New("no model.safetensors in dir")
