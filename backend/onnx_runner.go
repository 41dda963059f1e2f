package backend

import (
	"context"
	"fmt"
	"slices"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"recipe-gen/generation"
)

var ortInit sync.Mutex

// InitONNXRuntime loads the onnxruntime shared library once per process
func InitONNXRuntime(libraryPath string) error {
	ortInit.Lock()
	defer ortInit.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	return nil
}

// ONNXCUDAAvailable probes for the CUDA execution provider. The runtime must
// already be initialized.
func ONNXCUDAAvailable() bool {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return false
	}
	defer options.Destroy()

	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return false
	}
	defer cuda.Destroy()

	return options.AppendExecutionProviderCUDA(cuda) == nil
}

// ONNXRunner runs a GPT-2 ONNX export. The graph has no KV cache inputs, so
// every step recomputes the full sequence.
type ONNXRunner struct {
	session   *ort.DynamicAdvancedSession
	vocabSize int
	withMask  bool
}

// NewONNXRunner opens a session over modelPath on the given device
func NewONNXRunner(modelPath string, vocabSize int, device generation.Device, numThreads int) (*ONNXRunner, error) {
	inputs, _, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model inputs: %w", err)
	}
	inputNames := []string{"input_ids"}
	withMask := slices.ContainsFunc(inputs, func(i ort.InputOutputInfo) bool { return i.Name == "attention_mask" })
	if withMask {
		inputNames = append(inputNames, "attention_mask")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if numThreads > 0 {
		if err := options.SetIntraOpNumThreads(numThreads); err != nil {
			return nil, fmt.Errorf("failed to set threads: %w", err)
		}
	}

	if device == generation.DeviceCUDA {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("failed to create CUDA provider options: %w", err)
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return nil, fmt.Errorf("failed to enable CUDA provider: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{"logits"}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &ONNXRunner{
		session:   session,
		vocabSize: vocabSize,
		withMask:  withMask,
	}, nil
}

// Run feeds the whole sequence and returns the last position's logits
func (r *ONNXRunner) Run(ctx context.Context, seq *generation.Sequence) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seqLen := seq.Len()
	if seqLen == 0 {
		return nil, fmt.Errorf("sequence %d has no tokens", seq.SeqID)
	}

	ids := make([]int64, seqLen)
	mask := make([]int64, seqLen)
	for i, id := range seq.TokenIDs {
		ids[i] = int64(id)
		mask[i] = 1
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(seqLen)), ids)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()
	inputs := []ort.Value{inputTensor}

	if r.withMask {
		maskTensor, err := ort.NewTensor(ort.NewShape(1, int64(seqLen)), mask)
		if err != nil {
			return nil, fmt.Errorf("failed to create attention mask: %w", err)
		}
		defer maskTensor.Destroy()
		inputs = append(inputs, maskTensor)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(seqLen), int64(r.vocabSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := r.session.Run(inputs, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	logits := outputTensor.GetData()
	start := (seqLen - 1) * r.vocabSize
	seq.NumCachedTokens = seqLen

	return slices.Clone(logits[start : start+r.vocabSize]), nil
}

// Release is a no-op; the runner keeps no per-sequence state
func (r *ONNXRunner) Release(seq *generation.Sequence) {}

// Close destroys the session
func (r *ONNXRunner) Close() error {
	return r.session.Destroy()
}
