package backend

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"recipe-gen/generation"
)

// weightsCandidates lists where each backend looks for its weights
var weightsCandidates = map[generation.Backend][]string{
	generation.BackendTensor: {"model.safetensors"},
	generation.BackendONNX:   {"model.onnx", filepath.Join("onnx", "model.onnx")},
}

// InspectCheckpoint checks that dir holds what the backend needs and
// fingerprints config.json, the weights and the tokenizer files with xxhash
func InspectCheckpoint(dir string, backend generation.Backend) (generation.Checkpoint, error) {
	ckpt := generation.Checkpoint{Dir: dir}

	info, err := os.Stat(dir)
	if err != nil {
		return ckpt, fmt.Errorf("model directory: %w", err)
	}
	if !info.IsDir() {
		return ckpt, fmt.Errorf("model directory %s is not a directory", dir)
	}

	var files []string
	if candidates, ok := weightsCandidates[backend]; ok {
		for _, c := range candidates {
			if fileExists(filepath.Join(dir, c)) {
				ckpt.WeightsFile = filepath.Join(dir, c)
				break
			}
		}
		if ckpt.WeightsFile == "" {
			return ckpt, fmt.Errorf("no %s in %s", candidates[0], dir)
		}
		if !fileExists(filepath.Join(dir, "config.json")) {
			return ckpt, fmt.Errorf("no config.json in %s", dir)
		}
		files = append(files, filepath.Join(dir, "config.json"), ckpt.WeightsFile)
	}

	for _, name := range []string{"tokenizer.json", "vocab.json", "merges.txt", "added_tokens.json", "special_tokens_map.json"} {
		if path := filepath.Join(dir, name); fileExists(path) {
			files = append(files, path)
		}
	}

	ckpt.Fingerprint, err = fingerprint(files)
	if err != nil {
		return ckpt, err
	}
	return ckpt, nil
}

func fingerprint(files []string) (string, error) {
	h := xxhash.New()
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		h.WriteString(filepath.Base(path))
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("failed to hash %s: %w", path, err)
		}
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
