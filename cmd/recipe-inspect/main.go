// Command recipe-inspect checks a recipe checkpoint directory: weights,
// config, tokenizer and special token coverage
package main

import (
	"flag"
	"fmt"
	"log"
	"slices"
	"strings"

	"go.uber.org/zap"

	"recipe-gen/backend"
	"recipe-gen/backend/gpt2"
	"recipe-gen/generation"
	"recipe-gen/recipe"
)

func main() {
	modelDir := flag.String("model", "./my_model_files", "Model directory")
	backendFlag := flag.String("backend", "tensor", "Backend whose files to check: tensor, onnx or http")
	listTensors := flag.Bool("tensors", false, "List every tensor in model.safetensors")
	flag.Parse()

	b, err := generation.ParseBackend(*backendFlag)
	if err != nil {
		log.Fatal(err)
	}

	ckpt, err := backend.InspectCheckpoint(*modelDir, b)
	if err != nil {
		log.Fatalf("Checkpoint: %v", err)
	}
	fmt.Printf("✓ Checkpoint %s\n", ckpt.Dir)
	fmt.Printf("  weights:     %s\n", ckpt.WeightsFile)
	fmt.Printf("  fingerprint: %s\n", ckpt.Fingerprint)

	tok, err := backend.NewTokenizer(*modelDir, zap.NewNop())
	if err != nil {
		log.Fatalf("Tokenizer: %v", err)
	}
	fmt.Printf("✓ Tokenizer: vocab %d, eos %d, pad %d\n", tok.VocabSize(), tok.EOSTokenID(), tok.PadTokenID())

	missing := backend.MissingSpecialTokens(tok)
	for _, s := range tok.SpecialTokens().All() {
		status := "ok"
		if slices.Contains(missing, s) {
			status = "NOT A SINGLE TOKEN"
		}
		id, _ := tok.TokenID(s)
		fmt.Printf("  %-22s %6d  %s\n", s, id, status)
	}

	prompt := recipe.BuildPrompt(recipe.ModeTitle, "Spicy Chicken Curry")
	ids, err := tok.Encode(prompt)
	if err != nil {
		log.Fatalf("Encode: %v", err)
	}
	decoded, err := tok.Decode(ids)
	if err != nil {
		log.Fatalf("Decode: %v", err)
	}
	roundTrip := "ok"
	if decoded != prompt {
		roundTrip = fmt.Sprintf("MISMATCH %q", decoded)
	}
	fmt.Printf("  sample prompt: %d tokens, round trip %s\n", len(ids), roundTrip)

	if b != generation.BackendTensor {
		return
	}

	cfg, err := gpt2.LoadConfig(*modelDir)
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	fmt.Printf("✓ GPT-2 config: vocab %d, positions %d, embd %d, layers %d, heads %d\n",
		cfg.VocabSize, cfg.NPositions, cfg.NEmbd, cfg.NLayer, cfg.NHead)
	if tok.VocabSize() > cfg.VocabSize {
		fmt.Printf("  WARNING: tokenizer has %d ids, model embeds %d\n", tok.VocabSize(), cfg.VocabSize)
	}

	st, err := gpt2.OpenSafetensors(ckpt.WeightsFile)
	if err != nil {
		log.Fatalf("Weights: %v", err)
	}
	names := st.Names()
	slices.Sort(names)
	fmt.Printf("✓ %d tensors\n", len(names))
	if *listTensors {
		for _, name := range names {
			info, _ := st.Lookup(name)
			fmt.Printf("  %-45s %-5s %v\n", name, info.Dtype, info.Shape)
		}
	}

	for _, name := range []string{"wte.weight", "wpe.weight", "h.0.attn.c_attn.weight", "ln_f.weight"} {
		t, err := st.Tensor(name)
		if err != nil {
			fmt.Printf("  %-24s missing: %v\n", name, err)
			continue
		}
		lo, hi, mean := stats(t.Data)
		fmt.Printf("  %-24s %v min=%.4f max=%.4f mean=%.4f\n", name, t.Shape, lo, hi, mean)
	}

	model, err := gpt2.NewModelFromSafetensors(st, cfg)
	if err != nil {
		log.Fatalf("Model: %v", err)
	}
	fmt.Printf("✓ Model builds: %s parameters\n", humanCount(model.NumParams()))
}

func stats(data []float32) (lo, hi, mean float32) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	lo, hi = data[0], data[0]
	var sum float64
	for _, v := range data {
		lo = min(lo, v)
		hi = max(hi, v)
		sum += float64(v)
	}
	return lo, hi, float32(sum / float64(len(data)))
}

func humanCount(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1e3)
	default:
		return strings.TrimSpace(fmt.Sprint(n))
	}
}
