// Command recipe-cli generates a recipe from the terminal
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"recipe-gen/backend"
	"recipe-gen/config"
	"recipe-gen/generation"
	"recipe-gen/logger"
	"recipe-gen/recipe"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	modeFlag := flag.String("mode", "Title", "What the text is: Title or Ingredients")
	modelDir := flag.String("model", "", "Model directory (overrides config)")
	backendFlag := flag.String("backend", "", "Inference backend: tensor, onnx or http (overrides config)")
	deviceFlag := flag.String("device", "", "Device: auto, cpu or cuda (overrides config)")
	serverURL := flag.String("server", "", "Text generation server URL for the http backend")
	maxTokens := flag.Int("max-tokens", 0, "Maximum new tokens (default 350)")
	temperature := flag.Float64("temp", 0, "Sampling temperature (default 0.8)")
	numReturn := flag.Int("n", 1, "Number of recipes to generate")
	seed := flag.Int64("seed", 0, "Sampler seed; 0 picks one from the clock")
	raw := flag.Bool("raw", false, "Print the raw generation instead of the cleaned recipe")
	verbose := flag.Bool("v", false, "Log loader details to stderr")
	flag.Parse()

	text := strings.Join(flag.Args(), " ")
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: recipe-cli [flags] <title or ingredients>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	mode, err := recipe.ParseMode(*modeFlag)
	if err != nil {
		fatalf("%v", err)
	}
	req := recipe.Request{Mode: mode, Text: text}
	prompt, err := req.Prompt()
	if err != nil {
		fatalf("%v", err)
	}

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	applyOverrides(cfg, *modelDir, *backendFlag, *deviceFlag, *serverURL, *seed)

	genCfg, err := cfg.Generation()
	if err != nil {
		fatalf("%v", err)
	}

	log := zap.NewNop()
	if *verbose {
		if log, err = logger.New("debug", "console"); err != nil {
			fatalf("%v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	budget := generation.RecipeSamplingParams(0, 0).MaxNewTokens
	if *maxTokens > 0 {
		budget = *maxTokens
	}
	bar := progressbar.NewOptions(budget,
		progressbar.OptionSetDescription("Generating"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("tok"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	progress := func(generated, limit int) {
		if bar.GetMax() != limit {
			bar.ChangeMax(limit)
		}
		_ = bar.Set(generated)
	}

	fmt.Printf("Loading model from %s (%s backend)...\n", genCfg.ModelDir, genCfg.Backend)
	loader := generation.NewLoader(genCfg, backend.BuildWith(generation.WithProgress(progress)), log)
	defer loader.Close()

	start := time.Now()
	p, err := loader.Load(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("✓ Model loaded on %s in %.1fs (fingerprint %s)\n", p.Device, time.Since(start).Seconds(), p.Checkpoint.Fingerprint)

	var opts []generation.SamplingOption
	if *maxTokens > 0 {
		opts = append(opts, generation.WithMaxNewTokens(*maxTokens))
	}
	if *temperature > 0 {
		opts = append(opts, generation.WithTemperature(*temperature))
	}
	if *numReturn > 1 {
		opts = append(opts, generation.WithNumReturnSequences(*numReturn))
	}

	fmt.Println("Conjuring up your recipe... 🪄")
	start = time.Now()
	outputs, err := p.Generator.Generate(ctx, prompt, p.SamplingParams(opts...))
	_ = bar.Finish()
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("✓ Generated %d recipe(s) in %.1fs\n", len(outputs), time.Since(start).Seconds())

	for i, out := range outputs {
		fmt.Println()
		if len(outputs) > 1 {
			fmt.Printf("=== Recipe %d (%s) ===\n", i+1, out.FinishReason)
		} else {
			fmt.Println("Here's your AI-generated recipe:")
		}
		fmt.Println(strings.Repeat("-", 50))
		if *raw {
			fmt.Println(out.GeneratedText)
		} else {
			fmt.Println(recipe.CleanOutput(out.GeneratedText, mode))
		}
	}
}

func applyOverrides(cfg *config.Config, modelDir, backendName, device, serverURL string, seed int64) {
	if modelDir != "" {
		cfg.Model.Dir = modelDir
	}
	if backendName != "" {
		cfg.Model.Backend = backendName
	}
	if device != "" {
		cfg.Model.Device = device
	}
	if serverURL != "" {
		cfg.Model.ServerURL = serverURL
		if backendName == "" {
			cfg.Model.Backend = string(generation.BackendHTTP)
		}
	}
	if seed != 0 {
		cfg.Model.Seed = seed
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
