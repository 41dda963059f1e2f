// Command recipe-bench measures recipe generation throughput
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"recipe-gen/backend"
	"recipe-gen/config"
	"recipe-gen/generation"
	"recipe-gen/recipe"
)

var workload = []recipe.Request{
	{Mode: recipe.ModeTitle, Text: "Spicy Chicken Curry"},
	{Mode: recipe.ModeTitle, Text: "Lemon Garlic Roast Potatoes"},
	{Mode: recipe.ModeTitle, Text: "Chocolate Chip Banana Bread"},
	{Mode: recipe.ModeIngredients, Text: "chicken, onions, curry powder, coconut milk"},
	{Mode: recipe.ModeIngredients, Text: "eggs, spinach, feta, olive oil"},
	{Mode: recipe.ModeIngredients, Text: "pasta, tomatoes, basil, parmesan"},
}

func main() {
	configPath := flag.String("config", "", "Path to config file")
	modelDir := flag.String("model", "", "Model directory (overrides config)")
	numRequests := flag.Int("requests", 24, "Number of generations")
	concurrency := flag.Int("concurrency", 4, "Concurrent generations")
	maxTokens := flag.Int("max-tokens", 128, "Maximum new tokens per generation")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *modelDir != "" {
		cfg.Model.Dir = *modelDir
	}
	genCfg, err := cfg.Generation()
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	fmt.Println("Recipe Generator Benchmark")
	fmt.Println("==========================")
	fmt.Printf("  Backend:     %s\n", genCfg.Backend)
	fmt.Printf("  Requests:    %d\n", *numRequests)
	fmt.Printf("  Concurrency: %d\n", *concurrency)
	fmt.Printf("  Max tokens:  %d\n", *maxTokens)
	fmt.Println()

	ctx := context.Background()
	loader := generation.NewLoader(genCfg, backend.Build, nil)
	defer loader.Close()

	start := time.Now()
	p, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Printf("✓ Model loaded on %s in %.2fs\n\n", p.Device, time.Since(start).Seconds())

	params := p.SamplingParams(generation.WithMaxNewTokens(*maxTokens))
	bar := progressbar.Default(int64(*numRequests), "Generating")

	var (
		mu          sync.Mutex
		latencies   []time.Duration
		totalTokens int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)

	start = time.Now()
	for i := 0; i < *numRequests; i++ {
		req := workload[i%len(workload)]
		g.Go(func() error {
			prompt, err := req.Prompt()
			if err != nil {
				return err
			}
			t0 := time.Now()
			outputs, err := p.Generator.Generate(gctx, prompt, params)
			if err != nil {
				return err
			}
			elapsed := time.Since(t0)

			mu.Lock()
			latencies = append(latencies, elapsed)
			for _, out := range outputs {
				totalTokens += len(out.TokenIDs)
			}
			mu.Unlock()
			_ = bar.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("Generation failed: %v", err)
	}
	elapsed := time.Since(start).Seconds()

	slices.Sort(latencies)
	fmt.Println()
	fmt.Println("Benchmark Results:")
	fmt.Println(strings.Repeat("=", 18))
	fmt.Printf("Total requests:      %d\n", len(latencies))
	fmt.Printf("Total output tokens: %d\n", totalTokens)
	fmt.Printf("Time elapsed:        %.2f seconds\n", elapsed)
	fmt.Printf("Throughput:          %.2f tokens/sec\n", float64(totalTokens)/elapsed)
	fmt.Printf("Latency p50:         %.0f ms\n", percentile(latencies, 0.50))
	fmt.Printf("Latency p95:         %.0f ms\n", percentile(latencies, 0.95))
}

// percentile expects sorted input and returns milliseconds
func percentile(sorted []time.Duration, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	i := int(q * float64(len(sorted)-1))
	return float64(sorted[i].Microseconds()) / 1000
}
