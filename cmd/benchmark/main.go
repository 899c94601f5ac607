package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"recipechat/config"
	"recipechat/internal/app"
	"recipechat/internal/domain"
)

func main() {
	indexPath := flag.String("index", ".", "Path to the directory holding the index and config")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 5, "Number of results")
	runs := flag.Int("runs", 20, "Timed searches per query")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run cmd/benchmark/main.go -index ./tmp -q \"query\"")
		fmt.Println("\nReports:")
		fmt.Println("  1. Embedding infrastructure (model, dimension, index size)")
		fmt.Println("  2. Search latency over the IVF partitions")
		fmt.Println("  3. Recall@k of the partitioned search against an exhaustive scan")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*indexPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	a, err := app.Open(ctx, cfg, *indexPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening index: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Index.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Index not ready: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("RECIPE SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))

	count, _ := a.Index.Count(ctx)
	fmt.Printf("Recipes indexed: %d\n", count)
	fmt.Printf("Model: %s (%s)\n", a.Embedder.ModelName(), cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d, metric: %s, nlist: %d, nprobe: %d\n",
		a.Index.Dimension(), a.Metric, cfg.Index.NList, cfg.Index.NProbe)
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	queryVec, err := a.Embedder.Embed(ctx, *query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedding error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Query embedded: %d dimensions\n\n", len(queryVec))

	var results []domain.Candidate
	start := time.Now()
	for i := 0; i < *runs; i++ {
		results, err = a.Index.Search(ctx, queryVec, *topK, a.Metric)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
			os.Exit(1)
		}
	}
	perSearch := time.Since(start) / time.Duration(max(*runs, 1))

	// Asking for every entry forces the search to widen over all partitions.
	exact, err := a.Index.Search(ctx, queryVec, count, a.Metric)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Exhaustive search error: %v\n", err)
		os.Exit(1)
	}
	if len(exact) > *topK {
		exact = exact[:*topK]
	}

	fmt.Printf("Top %d matches:\n\n", len(results))
	for i, r := range results {
		rating := "LOW"
		switch {
		case r.Distance < 0.3:
			rating = "HIGH"
		case r.Distance < 0.5:
			rating = "GOOD"
		case r.Distance < 0.7:
			rating = "OK"
		}

		preview := strings.ReplaceAll(r.Text, "\n", " ")
		if len(preview) > 150 {
			preview = preview[:150] + "..."
		}
		fmt.Printf("%d. [%s %.3f] %s (id %d)\n", i+1, rating, r.Distance, r.Name, r.RecipeID)
		fmt.Printf("   %s\n\n", preview)
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Search latency:     %s (avg of %d)\n", perSearch, *runs)
	fmt.Printf("  Recall@%d:          %.2f\n", *topK, recall(results, exact))
	if len(results) > 0 {
		fmt.Printf("  Top-1 distance:     %.3f\n", results[0].Distance)
	}
}

// recall is the share of the exact top-k found by the approximate search.
func recall(approx, exact []domain.Candidate) float64 {
	if len(exact) == 0 {
		return 1
	}
	found := make(map[int64]bool, len(approx))
	for _, c := range approx {
		found[c.RecipeID] = true
	}
	hits := 0
	for _, c := range exact {
		if found[c.RecipeID] {
			hits++
		}
	}
	return float64(hits) / float64(len(exact))
}
