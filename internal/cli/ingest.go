package cli

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"recipechat/internal/domain"
	"recipechat/internal/usecase"
)

var (
	ingestDrop      bool
	ingestBatchSize int
	ingestWorkers   int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [corpus-dir]",
	Short: "Embed a recipe corpus into the vector index",
	Long: `Read recipe records (.json, .jsonl, .yaml) from the corpus directory,
embed them and upsert them into the vector index. Re-running ingest replaces
existing entries by recipe id.

Examples:
  recipechat ingest                  # Use ingest.corpus from config
  recipechat ingest data/recipes     # Ingest a specific directory
  recipechat ingest --drop           # Rebuild the index from scratch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVar(&ingestDrop, "drop", false, "drop the existing index first")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "recipes per upsert batch (default from config)")
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 0, "concurrent embedding batches (default from config)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if ingestBatchSize > 0 {
		cfg.Ingest.BatchSize = ingestBatchSize
	}
	if ingestWorkers > 0 {
		cfg.Ingest.Workers = ingestWorkers
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var dir string
	if len(args) > 0 {
		dir = args[0]
	}
	loader := a.Corpus(dir)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanning %s...\n", loader.Root())

	recipes, err := loader.Recipes(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read corpus: %w", err)
	}
	if len(recipes) == 0 {
		fmt.Fprintln(out, "No recipes found.")
		return nil
	}

	var (
		bar       *progressbar.ProgressBar
		barMu     sync.Mutex
		startTime = time.Now()
	)
	bar = progressbar.NewOptions(len(recipes),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(cmd.ErrOrStderr())
		}),
	)

	progress := func(done, total int) {
		barMu.Lock()
		defer barMu.Unlock()

		bar.Set(done)
		if done > 0 && done < total {
			rate := float64(done) / time.Since(startTime).Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Embedding[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}

	result, err := a.Ingest().Ingest(cmd.Context(), recipes, usecase.IngestOptions{
		DropExisting: ingestDrop || cfg.Ingest.DropExisting,
		Progress:     progress,
	})

	var writeErr *domain.IndexWriteError
	if err != nil && !errors.As(err, &writeErr) {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Fprintf(out, "\nIngest complete:\n")
	fmt.Fprintf(out, "  Recipes read:    %d\n", result.Recipes)
	fmt.Fprintf(out, "  Duplicate ids:   %d\n", result.Duplicates)
	fmt.Fprintf(out, "  Entries written: %d\n", result.Written)
	fmt.Fprintf(out, "  Truncated:       %d\n", result.Truncated)
	fmt.Fprintf(out, "  Duration:        %s\n", formatDuration(result.Duration))

	if writeErr != nil {
		ids := writeErr.FailedIDs()
		fmt.Fprintf(out, "\nFailed (%d):\n", len(ids))
		for _, id := range ids {
			fmt.Fprintf(out, "  - %d: %v\n", id, writeErr.Failed[id])
		}
		return fmt.Errorf("%d recipes were not indexed; re-run ingest to retry them", len(ids))
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
