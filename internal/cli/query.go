package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	queryText string
	queryTopK int
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Show the recipes nearest to a query",
	Long: `Run retrieval only: normalize the query, embed it and search the
vector index. No text-generation backend is called.

Examples:
  recipechat query -q "chocolate dessert"
  recipechat query -q "quick weeknight pasta" --top-k 10 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.LoadIndex(cmd.Context()); err != nil {
		return err
	}

	topK := a.Config.Retrieve.TopK
	if queryTopK > 0 {
		topK = queryTopK
	}

	candidates, err := a.Retriever().Retrieve(cmd.Context(), queryText, topK, a.Metric)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		output, err := json.MarshalIndent(candidates, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Fprintln(out, string(output))
		return nil
	}

	if len(candidates) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	fmt.Fprintf(out, "Found %d results for: %s\n\n", len(candidates), queryText)
	for i, c := range candidates {
		fmt.Fprintf(out, "--- [%d] %s (id %d, distance: %.4f) ---\n", i+1, c.Name, c.RecipeID, c.Distance)
		text := strings.TrimSpace(c.Text)
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		fmt.Fprintln(out, text)
		fmt.Fprintln(out)
	}
	return nil
}
