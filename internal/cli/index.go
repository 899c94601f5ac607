package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexDropYes bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect or remove the vector index",
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index backend, metric and entry count",
	Args:  cobra.NoArgs,
	RunE:  runIndexStatus,
}

var indexDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Delete the index and all its entries",
	Args:  cobra.NoArgs,
	RunE:  runIndexDrop,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexStatusCmd, indexDropCmd)
	indexDropCmd.Flags().BoolVarP(&indexDropYes, "yes", "y", false, "do not ask for confirmation")
}

func runIndexStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	exists, err := a.Index.Exists(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Backend:   %s\n", a.Config.Index.Backend)
	if a.Config.Index.Backend == "bolt" {
		fmt.Fprintf(out, "Path:      %s\n", a.Config.IndexDBPath(a.RootDir))
	} else {
		fmt.Fprintf(out, "Table:     %s\n", a.Config.Index.Table)
	}
	fmt.Fprintf(out, "Metric:    %s\n", a.Index.Metric())
	fmt.Fprintf(out, "Dimension: %d\n", a.Index.Dimension())
	fmt.Fprintf(out, "Embedder:  %s\n", a.Embedder.ModelName())

	if !exists {
		fmt.Fprintln(out, "Status:    not created (run 'recipechat ingest')")
		return nil
	}
	count, err := a.Index.Count(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Recipes:   %d\n", count)
	return nil
}

func runIndexDrop(cmd *cobra.Command, args []string) error {
	if !indexDropYes {
		return fmt.Errorf("refusing to drop the index without --yes")
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Index.Drop(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Index dropped.")
	return nil
}
