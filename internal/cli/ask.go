package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"recipechat/internal/app"
)

var askVerbose bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question",
	Long: `Answer one message with an empty transcript and print the reply.

Examples:
  recipechat ask "how do I make a chocolate cake?"
  recipechat ask -v "suggest something vegetarian"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "print the label, states and candidates")
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.LoadIndex(cmd.Context()); err != nil {
		return err
	}
	gen, err := app.NewGenerator(a.Config)
	if err != nil {
		return err
	}

	query := strings.Join(args, " ")
	res := a.Pipeline(gen).Run(cmd.Context(), query)

	out := cmd.OutOrStdout()
	if askVerbose {
		states := make([]string, len(res.Trace))
		for i, s := range res.Trace {
			states[i] = s.String()
		}
		fmt.Fprintf(out, "label:  %s\n", res.Label)
		fmt.Fprintf(out, "states: %s\n", strings.Join(states, " -> "))
		for _, c := range res.Candidates {
			fmt.Fprintf(out, "  %d %s (%.4f)\n", c.RecipeID, c.Name, c.Distance)
		}
		if res.Err != nil {
			fmt.Fprintf(out, "error:  %v\n", res.Err)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, res.Reply)
	return nil
}
