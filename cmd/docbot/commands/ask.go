package commands

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/safemobile/docbot/internal/logging"
	"github.com/safemobile/docbot/internal/tracing"
)

// NewAskCmd constructs the `docbot ask` command, which answers a single
// question from the command line and prints the result to stdout.
func NewAskCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the SafeMobile documentation",
		Long: `Ask a single question and print the grounded answer to stdout.

The question is embedded, matched against the documentation index, and
answered by the configured LLM using only the retrieved fragments.

Examples:
  docbot ask "как установить сервер UEM SafeMobile?"
  docbot ask --verbose "какие политики поддерживаются на Android?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Langfuse tracing is opt-in; a no-op when keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
			}

			asst, _, closeFn, err := buildAssistant(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeFn()

			question := strings.Join(args, " ")
			outcome := asst.Answer(ctx, question)

			fmt.Println(outcome.DisplayText)

			if verbose {
				fmt.Printf("\n--- verdict: %s, fragments: %d, avg score: %.2f\n",
					outcome.Verdict, len(outcome.Contexts), outcome.AvgScore)
			}

			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the verdict and retrieval stats after the answer")

	return cmd
}
