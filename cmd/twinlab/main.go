// twinlab runs persona simulation studies: surveys and interviews answered
// by digital twins through a language model.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "twinlab",
		Short:         "Batch persona simulation over a language model",
		Long:          "twinlab answers surveys and interviews as digital twins: personas from a corpus, one model call per question, checkpointed so interrupted runs resume.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "config file (default twinlab.yaml, then ~/.twinlab/twinlab.yaml)")
	root.PersistentFlags().String("corpus", "", "persona corpus JSON (overrides config)")

	root.AddCommand(
		newSurveyCommand(),
		newInterviewCommand(),
		newPersonasCommand(),
		newServeCommand(),
	)
	return root
}
