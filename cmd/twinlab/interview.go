package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"twinlab/internal/interview"
	"twinlab/internal/persona"
	"twinlab/internal/prompt"
	"twinlab/internal/results"
	"twinlab/internal/study"
)

func newInterviewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interview <study.yaml>",
		Short: "Run interviews over selected personas",
		Long:  "Runs the interview guide against each selected persona. Batch guides ask each question independently; interactive guides carry the conversation between questions. With --interactive you type each question yourself.",
		Args:  cobra.ExactArgs(1),
		RunE:  runInterview,
	}
	addSelectionFlags(cmd)
	cmd.Flags().String("run-id", "", "run id; reuse one to resume an interrupted run")
	cmd.Flags().Bool("interactive", false, "type questions live instead of following the guide")
	return cmd
}

func runInterview(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, true)
	if err != nil {
		return err
	}

	def, err := study.LoadFile(args[0])
	if err != nil {
		return err
	}
	if def.Interview == nil {
		return fmt.Errorf("%s does not define an interview", args[0])
	}

	selected, err := a.personas.Select(selectionFromFlags(cmd))
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return fmt.Errorf("selection matched no personas")
	}

	opts := interview.DefaultOptions()
	if a.cfg.LLM.Temperature > 0 {
		opts.Temperature = a.cfg.LLM.Temperature
	}
	opts.ContextLimit = a.cfg.LLM.ContextLimit
	opts.MinLength = a.cfg.Run.MinOpenLength
	opts.MaxLength = a.cfg.Run.MaxOpenLength

	resultStore := results.NewStore()
	engine := interview.NewEngine(a.client, prompt.NewBuilder(), resultStore, def.Interview, opts, nil)

	interactive, _ := cmd.Flags().GetBool("interactive")
	operatorDriven := def.Interview.Mode == study.ModeInteractive && len(def.Interview.Questions) == 0
	if interactive || operatorDriven {
		return runInteractiveInterview(cmd, a, engine, resultStore, selected)
	}
	return executeRun(cmd, a, engine, resultStore, selected)
}

// runInteractiveInterview drives one live session per selected persona. The
// operator types questions; an empty line ends the current persona.
func runInteractiveInterview(cmd *cobra.Command, a *app, engine *interview.Engine, resultStore *results.Store, selected []*persona.Persona) error {
	runID := uuid.NewString()

	for _, p := range selected {
		fmt.Printf("\n%s %s\n%s\n", bold("Interviewing"), cyan(p.ID), p.Summary())
		fmt.Println(yellow("Type a question, or press enter on an empty line to finish this persona."))

		source := &terminalSource{}
		outcome, err := engine.RunInteractive(cmd.Context(), p, source)
		if err != nil && !errors.Is(err, promptui.ErrInterrupt) {
			fmt.Printf("%s %v\n", red("Session ended:"), err)
		}
		fmt.Printf("%s %d of %d answers recorded\n", green("Done:"), outcome.Answered, outcome.Total)
		if errors.Is(err, promptui.ErrInterrupt) {
			break
		}
	}

	path, err := writeResults(a.cfg, runID, resultStore)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", green("Results written to"), path)
	return nil
}

// terminalSource asks the operator for the next question and echoes the last
// answer first.
type terminalSource struct{}

func (s *terminalSource) Next(turn int, lastAnswer string) (string, bool, error) {
	if lastAnswer != "" {
		fmt.Printf("\n%s %s\n", cyan("Twin:"), lastAnswer)
	}

	input := promptui.Prompt{Label: fmt.Sprintf("Question %d", turn+1), AllowEdit: true}
	text, err := input.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return "", false, nil
		}
		return "", false, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false, nil
	}
	return text, true, nil
}
