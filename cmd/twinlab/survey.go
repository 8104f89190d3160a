package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"twinlab/internal/persona"
	"twinlab/internal/prompt"
	"twinlab/internal/results"
	"twinlab/internal/runner"
	"twinlab/internal/study"
	"twinlab/internal/survey"
)

func newSurveyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "survey <study.yaml>",
		Short: "Run a survey over selected personas",
		Args:  cobra.ExactArgs(1),
		RunE:  runSurvey,
	}
	addSelectionFlags(cmd)
	cmd.Flags().String("run-id", "", "run id; reuse one to resume an interrupted run")
	cmd.Flags().Bool("reask-invalid", false, "re-ask once when a scale answer cannot be parsed")
	return cmd
}

func runSurvey(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, true)
	if err != nil {
		return err
	}

	def, err := study.LoadFile(args[0])
	if err != nil {
		return err
	}
	if def.Survey == nil {
		return fmt.Errorf("%s does not define a survey", args[0])
	}

	selected, err := a.personas.Select(selectionFromFlags(cmd))
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return fmt.Errorf("selection matched no personas")
	}

	opts := survey.DefaultOptions()
	if a.cfg.LLM.Temperature > 0 {
		opts.Temperature = a.cfg.LLM.Temperature
	}
	opts.ReaskInvalid = a.cfg.Run.ReaskInvalid
	if flag, _ := cmd.Flags().GetBool("reask-invalid"); flag {
		opts.ReaskInvalid = true
	}

	resultStore := results.NewStore()
	engine := survey.NewEngine(a.client, prompt.NewBuilder(), resultStore, def.Survey, opts, nil)
	return executeRun(cmd, a, engine, resultStore, selected)
}

// executeRun is the shared batch path for the survey and interview commands.
func executeRun(cmd *cobra.Command, a *app, engine runner.Engine, resultStore *results.Store, selected []*persona.Persona) error {
	runID, _ := cmd.Flags().GetString("run-id")
	resuming := runID != ""
	if runID == "" {
		runID = uuid.NewString()
	}

	checkpoints, err := runner.NewFileCheckpointStore(a.cfg.Paths.CheckpointDir)
	if err != nil {
		return err
	}

	// a resumed run replays the selection recorded in its checkpoint, so the
	// original seed or filter flags do not need to be repeated
	if resuming {
		cp, err := checkpoints.Load(runID)
		if err != nil {
			return err
		}
		if cp != nil && len(cp.Personas) > 0 {
			selected, err = a.personas.ByID(cp.Personas...)
			if err != nil {
				return err
			}
		}
	}

	fmt.Printf("%s %s over %d personas (run %s)\n", bold("Starting"), engine.Name(), len(selected), cyan(runID))
	if resuming {
		fmt.Printf("%s personas already checkpointed under this run id will be skipped\n", yellow("Resuming:"))
	}

	batch := runner.NewBatchRunner(engine, resultStore, checkpoints)
	progress, runErr := batch.Run(cmd.Context(), runID, selected)
	if runErr != nil {
		fmt.Printf("%s %d of %d personas processed before stopping\n", yellow("Interrupted:"), progress.Processed, progress.Total)
		fmt.Printf("resume with: twinlab %s --run-id %s\n", cmd.CalledAs(), runID)
	}

	path, err := writeResults(a.cfg, runID, resultStore)
	if err != nil {
		return err
	}
	printSummary(resultStore.Summarize())
	fmt.Printf("%s %s\n", green("Results written to"), path)

	if runErr != nil {
		return runErr
	}
	return checkpoints.Delete(runID)
}
