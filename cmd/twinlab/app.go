package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"twinlab/internal/config"
	"twinlab/internal/llm"
	"twinlab/internal/persona"
	"twinlab/internal/results"
)

// app bundles everything a command needs after configuration is resolved.
type app struct {
	cfg      config.Config
	personas *persona.Store
	client   llm.Client
}

func loadApp(cmd *cobra.Command, needClient bool) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, err
	}
	if corpus, _ := cmd.Flags().GetString("corpus"); corpus != "" {
		cfg.Paths.CorpusPath = corpus
	}

	store := persona.NewStore(persona.FileSource(cfg.Paths.CorpusPath))
	if err := store.Load(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, personas: store}
	if needClient {
		if cfg.LLM.APIKey == "" {
			return nil, fmt.Errorf("no API key configured; set TWINLAB_LLM_API_KEY or llm.api_key")
		}
		client, err := llm.NewClientFromConfig(cfg.LLM)
		if err != nil {
			return nil, err
		}
		a.client = client
	}
	return a, nil
}

// addSelectionFlags registers the persona selection flags shared by the run
// commands.
func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().String("select", persona.SelectAll, "selection mode: all, random, filter, by_id")
	cmd.Flags().Int("count", 0, "sample size for random selection")
	cmd.Flags().Int64("seed", 0, "seed for random selection")
	cmd.Flags().String("field", "", "attribute name for filter selection")
	cmd.Flags().String("value", "", "attribute value for filter selection")
	cmd.Flags().StringSlice("ids", nil, "persona ids for by_id selection")
}

func selectionFromFlags(cmd *cobra.Command) persona.Selection {
	mode, _ := cmd.Flags().GetString("select")
	count, _ := cmd.Flags().GetInt("count")
	seed, _ := cmd.Flags().GetInt64("seed")
	field, _ := cmd.Flags().GetString("field")
	value, _ := cmd.Flags().GetString("value")
	ids, _ := cmd.Flags().GetStringSlice("ids")
	return persona.Selection{Mode: mode, Count: count, Seed: seed, Field: field, Value: value, IDs: ids}
}

// writeResults saves the run's records, outcomes, and summary as one JSON
// document under the results directory.
func writeResults(cfg config.Config, runID string, store *results.Store) (string, error) {
	if err := os.MkdirAll(cfg.Paths.ResultsDir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}

	doc := struct {
		RunID    string                   `json:"run_id"`
		Summary  results.Summary          `json:"summary"`
		Outcomes []results.PersonaOutcome `json:"outcomes"`
		Records  []results.ResponseRecord `json:"records"`
	}{
		RunID:    runID,
		Summary:  store.Summarize(),
		Outcomes: store.Outcomes(),
		Records:  store.Export(),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(cfg.Paths.ResultsDir, runID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write results: %w", err)
	}
	return path, nil
}

func printSummary(summary results.Summary) {
	fmt.Printf("%s %d personas: %s complete, %s partial, %s failed\n",
		bold("Run finished."), summary.Personas,
		green(summary.Complete), yellow(summary.Partial), red(summary.Failed))
	fmt.Printf("%d records (%d valid), %d tokens\n", summary.Records, summary.ValidRecords, summary.TotalTokens)
	for _, stat := range summary.QuestionStats {
		if stat.ValidScores > 0 {
			fmt.Printf("  %s mean %.2f (n=%d, range %d-%d)\n",
				cyan(stat.QuestionID), stat.MeanScore, stat.ValidScores, stat.MinScore, stat.MaxScore)
		}
	}
}
