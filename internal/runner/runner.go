// Package runner drives a protocol engine across a selection of personas,
// one at a time, with checkpointing so interrupted runs resume where they
// stopped. Persona failures are isolated; only cancellation stops the batch.
package runner

import (
	"context"
	"fmt"
	"sync"

	"twinlab/internal/logging"
	"twinlab/internal/persona"
	"twinlab/internal/results"
)

// Engine is one protocol's per-persona executor. Both the survey and the
// interview engines satisfy it.
type Engine interface {
	Name() string
	QuestionCount() int
	RunPersona(ctx context.Context, p *persona.Persona) results.PersonaOutcome
}

// Progress is a live snapshot of a batch run.
type Progress struct {
	RunID     string `json:"run_id"`
	Protocol  string `json:"protocol"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Complete  int    `json:"complete"`
	Partial   int    `json:"partial"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Current   string `json:"current,omitempty"`
	Finished  bool   `json:"finished"`
}

// BatchRunner executes an engine over personas sequentially in the order
// given. Order is part of the contract: results and checkpoints are
// reproducible for a fixed selection.
type BatchRunner struct {
	engine      Engine
	resultStore *results.Store
	checkpoints CheckpointStore
	logger      logging.Logger

	mu       sync.Mutex
	progress Progress
}

// NewBatchRunner wires an engine to its result and checkpoint stores.
func NewBatchRunner(engine Engine, resultStore *results.Store, checkpoints CheckpointStore) *BatchRunner {
	return &BatchRunner{
		engine:      engine,
		resultStore: resultStore,
		checkpoints: checkpoints,
		logger:      logging.NewComponentLogger("runner"),
	}
}

// Progress returns the current snapshot. Safe to call from other goroutines
// while Run is in flight.
func (r *BatchRunner) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// Run processes every persona not already finished under runID. The first
// call pins the selection in the checkpoint and resumes replay it. Personas
// recorded in the checkpoint are skipped without model calls. Cancellation
// takes effect between personas; the persona in flight finishes and is
// checkpointed first.
func (r *BatchRunner) Run(ctx context.Context, runID string, personas []*persona.Persona) (Progress, error) {
	cp, err := r.checkpoints.Load(runID)
	if err != nil {
		return Progress{}, err
	}
	if cp == nil {
		cp = NewCheckpoint(runID, r.engine.Name())
	} else if cp.Protocol != r.engine.Name() {
		return Progress{}, fmt.Errorf("run %s was started with protocol %s, not %s", runID, cp.Protocol, r.engine.Name())
	}

	// the checkpointed selection is authoritative: a resume replays the
	// original personas in the original order even when the caller passes
	// a differently drawn selection
	if len(cp.Personas) > 0 {
		personas, err = alignSelection(cp, personas)
		if err != nil {
			return Progress{}, err
		}
	} else {
		for _, p := range personas {
			cp.Personas = append(cp.Personas, p.ID)
		}
		if err := r.checkpoints.Save(cp); err != nil {
			return Progress{}, fmt.Errorf("checkpoint run %s: %w", runID, err)
		}
	}

	r.mu.Lock()
	r.progress = Progress{RunID: runID, Protocol: r.engine.Name(), Total: len(personas)}
	r.mu.Unlock()

	for _, p := range personas {
		if err := ctx.Err(); err != nil {
			r.logger.Info("run %s cancelled after %d personas", runID, r.Progress().Processed)
			return r.Progress(), err
		}

		if status, done := cp.Done[p.ID]; done {
			r.logger.Debug("run %s: skipping %s (%s)", runID, p.ID, status)
			r.recordOutcome(status, true)
			continue
		}

		r.setCurrent(p.ID)
		outcome := r.engine.RunPersona(ctx, p)
		if ctx.Err() != nil && outcome.Status != results.StatusComplete {
			// cancelled mid-persona: finished answers stay recorded but the
			// persona is left pending so a resume picks it up
			r.logger.Info("run %s cancelled during %s; persona left pending", runID, p.ID)
			return r.Progress(), ctx.Err()
		}
		r.resultStore.SetOutcome(outcome)

		cp.Done[p.ID] = outcome.Status
		if err := r.checkpoints.Save(cp); err != nil {
			return r.Progress(), fmt.Errorf("checkpoint run %s: %w", runID, err)
		}
		r.recordOutcome(outcome.Status, false)
	}

	r.mu.Lock()
	r.progress.Current = ""
	r.progress.Finished = true
	snapshot := r.progress
	r.mu.Unlock()

	r.logger.Info("run %s finished: %d complete, %d partial, %d failed, %d skipped",
		runID, snapshot.Complete, snapshot.Partial, snapshot.Failed, snapshot.Skipped)
	return snapshot, nil
}

// alignSelection reorders personas to the checkpoint's recorded selection.
// A pending persona missing from the given selection is an error rather than
// a silent divergence; a finished one only needs its ID for skip accounting.
func alignSelection(cp *Checkpoint, personas []*persona.Persona) ([]*persona.Persona, error) {
	byID := make(map[string]*persona.Persona, len(personas))
	for _, p := range personas {
		byID[p.ID] = p
	}

	ordered := make([]*persona.Persona, 0, len(cp.Personas))
	for _, id := range cp.Personas {
		p, ok := byID[id]
		if !ok {
			if _, done := cp.Done[id]; !done {
				return nil, fmt.Errorf("run %s expects persona %s, which the current selection does not include; resume with the run's original selection", cp.RunID, id)
			}
			p = &persona.Persona{ID: id}
		}
		ordered = append(ordered, p)
	}
	return ordered, nil
}

func (r *BatchRunner) setCurrent(personaID string) {
	r.mu.Lock()
	r.progress.Current = personaID
	r.mu.Unlock()
}

func (r *BatchRunner) recordOutcome(status results.PersonaStatus, skipped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Processed++
	r.progress.Current = ""
	if skipped {
		r.progress.Skipped++
		return
	}
	switch status {
	case results.StatusComplete:
		r.progress.Complete++
	case results.StatusPartiallyComplete:
		r.progress.Partial++
	case results.StatusFailed:
		r.progress.Failed++
	}
}
