package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"twinlab/internal/results"
)

// Checkpoint records which personas a run has already finished, keyed by run
// ID. It is written after every persona so a crashed or cancelled run can
// resume without repeating model calls.
type Checkpoint struct {
	RunID    string `json:"run_id"`
	Protocol string `json:"protocol"`
	// Personas is the original selection in processing order. The personas
	// in Done plus the ones still pending always add up to exactly this
	// list, so a resume replays the same selection even when the caller no
	// longer remembers how it was drawn.
	Personas  []string                         `json:"personas,omitempty"`
	Done      map[string]results.PersonaStatus `json:"done"`
	UpdatedAt time.Time                        `json:"updated_at"`
}

// Pending lists the personas not yet finished, in processing order.
func (cp *Checkpoint) Pending() []string {
	var pending []string
	for _, id := range cp.Personas {
		if _, done := cp.Done[id]; !done {
			pending = append(pending, id)
		}
	}
	return pending
}

// NewCheckpoint starts an empty checkpoint for a run.
func NewCheckpoint(runID, protocol string) *Checkpoint {
	return &Checkpoint{RunID: runID, Protocol: protocol, Done: map[string]results.PersonaStatus{}}
}

// CheckpointStore persists checkpoints between process runs.
type CheckpointStore interface {
	// Load returns the checkpoint for runID, or nil if none exists.
	Load(runID string) (*Checkpoint, error)
	Save(cp *Checkpoint) error
	Delete(runID string) error
}

// FileCheckpointStore keeps one JSON file per run under a directory.
type FileCheckpointStore struct {
	dir string
}

// NewFileCheckpointStore creates the directory if needed.
func NewFileCheckpointStore(dir string) (*FileCheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileCheckpointStore{dir: dir}, nil
}

func (s *FileCheckpointStore) path(runID string) string {
	return filepath.Join(s.dir, sanitizeRunID(runID)+".json")
}

// Load reads a run's checkpoint. A missing file is not an error.
func (s *FileCheckpointStore) Load(runID string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.path(runID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", s.path(runID), err)
	}
	if cp.Done == nil {
		cp.Done = map[string]results.PersonaStatus{}
	}
	return &cp, nil
}

// Save writes the checkpoint atomically: temp file then rename, so a crash
// mid-write never leaves a truncated checkpoint behind.
func (s *FileCheckpointStore) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	target := s.path(cp.RunID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// Delete removes a run's checkpoint, typically after a clean finish.
func (s *FileCheckpointStore) Delete(runID string) error {
	err := os.Remove(s.path(runID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// sanitizeRunID keeps run-derived filenames flat and portable.
func sanitizeRunID(runID string) string {
	var sb strings.Builder
	for _, r := range runID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "run"
	}
	return sb.String()
}

// MemoryCheckpointStore keeps checkpoints in memory, for tests and one-shot
// runs that do not need resume.
type MemoryCheckpointStore struct {
	byRun map[string]*Checkpoint
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{byRun: map[string]*Checkpoint{}}
}

func (s *MemoryCheckpointStore) Load(runID string) (*Checkpoint, error) {
	cp, ok := s.byRun[runID]
	if !ok {
		return nil, nil
	}
	clone := cloneCheckpoint(cp)
	return clone, nil
}

func (s *MemoryCheckpointStore) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	s.byRun[cp.RunID] = cloneCheckpoint(cp)
	return nil
}

func cloneCheckpoint(cp *Checkpoint) *Checkpoint {
	clone := *cp
	clone.Personas = append([]string(nil), cp.Personas...)
	clone.Done = make(map[string]results.PersonaStatus, len(cp.Done))
	for k, v := range cp.Done {
		clone.Done[k] = v
	}
	return &clone
}

func (s *MemoryCheckpointStore) Delete(runID string) error {
	delete(s.byRun, runID)
	return nil
}
