// Package results accumulates per-question response records during a run and
// produces export snapshots and summary statistics afterwards.
package results

import (
	"sort"
	"sync"
	"time"

	"twinlab/internal/llm"
)

// PersonaStatus describes how far a persona got through the protocol.
type PersonaStatus string

const (
	StatusComplete          PersonaStatus = "complete"
	StatusPartiallyComplete PersonaStatus = "partially_complete"
	StatusFailed            PersonaStatus = "failed"
)

// ResponseRecord is one question's outcome for one persona.
type ResponseRecord struct {
	PersonaID     string         `json:"persona_id"`
	QuestionIndex int            `json:"question_index"`
	QuestionID    string         `json:"question_id"`
	QuestionText  string         `json:"question_text"`
	Category      string         `json:"category,omitempty"`
	Score         int            `json:"score,omitempty"`
	Reasoning     string         `json:"reasoning,omitempty"`
	Answer        string         `json:"answer,omitempty"`
	RawReply      string         `json:"raw_reply,omitempty"`
	Valid         bool           `json:"valid"`
	Error         string         `json:"error,omitempty"`
	Model         string         `json:"model,omitempty"`
	Usage         llm.TokenUsage `json:"usage,omitempty"`
	Elapsed       time.Duration  `json:"elapsed_ns,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// PersonaOutcome is the per-persona rollup recorded when the engine finishes
// (or abandons) a persona.
type PersonaOutcome struct {
	PersonaID string        `json:"persona_id"`
	Status    PersonaStatus `json:"status"`
	Answered  int           `json:"answered"`
	Total     int           `json:"total"`
	// FailedIndexes lists every question index without a valid record:
	// invalid answers, failed calls, and questions never reached.
	FailedIndexes []int  `json:"failed_indexes,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Store collects records as a run progresses. Safe for concurrent use. A
// record with the same (persona, question index) key replaces the earlier
// one, which is what re-asks and resumed runs rely on.
type Store struct {
	mu       sync.Mutex
	records  []ResponseRecord
	index    map[recordKey]int
	outcomes map[string]PersonaOutcome
}

type recordKey struct {
	personaID     string
	questionIndex int
}

// NewStore returns an empty result store.
func NewStore() *Store {
	return &Store{
		index:    make(map[recordKey]int),
		outcomes: make(map[string]PersonaOutcome),
	}
}

// Add inserts or replaces a record by its (persona, question index) key.
func (s *Store) Add(record ResponseRecord) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{record.PersonaID, record.QuestionIndex}
	if pos, ok := s.index[key]; ok {
		s.records[pos] = record
		return
	}
	s.index[key] = len(s.records)
	s.records = append(s.records, record)
}

// SetOutcome records the final status for one persona.
func (s *Store) SetOutcome(outcome PersonaOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[outcome.PersonaID] = outcome
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Export returns a copy of all records ordered by persona then question
// index. The store keeps accepting writes afterwards; exporting has no side
// effects.
func (s *Store) Export() []ResponseRecord {
	s.mu.Lock()
	records := append([]ResponseRecord(nil), s.records...)
	s.mu.Unlock()

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].PersonaID != records[j].PersonaID {
			return records[i].PersonaID < records[j].PersonaID
		}
		return records[i].QuestionIndex < records[j].QuestionIndex
	})
	return records
}

// Outcomes returns the per-persona outcomes sorted by persona ID.
func (s *Store) Outcomes() []PersonaOutcome {
	s.mu.Lock()
	outcomes := make([]PersonaOutcome, 0, len(s.outcomes))
	for _, o := range s.outcomes {
		outcomes = append(outcomes, o)
	}
	s.mu.Unlock()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].PersonaID < outcomes[j].PersonaID })
	return outcomes
}

// QuestionStat aggregates the valid scale answers for one question.
type QuestionStat struct {
	QuestionIndex int     `json:"question_index"`
	QuestionID    string  `json:"question_id"`
	QuestionText  string  `json:"question_text"`
	Responses     int     `json:"responses"`
	ValidScores   int     `json:"valid_scores"`
	MeanScore     float64 `json:"mean_score"`
	MinScore      int     `json:"min_score"`
	MaxScore      int     `json:"max_score"`
}

// Summary is the run-level aggregate produced after a run.
type Summary struct {
	Personas      int            `json:"personas"`
	Complete      int            `json:"complete"`
	Partial       int            `json:"partial"`
	Failed        int            `json:"failed"`
	Records       int            `json:"records"`
	ValidRecords  int            `json:"valid_records"`
	TotalTokens   int            `json:"total_tokens"`
	QuestionStats []QuestionStat `json:"question_stats,omitempty"`
}

// Summarize computes run-level statistics. Mean scores cover only valid scale
// answers; invalid records still count toward Records.
func (s *Store) Summarize() Summary {
	records := s.Export()
	outcomes := s.Outcomes()

	summary := Summary{Personas: len(outcomes), Records: len(records)}
	for _, o := range outcomes {
		switch o.Status {
		case StatusComplete:
			summary.Complete++
		case StatusPartiallyComplete:
			summary.Partial++
		case StatusFailed:
			summary.Failed++
		}
	}

	type accum struct {
		stat  QuestionStat
		total int
	}
	byQuestion := map[int]*accum{}
	var order []int

	for _, r := range records {
		summary.TotalTokens += r.Usage.TotalTokens
		if r.Valid {
			summary.ValidRecords++
		}

		a, ok := byQuestion[r.QuestionIndex]
		if !ok {
			a = &accum{stat: QuestionStat{
				QuestionIndex: r.QuestionIndex,
				QuestionID:    r.QuestionID,
				QuestionText:  r.QuestionText,
			}}
			byQuestion[r.QuestionIndex] = a
			order = append(order, r.QuestionIndex)
		}
		a.stat.Responses++
		if r.Valid && r.Score != 0 {
			if a.stat.ValidScores == 0 {
				a.stat.MinScore = r.Score
				a.stat.MaxScore = r.Score
			} else {
				if r.Score < a.stat.MinScore {
					a.stat.MinScore = r.Score
				}
				if r.Score > a.stat.MaxScore {
					a.stat.MaxScore = r.Score
				}
			}
			a.stat.ValidScores++
			a.total += r.Score
		}
	}

	sort.Ints(order)
	for _, idx := range order {
		a := byQuestion[idx]
		if a.stat.ValidScores > 0 {
			a.stat.MeanScore = float64(a.total) / float64(a.stat.ValidScores)
		}
		summary.QuestionStats = append(summary.QuestionStats, a.stat)
	}
	return summary
}
