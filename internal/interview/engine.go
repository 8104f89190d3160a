// Package interview runs open-ended question protocols against personas. In
// batch mode every question is independent, like a survey with free-text
// answers. In interactive mode the full conversation is carried between
// questions so follow-ups see earlier answers; transcript growth is bounded
// by a token limit.
package interview

import (
	"context"
	"fmt"
	"time"

	twinerrors "twinlab/internal/errors"
	"twinlab/internal/llm"
	"twinlab/internal/logging"
	"twinlab/internal/metrics"
	"twinlab/internal/persona"
	"twinlab/internal/prompt"
	"twinlab/internal/results"
	"twinlab/internal/study"
	"twinlab/internal/token"
)

// Options tune one interview run.
type Options struct {
	Temperature float64
	MaxTokens   int
	// ContextLimit caps the token count of the prompt we are about to send.
	// Exceeding it abandons the persona rather than sending a truncated or
	// rejected request.
	ContextLimit int
	MinLength    int
	MaxLength    int
}

// DefaultOptions match the study protocol for interviews.
func DefaultOptions() Options {
	return Options{Temperature: 0.8, MaxTokens: 500, ContextLimit: 8192}
}

// QuestionSource feeds questions to an operator-driven session, one per turn.
// Returning ok=false ends the interview.
type QuestionSource interface {
	Next(turn int, lastAnswer string) (question string, ok bool, err error)
}

// Engine executes interviews for one persona at a time.
type Engine struct {
	client  llm.Client
	builder *prompt.Builder
	store   *results.Store
	guide   *study.Interview
	opts    Options
	metrics *metrics.Metrics
	logger  logging.Logger
}

// NewEngine builds an interview engine writing into store.
func NewEngine(client llm.Client, builder *prompt.Builder, store *results.Store, guide *study.Interview, opts Options, m *metrics.Metrics) *Engine {
	return &Engine{
		client:  client,
		builder: builder,
		store:   store,
		guide:   guide,
		opts:    opts,
		metrics: m,
		logger:  logging.NewComponentLogger("interview"),
	}
}

// Name identifies the protocol in checkpoints and logs.
func (e *Engine) Name() string { return "interview:" + e.guide.Name }

// QuestionCount returns the guide length. Operator-driven sessions have no
// fixed length and report zero.
func (e *Engine) QuestionCount() int { return len(e.guide.Questions) }

// RunPersona walks the guide in order. In batch mode a failed question is
// stored as a failed record and the remaining questions still run, exactly
// like a survey. In interactive mode the conversation carries forward, so a
// failed turn or a transcript exceeding the context limit ends this persona's
// interview with the failure recorded; earlier answers are kept either way.
func (e *Engine) RunPersona(ctx context.Context, p *persona.Persona) results.PersonaOutcome {
	total := len(e.guide.Questions)
	outcome := results.PersonaOutcome{PersonaID: p.ID, Total: total}
	carry := e.guide.Mode == study.ModeInteractive
	var transcript []llm.Message

	for idx, q := range e.guide.Questions {
		record, reply, err := e.askTurn(ctx, p, transcript, idx, q)
		if err != nil && ctx.Err() != nil {
			outcome.Error = err.Error()
			for j := idx; j < total; j++ {
				outcome.FailedIndexes = append(outcome.FailedIndexes, j)
			}
			break
		}
		if err != nil {
			e.logger.Error("persona %s turn %d: %v", p.ID, idx, err)
			record.Valid = false
			record.Error = err.Error()
		}

		e.store.Add(record)
		e.metrics.ObserveRecord(record.Valid)
		e.metrics.AddTokens(record.Usage.TotalTokens)
		if record.Valid {
			outcome.Answered++
		} else {
			outcome.FailedIndexes = append(outcome.FailedIndexes, idx)
		}

		if err != nil {
			if !carry && !twinerrors.IsPermanent(err) {
				// batch questions are independent; the next one may succeed
				continue
			}
			// interactive: the conversation is broken, later follow-ups
			// would lack the answer they depend on. Permanent provider
			// errors fail identically for every remaining question.
			outcome.Error = err.Error()
			for j := idx + 1; j < total; j++ {
				outcome.FailedIndexes = append(outcome.FailedIndexes, j)
			}
			break
		}

		if carry {
			transcript = append(transcript,
				llm.Message{Role: llm.RoleUser, Content: q.Text},
				llm.Message{Role: llm.RoleAssistant, Content: reply},
			)
		}
	}

	outcome.Status = e.status(outcome)
	e.metrics.ObservePersona(string(outcome.Status))
	return outcome
}

// RunInteractive drives a session where questions arrive from source, for
// example an operator at a terminal. Records carry generated turn IDs.
func (e *Engine) RunInteractive(ctx context.Context, p *persona.Persona, source QuestionSource) (results.PersonaOutcome, error) {
	outcome := results.PersonaOutcome{PersonaID: p.ID}
	var transcript []llm.Message
	lastAnswer := ""

	for turn := 0; ; turn++ {
		text, ok, err := source.Next(turn, lastAnswer)
		if err != nil {
			return outcome, err
		}
		if !ok {
			break
		}
		outcome.Total++

		q := study.Question{ID: fmt.Sprintf("turn%d", turn+1), Text: text, Kind: study.KindOpen}
		record, reply, err := e.askTurn(ctx, p, transcript, turn, q)
		if err != nil {
			outcome.Error = err.Error()
			outcome.FailedIndexes = append(outcome.FailedIndexes, turn)
			if ctx.Err() == nil {
				record.Valid = false
				record.Error = err.Error()
				e.store.Add(record)
			}
			outcome.Status = e.status(outcome)
			return outcome, err
		}

		e.store.Add(record)
		e.metrics.ObserveRecord(record.Valid)
		e.metrics.AddTokens(record.Usage.TotalTokens)
		if record.Valid {
			outcome.Answered++
		} else {
			outcome.FailedIndexes = append(outcome.FailedIndexes, turn)
		}
		lastAnswer = reply
		transcript = append(transcript,
			llm.Message{Role: llm.RoleUser, Content: text},
			llm.Message{Role: llm.RoleAssistant, Content: reply},
		)
	}

	outcome.Status = e.status(outcome)
	e.metrics.ObservePersona(string(outcome.Status))
	return outcome, nil
}

func (e *Engine) status(outcome results.PersonaOutcome) results.PersonaStatus {
	switch {
	case outcome.Answered == outcome.Total:
		return results.StatusComplete
	case outcome.Answered == 0 && outcome.Error != "":
		return results.StatusFailed
	default:
		return results.StatusPartiallyComplete
	}
}

func (e *Engine) askTurn(ctx context.Context, p *persona.Persona, transcript []llm.Message, idx int, q study.Question) (results.ResponseRecord, string, error) {
	record := results.ResponseRecord{
		PersonaID:     p.ID,
		QuestionIndex: idx,
		QuestionID:    q.ID,
		QuestionText:  q.Text,
		Category:      q.Category,
		Model:         e.client.Model(),
	}

	messages := e.builder.InterviewMessages(p, transcript, q.Text)
	if e.opts.ContextLimit > 0 {
		tokens := countMessages(messages)
		if tokens > e.opts.ContextLimit {
			return record, "", &twinerrors.ContextOverflowError{PersonaID: p.ID, Tokens: tokens, Limit: e.opts.ContextLimit}
		}
	}

	started := time.Now()
	resp, err := e.client.Complete(ctx, llm.CompletionRequest{
		Messages:    messages,
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
	})
	elapsed := time.Since(started)
	if err != nil {
		e.metrics.ObserveCall("error", elapsed)
		return record, "", err
	}
	e.metrics.ObserveCall("ok", elapsed)

	minLen, maxLen := q.MinLength, q.MaxLength
	if minLen == 0 {
		minLen = e.opts.MinLength
	}
	if maxLen == 0 {
		maxLen = e.opts.MaxLength
	}

	record.RawReply = resp.Content
	record.Answer = resp.Content
	record.Usage = resp.Usage
	record.Elapsed = elapsed
	record.Valid = llm.CheckOpenLength(resp.Content, minLen, maxLen)
	return record, resp.Content, nil
}

func countMessages(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += token.Count(m.Content)
	}
	return total
}
