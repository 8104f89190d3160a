// Package survey runs fixed-question surveys against personas. Each question
// is an independent model call; answers never leak between questions.
package survey

import (
	"context"
	"time"

	twinerrors "twinlab/internal/errors"
	"twinlab/internal/llm"
	"twinlab/internal/logging"
	"twinlab/internal/metrics"
	"twinlab/internal/persona"
	"twinlab/internal/prompt"
	"twinlab/internal/results"
	"twinlab/internal/study"
)

// Options tune one survey run.
type Options struct {
	Temperature float64
	MaxTokens   int
	// ReaskInvalid re-asks a scale question once when the reply cannot be
	// parsed into the 1-7 range. The re-asked record replaces the invalid one.
	ReaskInvalid bool
}

// DefaultOptions match the study protocol for surveys.
func DefaultOptions() Options {
	return Options{Temperature: 0.7, MaxTokens: 200}
}

// Engine executes a survey for one persona at a time.
type Engine struct {
	client  llm.Client
	builder *prompt.Builder
	store   *results.Store
	survey  *study.Survey
	opts    Options
	metrics *metrics.Metrics
	logger  logging.Logger
}

// NewEngine builds a survey engine writing into store.
func NewEngine(client llm.Client, builder *prompt.Builder, store *results.Store, sv *study.Survey, opts Options, m *metrics.Metrics) *Engine {
	return &Engine{
		client:  client,
		builder: builder,
		store:   store,
		survey:  sv,
		opts:    opts,
		metrics: m,
		logger:  logging.NewComponentLogger("survey"),
	}
}

// Name identifies the protocol in checkpoints and logs.
func (e *Engine) Name() string { return "survey:" + e.survey.Name }

// QuestionCount returns the number of questions per persona.
func (e *Engine) QuestionCount() int { return len(e.survey.Questions) }

// RunPersona asks every survey question in order. A failed or unparseable
// question is stored as a failed record and the remaining questions still
// run; only cancellation and permanent provider errors end the persona early.
func (e *Engine) RunPersona(ctx context.Context, p *persona.Persona) results.PersonaOutcome {
	total := len(e.survey.Questions)
	outcome := results.PersonaOutcome{PersonaID: p.ID, Total: total}

	for idx, question := range e.survey.Questions {
		record, err := e.ask(ctx, p, idx, question)
		if err != nil && ctx.Err() != nil {
			// cancelled mid-call; nothing recorded for this question, the
			// runner leaves the persona pending
			outcome.Error = err.Error()
			for j := idx; j < total; j++ {
				outcome.FailedIndexes = append(outcome.FailedIndexes, j)
			}
			break
		}
		if err != nil {
			e.logger.Error("persona %s question %d: %v", p.ID, idx, err)
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

		if err != nil && twinerrors.IsPermanent(err) {
			// the provider rejected credentials or the request shape;
			// later questions would fail identically
			outcome.Error = err.Error()
			for j := idx + 1; j < total; j++ {
				outcome.FailedIndexes = append(outcome.FailedIndexes, j)
			}
			break
		}
	}

	switch {
	case outcome.Answered == total:
		outcome.Status = results.StatusComplete
	case outcome.Answered == 0 && outcome.Error != "":
		outcome.Status = results.StatusFailed
	default:
		outcome.Status = results.StatusPartiallyComplete
	}
	e.metrics.ObservePersona(string(outcome.Status))
	return outcome
}

func (e *Engine) ask(ctx context.Context, p *persona.Persona, idx int, q study.Question) (results.ResponseRecord, error) {
	record, err := e.completeOnce(ctx, p, idx, q)
	if err != nil {
		return record, err
	}

	if !record.Valid && q.Kind == study.KindScale && e.opts.ReaskInvalid {
		e.logger.Warn("persona %s question %d: unparseable reply, re-asking once", p.ID, idx)
		retried, err := e.completeOnce(ctx, p, idx, q)
		if err == nil {
			return retried, nil
		}
	}
	return record, nil
}

func (e *Engine) completeOnce(ctx context.Context, p *persona.Persona, idx int, q study.Question) (results.ResponseRecord, error) {
	record := results.ResponseRecord{
		PersonaID:     p.ID,
		QuestionIndex: idx,
		QuestionID:    q.ID,
		QuestionText:  q.Text,
		Category:      q.Category,
		Model:         e.client.Model(),
	}

	started := time.Now()
	resp, err := e.client.Complete(ctx, llm.CompletionRequest{
		Messages:    e.builder.SurveyMessages(p, e.survey.Context, q),
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
	})
	elapsed := time.Since(started)
	if err != nil {
		e.metrics.ObserveCall("error", elapsed)
		return record, err
	}
	e.metrics.ObserveCall("ok", elapsed)

	record.RawReply = resp.Content
	record.Usage = resp.Usage
	record.Elapsed = elapsed

	switch q.Kind {
	case study.KindScale:
		answer := llm.ParseScale(resp.Content)
		record.Score = answer.Score
		record.Reasoning = answer.Reasoning
		record.Valid = answer.Valid
		if q.RequireReasoning && answer.Reasoning == "" {
			record.Valid = false
		}
	default:
		record.Answer = resp.Content
		record.Valid = llm.CheckOpenLength(resp.Content, q.MinLength, q.MaxLength)
	}
	return record, nil
}
