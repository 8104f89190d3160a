package survey

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	twinerrors "twinlab/internal/errors"
	"twinlab/internal/llm"
	"twinlab/internal/persona"
	"twinlab/internal/prompt"
	"twinlab/internal/results"
	"twinlab/internal/study"
)

func testSurvey() *study.Survey {
	return &study.Survey{
		Name: "attitudes",
		Questions: []study.Question{
			{ID: "q1", Text: "I trust new technology.", Kind: study.KindScale},
			{ID: "q2", Text: "I prefer shopping in person.", Kind: study.KindScale},
		},
	}
}

func newEngine(client llm.Client, sv *study.Survey, opts Options) (*Engine, *results.Store) {
	store := results.NewStore()
	return NewEngine(client, prompt.NewBuilder(), store, sv, opts, nil), store
}

func TestRunPersonaComplete(t *testing.T) {
	mock := llm.NewMockClient("Score: 5\nReason: it usually works out for me.")
	engine, store := newEngine(mock, testSurvey(), DefaultOptions())

	outcome := engine.RunPersona(context.Background(), &persona.Persona{ID: "p1", Narrative: "n"})
	require.Equal(t, results.StatusComplete, outcome.Status)
	require.Equal(t, 2, outcome.Answered)
	require.Empty(t, outcome.FailedIndexes)
	require.Equal(t, 2, store.Len())

	rec := store.Export()[0]
	require.Equal(t, 5, rec.Score)
	require.True(t, rec.Valid)
	require.Equal(t, "it usually works out for me.", rec.Reasoning)
	require.Equal(t, "mock", rec.Model)
}

// Three personas, two questions; persona B answers Q1 out of range. A and C
// finish complete, B is partially complete with Q1 flagged.
func TestRunBatchWithOneInvalidAnswer(t *testing.T) {
	store := results.NewStore()

	for _, id := range []string{"A", "B", "C"} {
		client := llm.NewMockClient("Score: 5\nReason: fine.")
		if id == "B" {
			client.ReplyWhen("I trust new technology", "9, because I feel strongly about this.")
		}
		engine := NewEngine(client, prompt.NewBuilder(), store, testSurvey(), DefaultOptions(), nil)
		outcome := engine.RunPersona(context.Background(), &persona.Persona{ID: id})
		if id == "B" {
			require.Equal(t, results.StatusPartiallyComplete, outcome.Status)
			require.Equal(t, []int{0}, outcome.FailedIndexes)
		} else {
			require.Equal(t, results.StatusComplete, outcome.Status)
		}
	}
	require.Equal(t, 6, store.Len())

	invalid := 0
	for _, rec := range store.Export() {
		if !rec.Valid {
			invalid++
			require.Equal(t, "B", rec.PersonaID)
			require.Equal(t, 9, rec.Score)
		}
	}
	require.Equal(t, 1, invalid)
}

// A failed call on the middle question leaves the surrounding records intact.
func TestRunPersonaContinuesPastModelUnavailable(t *testing.T) {
	sv := &study.Survey{Name: "three", Questions: []study.Question{
		{ID: "q1", Text: "Question one.", Kind: study.KindScale},
		{ID: "q2", Text: "Question two.", Kind: study.KindScale},
		{ID: "q3", Text: "Question three.", Kind: study.KindScale},
	}}
	unavailable := &twinerrors.ModelUnavailableError{Attempts: 3, Err: errors.New("rate limited")}
	mock := llm.NewMockClient("Score: 4\nReason: ok.").FailWhen("Question two", unavailable)
	engine, store := newEngine(mock, sv, DefaultOptions())

	outcome := engine.RunPersona(context.Background(), &persona.Persona{ID: "P"})
	require.Equal(t, results.StatusPartiallyComplete, outcome.Status)
	require.Equal(t, 2, outcome.Answered)
	require.Equal(t, []int{1}, outcome.FailedIndexes)

	exported := store.Export()
	require.Len(t, exported, 3)
	require.True(t, exported[0].Valid)
	require.False(t, exported[1].Valid)
	require.Contains(t, exported[1].Error, "unavailable")
	require.True(t, exported[2].Valid)
}

func TestRunPersonaStopsOnPermanentError(t *testing.T) {
	permanent := twinerrors.NewPermanentError(errors.New("API error 401"), "authentication failed")
	mock := llm.NewMockClient("").FailWhen("I trust new technology", permanent)
	engine, store := newEngine(mock, testSurvey(), DefaultOptions())

	outcome := engine.RunPersona(context.Background(), &persona.Persona{ID: "p1"})
	require.Equal(t, results.StatusFailed, outcome.Status)
	require.Zero(t, outcome.Answered)
	require.Equal(t, []int{0, 1}, outcome.FailedIndexes)
	// only the attempted question has a record; the second was never sent
	require.Equal(t, 1, store.Len())
	require.Equal(t, 1, mock.CallCount())
}

func TestRunPersonaReasksInvalidOnce(t *testing.T) {
	mock := llm.NewMockClient("I would rather not pick a number.")
	opts := DefaultOptions()
	opts.ReaskInvalid = true
	engine, store := newEngine(mock, testSurvey(), opts)

	engine.RunPersona(context.Background(), &persona.Persona{ID: "p1"})
	// two questions, each asked then re-asked once
	require.Equal(t, 4, mock.CallCount())
	require.Equal(t, 2, store.Len())
}

func TestRunPersonaOpenQuestionLengthPolicy(t *testing.T) {
	sv := &study.Survey{Name: "open", Questions: []study.Question{
		{ID: "q1", Text: "Describe your last purchase.", Kind: study.KindOpen, MinLength: 15},
	}}
	mock := llm.NewMockClient("Too short.")
	engine, store := newEngine(mock, sv, DefaultOptions())

	outcome := engine.RunPersona(context.Background(), &persona.Persona{ID: "p1"})
	require.Equal(t, results.StatusPartiallyComplete, outcome.Status)
	rec := store.Export()[0]
	require.False(t, rec.Valid)
	require.Equal(t, "Too short.", rec.Answer)
}

func TestRunPersonaRequireReasoning(t *testing.T) {
	sv := &study.Survey{Name: "strict", Questions: []study.Question{
		{ID: "q1", Text: "I like surveys.", Kind: study.KindScale, RequireReasoning: true},
	}}
	mock := llm.NewMockClient("Score: 6")
	engine, store := newEngine(mock, sv, DefaultOptions())

	engine.RunPersona(context.Background(), &persona.Persona{ID: "p1"})
	require.False(t, store.Export()[0].Valid)
}

func TestSurveyContextReachesPrompt(t *testing.T) {
	sv := testSurvey()
	sv.Context = "You are taking a consumer research survey."
	mock := llm.NewMockClient("Score: 4\nReason: sure.")
	engine, _ := newEngine(mock, sv, DefaultOptions())

	engine.RunPersona(context.Background(), &persona.Persona{ID: "p1"})
	first := mock.Calls()[0].Messages
	require.Contains(t, first[len(first)-1].Content, "consumer research survey")
}
