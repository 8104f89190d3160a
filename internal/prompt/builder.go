// Package prompt turns personas and questions into model messages. Output is
// deterministic: the same persona and question always produce byte-identical
// prompts, so runs can be compared and replayed.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"twinlab/internal/llm"
	"twinlab/internal/persona"
	"twinlab/internal/study"
)

const (
	// DefaultContextCacheSize bounds the memoized persona context blocks.
	DefaultContextCacheSize = 512

	scaleInstructions = "Answer on a scale of 1 to 7, where 1 means strongly disagree and 7 means strongly agree.\n" +
		"Reply in exactly this format:\n" +
		"Score: <number from 1 to 7>\n" +
		"Reason: <one or two sentences explaining your score>"

	openInstructions = "Answer in your own voice, in a few sentences. Do not give a numeric rating."
)

// Builder constructs prompts for survey and interview calls. Persona context
// rendering is memoized since every question for a persona shares it.
type Builder struct {
	contexts *lru.Cache[string, string]
}

// NewBuilder returns a Builder with a bounded persona context cache.
func NewBuilder() *Builder {
	cache, _ := lru.New[string, string](DefaultContextCacheSize)
	return &Builder{contexts: cache}
}

// personaContext renders the system-prompt block describing who the model is
// answering as. Attributes are emitted in sorted key order so the block is
// stable across runs.
func (b *Builder) personaContext(p *persona.Persona) string {
	if cached, ok := b.contexts.Get(p.ID); ok {
		return cached
	}

	var sb strings.Builder
	sb.WriteString("You are answering as the following person. Stay in character, ")
	sb.WriteString("answer from their perspective, and never mention being an AI.\n\n")

	keys := make([]string, 0, len(p.Attributes))
	for key := range p.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&sb, "%s: %s\n", key, p.Attributes[key])
	}

	narrative := strings.TrimSpace(p.Narrative)
	if narrative != "" {
		if len(keys) > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Profile:\n")
		sb.WriteString(narrative)
	}

	rendered := sb.String()
	b.contexts.Add(p.ID, rendered)
	return rendered
}

// SurveyMessages builds the message list for one survey question. Survey
// questions are independent: no prior answers are included. studyContext,
// when non-empty, frames the question.
func (b *Builder) SurveyMessages(p *persona.Persona, studyContext string, q study.Question) []llm.Message {
	text := b.questionText(q)
	if studyContext != "" {
		text = studyContext + "\n\n" + text
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: b.personaContext(p)},
		{Role: llm.RoleUser, Content: text},
	}
}

// InterviewMessages builds the message list for the next interview question:
// persona context, then the full transcript so far, then the new question.
func (b *Builder) InterviewMessages(p *persona.Persona, transcript []llm.Message, question string) []llm.Message {
	messages := make([]llm.Message, 0, len(transcript)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: b.personaContext(p)})
	messages = append(messages, transcript...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question + "\n\n" + openInstructions})
	return messages
}

func (b *Builder) questionText(q study.Question) string {
	switch q.Kind {
	case study.KindScale:
		return q.Text + "\n\n" + scaleInstructions
	default:
		return q.Text + "\n\n" + openInstructions
	}
}

// PromptSize returns the total character length of a message list, a cheap
// proxy used in logs before token counting.
func PromptSize(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	return total
}
