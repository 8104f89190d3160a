package llm

import (
	"context"
	"strings"
	"sync"
)

// MockClient implements Client for tests. Replies are chosen by the first
// rule whose substring matches the last user message; unmatched calls return
// the default reply. Errors are injected the same way.
type MockClient struct {
	DefaultReply string

	mu    sync.Mutex
	rules []mockRule
	calls []CompletionRequest
}

type mockRule struct {
	substring string
	reply     string
	err       error
}

// NewMockClient returns a mock whose unmatched calls reply with defaultReply.
func NewMockClient(defaultReply string) *MockClient {
	return &MockClient{DefaultReply: defaultReply}
}

// ReplyWhen registers a canned reply for calls whose last user message
// contains substring.
func (m *MockClient) ReplyWhen(substring, reply string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{substring: substring, reply: reply})
	return m
}

// FailWhen registers an error for calls whose last user message contains
// substring.
func (m *MockClient) FailWhen(substring string, err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{substring: substring, err: err})
	return m
}

// Calls returns a copy of every request seen so far.
func (m *MockClient) Calls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.calls...)
}

// CallCount returns the number of Complete invocations.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *MockClient) Model() string { return "mock" }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	rules := append([]mockRule(nil), m.rules...)
	m.mu.Unlock()

	probe := lastUserMessage(req.Messages)
	for _, rule := range rules {
		if strings.Contains(probe, rule.substring) {
			if rule.err != nil {
				return nil, rule.err
			}
			return &CompletionResponse{
				Content: rule.reply,
				Usage:   TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
			}, nil
		}
	}

	return &CompletionResponse{
		Content: m.DefaultReply,
		Usage:   TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}, nil
}

func lastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	if len(messages) > 0 {
		return messages[len(messages)-1].Content
	}
	return ""
}
