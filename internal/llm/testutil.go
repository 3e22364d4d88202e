package llm

import (
	"context"
	"sync"
)

// MockGenerator returns scripted completions in order. Safe for
// concurrent use.
type MockGenerator struct {
	mu        sync.Mutex
	responses []string
	errors    []error
	calls     []Request
	callIndex int
}

// NewMockGenerator creates an empty mock.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

func (m *MockGenerator) Name() string { return "mock" }

// AddResponse queues one completion (or error) to return.
func (m *MockGenerator) AddResponse(text string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, text)
	m.errors = append(m.errors, err)
}

// Generate returns the next scripted response. Past the script it
// returns ErrEmptyCompletion.
func (m *MockGenerator) Generate(_ context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)
	if m.callIndex >= len(m.responses) {
		return "", ErrEmptyCompletion
	}
	resp := m.responses[m.callIndex]
	err := m.errors[m.callIndex]
	m.callIndex++
	return resp, err
}

// Calls returns every recorded request.
func (m *MockGenerator) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}
