package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/poiesic/kbassist/ai"
)

// MockCompleter is a test double for ai.Completer.
type MockCompleter struct {
	// CompleteFunc is called by Complete if set.
	// If nil, the utterance is echoed back.
	CompleteFunc func(ctx context.Context, req ai.CompletionRequest) (*ai.Completion, error)

	callCount atomic.Int64
	mu        sync.Mutex
	last      ai.CompletionRequest
}

var _ ai.Completer = (*MockCompleter)(nil)

// NewMockCompleter creates a mock completer with echo behavior.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// Complete records the request and returns the configured response.
func (m *MockCompleter) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.Completion, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	m.last = req
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &ai.Completion{Text: "echo: " + req.Utterance}, nil
}

// LastRequest returns the most recent request passed to Complete.
func (m *MockCompleter) LastRequest() ai.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// CallCount returns the number of times Complete was called.
func (m *MockCompleter) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count, recorded request and custom behavior.
func (m *MockCompleter) Reset() {
	m.callCount.Store(0)
	m.mu.Lock()
	m.last = ai.CompletionRequest{}
	m.mu.Unlock()
	m.CompleteFunc = nil
}
