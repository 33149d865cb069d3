package app

import (
	"context"
	"sync"
)

// MockCompleter returns scripted results for tests and offline use.
// Results queued with Enqueue are consumed in order; when the queue is
// empty Fn is consulted, and when both are missing a canned reply is
// returned.
type MockCompleter struct {
	mu    sync.Mutex
	queue []*CompletionResult
	errs  []error
	Fn    func(req CompletionRequest) (*CompletionResult, error)
	Calls []CompletionRequest
}

func (m *MockCompleter) Enqueue(result *CompletionResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, result)
	m.errs = append(m.errs, err)
}

func (m *MockCompleter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	if len(m.queue) > 0 {
		result := m.queue[0]
		err := m.errs[0]
		m.queue = m.queue[1:]
		m.errs = m.errs[1:]
		m.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if req.OnDelta != nil && result.Content != "" {
			req.OnDelta(result.Content)
		}
		return result, nil
	}
	fn := m.Fn
	m.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &CompletionResult{Content: "I understand. Let's continue."}, nil
}
