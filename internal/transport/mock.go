package transport

import (
	"context"
	"sync"
)

// MockTransport is a deterministic, programmable Transport for tests.
// Handlers are matched by exact URL; falling back to Default when no
// handler is registered for desc.URL.
type MockTransport struct {
	mu       sync.Mutex
	handlers map[string]func(ctx context.Context, desc Descriptor) (any, error)
	Default  func(ctx context.Context, desc Descriptor) (any, error)
	Calls    []Descriptor
}

func NewMockTransport() *MockTransport {
	return &MockTransport{handlers: make(map[string]func(ctx context.Context, desc Descriptor) (any, error))}
}

func (m *MockTransport) On(url string, handler func(ctx context.Context, desc Descriptor) (any, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[url] = handler
}

func (m *MockTransport) Request(ctx context.Context, desc Descriptor) (any, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, desc)
	handler, ok := m.handlers[desc.URL]
	m.mu.Unlock()

	if ok {
		return handler(ctx, desc)
	}
	if m.Default != nil {
		return m.Default(ctx, desc)
	}
	return nil, nil
}

func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
