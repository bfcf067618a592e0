package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-cart/internal/domain/cart"
)

// MockPublisher records published cart events
type MockPublisher struct {
	mu     sync.Mutex
	events []cart.Event

	PublishErr error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, key string, event any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := event.(cart.Event); ok {
		m.events = append(m.events, e)
	}
	return m.PublishErr
}

func (m *MockPublisher) Events() []cart.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]cart.Event, len(m.events))
	copy(out, m.events)
	return out
}
