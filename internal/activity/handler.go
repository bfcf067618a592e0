package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/example/ec-cart/internal/domain/cart"
)

// Handler consumes published cart events, logs them and keeps per-type tallies.
type Handler struct {
	mu     sync.RWMutex
	counts map[string]int
	last   map[string]cart.Event // cart key -> latest event
}

func NewHandler() *Handler {
	return &Handler{
		counts: make(map[string]int),
		last:   make(map[string]cart.Event),
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event cart.Event
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("[Activity] Failed to unmarshal event: %v", err)
		return err
	}

	switch event.EventType {
	case cart.EventProductAdded:
		var e cart.ProductAddedToCart
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", event.EventType, err)
		}
		log.Printf("[Activity] %s: product %d (%s) now x%d", event.CartKey, e.ProductID, e.Title, e.Amount)
	case cart.EventProductRemoved:
		var e cart.ProductRemovedFromCart
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", event.EventType, err)
		}
		log.Printf("[Activity] %s: product %d removed", event.CartKey, e.ProductID)
	case cart.EventProductAmountUpdated:
		var e cart.ProductAmountUpdated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", event.EventType, err)
		}
		log.Printf("[Activity] %s: product %d set to x%d", event.CartKey, e.ProductID, e.Amount)
	default:
		log.Printf("[Activity] Ignoring unknown event type %q", event.EventType)
		return nil
	}

	h.mu.Lock()
	h.counts[event.EventType]++
	h.last[event.CartKey] = event
	h.mu.Unlock()
	return nil
}

// Count returns how many events of eventType were handled.
func (h *Handler) Count(eventType string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.counts[eventType]
}

// Last returns the latest event seen for a cart.
func (h *Handler) Last(cartKey string) (cart.Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.last[cartKey]
	return e, ok
}
