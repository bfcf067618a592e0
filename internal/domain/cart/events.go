package cart

import (
	"encoding/json"
	"time"
)

const (
	EventProductAdded         = "ProductAddedToCart"
	EventProductRemoved       = "ProductRemovedFromCart"
	EventProductAmountUpdated = "ProductAmountUpdated"
)

// Event is the envelope published after a committed cart mutation.
type Event struct {
	ID        string          `json:"id"`
	CartKey   string          `json:"cart_key"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

type ProductAddedToCart struct {
	ProductID int       `json:"product_id"`
	Title     string    `json:"title"`
	Amount    int       `json:"amount"`
	AddedAt   time.Time `json:"added_at"`
}

type ProductRemovedFromCart struct {
	ProductID int       `json:"product_id"`
	RemovedAt time.Time `json:"removed_at"`
}

type ProductAmountUpdated struct {
	ProductID int       `json:"product_id"`
	Amount    int       `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}
