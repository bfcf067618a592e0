package cart

import (
	"context"
	"errors"
)

// DefaultStorageKey is the key the cart snapshot is stored under.
const DefaultStorageKey = "@RocketShoes:cart"

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrStockNotFound      = errors.New("stock not found")
	ErrProductNotInCart   = errors.New("product not in cart")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrStorageFailure     = errors.New("storage failure")
	ErrServiceUnavailable = errors.New("catalog service unavailable")
	ErrSnapshotNotFound   = errors.New("snapshot not found")
)

// Product is a catalog product. Amount is only set on cart entries.
type Product struct {
	ID     int     `json:"id"`
	Title  string  `json:"title"`
	Price  float64 `json:"price"`
	Image  string  `json:"image"`
	Amount int     `json:"amount,omitempty"`
}

// StockEntry is the maximum purchasable quantity of a product.
type StockEntry struct {
	ID     int `json:"id"`
	Amount int `json:"amount"`
}

// Catalog is the read-only source of products and stock levels.
// GetProduct returns ErrProductNotFound and GetStock returns
// ErrStockNotFound when the id is unknown.
type Catalog interface {
	GetProduct(ctx context.Context, id int) (*Product, error)
	GetStock(ctx context.Context, id int) (*StockEntry, error)
	ListProducts(ctx context.Context) ([]Product, error)
	ListStock(ctx context.Context) ([]StockEntry, error)
}

// Store is durable key-value storage for the cart snapshot.
// Read returns ErrSnapshotNotFound when the key is absent.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
}

// Publisher receives cart events after each committed mutation.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Summary is the display total of a cart.
type Summary struct {
	Items    int     `json:"total_items"`
	Subtotal float64 `json:"subtotal"`
}

// Totals sums amounts and price*amount over the cart.
func Totals(items []Product) Summary {
	var s Summary
	for _, p := range items {
		s.Items += p.Amount
		s.Subtotal += p.Price * float64(p.Amount)
	}
	return s
}

func indexOf(items []Product, productID int) int {
	for i, p := range items {
		if p.ID == productID {
			return i
		}
	}
	return -1
}

func clone(items []Product) []Product {
	out := make([]Product, len(items))
	copy(out, items)
	return out
}
