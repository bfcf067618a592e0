package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-cart/internal/domain/cart"
)

// MockCatalog is a configurable cart.Catalog for testing
type MockCatalog struct {
	mu       sync.RWMutex
	products map[int]cart.Product
	stock    map[int]int

	ProductErr error
	StockErr   error

	ProductCalls int
	StockCalls   int
}

func NewMockCatalog() *MockCatalog {
	return &MockCatalog{
		products: make(map[int]cart.Product),
		stock:    make(map[int]int),
	}
}

// AddProduct registers a product with the given stock
func (m *MockCatalog) AddProduct(p cart.Product, stock int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Amount = 0
	m.products[p.ID] = p
	m.stock[p.ID] = stock
}

// AddProductWithoutStock registers a product that has no stock entry
func (m *MockCatalog) AddProductWithoutStock(p cart.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	delete(m.stock, p.ID)
}

func (m *MockCatalog) SetStock(id, amount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[id] = amount
}

func (m *MockCatalog) GetProduct(ctx context.Context, id int) (*cart.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProductCalls++

	if m.ProductErr != nil {
		return nil, m.ProductErr
	}
	p, ok := m.products[id]
	if !ok {
		return nil, cart.ErrProductNotFound
	}
	return &p, nil
}

func (m *MockCatalog) GetStock(ctx context.Context, id int) (*cart.StockEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StockCalls++

	if m.StockErr != nil {
		return nil, m.StockErr
	}
	amount, ok := m.stock[id]
	if !ok {
		return nil, cart.ErrStockNotFound
	}
	return &cart.StockEntry{ID: id, Amount: amount}, nil
}

func (m *MockCatalog) ListProducts(ctx context.Context) ([]cart.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ProductErr != nil {
		return nil, m.ProductErr
	}
	out := make([]cart.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *MockCatalog) ListStock(ctx context.Context) ([]cart.StockEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.StockErr != nil {
		return nil, m.StockErr
	}
	out := make([]cart.StockEntry, 0, len(m.stock))
	for id, amount := range m.stock {
		out = append(out, cart.StockEntry{ID: id, Amount: amount})
	}
	return out, nil
}
