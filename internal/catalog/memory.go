package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/example/ec-cart/internal/domain/cart"
)

// Seed is the json-server style database layout.
type Seed struct {
	Products []cart.Product    `json:"products"`
	Stock    []cart.StockEntry `json:"stock"`
}

// Memory is an in-process catalog. Listing preserves seed order.
type Memory struct {
	mu       sync.RWMutex
	order    []int
	products map[int]cart.Product
	stock    map[int]cart.StockEntry
}

func NewMemory(products []cart.Product, stock []cart.StockEntry) *Memory {
	m := &Memory{
		products: make(map[int]cart.Product),
		stock:    make(map[int]cart.StockEntry),
	}
	for _, p := range products {
		m.PutProduct(p)
	}
	for _, s := range stock {
		m.SetStock(s.ID, s.Amount)
	}
	return m
}

// LoadSeed reads a {"products": [...], "stock": [...]} file.
func LoadSeed(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to decode catalog seed: %w", err)
	}
	return NewMemory(seed.Products, seed.Stock), nil
}

func (m *Memory) PutProduct(p cart.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Amount = 0
	if _, ok := m.products[p.ID]; !ok {
		m.order = append(m.order, p.ID)
	}
	m.products[p.ID] = p
}

func (m *Memory) SetStock(id, amount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[id] = cart.StockEntry{ID: id, Amount: amount}
}

func (m *Memory) GetProduct(_ context.Context, id int) (*cart.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, cart.ErrProductNotFound
	}
	return &p, nil
}

func (m *Memory) GetStock(_ context.Context, id int) (*cart.StockEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stock[id]
	if !ok {
		return nil, cart.ErrStockNotFound
	}
	return &s, nil
}

func (m *Memory) ListProducts(_ context.Context) ([]cart.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]cart.Product, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.products[id])
	}
	return out, nil
}

func (m *Memory) ListStock(_ context.Context) ([]cart.StockEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]cart.StockEntry, 0, len(m.stock))
	for _, id := range m.order {
		if s, ok := m.stock[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}
