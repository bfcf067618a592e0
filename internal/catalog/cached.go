package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/ec-cart/internal/domain/cart"
	"golang.org/x/sync/singleflight"
)

type cacheItem[T any] struct {
	value     T
	err       error
	expiresAt time.Time
}

// Cached wraps a catalog with a TTL cache. Entries are never older than
// ttl; concurrent misses for the same key share one upstream call.
// Not-found answers are cached too. Other errors are not.
type Cached struct {
	inner cart.Catalog
	ttl   time.Duration
	now   func() time.Time

	mu       sync.RWMutex
	products map[int]cacheItem[cart.Product]
	stock    map[int]cacheItem[cart.StockEntry]
	group    singleflight.Group
}

func NewCached(inner cart.Catalog, ttl time.Duration) *Cached {
	return &Cached{
		inner:    inner,
		ttl:      ttl,
		now:      time.Now,
		products: make(map[int]cacheItem[cart.Product]),
		stock:    make(map[int]cacheItem[cart.StockEntry]),
	}
}

func (c *Cached) GetProduct(ctx context.Context, id int) (*cart.Product, error) {
	c.mu.RLock()
	item, ok := c.products[id]
	c.mu.RUnlock()
	if ok && c.now().Before(item.expiresAt) {
		if item.err != nil {
			return nil, item.err
		}
		p := item.value
		return &p, nil
	}

	v, err := c.shared(ctx, fmt.Sprintf("product:%d", id), func(ctx context.Context) (any, error) {
		p, err := c.inner.GetProduct(ctx, id)
		if err != nil {
			if errors.Is(err, cart.ErrProductNotFound) {
				c.storeProduct(id, cart.Product{}, err)
			}
			return nil, err
		}
		c.storeProduct(id, *p, nil)
		return *p, nil
	})
	if err != nil {
		return nil, err
	}
	p := v.(cart.Product)
	return &p, nil
}

func (c *Cached) GetStock(ctx context.Context, id int) (*cart.StockEntry, error) {
	c.mu.RLock()
	item, ok := c.stock[id]
	c.mu.RUnlock()
	if ok && c.now().Before(item.expiresAt) {
		if item.err != nil {
			return nil, item.err
		}
		s := item.value
		return &s, nil
	}

	v, err := c.shared(ctx, fmt.Sprintf("stock:%d", id), func(ctx context.Context) (any, error) {
		s, err := c.inner.GetStock(ctx, id)
		if err != nil {
			if errors.Is(err, cart.ErrStockNotFound) {
				c.storeStock(id, cart.StockEntry{}, err)
			}
			return nil, err
		}
		c.storeStock(id, *s, nil)
		return *s, nil
	})
	if err != nil {
		return nil, err
	}
	s := v.(cart.StockEntry)
	return &s, nil
}

// shared runs fetch once per key for all concurrent callers. The upstream
// call is detached from any single caller's cancellation; a cancelled caller
// stops waiting without failing the others.
func (c *Cached) shared(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return fetch(detached)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ListProducts always goes upstream and refreshes the per-product entries.
func (c *Cached) ListProducts(ctx context.Context) ([]cart.Product, error) {
	products, err := c.inner.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		c.storeProduct(p.ID, p, nil)
	}
	return products, nil
}

// ListStock always goes upstream and refreshes the per-product entries.
func (c *Cached) ListStock(ctx context.Context) ([]cart.StockEntry, error) {
	stock, err := c.inner.ListStock(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range stock {
		c.storeStock(s.ID, s, nil)
	}
	return stock, nil
}

// Refresh primes the cache from the bulk listings.
func (c *Cached) Refresh(ctx context.Context) error {
	if _, err := c.ListProducts(ctx); err != nil {
		return fmt.Errorf("failed to refresh products: %w", err)
	}
	if _, err := c.ListStock(ctx); err != nil {
		return fmt.Errorf("failed to refresh stock: %w", err)
	}
	return nil
}

// Invalidate drops every cached entry.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = make(map[int]cacheItem[cart.Product])
	c.stock = make(map[int]cacheItem[cart.StockEntry])
}

func (c *Cached) storeProduct(id int, p cart.Product, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[id] = cacheItem[cart.Product]{value: p, err: err, expiresAt: c.now().Add(c.ttl)}
}

func (c *Cached) storeStock(id int, s cart.StockEntry, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stock[id] = cacheItem[cart.StockEntry]{value: s, err: err, expiresAt: c.now().Add(c.ttl)}
}
